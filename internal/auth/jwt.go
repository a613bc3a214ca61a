package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims represents JWT claims accepted by the ingest API.
type Claims struct {
	Source string `json:"source,omitempty"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// Identity converts validated claims into a bearer identity.
func (c *Claims) Identity() (Identity, error) {
	role, err := ParseRole(c.Role)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	return Identity{Scheme: SchemeBearer, Role: role, Source: c.Source, Subject: c.Subject}, nil
}

// ParseJWT validates an HS256 token and returns its claims.
func ParseJWT(tokenString string, secret []byte) (*Claims, error) {
	if len(secret) == 0 {
		return nil, ErrNotConfigured
	}
	if tokenString == "" {
		return nil, ErrMissingCredentials
	}

	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	claims := &Claims{}
	token, err := parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		return secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	if _, err := claims.Identity(); err != nil {
		return nil, err
	}
	return claims, nil
}

// IssueJWT signs a token for id, valid for ttl. A zero ttl issues a token
// without expiry.
func IssueJWT(secret []byte, id Identity, ttl time.Duration) (string, error) {
	if len(secret) == 0 {
		return "", ErrNotConfigured
	}
	role, err := ParseRole(string(id.Role))
	if err != nil {
		return "", err
	}
	now := time.Now()
	claims := Claims{
		Source: id.Source,
		Role:   string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  id.Subject,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}
