package auth

import (
	"errors"
	"net/http"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrNotConfigured      = errors.New("auth: not configured")
	ErrMissingCredentials = errors.New("auth: missing credentials")
	ErrInvalidToken       = errors.New("auth: invalid token")
	ErrUnknownRole        = errors.New("auth: unknown role")
	ErrExpired            = errors.New("auth: credentials expired")
	ErrInvalidSignature   = errors.New("auth: invalid signature")
	ErrForbidden          = errors.New("auth: forbidden")
)

// Rejection reasons, reported to RejectFunc and used as metric labels.
const (
	ReasonNotConfigured = "not_configured"
	ReasonMissing       = "missing_credentials"
	ReasonInvalid       = "invalid_credentials"
	ReasonExpired       = "expired"
	ReasonForbidden     = "forbidden"
)

// RejectReason classifies an authentication error.
func RejectReason(err error) string {
	switch {
	case errors.Is(err, ErrNotConfigured):
		return ReasonNotConfigured
	case errors.Is(err, ErrMissingCredentials):
		return ReasonMissing
	case errors.Is(err, ErrExpired), errors.Is(err, jwt.ErrTokenExpired):
		return ReasonExpired
	case errors.Is(err, ErrForbidden):
		return ReasonForbidden
	default:
		return ReasonInvalid
	}
}

func rejectStatus(err error) int {
	if errors.Is(err, ErrForbidden) {
		return http.StatusForbidden
	}
	return http.StatusUnauthorized
}
