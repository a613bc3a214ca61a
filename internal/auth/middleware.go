package auth

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

// RejectFunc observes a rejected request.
type RejectFunc func(scheme Scheme, reason string)

// Config configures an Authenticator.
type Config struct {
	JWTSecret    []byte
	IngestSecret []byte
	MaxSkew      time.Duration
	Policy       Policy
	OnReject     RejectFunc
}

// Authenticator checks bearer tokens on API routes and HMAC signatures on
// bridge routes, then stores the caller Identity in the request context.
type Authenticator struct {
	cfg Config
	now func() time.Time
}

// NewAuthenticator constructs the request authenticator.
func NewAuthenticator(cfg Config) *Authenticator {
	return &Authenticator{cfg: cfg, now: time.Now}
}

// Wrap applies the policy to next.
func (a *Authenticator) Wrap(next http.Handler) http.Handler {
	if a == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rule, ok := a.cfg.Policy.Rule(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		var (
			id  Identity
			err error
		)
		if rule.Scheme == SchemeSignature {
			id, err = a.verifySignature(r)
		} else {
			id, err = a.verifyBearer(r)
		}
		if err == nil && !id.Role.Allows(rule.Action) {
			err = fmt.Errorf("%w: %s may not %s", ErrForbidden, id.Role, rule.Action)
		}
		if err != nil {
			a.reject(w, rule.Scheme, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
	})
}

func (a *Authenticator) verifyBearer(r *http.Request) (Identity, error) {
	claims, err := ParseJWT(extractBearer(r), a.cfg.JWTSecret)
	if err != nil {
		return Identity{}, err
	}
	return claims.Identity()
}

func (a *Authenticator) reject(w http.ResponseWriter, scheme Scheme, err error) {
	reason := RejectReason(err)
	if a.cfg.OnReject != nil {
		a.cfg.OnReject(scheme, reason)
	}
	http.Error(w, reason, rejectStatus(err))
}

func extractBearer(r *http.Request) string {
	parts := strings.Fields(r.Header.Get("Authorization"))
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}
