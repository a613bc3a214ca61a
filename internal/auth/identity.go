package auth

import "context"

// Scheme names how a request proved who sent it.
type Scheme string

const (
	SchemeBearer    Scheme = "bearer"
	SchemeSignature Scheme = "signature"
)

// BridgeSource is the source of requests signed with the ingest secret.
const BridgeSource = "mqtt-bridge"

// Identity is the authenticated caller of a request.
type Identity struct {
	Scheme  Scheme
	Role    Role
	Source  string
	Subject string
}

// Label names the caller in logs: source, else subject, else scheme.
func (id Identity) Label() string {
	switch {
	case id.Source != "":
		return id.Source
	case id.Subject != "":
		return id.Subject
	default:
		return string(id.Scheme)
	}
}

type identityKey struct{}

// WithIdentity stores the caller identity in ctx.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext returns the caller identity stored by the middleware.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	if ctx == nil {
		return Identity{}, false
	}
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}
