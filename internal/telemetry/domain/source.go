package telemetry

import "context"

type sourceKey struct{}

// WithSource records who delivered the message being handled under ctx.
func WithSource(ctx context.Context, source string) context.Context {
	return context.WithValue(ctx, sourceKey{}, source)
}

// SourceFromContext returns the delivering source, or "-" when unknown.
func SourceFromContext(ctx context.Context) string {
	if ctx != nil {
		if source, ok := ctx.Value(sourceKey{}).(string); ok && source != "" {
			return source
		}
	}
	return "-"
}
