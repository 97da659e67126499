package enrich

import "context"

type traceKey struct{}

// WithTraceID returns a copy of ctx carrying the correlation token that is
// stamped onto tickets created under it.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	if traceID == "" {
		return ctx
	}
	return context.WithValue(ctx, traceKey{}, traceID)
}

// TraceIDFrom returns the correlation token carried by ctx, or "".
func TraceIDFrom(ctx context.Context) string {
	s, _ := ctx.Value(traceKey{}).(string)
	return s
}
