package audit

import "context"

type correlationKey struct{}

// WithCorrelationID returns a context carrying the correlation ID that ties
// together all audit events produced while serving one tool call.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey{}, id)
}

// CorrelationIDFrom returns the correlation ID stored in ctx, or "" when
// none was set.
func CorrelationIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(correlationKey{}).(string)
	return id
}
