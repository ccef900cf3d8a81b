package requestid

import (
	"context"

	"github.com/google/uuid"
)

type ctxKey struct{}
type flowCtxKey struct{}

// New generates a random UUID v4 request ID.
func New() string {
	return uuid.NewString()
}

// WithRequestID returns a copy of ctx with the request ID attached.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext extracts the request ID from ctx. Returns "" if absent.
func FromContext(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

// WithFlowID returns a copy of ctx carrying flowID; the log ContextHandler
// adds it as flow_id to every record logged with that ctx.
func WithFlowID(ctx context.Context, flowID string) context.Context {
	return context.WithValue(ctx, flowCtxKey{}, flowID)
}

// FlowIDFromContext extracts the flow id attached by WithFlowID, or "".
func FlowIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(flowCtxKey{}).(string)
	return id
}
