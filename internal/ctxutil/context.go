// Package ctxutil provides the small context conventions shared by the
// dispatcher, lookup engine, and stabilizer: a correlation ID for tracing a
// logical lookup across hops, and a timeout helper for the handful of
// suspension points the ring core defines (finger-fill lookups and the
// predecessor-stabilization probe).
package ctxutil

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
)

type traceKey struct{}

// NewTraceID mints a fresh correlation ID for a logical lookup. It is
// attached to the Lookup message so every hop's log line can be joined by
// this value even when tracing (internal/telemetry) is disabled.
func NewTraceID() string {
	return ulid.Make().String()
}

// WithTraceID attaches an existing trace ID to ctx, or mints a new one if
// traceID is empty.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	if traceID == "" {
		traceID = NewTraceID()
	}
	return context.WithValue(ctx, traceKey{}, traceID)
}

// TraceID extracts the trace ID from ctx, or "" if none was attached.
func TraceID(ctx context.Context) string {
	v, _ := ctx.Value(traceKey{}).(string)
	return v
}

// WithTimeout is a thin wrapper over context.WithTimeout kept so call
// sites read uniformly across the ring core packages.
func WithTimeout(parent context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, d)
}
