// Package lookuptrace instruments the lookup path with manual spans. Unlike
// an RPC framework with interceptor hooks, net/rpc gives call sites no
// middleware point, so the dispatcher's Handle method and the lookup
// engine's Lookup method start spans directly through the helpers here
// instead.
package lookuptrace

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "chordring/lookup"

var tracer = otel.Tracer(tracerName)

// StartLookupSpan opens the root span for a caller-initiated resolution of
// key, tagging it so every forwarded hop can be found under the same trace.
func StartLookupSpan(ctx context.Context, key string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "lookup.resolve",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("dht.lookup.key", key)),
	)
}

// StartHopSpan opens a span for one step of a Lookup traveling through the
// ring: opName names the operation being run (e.g. "lookup", "notify") and
// hop is the number of forwards remaining, so a trace shows how many nodes
// a resolution touched before completing.
func StartHopSpan(ctx context.Context, opName string, hop int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "lookup."+opName,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(attribute.Int("dht.lookup.hops_remaining", hop)),
	)
}
