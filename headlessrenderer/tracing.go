package headlessrenderer

import (
	"context"

	tracing "github.com/jamesrr39/go-tracing"
)

// startSpan starts a span when ctx carries a trace. The returned func ends it.
func startSpan(ctx context.Context, name string) func() {
	if ctx.Value(tracing.TracerCtxKey) == nil || ctx.Value(tracing.TraceCtxKey) == nil {
		return func() {}
	}

	span := tracing.StartSpan(ctx, name)
	return func() {
		span.End(ctx)
	}
}

// WithTrace returns a context that records spans into a new trace of tracer. end writes the trace out.
func WithTrace(ctx context.Context, tracer *tracing.Tracer, name string) (traceCtx context.Context, end func(summary string) error) {
	trace := tracing.StartTrace(tracer, name)

	traceCtx = context.WithValue(ctx, tracing.TraceCtxKey, trace)
	traceCtx = context.WithValue(traceCtx, tracing.TracerCtxKey, tracer)

	return traceCtx, func(summary string) error {
		return tracer.EndTrace(trace, summary)
	}
}
