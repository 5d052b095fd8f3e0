package observe

import (
	"context"
	"log/slog"
	"slices"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// scope is the instrumentation scope of formscribe spans.
const scope = "github.com/MrWong99/formscribe"

// StartSpan starts a span on the global tracer provider. The caller must end
// it.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return otel.Tracer(scope).Start(ctx, name, opts...)
}

// Detach returns a context that carries the values and span of ctx but is
// never cancelled. Work that must outlive its originating capture (an oracle
// call still in flight when ambient capture stops, a pause timer) runs under
// it so traces and log attributes stay connected.
func Detach(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}

// CorrelationID is the trace ID of the span in ctx, or "" without one.
func CorrelationID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

type logKey struct{}

// logState is the logger configuration carried by a context.
type logState struct {
	base  *slog.Logger
	attrs []any
}

func stateFrom(ctx context.Context) logState {
	st, _ := ctx.Value(logKey{}).(logState)
	return st
}

// WithLogger returns a context whose [Logger] starts from l instead of the
// default logger. Attributes added with [WithAttrs] are kept.
func WithLogger(ctx context.Context, l *slog.Logger) context.Context {
	st := stateFrom(ctx)
	st.base = l
	return context.WithValue(ctx, logKey{}, st)
}

// WithAttrs returns a context whose [Logger] adds attrs to every record, for
// example the capture mode or the dictated label.
func WithAttrs(ctx context.Context, attrs ...any) context.Context {
	st := stateFrom(ctx)
	st.attrs = append(slices.Clip(st.attrs), attrs...)
	return context.WithValue(ctx, logKey{}, st)
}

// Logger returns the logger for ctx: the one set with [WithLogger] or the
// default, with the attributes from [WithAttrs] and the trace_id and span_id
// of the active span.
func Logger(ctx context.Context) *slog.Logger {
	st := stateFrom(ctx)
	l := st.base
	if l == nil {
		l = slog.Default()
	}
	if len(st.attrs) > 0 {
		l = l.With(st.attrs...)
	}
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		l = l.With(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	return l
}
