// Package observe provides application-wide observability primitives for
// formscribe: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is installed by [InitProvider] so that metrics can be
// scraped via the /metrics endpoint. A package-level default [Metrics]
// instance ([DefaultMetrics]) is provided for convenience; tests should use
// [NewMetrics] with a custom [metric.MeterProvider] to avoid cross-test
// pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all formscribe metrics.
const meterName = "github.com/MrWong99/formscribe"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// OracleDuration tracks mapping-oracle round-trip latency.
	OracleDuration metric.Float64Histogram

	// OracleRequests counts oracle calls. Use with attribute:
	//   attribute.String("status", "ok"|"error"|"parse_error"|"rejected")
	OracleRequests metric.Int64Counter

	// FieldUpdates counts field values written by reconciliation. Use with attribute:
	//   attribute.String("source", "ambient"|"dictation")
	FieldUpdates metric.Int64Counter

	// UnresolvedKeys counts oracle keys that matched no field.
	UnresolvedKeys metric.Int64Counter

	// WriteFailures counts writes rejected by the field writer.
	WriteFailures metric.Int64Counter

	// RecognitionErrors counts recognizer errors. Use with attributes:
	//   attribute.String("code", ...), attribute.String("kind", "transient"|"fatal")
	RecognitionErrors metric.Int64Counter

	// RecognizerRestarts counts automatic recognizer restarts.
	RecognizerRestarts metric.Int64Counter

	// Dictations counts finished dictation sessions. Use with attribute:
	//   attribute.String("outcome", "silence"|"stopped"|"end_of_stream"|"error")
	Dictations metric.Int64Counter

	// ActiveSessions tracks live capture sessions. Use with attribute:
	//   attribute.String("kind", "dictation"|"ambient")
	ActiveSessions metric.Int64UpDownCounter

	// DiscoveredFields reports the field count of the latest discovery pass.
	DiscoveredFields metric.Int64Gauge

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// LLM round trips.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 15, 30,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.OracleDuration, err = m.Float64Histogram("formscribe.oracle.duration",
		metric.WithDescription("Latency of mapping-oracle calls."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.OracleRequests, err = m.Int64Counter("formscribe.oracle.requests",
		metric.WithDescription("Total mapping-oracle calls by status."),
	); err != nil {
		return nil, err
	}
	if met.FieldUpdates, err = m.Int64Counter("formscribe.reconcile.updates",
		metric.WithDescription("Total field values written by source."),
	); err != nil {
		return nil, err
	}
	if met.UnresolvedKeys, err = m.Int64Counter("formscribe.reconcile.unresolved",
		metric.WithDescription("Total oracle keys that matched no discovered field."),
	); err != nil {
		return nil, err
	}
	if met.WriteFailures, err = m.Int64Counter("formscribe.field.write_failures",
		metric.WithDescription("Total field writes rejected by the writer."),
	); err != nil {
		return nil, err
	}
	if met.RecognitionErrors, err = m.Int64Counter("formscribe.recognition.errors",
		metric.WithDescription("Total recognizer errors by code and kind."),
	); err != nil {
		return nil, err
	}
	if met.RecognizerRestarts, err = m.Int64Counter("formscribe.recognition.restarts",
		metric.WithDescription("Total automatic recognizer restarts."),
	); err != nil {
		return nil, err
	}
	if met.Dictations, err = m.Int64Counter("formscribe.dictations",
		metric.WithDescription("Total finished dictation sessions by outcome."),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("formscribe.sessions.active",
		metric.WithDescription("Number of live capture sessions."),
	); err != nil {
		return nil, err
	}
	if met.DiscoveredFields, err = m.Int64Gauge("formscribe.discovery.fields",
		metric.WithDescription("Field count of the latest discovery pass."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("formscribe.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Panics if instrument creation
// fails (should not happen with the global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordOracleCall records one oracle call with its latency and outcome.
func (m *Metrics) RecordOracleCall(ctx context.Context, status string, d time.Duration) {
	m.OracleDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("status", status)))
	m.OracleRequests.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// RecordReconcile records the outcome of one reconciliation batch. Rejected
// writes are counted by the registry itself.
func (m *Metrics) RecordReconcile(ctx context.Context, source string, updated, unresolved int) {
	if updated > 0 {
		m.FieldUpdates.Add(ctx, int64(updated), metric.WithAttributes(attribute.String("source", source)))
	}
	if unresolved > 0 {
		m.UnresolvedKeys.Add(ctx, int64(unresolved))
	}
}

// RecordRecognitionError records a recognizer error.
func (m *Metrics) RecordRecognitionError(ctx context.Context, code, kind string) {
	m.RecognitionErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("code", code),
			attribute.String("kind", kind),
		),
	)
}

// RecordDictation records a finished dictation session.
func (m *Metrics) RecordDictation(ctx context.Context, outcome string) {
	m.Dictations.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// SessionStarted and SessionEnded keep the active-session gauge in step.
func (m *Metrics) SessionStarted(ctx context.Context, kind string) {
	m.ActiveSessions.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// SessionEnded decrements the active-session gauge.
func (m *Metrics) SessionEnded(ctx context.Context, kind string) {
	m.ActiveSessions.Add(ctx, -1, metric.WithAttributes(attribute.String("kind", kind)))
}
