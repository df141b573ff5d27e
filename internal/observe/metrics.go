// Package observe provides application-wide observability primitives for
// transcriberd: OpenTelemetry metrics, distributed tracing, structured
// logging, and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still
// be scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all transcriberd
// metrics.
const meterName = "github.com/johnsnewby/transcriberd"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// IngestBytes counts PCM bytes received per session. Use with
	// attribute.String("external_id", ...).
	IngestBytes metric.Int64Counter

	// UtteranceDuration tracks wall-clock time from enqueue to last
	// segment delivered for a sequence.
	UtteranceDuration metric.Float64Histogram

	// InferenceDuration tracks per-invocation model latency. Use with
	// attribute.String("worker", "local"|"remote").
	InferenceDuration metric.Float64Histogram

	// QueueDepth is the approximate job queue backlog.
	QueueDepth metric.Int64UpDownCounter

	// SessionsActive is the number of live sessions.
	SessionsActive metric.Int64UpDownCounter

	// SessionsExpired counts sessions removed by the idle-expiry sweep.
	SessionsExpired metric.Int64Counter

	// SegmentErrors counts inference/delivery/storage failures. Use with
	// attribute.String("taxonomy", "inference"|"delivery"|"storage").
	SegmentErrors metric.Int64Counter

	// HTTPRequestDuration tracks HTTP request processing time. Use with
	// attributes: attribute.String("method", ...), attribute.String("path", ...).
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for transcription-pipeline latencies: utterances are tens of seconds long
// and inference calls range from sub-second to tens of seconds.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 40,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.IngestBytes, err = m.Int64Counter("transcriberd.ingest.bytes",
		metric.WithDescription("PCM bytes received per session."),
		metric.WithUnit("By"),
	); err != nil {
		return nil, err
	}
	if met.UtteranceDuration, err = m.Float64Histogram("transcriberd.utterance.duration",
		metric.WithDescription("Wall-clock time from enqueue to last segment delivered for a sequence."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.InferenceDuration, err = m.Float64Histogram("transcriberd.worker.inference.duration",
		metric.WithDescription("Per-invocation model latency, local and remote workers."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.QueueDepth, err = m.Int64UpDownCounter("transcriberd.queue.depth",
		metric.WithDescription("Approximate job queue backlog."),
	); err != nil {
		return nil, err
	}
	if met.SessionsActive, err = m.Int64UpDownCounter("transcriberd.sessions.active",
		metric.WithDescription("Number of live sessions."),
	); err != nil {
		return nil, err
	}
	if met.SessionsExpired, err = m.Int64Counter("transcriberd.sessions.expired",
		metric.WithDescription("Total sessions removed by the idle-expiry sweep."),
	); err != nil {
		return nil, err
	}
	if met.SegmentErrors, err = m.Int64Counter("transcriberd.segments.errors",
		metric.WithDescription("Total inference, delivery, and storage failures by taxonomy bucket."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("transcriberd.http.request.duration",
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

// DefaultMetrics returns the package-level [Metrics] instance, creating it
// on first call using [otel.GetMeterProvider]. Subsequent calls return the
// same pointer. Panics if instrument creation fails (should not happen with
// the global provider).
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

// RecordIngest records bytes received for a session.
func (m *Metrics) RecordIngest(ctx context.Context, externalID string, n int64) {
	m.IngestBytes.Add(ctx, n, metric.WithAttributes(attribute.String("external_id", externalID)))
}

// RecordInference records one inference invocation's duration for the given
// worker kind ("local" or "remote").
func (m *Metrics) RecordInference(ctx context.Context, worker string, seconds float64) {
	m.InferenceDuration.Record(ctx, seconds, metric.WithAttributes(attribute.String("worker", worker)))
}

// RecordSegmentError increments the segment error counter for a taxonomy
// bucket ("inference", "delivery", or "storage").
func (m *Metrics) RecordSegmentError(ctx context.Context, taxonomy string) {
	m.SegmentErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("taxonomy", taxonomy)))
}

// RecordSessionExpired increments the expired-sessions counter.
func (m *Metrics) RecordSessionExpired(ctx context.Context) {
	m.SessionsExpired.Add(ctx, 1)
}
