// Package observe provides application-wide observability primitives for
// voxhire: OpenTelemetry metrics, tracing, structured logging, and HTTP
// middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped via the standard /metrics endpoint. A package-level default
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

// meterName is the instrumentation scope name used for all voxhire metrics.
const meterName = "github.com/voxhire/voxhire"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Audio pipeline counters ---

	// UplinkFlushes counts uplink buffer flushes delivered to the agent.
	UplinkFlushes metric.Int64Counter

	// UplinkDropped counts uplink chunks dropped because the backlog was full.
	UplinkDropped metric.Int64Counter

	// PlaybackQueueDepth tracks the number of agent audio chunks waiting to
	// be played.
	PlaybackQueueDepth metric.Int64UpDownCounter

	// --- Session ---

	// StateTransitions counts session state changes. Use with attribute:
	//   attribute.String("state", ...)
	StateTransitions metric.Int64Counter

	// TransportErrors counts fatal transport failures. Use with attribute:
	//   attribute.String("op", ...)
	TransportErrors metric.Int64Counter

	// --- Latency histograms ---

	// ReportDuration tracks hiring report generation latency.
	ReportDuration metric.Float64Histogram

	// PersistDuration tracks transcript snapshot persistence latency.
	PersistDuration metric.Float64Histogram

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds). Report
// generation is an LLM round trip, persistence a database one; the range
// covers both.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Counters.
	if met.UplinkFlushes, err = m.Int64Counter("voxhire.uplink.flushes",
		metric.WithDescription("Total uplink buffer flushes delivered to the agent."),
	); err != nil {
		return nil, err
	}
	if met.UplinkDropped, err = m.Int64Counter("voxhire.uplink.dropped",
		metric.WithDescription("Total uplink chunks dropped due to a full backlog."),
	); err != nil {
		return nil, err
	}
	if met.StateTransitions, err = m.Int64Counter("voxhire.session.state_transitions",
		metric.WithDescription("Total session state transitions by target state."),
	); err != nil {
		return nil, err
	}
	if met.TransportErrors, err = m.Int64Counter("voxhire.transport.errors",
		metric.WithDescription("Total fatal transport failures by operation."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.PlaybackQueueDepth, err = m.Int64UpDownCounter("voxhire.playback.queue_depth",
		metric.WithDescription("Number of agent audio chunks waiting to be played."),
	); err != nil {
		return nil, err
	}

	// Histograms.
	if met.ReportDuration, err = m.Float64Histogram("voxhire.report.duration",
		metric.WithDescription("Latency of hiring report generation."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.PersistDuration, err = m.Float64Histogram("voxhire.persist.duration",
		metric.WithDescription("Latency of transcript snapshot persistence."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("voxhire.http.request.duration",
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
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
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

// RecordStateTransition records a session state change.
func (m *Metrics) RecordStateTransition(ctx context.Context, state string) {
	m.StateTransitions.Add(ctx, 1,
		metric.WithAttributes(attribute.String("state", state)),
	)
}

// RecordTransportError records a fatal transport failure.
func (m *Metrics) RecordTransportError(ctx context.Context, op string) {
	m.TransportErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("op", op)),
	)
}
