// Package observe provides application-wide observability primitives for
// Kousei: OpenTelemetry metrics, tracing, structured logging, and HTTP
// middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
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

// meterName is the instrumentation scope name used for all Kousei metrics.
const meterName = "github.com/MrWong99/kousei"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// SegmentDuration tracks per-segment processing latency. Use with
	// attribute: attribute.String("path", "rule"|"llm").
	SegmentDuration metric.Float64Histogram

	// QualityScore tracks the distribution of segment quality scores.
	QualityScore metric.Float64Histogram

	// SegmentsProcessed counts processed segments. Use with attributes:
	//   attribute.String("path", ...), attribute.String("bucket", ...)
	SegmentsProcessed metric.Int64Counter

	// LLMRequests counts escalation calls. Use with attribute:
	//   attribute.String("status", "ok"|"error"|"noop")
	LLMRequests metric.Int64Counter

	// LLMTokens counts tokens spent on escalation. Use with attribute:
	//   attribute.String("direction", "input"|"output")
	LLMTokens metric.Int64Counter

	// ActiveJobs tracks the number of transcript files being processed
	// concurrently in a batch run.
	ActiveJobs metric.Int64UpDownCounter

	// HTTPRequestDuration tracks HTTP request processing time on the demo
	// server. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// segmentLatencyBuckets defines histogram bucket boundaries (in seconds) for
// segment processing: rule-only segments finish in microseconds, escalated
// ones take an LLM round trip.
var segmentLatencyBuckets = []float64{
	0.0001, 0.001, 0.01, 0.1, 0.5, 1, 2.5, 5, 10, 30,
}

// qualityBuckets split the [0,1] quality range on the reporting band edges.
var qualityBuckets = []float64{0.2, 0.4, 0.6, 0.7, 0.8, 0.9, 1}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.SegmentDuration, err = m.Float64Histogram("kousei.segment.duration",
		metric.WithDescription("Per-segment correction latency by path."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(segmentLatencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.QualityScore, err = m.Float64Histogram("kousei.segment.quality",
		metric.WithDescription("Distribution of segment quality scores."),
		metric.WithExplicitBucketBoundaries(qualityBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SegmentsProcessed, err = m.Int64Counter("kousei.segments.processed",
		metric.WithDescription("Total processed segments by path and quality bucket."),
	); err != nil {
		return nil, err
	}
	if met.LLMRequests, err = m.Int64Counter("kousei.llm.requests",
		metric.WithDescription("Total LLM escalation calls by status."),
	); err != nil {
		return nil, err
	}
	if met.LLMTokens, err = m.Int64Counter("kousei.llm.tokens",
		metric.WithDescription("Total LLM tokens by direction."),
	); err != nil {
		return nil, err
	}
	if met.ActiveJobs, err = m.Int64UpDownCounter("kousei.active_jobs",
		metric.WithDescription("Number of transcript files currently being processed."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("kousei.http.request.duration",
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

// RecordSegment records one processed segment: its latency, its quality
// score, and the processed counter with path and bucket attributes.
func (m *Metrics) RecordSegment(ctx context.Context, path, bucket string, seconds, quality float64) {
	m.SegmentDuration.Record(ctx, seconds,
		metric.WithAttributes(attribute.String("path", path)),
	)
	m.QualityScore.Record(ctx, quality)
	m.SegmentsProcessed.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("path", path),
			attribute.String("bucket", bucket),
		),
	)
}

// RecordLLMRequest records one escalation call with its status.
func (m *Metrics) RecordLLMRequest(ctx context.Context, status string) {
	m.LLMRequests.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)),
	)
}

// RecordLLMTokens records tokens spent by one escalation call.
func (m *Metrics) RecordLLMTokens(ctx context.Context, inputTokens, outputTokens int) {
	m.LLMTokens.Add(ctx, int64(inputTokens),
		metric.WithAttributes(attribute.String("direction", "input")),
	)
	m.LLMTokens.Add(ctx, int64(outputTokens),
		metric.WithAttributes(attribute.String("direction", "output")),
	)
}
