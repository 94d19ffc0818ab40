// Package observe provides application-wide observability primitives for the
// collector-canon pipeline: OpenTelemetry metrics, distributed tracing,
// structured logging, and HTTP middleware that ties them together.
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

// meterName is the instrumentation scope name used for all collector-canon metrics.
const meterName = "github.com/herbarium-data/collector-canon"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// NormalizeDuration tracks internal/normalize.Normalize latency.
	NormalizeDuration metric.Float64Histogram

	// ClassifyDuration tracks internal/classify.Classifier.Classify latency.
	ClassifyDuration metric.Float64Histogram

	// NERDuration tracks internal/nerfallback.Adapter.Classify latency.
	NERDuration metric.Float64Histogram

	// StoreUpsertDuration tracks internal/canonstore.Store.Upsert latency,
	// including the FindSimilar scan it performs internally.
	StoreUpsertDuration metric.Float64Histogram

	// BatchDuration tracks end-to-end processing latency for one pipeline batch.
	BatchDuration metric.Float64Histogram

	// --- Counters ---

	// RecordsProcessed counts records that completed the pipeline. Use with
	// attribute: attribute.String("outcome", "merged"|"created"|"discarded").
	RecordsProcessed metric.Int64Counter

	// RecordsDiscarded counts records the pipeline discards. Use with
	// attribute: attribute.String("reason", ...).
	RecordsDiscarded metric.Int64Counter

	// NERCalls counts NER adapter invocations. Use with attributes:
	//   attribute.String("status", "ok"|"timeout"|"error"|"circuit_open")
	NERCalls metric.Int64Counter

	// ClassificationsByCategory counts classification outcomes. Use with
	// attribute: attribute.String("category", ...).
	ClassificationsByCategory metric.Int64Counter

	// --- Gauges ---

	// InFlightBatches tracks the number of pipeline batches currently being
	// processed by worker goroutines.
	InFlightBatches metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time for the
	// health/metrics server. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) suited to
// per-record text-processing latencies, which run well under a second except
// when the NER fallback is on the critical path.
var latencyBuckets = []float64{
	0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.NormalizeDuration, err = m.Float64Histogram("collector_canon.normalize.duration",
		metric.WithDescription("Latency of collector name normalization."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ClassifyDuration, err = m.Float64Histogram("collector_canon.classify.duration",
		metric.WithDescription("Latency of rule-based entity classification."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.NERDuration, err = m.Float64Histogram("collector_canon.ner.duration",
		metric.WithDescription("Latency of the external NER fallback adapter."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.StoreUpsertDuration, err = m.Float64Histogram("collector_canon.store.upsert.duration",
		metric.WithDescription("Latency of canonical entity store find-or-create upserts."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.BatchDuration, err = m.Float64Histogram("collector_canon.batch.duration",
		metric.WithDescription("End-to-end processing latency per pipeline batch."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	if met.RecordsProcessed, err = m.Int64Counter("collector_canon.records.processed",
		metric.WithDescription("Total records that completed the pipeline, by outcome."),
	); err != nil {
		return nil, err
	}
	if met.RecordsDiscarded, err = m.Int64Counter("collector_canon.records.discarded",
		metric.WithDescription("Total records discarded by the pipeline, by reason."),
	); err != nil {
		return nil, err
	}
	if met.NERCalls, err = m.Int64Counter("collector_canon.ner.calls",
		metric.WithDescription("Total NER adapter invocations, by status."),
	); err != nil {
		return nil, err
	}
	if met.ClassificationsByCategory, err = m.Int64Counter("collector_canon.classifications",
		metric.WithDescription("Total classification outcomes, by category."),
	); err != nil {
		return nil, err
	}

	if met.InFlightBatches, err = m.Int64UpDownCounter("collector_canon.batches.in_flight",
		metric.WithDescription("Number of pipeline batches currently being processed."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("collector_canon.http.request.duration",
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

// RecordProcessed is a convenience method that records a processed-record
// counter increment with the given outcome.
func (m *Metrics) RecordProcessed(ctx context.Context, outcome string) {
	m.RecordsProcessed.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordDiscarded is a convenience method that records a discarded-record
// counter increment with the given rejection reason.
func (m *Metrics) RecordDiscarded(ctx context.Context, reason string) {
	m.RecordsDiscarded.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// RecordNERCall is a convenience method that records an NER adapter call
// counter increment with the given status.
func (m *Metrics) RecordNERCall(ctx context.Context, status string) {
	m.NERCalls.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// RecordClassification is a convenience method that records a classification
// outcome counter increment for the given category.
func (m *Metrics) RecordClassification(ctx context.Context, category string) {
	m.ClassificationsByCategory.Add(ctx, 1, metric.WithAttributes(attribute.String("category", category)))
}
