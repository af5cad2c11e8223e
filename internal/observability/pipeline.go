package observability

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// PipelineMetrics is the instrument set for the ingest pipeline: frame
// intake, parse attempts and classification runs.
type PipelineMetrics struct {
	framesReceived  metric.Int64Counter
	recordsDropped  metric.Int64Counter
	parseDuration   metric.Float64Histogram
	parseFallbacks  metric.Int64Counter
	classifierRuns  metric.Int64Counter
	classifierSkips metric.Int64Counter
	fetchDuration   metric.Float64Histogram
	cacheHits       metric.Int64Counter
	cacheMisses     metric.Int64Counter
}

// NewPipelineMetrics creates the pipeline instrument set on a meter.
func NewPipelineMetrics(meter metric.Meter) (*PipelineMetrics, error) {
	framesReceived, err := meter.Int64Counter("pipeline.frames.received",
		metric.WithDescription("Telemetry frames received, by kind"))
	if err != nil {
		return nil, err
	}
	recordsDropped, err := meter.Int64Counter("pipeline.records.dropped",
		metric.WithDescription("Malformed per-record drops inside accepted frames"))
	if err != nil {
		return nil, err
	}
	parseDuration, err := meter.Float64Histogram("pipeline.parse.duration",
		metric.WithDescription("Network document parse duration"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	parseFallbacks, err := meter.Int64Counter("pipeline.parse.fallbacks",
		metric.WithDescription("Accelerated parse attempts that fell back to interpreted"))
	if err != nil {
		return nil, err
	}
	classifierRuns, err := meter.Int64Counter("pipeline.classifier.runs",
		metric.WithDescription("Classification recomputations, by policy"))
	if err != nil {
		return nil, err
	}
	classifierSkips, err := meter.Int64Counter("pipeline.classifier.skips",
		metric.WithDescription("Classification runs skipped by the recomputation throttle"))
	if err != nil {
		return nil, err
	}

	fetchDuration, err := meter.Float64Histogram("pipeline.fetch.duration",
		metric.WithDescription("Network document fetch duration"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	cacheHits, err := meter.Int64Counter("pipeline.cache.hits",
		metric.WithDescription("Network model loads served from the document cache"))
	if err != nil {
		return nil, err
	}
	cacheMisses, err := meter.Int64Counter("pipeline.cache.misses",
		metric.WithDescription("Network model loads that had to fetch and parse"))
	if err != nil {
		return nil, err
	}

	return &PipelineMetrics{
		framesReceived:  framesReceived,
		recordsDropped:  recordsDropped,
		parseDuration:   parseDuration,
		parseFallbacks:  parseFallbacks,
		classifierRuns:  classifierRuns,
		classifierSkips: classifierSkips,
		fetchDuration:   fetchDuration,
		cacheHits:       cacheHits,
		cacheMisses:     cacheMisses,
	}, nil
}

// RecordFrame counts one received frame of a kind.
func (m *PipelineMetrics) RecordFrame(ctx context.Context, kind string) {
	m.framesReceived.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordDroppedRecords counts malformed records dropped from a frame.
func (m *PipelineMetrics) RecordDroppedRecords(ctx context.Context, kind string, n int) {
	if n <= 0 {
		return
	}
	m.recordsDropped.Add(ctx, int64(n), metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordParse records one parse attempt's duration and strategy.
func (m *PipelineMetrics) RecordParse(ctx context.Context, strategy string, seconds float64) {
	m.parseDuration.Record(ctx, seconds, metric.WithAttributes(attribute.String("strategy", strategy)))
}

// RecordParseFallback counts one accelerated-to-interpreted fallback.
func (m *PipelineMetrics) RecordParseFallback(ctx context.Context) {
	m.parseFallbacks.Add(ctx, 1)
}

// RecordFetch records one document fetch's duration.
func (m *PipelineMetrics) RecordFetch(ctx context.Context, seconds float64) {
	m.fetchDuration.Record(ctx, seconds)
}

// RecordCacheHit counts one model load served from the cache.
func (m *PipelineMetrics) RecordCacheHit(ctx context.Context) {
	m.cacheHits.Add(ctx, 1)
}

// RecordCacheMiss counts one model load that bypassed the cache.
func (m *PipelineMetrics) RecordCacheMiss(ctx context.Context) {
	m.cacheMisses.Add(ctx, 1)
}

// RecordClassification counts one classification run or throttle skip.
func (m *PipelineMetrics) RecordClassification(ctx context.Context, policy string, ran bool) {
	attrs := metric.WithAttributes(attribute.String("policy", policy))
	if ran {
		m.classifierRuns.Add(ctx, 1, attrs)
		return
	}
	m.classifierSkips.Add(ctx, 1, attrs)
}
