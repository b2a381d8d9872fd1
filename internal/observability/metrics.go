package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics wraps the instruments the pipeline reports on. All methods are
// nil-safe so tests and partially wired deployments can pass a nil recorder.
type Metrics struct {
	llmCalls     metric.Int64Counter
	llmLatency   metric.Float64Histogram
	cacheLookups metric.Int64Counter
	analyzeRuns  metric.Int64Counter
	analyzeMS    metric.Float64Histogram
}

func New() (*Metrics, error) {
	meter := otel.Meter("caselight-backend")

	llmCalls, err := meter.Int64Counter("llm_calls_total",
		metric.WithDescription("Backend model calls by provider and outcome"))
	if err != nil {
		return nil, err
	}
	llmLatency, err := meter.Float64Histogram("llm_call_duration_ms",
		metric.WithDescription("Backend model call latency"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}
	cacheLookups, err := meter.Int64Counter("result_cache_lookups_total",
		metric.WithDescription("Result cache lookups by outcome"))
	if err != nil {
		return nil, err
	}
	analyzeRuns, err := meter.Int64Counter("analyze_runs_total",
		metric.WithDescription("Analysis pipeline runs by outcome"))
	if err != nil {
		return nil, err
	}
	analyzeMS, err := meter.Float64Histogram("analyze_duration_ms",
		metric.WithDescription("End-to-end analysis latency"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}

	return &Metrics{
		llmCalls:     llmCalls,
		llmLatency:   llmLatency,
		cacheLookups: cacheLookups,
		analyzeRuns:  analyzeRuns,
		analyzeMS:    analyzeMS,
	}, nil
}

func (m *Metrics) RecordLLMCall(ctx context.Context, providerName string, success bool, errorKind string, elapsed time.Duration) {
	if m == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("provider", providerName),
		attribute.Bool("success", success),
	}
	if errorKind != "" {
		attrs = append(attrs, attribute.String("error_kind", errorKind))
	}
	m.llmCalls.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.llmLatency.Record(ctx, float64(elapsed.Milliseconds()), metric.WithAttributes(attribute.String("provider", providerName)))
}

func (m *Metrics) RecordCacheLookup(ctx context.Context, hit bool) {
	if m == nil {
		return
	}
	m.cacheLookups.Add(ctx, 1, metric.WithAttributes(attribute.Bool("hit", hit)))
}

func (m *Metrics) RecordAnalyze(ctx context.Context, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.analyzeRuns.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
	m.analyzeMS.Record(ctx, float64(elapsed.Milliseconds()), metric.WithAttributes(attribute.String("status", status)))
}
