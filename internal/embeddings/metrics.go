package embeddings

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/fyrsmithlabs/expmem/internal/embeddings"

var (
	metricsOnce  sync.Once
	embedLatency metric.Float64Histogram
	embedErrors  metric.Int64Counter
	cacheLookups metric.Int64Counter
)

func initMetrics() {
	metricsOnce.Do(func() {
		meter := otel.Meter(instrumentationName)
		embedLatency, _ = meter.Float64Histogram(
			"expmem.embeddings.duration",
			metric.WithDescription("Embedding call latency"),
			metric.WithUnit("s"),
		)
		embedErrors, _ = meter.Int64Counter(
			"expmem.embeddings.errors",
			metric.WithDescription("Failed embedding calls"),
		)
		cacheLookups, _ = meter.Int64Counter(
			"expmem.embeddings.cache_lookups",
			metric.WithDescription("Query cache lookups by result"),
		)
	})
}

func recordEmbed(ctx context.Context, model, op string, start time.Time, err error) {
	initMetrics()
	attrs := metric.WithAttributes(attribute.String("model", model), attribute.String("op", op))
	if embedLatency != nil {
		embedLatency.Record(ctx, time.Since(start).Seconds(), attrs)
	}
	if err != nil && embedErrors != nil {
		embedErrors.Add(ctx, 1, attrs)
	}
}

func recordCacheLookup(ctx context.Context, hit bool) {
	initMetrics()
	if cacheLookups == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	cacheLookups.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

// instrumented records latency and errors around a provider.
type instrumented struct {
	Provider
}

func (p instrumented) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	start := time.Now()
	vecs, err := p.Provider.EmbedDocuments(ctx, texts)
	recordEmbed(ctx, p.Model(), "documents", start, err)
	return vecs, err
}

func (p instrumented) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	start := time.Now()
	vec, err := p.Provider.EmbedQuery(ctx, text)
	recordEmbed(ctx, p.Model(), "query", start, err)
	return vec, err
}
