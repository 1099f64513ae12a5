package pipeline

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// metrics holds the pipeline instruments. Counters are registered against
// the global meter provider; with no provider installed they are no-ops.
type metrics struct {
	processed  metric.Int64Counter
	duplicates metric.Int64Counter
	created    metric.Int64Counter
	joined     metric.Int64Counter
	parked     metric.Int64Counter
}

func newMetrics() *metrics {
	meter := otel.Meter("github.com/thebtf/storyline/internal/pipeline")

	m := &metrics{}
	m.processed, _ = meter.Int64Counter("storyline.articles.processed",
		metric.WithDescription("Articles pulled through the pipeline"))
	m.duplicates, _ = meter.Int64Counter("storyline.articles.duplicates",
		metric.WithDescription("Articles skipped as already-seen URLs"))
	m.created, _ = meter.Int64Counter("storyline.clusters.created",
		metric.WithDescription("New story clusters founded"))
	m.joined, _ = meter.Int64Counter("storyline.clusters.joined",
		metric.WithDescription("Articles attached to existing clusters"))
	m.parked, _ = meter.Int64Counter("storyline.articles.parked",
		metric.WithDescription("Articles parked after exhausted retries"))
	return m
}

func (m *metrics) addProcessed(ctx context.Context, category string) {
	m.processed.Add(ctx, 1, metric.WithAttributes(attribute.String("category", category)))
}
