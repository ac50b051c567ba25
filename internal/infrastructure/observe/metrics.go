// Package observe records OpenTelemetry metrics for ingestion and retrieval.
package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/ersonp/lore-memory/internal/domain/entities"
	"github.com/ersonp/lore-memory/internal/domain/services"
)

// meterName is the instrumentation scope name used for all loremem metrics.
const meterName = "github.com/ersonp/lore-memory"

var (
	_ services.IngestRecorder   = (*Metrics)(nil)
	_ services.RetrieveRecorder = (*Metrics)(nil)
)

// Metrics holds the metric instruments. All fields are safe for concurrent
// use.
type Metrics struct {
	// IngestOutcomes counts ingestion decisions by outcome.
	IngestOutcomes metric.Int64Counter

	// IngestErrors counts failed ingestions by kind ("validation" or "storage").
	IngestErrors metric.Int64Counter

	// RetrieveDuration tracks retrieval latency.
	RetrieveDuration metric.Float64Histogram

	// RetrieveResults tracks how many facts a retrieval returned.
	RetrieveResults metric.Int64Histogram
}

// latencyBuckets defines histogram bucket boundaries in seconds.
var latencyBuckets = []float64{
	0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1,
}

// NewMetrics creates the instruments on the given provider.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.IngestOutcomes, err = m.Int64Counter("loremem.ingest.outcomes",
		metric.WithDescription("Ingested candidate facts by outcome."),
	); err != nil {
		return nil, err
	}
	if met.IngestErrors, err = m.Int64Counter("loremem.ingest.errors",
		metric.WithDescription("Rejected or failed ingestions by kind."),
	); err != nil {
		return nil, err
	}
	if met.RetrieveDuration, err = m.Float64Histogram("loremem.retrieve.duration",
		metric.WithDescription("Latency of relevance-ranked retrieval."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.RetrieveResults, err = m.Int64Histogram("loremem.retrieve.results",
		metric.WithDescription("Facts returned per retrieval."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// NewGlobalMetrics creates the instruments on the global meter provider.
func NewGlobalMetrics() (*Metrics, error) {
	return NewMetrics(otel.GetMeterProvider())
}

// RecordIngest counts one ingestion outcome.
func (m *Metrics) RecordIngest(ctx context.Context, outcome entities.IngestOutcome) {
	m.IngestOutcomes.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", string(outcome))))
}

// RecordIngestError counts one failed ingestion.
func (m *Metrics) RecordIngestError(ctx context.Context, kind string) {
	m.IngestErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordRetrieve records the latency and size of one retrieval.
func (m *Metrics) RecordRetrieve(ctx context.Context, elapsed time.Duration, results int) {
	m.RetrieveDuration.Record(ctx, elapsed.Seconds())
	m.RetrieveResults.Record(ctx, int64(results))
}
