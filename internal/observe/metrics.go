// Package observe holds the OpenTelemetry instruments for lootman queries.
//
// Instruments are recorded through the OTel Metrics API and scraped through
// the Prometheus exporter installed by [InitProvider]. Tests should build
// their own [Metrics] with [NewMetrics] over a ManualReader-backed provider.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "lootman.ai"

// Metrics holds every instrument. All fields are safe for concurrent use.
type Metrics struct {
	// QueryDuration tracks operation latency. Attribute: op.
	QueryDuration metric.Float64Histogram

	// Queries counts operations. Attributes: op, status.
	Queries metric.Int64Counter

	// QueryResults counts items returned. Attribute: op.
	QueryResults metric.Int64Counter

	// ScrapErrors counts decompositions aborted by a malformed recipe graph.
	// Attribute: kind ("cycle" or "depth").
	ScrapErrors metric.Int64Counter

	// CachedCells reports the number of cells held by the partition cache.
	// It is observed through the callback installed by WatchCachedCells.
	CachedCells metric.Int64ObservableGauge

	// WSSessions tracks open websocket bridge sessions.
	WSSessions metric.Int64UpDownCounter

	meter metric.Meter
}

// Queries are in-process and usually sub-millisecond.
var latencyBuckets = []float64{
	0.00005, 0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.05, 0.25,
}

func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{meter: m}

	if met.QueryDuration, err = m.Float64Histogram("lootman.query.duration",
		metric.WithDescription("Latency of lootman queries."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.Queries, err = m.Int64Counter("lootman.queries",
		metric.WithDescription("Total lootman queries by op and status."),
	); err != nil {
		return nil, err
	}
	if met.QueryResults, err = m.Int64Counter("lootman.query.results",
		metric.WithDescription("Total items returned by op."),
	); err != nil {
		return nil, err
	}
	if met.ScrapErrors, err = m.Int64Counter("lootman.scrap.errors",
		metric.WithDescription("Decompositions aborted on malformed recipe graphs."),
	); err != nil {
		return nil, err
	}
	if met.CachedCells, err = m.Int64ObservableGauge("lootman.cellcache.cells",
		metric.WithDescription("Cells currently held by the partition cache."),
	); err != nil {
		return nil, err
	}
	if met.WSSessions, err = m.Int64UpDownCounter("lootman.ws.sessions",
		metric.WithDescription("Open websocket bridge sessions."),
	); err != nil {
		return nil, err
	}
	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level instance built on the global
// meter provider. It panics if instrument creation fails.
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

// RecordQuery records one finished operation.
func (m *Metrics) RecordQuery(ctx context.Context, op, status string, results int, elapsed time.Duration) {
	if m == nil {
		return
	}
	opAttr := metric.WithAttributes(attribute.String("op", op))
	m.QueryDuration.Record(ctx, elapsed.Seconds(), opAttr)
	m.Queries.Add(ctx, 1, metric.WithAttributes(
		attribute.String("op", op),
		attribute.String("status", status),
	))
	if results > 0 {
		m.QueryResults.Add(ctx, int64(results), opAttr)
	}
}

func (m *Metrics) RecordScrapError(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	m.ScrapErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// WatchCachedCells makes the cached-cell gauge report n() at each collection.
// Unregister the returned registration when the cache goes away.
func (m *Metrics) WatchCachedCells(n func() int) (metric.Registration, error) {
	if m == nil {
		return nil, nil
	}
	return m.meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		o.ObserveInt64(m.CachedCells, int64(n()))
		return nil
	}, m.CachedCells)
}

func (m *Metrics) AddWSSessions(ctx context.Context, delta int) {
	if m == nil || delta == 0 {
		return
	}
	m.WSSessions.Add(ctx, int64(delta))
}
