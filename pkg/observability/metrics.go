package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/ajitpratap0/tablepool/pkg/pool"
)

// StatsSource is anything that reports pool counts, such as a
// readerpool.ReaderPool.
type StatsSource interface {
	Name() string
	Stats() pool.Stats
}

// Meter returns the tablepool meter of the global provider.
func Meter() metric.Meter {
	return otel.Meter(instrumentationName)
}

// RegisterPoolGauges registers observable gauges reporting the active,
// idle and waiter counts of every source. Unregister the returned
// registration when the pools are closed.
func RegisterPoolGauges(meter metric.Meter, sources ...StatsSource) (metric.Registration, error) {
	active, err := meter.Int64ObservableGauge("tablepool.pool.active",
		metric.WithDescription("Readers currently borrowed"))
	if err != nil {
		return nil, err
	}
	idle, err := meter.Int64ObservableGauge("tablepool.pool.idle",
		metric.WithDescription("Readers idle in the pool"))
	if err != nil {
		return nil, err
	}
	waiters, err := meter.Int64ObservableGauge("tablepool.pool.waiters",
		metric.WithDescription("Borrowers blocked waiting for a reader"))
	if err != nil {
		return nil, err
	}

	return meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		for _, src := range sources {
			stats := src.Stats()
			attrs := metric.WithAttributes(attribute.String("pool", src.Name()))
			o.ObserveInt64(active, int64(stats.Active), attrs)
			o.ObserveInt64(idle, int64(stats.Idle), attrs)
			o.ObserveInt64(waiters, int64(stats.Waiters), attrs)
		}
		return nil
	}, active, idle, waiters)
}
