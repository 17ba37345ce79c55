package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/metric"
)

// ObservePool registers observable gauges reporting pool connection counts.
func ObservePool(pool *pgxpool.Pool, meter metric.Meter) error {
	total, err := meter.Int64ObservableGauge("aodata_db_pool_connections_total",
		metric.WithDescription("Total connections (idle + acquired + constructing)"),
		metric.WithUnit("{connection}"),
	)
	if err != nil {
		return fmt.Errorf("create total gauge: %w", err)
	}
	idle, err := meter.Int64ObservableGauge("aodata_db_pool_connections_idle",
		metric.WithDescription("Idle connections ready for checkout"),
		metric.WithUnit("{connection}"),
	)
	if err != nil {
		return fmt.Errorf("create idle gauge: %w", err)
	}
	acquired, err := meter.Int64ObservableGauge("aodata_db_pool_connections_acquired",
		metric.WithDescription("Connections currently acquired by callers"),
		metric.WithUnit("{connection}"),
	)
	if err != nil {
		return fmt.Errorf("create acquired gauge: %w", err)
	}

	_, err = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		stat := pool.Stat()
		o.ObserveInt64(total, int64(stat.TotalConns()))
		o.ObserveInt64(idle, int64(stat.IdleConns()))
		o.ObserveInt64(acquired, int64(stat.AcquiredConns()))
		return nil
	}, total, idle, acquired)
	if err != nil {
		return fmt.Errorf("register pool callback: %w", err)
	}
	return nil
}
