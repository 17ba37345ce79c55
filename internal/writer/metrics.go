package writer

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// Metrics holds the writer's OpenTelemetry instruments. A nil *Metrics records nothing.
type Metrics struct {
	flushes      metric.Int64Counter
	written      metric.Int64Counter
	duplicates   metric.Int64Counter
	writeErrors  metric.Int64Counter
	backupErrors metric.Int64Counter
	requeued     metric.Int64Counter
	deadLettered metric.Int64Counter
	duration     metric.Float64Histogram
}

// NewMetrics creates the writer instruments on meter. A nil meter uses a no-op meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	if meter == nil {
		meter = noop.NewMeterProvider().Meter("writer")
	}

	var (
		m   Metrics
		err error
	)
	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&m.flushes, "aodata_writer_flushes", "Flush cycles that drained at least one event"},
		{&m.written, "aodata_writer_rows_written", "Rows affected by primary upserts"},
		{&m.duplicates, "aodata_writer_duplicates", "Events superseded by a newer event with the same key"},
		{&m.writeErrors, "aodata_writer_write_errors", "Failed primary writes"},
		{&m.backupErrors, "aodata_writer_backup_errors", "Failed backup writes"},
		{&m.requeued, "aodata_writer_requeued", "Events put back in the buffer after a failed write"},
		{&m.deadLettered, "aodata_writer_dead_lettered", "Events handed to the dead letter sink"},
	}
	for _, c := range counters {
		*c.dst, err = meter.Int64Counter(c.name,
			metric.WithDescription(c.desc),
			metric.WithUnit("{event}"),
		)
		if err != nil {
			return nil, fmt.Errorf("create %s: %w", c.name, err)
		}
	}

	m.duration, err = meter.Float64Histogram("aodata_writer_flush_duration",
		metric.WithDescription("Duration of flush cycles"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create aodata_writer_flush_duration: %w", err)
	}
	return &m, nil
}

// record reports one flush result.
func (m *Metrics) record(ctx context.Context, kind string, res FlushResult, failed bool) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("kind", kind))

	m.flushes.Add(ctx, 1, attrs)
	m.written.Add(ctx, res.Written, attrs)
	m.duplicates.Add(ctx, int64(res.Drained-res.Unique), attrs)
	m.requeued.Add(ctx, int64(res.Requeued), attrs)
	m.deadLettered.Add(ctx, int64(res.DeadLettered), attrs)
	if failed {
		m.writeErrors.Add(ctx, 1, attrs)
	}
	if res.BackupErr != nil {
		m.backupErrors.Add(ctx, 1, attrs)
	}
	m.duration.Record(ctx, res.Duration.Seconds(), attrs)
}
