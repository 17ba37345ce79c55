package pipeline

import (
	"context"
	"log/slog"

	"github.com/sourcegraph/conc"

	"github.com/rickgao/aodata-ingest/internal/buffer"
	"github.com/rickgao/aodata-ingest/internal/ingest"
	"github.com/rickgao/aodata-ingest/internal/writer"
)

// Stats is the combined view of one pipeline.
type Stats struct {
	Buffer buffer.Stats `json:"buffer"`
	Ingest ingest.Stats `json:"ingest"`
	Writer writer.Stats `json:"writer"`
}

// Runner is a pipeline as seen by the Coordinator.
type Runner interface {
	Name() string
	Run(ctx context.Context) error
	Stats() Stats
	Trigger()
}

// Pipeline is the ingest and flush path for one event kind.
type Pipeline[T any, K comparable] struct {
	name   string
	logger *slog.Logger

	buf       *buffer.Buffer[T]
	ingestor  *ingest.Ingestor[T]
	writer    *writer.BatchWriter[T, K]
	scheduler *writer.Scheduler
}

// New creates a Pipeline. The scheduler drives w with policy.
func New[T any, K comparable](
	name string,
	buf *buffer.Buffer[T],
	in *ingest.Ingestor[T],
	w *writer.BatchWriter[T, K],
	policy writer.Policy,
	logger *slog.Logger,
) *Pipeline[T, K] {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline[T, K]{
		name:      name,
		logger:    logger.With("kind", name),
		buf:       buf,
		ingestor:  in,
		writer:    w,
		scheduler: writer.NewScheduler(w, policy, logger),
	}
}

// Name returns the event kind.
func (p *Pipeline[T, K]) Name() string {
	return p.name
}

// Run ingests and flushes until ctx is cancelled or the subscription ends.
// It returns the ingestor's error after the final flush has completed.
func (p *Pipeline[T, K]) Run(ctx context.Context) error {
	// The scheduler outlives ctx by exactly as long as the ingestor does.
	flushCtx, stopFlush := context.WithCancel(context.WithoutCancel(ctx))
	defer stopFlush()

	var ingestErr error
	var wg conc.WaitGroup
	wg.Go(func() {
		defer stopFlush()
		ingestErr = p.ingestor.Run(ctx)
	})
	wg.Go(func() {
		if err := p.scheduler.Run(flushCtx); err != nil {
			p.logger.Error("scheduler stopped", "error", err)
		}
	})
	wg.Wait()

	stats := p.Stats()
	p.logger.Info("pipeline stopped",
		"received", stats.Ingest.Received,
		"written", stats.Writer.Written,
		"dead_lettered", stats.Writer.DeadLettered,
		"left_in_buffer", stats.Buffer.Count,
	)
	return ingestErr
}

// Stats returns buffer, ingest and writer statistics.
func (p *Pipeline[T, K]) Stats() Stats {
	return Stats{
		Buffer: p.buf.Stats(),
		Ingest: p.ingestor.Stats(),
		Writer: p.writer.Stats(),
	}
}

// Trigger requests an immediate flush.
func (p *Pipeline[T, K]) Trigger() {
	p.scheduler.Trigger()
}
