package pipeline

import (
	"context"
	"log/slog"

	"github.com/sourcegraph/conc"
)

// Coordinator runs every pipeline and waits for all of them.
type Coordinator struct {
	runners []Runner
	logger  *slog.Logger
}

// NewCoordinator creates a Coordinator over runners.
func NewCoordinator(logger *slog.Logger, runners ...Runner) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{runners: runners, logger: logger}
}

// Runners returns the managed pipelines.
func (c *Coordinator) Runners() []Runner {
	return c.runners
}

// Lookup returns the pipeline for kind.
func (c *Coordinator) Lookup(kind string) (Runner, bool) {
	for _, r := range c.runners {
		if r.Name() == kind {
			return r, true
		}
	}
	return nil, false
}

// Run starts every pipeline and blocks until all have returned. A pipeline
// that stops early or panics is logged and does not affect the others.
// A recovered panic is returned once everything has stopped.
func (c *Coordinator) Run(ctx context.Context) error {
	var wg conc.WaitGroup
	for _, r := range c.runners {
		wg.Go(func() {
			err := r.Run(ctx)
			switch {
			case ctx.Err() == nil:
				c.logger.Warn("pipeline exited early", "kind", r.Name(), "error", err)
			case err != nil:
				c.logger.Error("pipeline failed", "kind", r.Name(), "error", err)
			}
		})
	}

	if rec := wg.WaitAndRecover(); rec != nil {
		c.logger.Error("pipeline panicked", "panic", rec.Value, "stack", string(rec.Stack))
		return rec.AsError()
	}
	c.logger.Info("all pipelines stopped")
	return nil
}
