package writer

import (
	"context"
	"log/slog"
	"time"
)

// Flusher is what a Scheduler drives. BatchWriter implements it.
type Flusher interface {
	Name() string
	Pending() int
	Flush(ctx context.Context, final bool) (FlushResult, error)
}

// Policy decides when the next flush is due.
type Policy interface {
	// Wait blocks until a flush is due or trigger fires. It returns false
	// once ctx is done.
	Wait(ctx context.Context, pending func() int, trigger <-chan struct{}) bool
}

// SizePolicy flushes once the buffer holds Threshold events, polling every PollInterval.
type SizePolicy struct {
	Threshold    int
	PollInterval time.Duration
}

// Default policy intervals, used when a policy field is unset.
const (
	DefaultPollInterval  = 100 * time.Millisecond
	DefaultFlushInterval = 60 * time.Second
)

// Wait checks the pending count, then sleeps one poll interval.
func (p SizePolicy) Wait(ctx context.Context, pending func() int, trigger <-chan struct{}) bool {
	interval := p.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if ctx.Err() != nil {
			return false
		}
		if pending() >= p.Threshold {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-trigger:
			return true
		case <-ticker.C:
		}
	}
}

// TimerPolicy flushes every Interval regardless of buffer size.
type TimerPolicy struct {
	Interval time.Duration
}

// Wait sleeps one interval.
func (p TimerPolicy) Wait(ctx context.Context, _ func() int, trigger <-chan struct{}) bool {
	interval := p.Interval
	if interval <= 0 {
		interval = DefaultFlushInterval
	}
	timer := time.NewTimer(interval)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-trigger:
		return true
	case <-timer.C:
		return true
	}
}

// Scheduler runs flush cycles for one writer until cancelled, then runs
// exactly one final cycle.
type Scheduler struct {
	flusher Flusher
	policy  Policy
	logger  *slog.Logger

	trigger chan struct{}
}

// NewScheduler creates a Scheduler.
func NewScheduler(flusher Flusher, policy Policy, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		flusher: flusher,
		policy:  policy,
		logger:  logger.With("kind", flusher.Name()),
		trigger: make(chan struct{}, 1),
	}
}

// Trigger requests an immediate flush. Requests coalesce and never block.
func (s *Scheduler) Trigger() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// Run blocks until ctx is cancelled and the final flush has completed.
func (s *Scheduler) Run(ctx context.Context) error {
	for s.policy.Wait(ctx, s.flusher.Pending, s.trigger) {
		res, _ := s.flusher.Flush(ctx, false)
		if res.Skipped || !res.RetryAt.IsZero() {
			if !s.sleepUntil(ctx, res.RetryAt) {
				break
			}
		}
	}

	s.logger.Info("final flush", "pending", s.flusher.Pending())
	if _, err := s.flusher.Flush(ctx, true); err != nil {
		s.logger.Error("final flush failed", "error", err)
	}
	return nil
}

// sleepUntil waits for the retry window to pass. Returns false if ctx ends first.
func (s *Scheduler) sleepUntil(ctx context.Context, at time.Time) bool {
	d := time.Until(at)
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
