package writer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"

	"github.com/rickgao/aodata-ingest/internal/buffer"
)

// ErrWriteFailed wraps a failed primary write.
var ErrWriteFailed = errors.New("primary write failed")

// Store persists one event kind.
type Store[T any] interface {
	// Upsert writes rows to the primary table in one transaction and
	// returns rows affected.
	Upsert(ctx context.Context, rows []T) (int64, error)

	// Backup appends rows to the backup table in one transaction.
	Backup(ctx context.Context, batchID uuid.UUID, rows []T) (int64, error)
}

// Config holds BatchWriter configuration.
type Config struct {
	Name         string        // Kind name used in logs, metrics and dead letters
	MaxAttempts  int           // Failed writes before an event is dead-lettered (default: 5)
	RetryInitial time.Duration // First backoff after a failed write (default: 1s)
	RetryMax     time.Duration // Backoff ceiling (default: 1m)
	WriteTimeout time.Duration // Bound on each store call (default: 30s)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig(name string) Config {
	return Config{
		Name:         name,
		MaxAttempts:  5,
		RetryInitial: time.Second,
		RetryMax:     time.Minute,
		WriteTimeout: 30 * time.Second,
	}
}

// FlushResult describes one flush cycle.
type FlushResult struct {
	BatchID      uuid.UUID     `json:"batch_id"`
	Drained      int           `json:"drained"`
	Unique       int           `json:"unique"`
	Written      int64         `json:"written"`
	BackedUp     int64         `json:"backed_up"`
	Requeued     int           `json:"requeued"`
	DeadLettered int           `json:"dead_lettered"`
	Skipped      bool          `json:"skipped"`
	RetryAt      time.Time     `json:"retry_at"`
	Duration     time.Duration `json:"duration"`
	BackupErr    error         `json:"-"`
}

// Stats contains cumulative writer statistics.
type Stats struct {
	Flushes      int64     `json:"flushes"`
	Drained      int64     `json:"drained"`
	Duplicates   int64     `json:"duplicates"`
	Written      int64     `json:"written"`
	BackedUp     int64     `json:"backed_up"`
	WriteErrors  int64     `json:"write_errors"`
	BackupErrors int64     `json:"backup_errors"`
	Requeued     int64     `json:"requeued"`
	DeadLettered int64     `json:"dead_lettered"`
	Skipped      int64     `json:"skipped"`
	LastFlush    time.Time `json:"last_flush"`
	LastError    string    `json:"last_error,omitempty"`
}

// BatchWriter drains a buffer, deduplicates the batch and writes it through a Store.
// Flush is meant to be called from a single goroutine.
type BatchWriter[T any, K comparable] struct {
	cfg    Config
	logger *slog.Logger

	buf        *buffer.Buffer[T]
	key        func(T) K
	store      Store[T]
	deadLetter DeadLetter[T]
	metrics    *Metrics

	// Retry state, owned by the flushing goroutine
	backoff *backoff.ExponentialBackOff
	retryAt time.Time
	now     func() time.Time

	mu    sync.Mutex
	stats Stats
}

// New creates a BatchWriter. A nil deadLetter logs dropped events.
func New[T any, K comparable](
	cfg Config,
	buf *buffer.Buffer[T],
	key func(T) K,
	store Store[T],
	deadLetter DeadLetter[T],
	metrics *Metrics,
	logger *slog.Logger,
) *BatchWriter[T, K] {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig(cfg.Name)
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.RetryInitial <= 0 {
		cfg.RetryInitial = def.RetryInitial
	}
	if cfg.RetryMax <= 0 {
		cfg.RetryMax = def.RetryMax
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	logger = logger.With("kind", cfg.Name)
	if deadLetter == nil {
		deadLetter = NewLogDeadLetter[T](logger)
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = cfg.RetryInitial
	bo.MaxInterval = cfg.RetryMax

	return &BatchWriter[T, K]{
		cfg:        cfg,
		logger:     logger,
		buf:        buf,
		key:        key,
		store:      store,
		deadLetter: deadLetter,
		metrics:    metrics,
		backoff:    bo,
		now:        time.Now,
	}
}

// Name returns the kind this writer serves.
func (w *BatchWriter[T, K]) Name() string {
	return w.cfg.Name
}

// Pending returns the number of buffered events.
func (w *BatchWriter[T, K]) Pending() int {
	return w.buf.Len()
}

// Stats returns cumulative statistics.
func (w *BatchWriter[T, K]) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

// Flush runs one flush cycle. Inside a retry backoff window the cycle is
// skipped unless final is set. On the final cycle a failed write sends every
// event to the dead letter sink instead of requeueing it.
//
// Store calls run on a context detached from ctx's cancellation, bounded by
// WriteTimeout, so shutdown never aborts an in-flight write.
func (w *BatchWriter[T, K]) Flush(ctx context.Context, final bool) (FlushResult, error) {
	if !final && w.now().Before(w.retryAt) {
		w.mu.Lock()
		w.stats.Skipped++
		w.mu.Unlock()
		return FlushResult{Skipped: true, RetryAt: w.retryAt}, nil
	}

	entries := w.buf.DrainAll()
	if len(entries) == 0 {
		return FlushResult{}, nil
	}

	start := w.now()
	res := FlushResult{BatchID: uuid.New(), Drained: len(entries)}

	unique := Dedup(entries, w.key)
	res.Unique = len(unique)
	rows := values(unique)

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.cfg.WriteTimeout)
	defer cancel()

	// The backup write always runs, independent of the primary outcome.
	written, writeErr := w.store.Upsert(writeCtx, rows)
	backedUp, backupErr := w.store.Backup(writeCtx, res.BatchID, rows)
	res.BackedUp = backedUp
	if backupErr != nil {
		res.BackupErr = backupErr
		w.logger.Error("backup write failed",
			"error", backupErr,
			"batch_id", res.BatchID,
			"count", len(rows),
		)
	}

	if writeErr != nil {
		w.fail(writeCtx, unique, writeErr, final, &res)
		res.Duration = w.now().Sub(start)
		w.record(ctx, res, writeErr)
		return res, fmt.Errorf("%w: %s: %w", ErrWriteFailed, w.cfg.Name, writeErr)
	}
	res.Written = written
	w.backoff.Reset()
	w.retryAt = time.Time{}
	res.Duration = w.now().Sub(start)
	w.record(ctx, res, nil)

	w.logger.Info("flushed batch",
		"batch_id", res.BatchID,
		"drained", res.Drained,
		"unique", res.Unique,
		"written", res.Written,
		"backed_up", res.BackedUp,
		"duration_ms", res.Duration.Milliseconds(),
	)
	return res, nil
}

// fail handles a failed primary write: entries are requeued with one more
// attempt, or dead-lettered once attempts run out or on the final cycle.
func (w *BatchWriter[T, K]) fail(ctx context.Context, unique []buffer.Entry[T], cause error, final bool, res *FlushResult) {
	requeue := make([]buffer.Entry[T], 0, len(unique))
	var dead []Letter[T]
	deadAt := w.now().UTC()

	for _, e := range unique {
		e.Attempts++
		if final || e.Attempts >= w.cfg.MaxAttempts {
			dead = append(dead, Letter[T]{
				Kind:     w.cfg.Name,
				Seq:      e.Seq,
				Attempts: e.Attempts,
				Reason:   cause.Error(),
				DeadAt:   deadAt,
				Value:    e.Value,
			})
			continue
		}
		requeue = append(requeue, e)
	}

	// Put survivors back in arrival order.
	sort.Slice(requeue, func(i, j int) bool { return requeue[i].Seq < requeue[j].Seq })
	w.buf.Requeue(requeue)
	res.Requeued = len(requeue)

	if len(dead) > 0 {
		if err := w.deadLetter.Write(ctx, dead); err != nil {
			w.logger.Error("dead letter write failed, events lost",
				"error", err,
				"count", len(dead),
			)
		}
		res.DeadLettered = len(dead)
	}

	if !final {
		wait := w.backoff.NextBackOff()
		if wait == backoff.Stop {
			wait = w.cfg.RetryMax
		}
		w.retryAt = w.now().Add(wait)
		res.RetryAt = w.retryAt
	}

	w.logger.Error("primary write failed",
		"error", cause,
		"batch_id", res.BatchID,
		"count", len(unique),
		"requeued", res.Requeued,
		"dead_lettered", res.DeadLettered,
		"retry_at", res.RetryAt,
		"final", final,
	)
}

// record updates stats and metrics for a completed cycle.
func (w *BatchWriter[T, K]) record(ctx context.Context, res FlushResult, writeErr error) {
	w.mu.Lock()
	w.stats.Flushes++
	w.stats.Drained += int64(res.Drained)
	w.stats.Duplicates += int64(res.Drained - res.Unique)
	w.stats.Written += res.Written
	w.stats.BackedUp += res.BackedUp
	w.stats.Requeued += int64(res.Requeued)
	w.stats.DeadLettered += int64(res.DeadLettered)
	w.stats.LastFlush = w.now()
	if writeErr != nil {
		w.stats.WriteErrors++
		w.stats.LastError = writeErr.Error()
	}
	if res.BackupErr != nil {
		w.stats.BackupErrors++
		w.stats.LastError = res.BackupErr.Error()
	}
	w.mu.Unlock()

	w.metrics.record(ctx, w.cfg.Name, res, writeErr != nil)
}
