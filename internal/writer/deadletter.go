package writer

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	json "github.com/goccy/go-json"
)

// Letter is an event the writer gave up on.
type Letter[T any] struct {
	Kind     string    `json:"kind"`
	Seq      uint64    `json:"seq"`
	Attempts int       `json:"attempts"`
	Reason   string    `json:"reason"`
	DeadAt   time.Time `json:"dead_at"`
	Value    T         `json:"value"`
}

// DeadLetter receives events that exhausted their write attempts.
type DeadLetter[T any] interface {
	Write(ctx context.Context, letters []Letter[T]) error
}

// FileDeadLetter appends letters as JSON lines to <dir>/<kind>.jsonl.
type FileDeadLetter[T any] struct {
	mu   sync.Mutex
	path string
}

// NewFileDeadLetter creates dir if needed and returns a sink for kind.
func NewFileDeadLetter[T any](dir, kind string) (*FileDeadLetter[T], error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create dead letter dir: %w", err)
	}
	return &FileDeadLetter[T]{path: filepath.Join(dir, kind+".jsonl")}, nil
}

// Path returns the file letters are appended to.
func (d *FileDeadLetter[T]) Path() string {
	return d.path
}

// Write appends letters, one JSON object per line.
func (d *FileDeadLetter[T]) Write(_ context.Context, letters []Letter[T]) error {
	if len(letters) == 0 {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	f, err := os.OpenFile(d.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open dead letter file: %w", err)
	}

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for i := range letters {
		if err := enc.Encode(&letters[i]); err != nil {
			f.Close()
			return fmt.Errorf("encode dead letter: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("write dead letter file: %w", err)
	}
	return f.Close()
}

// LogDeadLetter reports letters to a logger. Used when no directory is configured.
type LogDeadLetter[T any] struct {
	logger *slog.Logger
}

// NewLogDeadLetter returns a logging sink.
func NewLogDeadLetter[T any](logger *slog.Logger) *LogDeadLetter[T] {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogDeadLetter[T]{logger: logger}
}

// Write logs one error line per letter.
func (d *LogDeadLetter[T]) Write(ctx context.Context, letters []Letter[T]) error {
	for _, l := range letters {
		d.logger.ErrorContext(ctx, "dropping event",
			"kind", l.Kind,
			"seq", l.Seq,
			"attempts", l.Attempts,
			"reason", l.Reason,
			"value", l.Value,
		)
	}
	return nil
}
