package ingest

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/rickgao/aodata-ingest/internal/buffer"
	"github.com/rickgao/aodata-ingest/internal/connection"
)

// Decoder turns one payload into zero or more events.
type Decoder[T any] func(data []byte, receivedAt time.Time) ([]T, error)

// Config holds Ingestor configuration.
type Config struct {
	Name         string     // Kind name used in logs
	WarnRate     rate.Limit // Decode warnings per second (default: 1)
	WarnBurst    int        // Decode warning burst (default: 10)
	AllowSubject func(string) bool
}

// DefaultConfig returns sensible defaults.
func DefaultConfig(name string) Config {
	return Config{
		Name:      name,
		WarnRate:  1,
		WarnBurst: 10,
	}
}

// Stats contains runtime statistics.
type Stats struct {
	Received        int64 `json:"received"`
	Decoded         int64 `json:"decoded"`
	Appended        int64 `json:"appended"`
	DecodeErrors    int64 `json:"decode_errors"`
	UnknownSubjects int64 `json:"unknown_subjects"`
}

// Ingestor consumes one subscription and appends decoded events to a buffer.
type Ingestor[T any] struct {
	cfg    Config
	logger *slog.Logger

	sub    connection.Subscription
	decode Decoder[T]
	buf    *buffer.Buffer[T]

	warnLimiter *rate.Limiter
	suppressed  atomic.Int64

	received        atomic.Int64
	decoded         atomic.Int64
	appended        atomic.Int64
	decodeErrors    atomic.Int64
	unknownSubjects atomic.Int64
}

// New creates an Ingestor.
func New[T any](cfg Config, sub connection.Subscription, decode Decoder[T], buf *buffer.Buffer[T], logger *slog.Logger) *Ingestor[T] {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.WarnRate == 0 {
		cfg.WarnRate = 1
	}
	if cfg.WarnBurst < 1 {
		cfg.WarnBurst = 10
	}
	if cfg.AllowSubject == nil {
		subject := sub.Subject()
		cfg.AllowSubject = func(s string) bool { return s == subject }
	}
	return &Ingestor[T]{
		cfg:         cfg,
		logger:      logger.With("kind", cfg.Name),
		sub:         sub,
		decode:      decode,
		buf:         buf,
		warnLimiter: rate.NewLimiter(cfg.WarnRate, cfg.WarnBurst),
	}
}

// Run reads messages until ctx is cancelled or the subscription ends.
// The subscription is released on return; the buffer is left as is.
func (in *Ingestor[T]) Run(ctx context.Context) error {
	defer func() {
		if err := in.sub.Unsubscribe(); err != nil {
			in.logger.Warn("unsubscribe failed", "error", err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			in.logger.Info("ingestor stopping", "reason", "cancelled")
			return nil
		case <-in.sub.Done():
			in.logger.Warn("subscription closed", "subject", in.sub.Subject())
			return connection.ErrNotConnected
		case msg := <-in.sub.Messages():
			in.handle(msg)
		}
	}
}

// Stats returns current statistics.
func (in *Ingestor[T]) Stats() Stats {
	return Stats{
		Received:        in.received.Load(),
		Decoded:         in.decoded.Load(),
		Appended:        in.appended.Load(),
		DecodeErrors:    in.decodeErrors.Load(),
		UnknownSubjects: in.unknownSubjects.Load(),
	}
}

// handle decodes and buffers a single message.
func (in *Ingestor[T]) handle(msg connection.RawMessage) {
	in.received.Add(1)

	if !in.cfg.AllowSubject(msg.Subject) {
		in.unknownSubjects.Add(1)
		in.warn("unknown subject", "subject", msg.Subject)
		return
	}

	events, err := in.decode(msg.Data, msg.ReceivedAt)
	if err != nil {
		in.decodeErrors.Add(1)
		in.warn("failed to decode message", "error", err, "bytes", len(msg.Data))
		return
	}
	in.decoded.Add(1)

	in.buf.AppendAll(events)
	in.appended.Add(int64(len(events)))
}

// warn logs through the rate limiter, reporting how many warnings were dropped.
func (in *Ingestor[T]) warn(msg string, args ...any) {
	if !in.warnLimiter.Allow() {
		in.suppressed.Add(1)
		return
	}
	if n := in.suppressed.Swap(0); n > 0 {
		args = append(args, "suppressed", n)
	}
	in.logger.Warn(msg, args...)
}
