package main

import (
	"fmt"
	"log/slog"

	"github.com/rickgao/aodata-ingest/internal/buffer"
	"github.com/rickgao/aodata-ingest/internal/config"
	"github.com/rickgao/aodata-ingest/internal/connection"
	"github.com/rickgao/aodata-ingest/internal/ingest"
	"github.com/rickgao/aodata-ingest/internal/model"
	"github.com/rickgao/aodata-ingest/internal/pipeline"
	"github.com/rickgao/aodata-ingest/internal/writer"
)

// buildRunners builds one pipeline per event kind. A kind whose pipeline
// cannot be built (subscription refused, dead letter sink unavailable) is
// logged and left out so the remaining kinds still run.
func buildRunners(
	cfg *config.IngestorConfig,
	bus connection.Client,
	orderStore writer.Store[model.Order],
	historyStore writer.Store[model.HistoryPoint],
	metrics *writer.Metrics,
	logger *slog.Logger,
) []pipeline.Runner {
	if logger == nil {
		logger = slog.Default()
	}
	var runners []pipeline.Runner

	orders, err := buildPipeline[model.Order, int64](cfg, bus, model.KindOrder, cfg.NATS.OrderSubject,
		ingest.DecodeOrder, model.Order.Key, orderStore, metrics, logger)
	if err != nil {
		logger.Error("order pipeline not started", "error", err, "subject", cfg.NATS.OrderSubject)
	} else {
		runners = append(runners, orders)
	}

	histories, err := buildPipeline[model.HistoryPoint, model.HistoryKey](cfg, bus, model.KindHistory, cfg.NATS.HistorySubject,
		ingest.DecodeHistories, model.HistoryPoint.Key, historyStore, metrics, logger)
	if err != nil {
		logger.Error("history pipeline not started", "error", err, "subject", cfg.NATS.HistorySubject)
	} else {
		runners = append(runners, histories)
	}

	return runners
}

// buildPipeline subscribes to subject and wires buffer, ingestor and writer for one kind.
func buildPipeline[T any, K comparable](
	cfg *config.IngestorConfig,
	bus connection.Client,
	kind model.Kind,
	subject string,
	decode ingest.Decoder[T],
	key func(T) K,
	st writer.Store[T],
	metrics *writer.Metrics,
	logger *slog.Logger,
) (*pipeline.Pipeline[T, K], error) {
	name := string(kind)

	var deadLetter writer.DeadLetter[T]
	if cfg.Writers.DeadLetterDir != "" {
		dl, err := writer.NewFileDeadLetter[T](cfg.Writers.DeadLetterDir, name)
		if err != nil {
			return nil, err
		}
		deadLetter = dl
	}

	sub, err := bus.Subscribe(subject)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", subject, err)
	}

	buf := buffer.New[T](cfg.Writers.BatchSize)
	in := ingest.New(ingest.DefaultConfig(name), sub, decode, buf, logger)
	w := writer.New(writer.Config{
		Name:         name,
		MaxAttempts:  cfg.Writers.MaxAttempts,
		RetryInitial: cfg.Writers.RetryInitial,
		RetryMax:     cfg.Writers.RetryMax,
		WriteTimeout: cfg.Writers.WriteTimeout,
	}, buf, key, st, deadLetter, metrics, logger)

	return pipeline.New(name, buf, in, w, flushPolicy(cfg.Writers), logger), nil
}

// flushPolicy maps writer config onto a scheduler policy.
func flushPolicy(cfg config.WritersConfig) writer.Policy {
	if cfg.Policy == config.PolicyTimer {
		return writer.TimerPolicy{Interval: cfg.FlushInterval}
	}
	return writer.SizePolicy{Threshold: cfg.BatchSize, PollInterval: cfg.PollInterval}
}
