package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/rickgao/aodata-ingest/db/migrations"
	"github.com/rickgao/aodata-ingest/internal/config"
	"github.com/rickgao/aodata-ingest/internal/connection"
	"github.com/rickgao/aodata-ingest/internal/database"
	"github.com/rickgao/aodata-ingest/internal/pipeline"
	"github.com/rickgao/aodata-ingest/internal/store"
	"github.com/rickgao/aodata-ingest/internal/telemetry"
	"github.com/rickgao/aodata-ingest/internal/version"
	"github.com/rickgao/aodata-ingest/internal/writer"
)

func main() {
	configPath := flag.String("config", "", "path to config file (empty = environment only)")
	runMigrations := flag.Bool("migrate", false, "apply schema migrations before starting")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	// Bootstrap logger until the configured one is known
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger, err = newLogger(cfg.Logging)
	if err != nil {
		slog.Error("failed to configure logging", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(logger)

	logger.Info("starting ingestor",
		"version", version.Version,
		"commit", version.Commit,
		"instance_id", cfg.Instance.ID,
		"policy", cfg.Writers.Policy,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Telemetry
	provider, err := telemetry.NewProvider(ctx, telemetry.FromConfig(cfg))
	if err != nil {
		logger.Error("failed to start telemetry", "error", err)
		os.Exit(1)
	}
	meter := provider.Meter("aodata-ingest")

	// Connect to database and bus concurrently; either failing is fatal
	logger.Info("connecting",
		"db_host", cfg.Database.Host,
		"db_name", cfg.Database.Name,
		"nats_url", cfg.NATS.URL,
	)

	bus := connection.NewClient(connection.ClientConfig{
		URL:            cfg.NATS.URL,
		User:           cfg.NATS.User,
		Password:       cfg.NATS.Password,
		Name:           cfg.Instance.ID,
		ConnectTimeout: cfg.NATS.ConnectTimeout,
		ReconnectWait:  connection.DefaultClientConfig().ReconnectWait,
		PendingLimit:   cfg.NATS.PendingLimit,
	}, logger)

	var pool *pgxpool.Pool
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, err := database.Connect(gctx, cfg.Database)
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		pool = p
		return nil
	})
	g.Go(func() error {
		if err := bus.Connect(gctx); err != nil {
			return fmt.Errorf("connect nats: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		logger.Error("startup failed", "error", err)
		if pool != nil {
			pool.Close()
		}
		bus.Close()
		os.Exit(1)
	}
	defer pool.Close()

	logger.Info("database and nats connected")

	if *runMigrations {
		if err := database.Migrate(ctx, database.BuildConnString(cfg.Database), migrations.FS, logger); err != nil {
			logger.Error("failed to apply migrations", "error", err)
			bus.Close()
			os.Exit(1)
		}
	}

	if err := database.ObservePool(pool, meter); err != nil {
		logger.Warn("pool metrics unavailable", "error", err)
	}
	metrics, err := writer.NewMetrics(meter)
	if err != nil {
		logger.Error("failed to create writer metrics", "error", err)
		os.Exit(1)
	}

	// A kind that cannot subscribe is left out; the others keep running
	runners := buildRunners(cfg, bus,
		store.NewOrderStore(pool, *cfg.Writers.DeleteBeforeInsert),
		store.NewHistoryStore(pool), metrics, logger)
	if len(runners) == 0 {
		logger.Error("no pipelines started")
	}
	coordinator := pipeline.NewCoordinator(logger, runners...)

	// Health server
	healthServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Metrics.Port),
		Handler:           createHealthHandler(pool, bus, coordinator, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("starting health server", "port", cfg.Metrics.Port)
		if err := healthServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Error("health server error", "error", err)
		}
	}()

	logger.Info("ingestor running",
		"order_subject", cfg.NATS.OrderSubject,
		"history_subject", cfg.NATS.HistorySubject,
		"health_url", fmt.Sprintf("http://localhost:%d/health", cfg.Metrics.Port),
	)

	// Blocks until cancelled and every final flush is done
	runErr := coordinator.Run(ctx)

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := healthServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("health server shutdown", "error", err)
	}
	if err := bus.Close(); err != nil && !errors.Is(err, connection.ErrAlreadyClosed) {
		logger.Warn("nats close", "error", err)
	}
	if err := provider.Shutdown(shutdownCtx); err != nil {
		logger.Warn("telemetry shutdown", "error", err)
	}

	if runErr != nil {
		logger.Error("ingestor stopped with error", "error", runErr)
		pool.Close()
		os.Exit(1)
	}
	logger.Info("ingestor stopped")
}

// newLogger builds the process logger from config.
func newLogger(cfg config.LoggingConfig) (*slog.Logger, error) {
	level, err := cfg.SlogLevel()
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts)), nil
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts)), nil
}
