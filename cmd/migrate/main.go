package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"time"

	"github.com/rickgao/aodata-ingest/db/migrations"
	"github.com/rickgao/aodata-ingest/internal/config"
	"github.com/rickgao/aodata-ingest/internal/database"
	"github.com/rickgao/aodata-ingest/internal/version"
)

func main() {
	configPath := flag.String("config", "", "path to config file (empty = environment only)")
	timeout := flag.Duration("timeout", 2*time.Minute, "overall migration timeout")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.LoadWithDefaults(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("applying migrations",
		"version", version.Version,
		"db_host", cfg.Database.Host,
		"db_name", cfg.Database.Name,
	)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if err := database.Migrate(ctx, database.BuildConnString(cfg.Database), migrations.FS, logger); err != nil {
		logger.Error("migration failed", "error", err)
		cancel()
		os.Exit(1)
	}
}
