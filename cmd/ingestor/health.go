package main

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	json "github.com/goccy/go-json"

	"github.com/rickgao/aodata-ingest/internal/connection"
	"github.com/rickgao/aodata-ingest/internal/pipeline"
	"github.com/rickgao/aodata-ingest/internal/version"
)

// pinger is the database check used by /health. *pgxpool.Pool implements it.
type pinger interface {
	Ping(ctx context.Context) error
}

// createHealthHandler creates the HTTP handler for health and debug endpoints.
func createHealthHandler(db pinger, bus connection.Client, coordinator *pipeline.Coordinator, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		health := struct {
			Status     string         `json:"status"`
			Version    version.Info   `json:"version"`
			Components map[string]any `json:"components"`
		}{
			Status:     "healthy",
			Version:    version.Get(),
			Components: make(map[string]any),
		}

		// Check database
		if err := db.Ping(ctx); err != nil {
			health.Status = "unhealthy"
			health.Components["postgres"] = map[string]string{
				"status": "disconnected",
				"error":  err.Error(),
			}
		} else {
			health.Components["postgres"] = "connected"
		}

		// Check bus
		if bus.IsConnected() {
			health.Components["nats"] = bus.Stats()
		} else {
			health.Status = "unhealthy"
			health.Components["nats"] = map[string]string{"status": "disconnected"}
		}

		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		if err := json.NewEncoder(w).Encode(health); err != nil {
			logger.Warn("encode health response", "error", err)
		}
	})

	mux.HandleFunc("GET /debug/buffers", func(w http.ResponseWriter, r *http.Request) {
		stats := make(map[string]pipeline.Stats)
		for _, p := range coordinator.Runners() {
			stats[p.Name()] = p.Stats()
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(stats); err != nil {
			logger.Warn("encode buffer stats", "error", err)
		}
	})

	mux.HandleFunc("POST /debug/flush", func(w http.ResponseWriter, r *http.Request) {
		kind := r.URL.Query().Get("kind")

		var triggered []string
		if kind != "" {
			p, ok := coordinator.Lookup(kind)
			if !ok {
				http.Error(w, "unknown kind: "+kind, http.StatusNotFound)
				return
			}
			p.Trigger()
			triggered = append(triggered, p.Name())
		} else {
			for _, p := range coordinator.Runners() {
				p.Trigger()
				triggered = append(triggered, p.Name())
			}
		}
		if len(triggered) == 0 {
			http.Error(w, "no pipelines running", http.StatusNotFound)
			return
		}

		logger.Info("manual flush requested", "kinds", triggered)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		if err := json.NewEncoder(w).Encode(map[string]any{"triggered": triggered}); err != nil {
			logger.Warn("encode flush response", "error", err)
		}
	})

	return mux
}
