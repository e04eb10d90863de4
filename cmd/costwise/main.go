// Package main runs the cost-optimization pipeline as a standalone HTTP
// service with simulated model backends.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	json "github.com/goccy/go-json"

	costwise "github.com/flipsync/costwise"
	"github.com/flipsync/costwise/internal/config"
	"github.com/flipsync/costwise/internal/persist"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to configuration file")
	addr := flag.String("addr", ":8080", "listen address for the optimization API")
	flag.Parse()

	cfgManager, err := config.NewManager(*configPath, slog.Default())
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	cfg := cfgManager.Get()

	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)
	logger.Info("starting costwise", "version", costwise.Version)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := cfgManager.Watch(ctx); err != nil {
		logger.Warn("config hot-reload disabled", "error", err)
	}
	cfgManager.OnChange(func(next *config.Config) {
		// Tier and stage wiring is fixed for the process lifetime; a
		// reload is logged so operators know a restart is needed for it.
		logger.Info("configuration reloaded", "tiers", len(next.Tiers))
	})

	opts := []costwise.Option{
		costwise.WithConfig(cfg),
		costwise.WithLogger(logger),
	}
	for _, tier := range cfg.Tiers {
		opts = append(opts, costwise.WithBackend(tier.Name, newSimulatedBackend(tier)))
	}
	if cfg.Metrics.Enabled {
		opts = append(opts, costwise.WithPrometheusMetrics())
	}
	if cfg.Persist.Enabled {
		store, err := newSnapshotStore(cfg.Persist)
		if err != nil {
			logger.Error("failed to initialize snapshot store", "error", err)
			os.Exit(1)
		}
		opts = append(opts, costwise.WithSnapshots(store, cfg.Persist.Interval))
	}
	if cfg.Warmer.Enabled {
		opts = append(opts, costwise.WithWarmingLoop(true))
	}

	pipe, err := costwise.New(opts...)
	if err != nil {
		logger.Error("failed to build pipeline", "error", err)
		os.Exit(1)
	}
	defer pipe.Close()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("POST /v1/optimize", optimizeHandler(pipe, logger))
	mux.HandleFunc("GET /v1/stats", statsHandler(pipe))

	if cfg.Metrics.Enabled {
		path := cfg.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		mux.Handle("GET "+path, promhttp.Handler())
	}

	server := &http.Server{
		Addr:         *addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", *addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
	logger.Info("stopped")
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func newSnapshotStore(cfg config.PersistConfig) (persist.Store, error) {
	if cfg.Backend == "redis" {
		client := redis.NewClient(&redis.Options{Addr: cfg.Redis})
		return persist.NewRedisStore(client, "", cfg.TTL), nil
	}
	return persist.NewFileStore(cfg.Dir)
}

func optimizeHandler(pipe *costwise.Pipeline, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req costwise.OptimizationRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		result, err := pipe.Process(r.Context(), &req)
		if err != nil {
			status := http.StatusBadGateway
			if costwise.IsValidation(err) {
				status = http.StatusBadRequest
			}
			logger.Warn("optimization failed", "request_id", req.ID, "error", err)
			http.Error(w, err.Error(), status)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(result); err != nil {
			logger.Warn("response encode failed", "request_id", req.ID, "error", err)
		}
	}
}

func statsHandler(pipe *costwise.Pipeline) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(pipe.Stats())
	}
}
