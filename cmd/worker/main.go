package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/felixgeelhaar/paysync/internal/app"
	"github.com/felixgeelhaar/paysync/pkg/config"
	"github.com/felixgeelhaar/paysync/pkg/observability"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		observability.LoggerFor("", "info", "json", "").Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.LoggerFor(cfg.AppEnv, cfg.LogLevel, cfg.LogFormat, cfg.Version).With("component", "worker")
	logger.Info("starting paysync worker")

	container, err := app.NewContainer(ctx, cfg, logger, app.Options{Publisher: true})
	if err != nil {
		logger.Error("failed to initialize container", "error", err)
		os.Exit(1)
	}
	defer container.Close()

	processor := container.OutboxProcessor
	if processor == nil {
		logger.Error("outbox processor not available")
		os.Exit(1)
	}

	logger.Info("starting outbox processor",
		"poll_interval", cfg.OutboxPollInterval,
		"batch_size", cfg.OutboxBatchSize,
		"max_retries", cfg.OutboxMaxRetries,
	)
	done := make(chan struct{})
	go func() {
		defer close(done)
		processor.Run(ctx)
	}()

	go every(ctx, cfg.OutboxCleanupInterval, func() {
		if _, err := processor.Cleanup(ctx); err != nil {
			logger.Error("outbox cleanup failed", "error", err)
		}
	})

	go every(ctx, cfg.OutboxStatsInterval, func() {
		stats := processor.Stats()
		pending, err := container.OutboxRepo.CountPending(ctx)
		if err != nil {
			logger.Warn("failed to count pending outbox messages", "error", err)
		}
		logger.Info("outbox stats",
			"published", stats.Published,
			"failed", stats.Failed,
			"dead", stats.Dead,
			"pending", pending,
			"last_processed_at", stats.LastProcessedAt,
			"last_error_at", stats.LastErrorAt,
			"last_error", stats.LastError,
		)
	})

	if cfg.WorkerHealthAddr != "" {
		mux := http.NewServeMux()
		mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{
				"status": "ok",
				"outbox": processor.Stats(),
			})
		})
		mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
			checkCtx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			report := container.Health.Check(checkCtx)
			status := http.StatusOK
			if !report.Ready() {
				status = http.StatusServiceUnavailable
			}
			writeJSON(w, status, report)
		})
		mux.Handle("GET /metrics", container.Prometheus.Handler())

		healthSrv := &http.Server{
			Addr:              cfg.WorkerHealthAddr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}

		go func() {
			logger.Info("health server starting", "addr", cfg.WorkerHealthAddr)
			if err := healthSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("health server error", "error", err)
			}
		}()

		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := healthSrv.Shutdown(shutdownCtx); err != nil {
				logger.Warn("health server shutdown error", "error", err)
			}
		}()
	}

	<-ctx.Done()
	logger.Info("shutting down worker")
	<-done
	logger.Info("worker stopped")
}

func every(ctx context.Context, interval time.Duration, fn func()) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn()
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
