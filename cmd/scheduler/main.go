// Command scheduler runs the notification job on NOTIFY_SCHEDULE and serves
// a status API between runs.
//
// Usage:
//
//	stock-scheduler
//	NOTIFY_SCHEDULE="*/30 * * * *" STATUS_PORT=8090 stock-scheduler
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/albapepper/stock-notifier/internal/api"
	"github.com/albapepper/stock-notifier/internal/api/handler"
	"github.com/albapepper/stock-notifier/internal/app"
	"github.com/albapepper/stock-notifier/internal/config"
	"github.com/albapepper/stock-notifier/internal/maintenance"
	"github.com/albapepper/stock-notifier/internal/metrics"
	"github.com/albapepper/stock-notifier/internal/scheduler"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	// Load .env files if present
	_ = godotenv.Load(".env.local")
	_ = godotenv.Load(".env")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	// Context with signal handling
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder := metrics.NewRecorder(reg)

	// Database, sink, transports, run lock
	logger.Info("Connecting to database...")
	a, err := app.New(ctx, cfg, recorder, logger)
	if err != nil {
		logger.Error("Failed to initialise", "error", err)
		os.Exit(1)
	}
	defer a.Close()
	logger.Info("Database connected",
		"min_conns", cfg.DBPoolMinConns,
		"max_conns", cfg.DBPoolMaxConns,
		"run_lock", a.Lock != nil)

	// Log retention
	if p, ok := a.Sink.(maintenance.Pruner); ok {
		go maintenance.Start(ctx, p, maintenance.Config{
			Interval:     cfg.MaintenanceInterval,
			LogRetention: cfg.LogRetention,
		}, logger)
	}

	// Schedule
	history := handler.NewRunHistory(24)
	job := scheduler.NewJob(a, history, recorder, false, logger)
	c, err := scheduler.Start(ctx, cfg.RunSchedule, job, logger)
	if err != nil {
		logger.Error("Failed to start schedule", "error", err)
		os.Exit(1)
	}
	logger.Info("Schedule started", "schedule", cfg.RunSchedule, "channels", a.Coordinator.EnabledChannels())

	// Status API
	h := handler.New(a.Pool, history, a.Coordinator.EnabledChannels(), cfg.RunSchedule)
	router := api.NewRouter(h, reg, cfg, logger)

	addr := fmt.Sprintf("%s:%d", cfg.StatusHost, cfg.StatusPort)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	go func() {
		logger.Info("Starting status API", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server failed", "error", err)
			cancel()
		}
	}()

	// Wait for interrupt
	<-ctx.Done()
	logger.Info("Shutting down...")

	// Stop scheduling and let an in-flight run drain. Its context is already
	// cancelled, so it stops feeding users and returns promptly.
	<-c.Stop().Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Shutdown error", "error", err)
	}
	logger.Info("Scheduler stopped")
}
