// driverd is the worker daemon that launches and supervises driver processes.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"driverd/internal/api"
	"driverd/internal/artifact"
	"driverd/internal/config"
	"driverd/internal/driver"
	"driverd/internal/health"
	"driverd/internal/hooks"
	"driverd/internal/launcher"
	"driverd/internal/launcher/dockerlaunch"
	"driverd/internal/notify"
	"driverd/internal/observability"
)

func main() {
	// Load .env before logger setup so LOG_LEVEL can come from it
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("Could not load .env file", "error", err)
	}

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(),
	})))

	if err := run(); err != nil {
		slog.Error("Worker failed", "error", err)
		os.Exit(1)
	}
}

func logLevel() slog.Level {
	switch strings.ToLower(config.GetEnv("LOG_LEVEL", "info")) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func run() error {
	ctx := context.Background()

	cfg := config.LoadWorkerConfig()

	// Setup metrics
	metrics, metricsHandler, err := observability.NewMetrics(ctx)
	if err != nil {
		return err
	}

	// Create notifier
	notifier := notify.NewWebhook(notify.LoadConfigFromEnv(), metrics)

	// Create artifact fetchers and the per-driver preparer
	fetchers, err := artifact.NewMuxFromConfig(artifact.LoadConfigFromEnv())
	if err != nil {
		return err
	}
	preparer := artifact.NewPreparer(cfg.WorkDir, fetchers, metrics)

	// Select the launch backend
	var launch launcher.Launcher
	switch cfg.Launcher {
	case "docker":
		dockerLauncher, err := dockerlaunch.New(ctx, dockerlaunch.LoadConfigFromEnv())
		if err != nil {
			return err
		}
		defer dockerLauncher.Close()
		launch = dockerLauncher
		slog.Info("Connected to Docker daemon")
	case "exec":
		launch = launcher.NewExec()
	default:
		return fmt.Errorf("unknown launcher %q", cfg.Launcher)
	}

	// Shutdown hooks force-kill live drivers when the daemon exits
	shutdownHooks := hooks.NewRegistry()

	// Create driver service
	drivers := driver.NewService(driver.Config{
		WorkerURL:      cfg.WorkerURL,
		RuntimeHome:    cfg.RuntimeHome,
		TerminateGrace: cfg.TerminateGrace,
		Retention:      cfg.DriverRetention,
		SweepInterval:  cfg.SweepInterval,
	}, driver.Deps{
		Launcher:  launch,
		Preparer:  preparer,
		Artifacts: fetchers,
		Notifier:  notifier,
		Hooks:     shutdownHooks,
		Metrics:   metrics,
	})

	// Create health checker
	healthChecker := health.NewChecker(drivers)

	// Create API router
	router := api.NewRouter(api.RouterConfig{
		Drivers:       drivers,
		Metrics:       metrics,
		HealthChecker: healthChecker,
		APIKey:        cfg.APIKey,
	})

	if cfg.APIKey != "" {
		slog.Info("API authentication enabled")
	} else {
		slog.Warn("API authentication disabled - no API_KEY configured")
	}

	// Create API server
	apiServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Create metrics server
	metricsMux := http.NewServeMux()
	metricsMux.Handle("GET /metrics", metricsHandler)
	metricsServer := &http.Server{
		Addr:         ":" + cfg.MetricsPort,
		Handler:      metricsMux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	// Channel to capture server errors
	serverErr := make(chan error, 1)

	// Start API server
	go func() {
		slog.Info("Starting API server", "port", cfg.Port, "launcher", cfg.Launcher)
		if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Start metrics server
	go func() {
		slog.Info("Starting metrics server", "port", cfg.MetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// stopServers closes both servers gracefully
	stopServers := func(timeout time.Duration) {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if err := apiServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("API server shutdown error", "error", err)
		}
		if err := metricsServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Metrics server shutdown error", "error", err)
		}
	}

	// Wait for interrupt signal or server error
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		slog.Info("Received shutdown signal", "signal", sig)
	case err := <-serverErr:
		slog.Error("Server failed to start", "error", err)
		stopServers(5 * time.Second)
		return err
	}

	// Phase 1: Mark worker unready so the manager stops placing drivers here
	healthChecker.SetShuttingDown()

	if cfg.ShutdownDrainWait > 0 {
		slog.Info("Waiting for traffic to drain", "duration", cfg.ShutdownDrainWait)
		time.Sleep(cfg.ShutdownDrainWait)
	}

	// Phase 2: Graceful shutdown - stop accepting new connections, finish in-flight requests
	slog.Info("Starting graceful shutdown")
	stopServers(25 * time.Second)

	// Phase 3: Force-kill live drivers and wait for their runners to finalize.
	// Unlike jobs on a cluster, a driver dies with the worker that hosts it;
	// killing here is what produces the terminal notifications.
	slog.Info("Killing live drivers")
	shutdownHooks.Run()

	driversCtx, driversCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer driversCancel()
	if err := drivers.Shutdown(driversCtx); err != nil {
		slog.Warn("Driver shutdown incomplete", "error", err)
	}

	// Phase 4: Drain the notifier so pending terminal notifications go out
	slog.Info("Draining notifier")
	notifyCtx, notifyCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer notifyCancel()
	if err := notifier.Close(notifyCtx); err != nil {
		slog.Warn("Notifier shutdown error", "error", err)
	}

	// Log final notifier stats
	stats := notifier.Stats()
	slog.Info("Notifier stats",
		"delivered", stats.Delivered,
		"failed", stats.Failed,
		"dropped", stats.Dropped,
	)

	slog.Info("Shutdown complete")
	return nil
}
