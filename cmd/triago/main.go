// Triago orchestrator server. Provides the HTTP API, runs the request
// pipeline workers, and manages routing, queueing, and telemetry export.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/codeready-toolchain/triago/pkg/api"
	"github.com/codeready-toolchain/triago/pkg/config"
	"github.com/codeready-toolchain/triago/pkg/contextstore"
	"github.com/codeready-toolchain/triago/pkg/directory"
	"github.com/codeready-toolchain/triago/pkg/export"
	"github.com/codeready-toolchain/triago/pkg/llm"
	"github.com/codeready-toolchain/triago/pkg/notify"
	"github.com/codeready-toolchain/triago/pkg/queue"
	"github.com/codeready-toolchain/triago/pkg/services"
	"github.com/codeready-toolchain/triago/pkg/stage"
	"github.com/codeready-toolchain/triago/pkg/version"
	"github.com/joho/godotenv"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// resolvePodID determines the pod identifier for worker naming.
// Priority: POD_ID env > HOSTNAME env > "local"
func resolvePodID() string {
	if id := os.Getenv("POD_ID"); id != "" {
		return id
	}
	if hostname := os.Getenv("HOSTNAME"); hostname != "" {
		return hostname
	}
	return "local"
}

func main() {
	os.Exit(run())
}

// run holds the real main body so deferred cleanup executes before the
// process sets its exit code.
func run() int {
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "./deploy/config"),
		"Path to configuration directory")
	flag.Parse()

	// Load .env file from config directory
	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment",
			"path", envPath, "error", err)
	} else {
		slog.Info("Loaded environment", "path", envPath)
	}

	httpPort := getEnv("HTTP_PORT", "8080")
	podID := resolvePodID()

	slog.Info("Starting triago",
		"version", version.Full(),
		"http_port", httpPort,
		"pod_id", podID,
		"config_dir", *configDir)

	ctx := context.Background()

	// 1. Initialize configuration
	cfg, err := config.Initialize(ctx, *configDir)
	if err != nil {
		slog.Error("Failed to initialize configuration", "error", err)
		if errors.Is(err, config.ErrValidationFailed) {
			return 2
		}
		return 1
	}

	manager := config.NewManager(*configDir, cfg)
	if err := manager.WatchFiles(ctx); err != nil {
		// Hot reload is a convenience; the server runs fine without it.
		slog.Warn("Config file watching unavailable", "error", err)
	}
	defer manager.StopWatching()

	// 2. Agent directory and wellbeing recalculation
	dir := directory.New(cfg.Agents)
	stress := directory.NewStressTicker(dir, func() config.Thresholds {
		return manager.Current().Thresholds
	})
	stress.Start(ctx)
	defer stress.Stop()
	slog.Info("Agent directory initialized", "agents", len(cfg.Agents))

	// 3. Collaborators: generator client and context store
	generator := llm.NewClient(llm.NewHTTPGenerator(cfg.Collaborators.LLM), cfg.Collaborators.LLM)
	store := contextstore.NewMemoryStore()

	// 4. Telemetry export sink
	var sink export.Sink
	switch cfg.Export.Backend {
	case "postgres":
		pgSink, pgErr := export.NewPostgresSink(ctx, cfg.Export.Postgres)
		if pgErr != nil {
			slog.Error("Failed to initialize Postgres export sink", "error", pgErr)
			return 1
		}
		sink = pgSink
		slog.Info("Telemetry export to PostgreSQL enabled")
	default:
		sink = export.NewLogSink()
	}
	defer func() {
		if err := sink.Close(); err != nil {
			slog.Error("Error closing export sink", "error", err)
		}
	}()

	// 5. Notifications (nil service when not configured; all calls no-op)
	notifier := notify.NewService(cfg.Notifications.Slack)
	if notifier != nil {
		slog.Info("Slack notifications enabled")
	}

	// 6. Routing, queueing, and the request pipeline
	wait := queue.NewWaitQueue()
	registry := services.NewRegistry()
	dispatcher := services.NewDispatcher(manager, dir, wait, registry, notifier, sink)
	router := services.NewRouter(manager, dir, wait, registry, notifier)
	pipeline := stage.NewPipeline(manager, generator, store, router)
	executor := services.NewPipelineExecutor(pipeline, registry, dir, notifier, sink)

	// 7. Start worker pool (before HTTP server)
	workerPool := queue.NewWorkerPool(podID, cfg.Queue, executor)
	if err := workerPool.Start(ctx); err != nil {
		slog.Error("Failed to start worker pool", "error", err)
		return 1
	}

	requestService := services.NewRequestService(workerPool, wait, dir, registry, dispatcher, notifier, sink)

	// 8. Start HTTP server (non-blocking)
	httpServer := api.NewServer(requestService, manager).HTTPServer(":" + httpPort)
	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			errCh <- err
		}
	}()

	slog.Info("Triago started successfully",
		"pod_id", podID,
		"workers", cfg.Queue.WorkerCount)

	// 9. Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	exitCode := 0
	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
		exitCode = 1
	}

	// 10. Graceful shutdown: stop accepting, let in-flight requests finish
	requestService.Drain()

	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.Queue.GracefulShutdownTimeout.Duration())
	defer cancel()

	done := make(chan struct{})
	go func() {
		workerPool.Stop()
		close(done)
	}()

	select {
	case <-done:
		slog.Info("Worker pool stopped gracefully")
	case <-shutdownCtx.Done():
		slog.Warn("Shutdown timeout exceeded, abandoning in-flight requests")
		exitCode = 1
	}

	// Stop HTTP server with its own timeout budget
	httpShutdownCtx, httpCancel := context.WithTimeout(ctx, 5*time.Second)
	defer httpCancel()
	if err := httpServer.Shutdown(httpShutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("Shutdown complete")
	return exitCode
}
