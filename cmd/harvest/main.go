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

	"github.com/use-agent/harvest/api"
	"github.com/use-agent/harvest/browser"
	"github.com/use-agent/harvest/cache"
	"github.com/use-agent/harvest/config"
	"github.com/use-agent/harvest/memory"
	"github.com/use-agent/harvest/merge"
	"github.com/use-agent/harvest/persist"
	"github.com/use-agent/harvest/planner"
	"github.com/use-agent/harvest/recovery"
	"github.com/use-agent/harvest/registry"
	"github.com/use-agent/harvest/runner"
	"github.com/use-agent/harvest/strategy"
)

func main() {
	// ── 1. Load configuration ───────────────────────────────────────
	cfg := config.Load()

	// ── 2. Initialise structured logging ────────────────────────────
	initLogger(cfg.Log)
	slog.Info("harvest starting",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"mode", cfg.Server.Mode,
		"maxPages", cfg.Browser.MaxPages,
		"maxWorkers", cfg.Runner.MaxWorkers,
	)

	// ── 3. Initialise browser manager (launches Chromium) ───────────
	bm, err := browser.NewManager(cfg.Browser, cfg.Session)
	if err != nil {
		slog.Error("failed to initialise browser", "error", err)
		os.Exit(1)
	}
	defer bm.Close()

	// ── 3b. Optional planner collaborator ───────────────────────────
	if cfg.Planner.Enabled && cfg.Planner.BaseURL != "" {
		bm.SetPlanner(planner.NewClient(cfg.Planner, nil))
		slog.Info("planner enabled", "model", cfg.Planner.Model)
	}

	// ── 4. Extraction pipeline ──────────────────────────────────────
	reg := registry.New()
	merger := merge.New(strategy.Weights(), strategy.Priorities(),
		cfg.Extract.ConfidenceFloor, cfg.Extract.FieldImportance)
	counter := recovery.NewFailureCounter(cfg.Recovery.FailureThreshold, cfg.Recovery.Cooldown)

	var flows recovery.FlowMemory
	if cfg.Memory.Enabled && cfg.Memory.BaseURL != "" {
		flows = memory.NewClient(cfg.Memory, nil)
		slog.Info("flow memory enabled", "baseURL", cfg.Memory.BaseURL)
	}

	controller := recovery.NewController(cfg.Recovery, cfg.Extract, bm, merger, reg, counter, flows)
	run := runner.New(cfg.Runner, controller, counter, slog.Default())

	// ── 4b. Cache + persistence webhook ─────────────────────────────
	cc := cache.New(cfg.Cache.MaxEntries)
	notifier := persist.NewNotifier(cfg.Persist, nil)
	if notifier.Enabled() {
		slog.Info("persistence webhook enabled")
	}

	// ── 5. Setup router ─────────────────────────────────────────────
	startTime := time.Now()
	router := api.NewRouter(bm, run, counter, notifier, cfg, cc, startTime)

	// ── 6. Start HTTP server ────────────────────────────────────────
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		slog.Info("HTTP server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// ── 7. Graceful shutdown ────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	slog.Info("shutdown signal received", "signal", sig.String())

	// Give in-flight requests 5 seconds to complete.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("HTTP server forced shutdown", "error", err)
	} else {
		slog.Info("HTTP server drained gracefully")
	}

	// bm.Close() runs via defer — drains page pool and kills Chrome.
	slog.Info("harvest stopped")
}

// initLogger configures slog based on the LogConfig.
func initLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
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

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}
