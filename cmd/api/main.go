// Command api is the Scoracle settlement service: the HTTP API plus the
// recurring settlement scheduler.
//
// Usage:
//
//	scoracle-settlement
//	API_PORT=8080 SETTLEMENT_INTERVAL_MINUTES=5 scoracle-settlement

// @title Scoracle Settlement API
// @version 1.0.0
// @description Settles open moneyline entries against finalized game results, exactly once per entry.
// @host localhost:8000
// @BasePath /api/v1
// @schemes http https
// @contact.name Scoracle
// @license.name MIT
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

	"github.com/albapepper/scoracle-settlement/internal/api"
	"github.com/albapepper/scoracle-settlement/internal/api/handler"
	"github.com/albapepper/scoracle-settlement/internal/cache"
	"github.com/albapepper/scoracle-settlement/internal/config"
	"github.com/albapepper/scoracle-settlement/internal/db"
	"github.com/albapepper/scoracle-settlement/internal/listener"
	"github.com/albapepper/scoracle-settlement/internal/maintenance"
	"github.com/albapepper/scoracle-settlement/internal/notify"
	"github.com/albapepper/scoracle-settlement/internal/scores"
	"github.com/albapepper/scoracle-settlement/internal/settlement"
	"github.com/albapepper/scoracle-settlement/internal/store"

	_ "github.com/albapepper/scoracle-settlement/docs" // swagger docs
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	// Load .env if present
	_ = godotenv.Load(".env")

	cfg, err := config.Load()
	if err != nil {
		logger.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	if cfg.Debug {
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
		slog.SetDefault(logger)
	}

	// Context with signal handling
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Connect to database
	logger.Info("Connecting to database...")
	pool, err := db.New(ctx, cfg)
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	logger.Info("Database connected",
		"min_conns", cfg.DBPoolMinConns,
		"max_conns", cfg.DBPoolMaxConns)

	// Initialize cache
	appCache := cache.New(cfg.CacheEnabled)
	logger.Info("Cache initialized", "enabled", cfg.CacheEnabled)

	// Stores
	entries := store.NewEntries(pool.Pool)
	games := store.NewGames(pool.Pool)
	runs := store.NewRuns(pool.Pool)

	// Settlement: score gateway -> engine -> scheduler
	refresher := scores.New(games, scores.Sources(cfg, logger), scores.Config{
		LookbackDays:   cfg.ScoreLookbackDays,
		BreakerTimeout: cfg.ScoreBreakerTimeout,
	}, logger)
	engine := settlement.NewEngine(entries, games, refresher, settlement.EngineConfig{
		Market: cfg.Market,
		Sports: cfg.Sports,
	}, logger)
	scheduler := settlement.NewScheduler(engine, settlement.SchedulerConfig{
		StartupDelay: cfg.StartupDelay,
		RunTimeout:   cfg.RunTimeout,
	}, logger)

	scheduler.OnComplete(maintenance.RecordRun(runs, logger))
	scheduler.OnComplete(maintenance.InvalidateEntries(appCache, pool, logger))
	if sender := notify.NewWebhookSender(cfg.NotifyWebhookURL, logger); sender != nil {
		scheduler.OnComplete(sender.Hook())
		logger.Info("Settlement notices enabled")
	}

	var handle *settlement.Handle
	if cfg.SettlementEnabled {
		handle = scheduler.Start(ctx, cfg.SettlementInterval)
		logger.Info("Settlement scheduler started",
			"interval", cfg.SettlementInterval,
			"startup_delay", cfg.StartupDelay,
			"sports", cfg.Sports)
	} else {
		logger.Info("Settlement scheduler disabled (SETTLEMENT_ENABLED=false)")
	}

	// LISTEN/NOTIFY: early passes when games go final, cross-replica cache drops
	go listener.Start(ctx, cfg.DatabaseURL, listener.Handlers{
		ScoresRefreshed: func(string) {
			if cfg.SettlementEnabled {
				scheduler.Trigger()
			}
		},
		SettlementCompleted: func(string) {
			appCache.InvalidatePrefix(cache.PrefixEntry)
		},
	}, logger)

	// Maintenance tickers (run log retention, stale entry sweep)
	mcfg := maintenance.DefaultConfig()
	mcfg.RunRetention = time.Duration(cfg.RunRetentionDays) * 24 * time.Hour
	mcfg.StaleAfter = cfg.StaleEntryDays
	mcfg.Market = cfg.Market
	go maintenance.Start(ctx, runs, entries, mcfg, logger)

	router := api.NewRouter(handler.Deps{
		DB:       pool,
		Settler:  scheduler,
		Entries:  entries,
		Runs:     runs,
		Breakers: refresher,
		Cache:    appCache,
		Config:   cfg,
		Logger:   logger,
	})

	addr := fmt.Sprintf("%s:%d", cfg.APIHost, cfg.APIPort)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RunTimeout + 30*time.Second, // manual runs are synchronous
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	go func() {
		logger.Info("Starting Scoracle Settlement API",
			"addr", addr,
			"environment", cfg.Environment,
			"docs", fmt.Sprintf("http://localhost:%d/docs/", cfg.APIPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt
	<-ctx.Done()
	logger.Info("Shutting down...")

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Shutdown error", "error", err)
	}

	// Let an in-flight pass finish its writes before the pool closes.
	handle.Stop()
	select {
	case <-handle.Done():
	case <-time.After(cfg.RunTimeout):
		logger.Warn("Settlement pass still running at shutdown")
	}
	logger.Info("Server stopped")
}
