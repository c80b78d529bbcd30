// Command settle is the Scoracle settlement operator CLI.
//
// Usage:
//
//	scoracle-settle run
//	scoracle-settle run --sport NBA --skip-refresh
//	scoracle-settle refresh
//	scoracle-settle runs --limit 10
//	scoracle-settle sweep
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/albapepper/scoracle-settlement/internal/config"
	"github.com/albapepper/scoracle-settlement/internal/db"
	"github.com/albapepper/scoracle-settlement/internal/maintenance"
	"github.com/albapepper/scoracle-settlement/internal/notify"
	"github.com/albapepper/scoracle-settlement/internal/scores"
	"github.com/albapepper/scoracle-settlement/internal/settlement"
	"github.com/albapepper/scoracle-settlement/internal/store"
)

var logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

func main() {
	// Load .env if present
	_ = godotenv.Load(".env")

	root := &cobra.Command{
		Use:   "scoracle-settle",
		Short: "Scoracle settlement operator CLI",
	}

	root.AddCommand(runCmd())
	root.AddCommand(refreshCmd())
	root.AddCommand(runsCmd())
	root.AddCommand(sweepCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// --------------------------------------------------------------------------
// run command
// --------------------------------------------------------------------------

func runCmd() *cobra.Command {
	var (
		sport       string
		skipRefresh bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one settlement pass now",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(func(ctx context.Context, cfg *config.Config, pool *db.Pool) error {
				sports := cfg.Sports
				if sport != "" {
					sport = strings.ToUpper(sport)
					if _, ok := config.SportRegistry[sport]; !ok {
						return fmt.Errorf("unsupported sport %q", sport)
					}
					sports = []string{sport}
				}

				entries := store.NewEntries(pool.Pool)
				games := store.NewGames(pool.Pool)
				runs := store.NewRuns(pool.Pool)

				var refresher settlement.ScoreRefresher
				if !skipRefresh {
					refresher = scores.New(games, scores.Sources(cfg, logger), scores.Config{
						LookbackDays:   cfg.ScoreLookbackDays,
						BreakerTimeout: cfg.ScoreBreakerTimeout,
					}, logger)
				}

				engine := settlement.NewEngine(entries, games, refresher, settlement.EngineConfig{
					Market: cfg.Market,
					Sports: sports,
				}, logger)

				run, runErr := engine.RunOnce(ctx, settlement.TriggerManual)
				logger.Info("Settlement pass finished", "run_id", run.ID, "summary", run.Summary())
				for _, e := range run.Errors {
					logger.Error("settlement error", "error", e)
				}

				if err := runs.Insert(ctx, run); err != nil {
					logger.Warn("Failed to record run", "error", err)
				}
				if run.Settled > 0 {
					if err := pool.NotifySettlementCompleted(ctx, run.ID); err != nil {
						logger.Warn("Failed to publish settlement_completed", "error", err)
					}
				}
				notify.NewWebhookSender(cfg.NotifyWebhookURL, logger).Hook()(ctx, run)

				for _, n := range notify.Build(run) {
					fmt.Printf("[%s] %s: %s\n", n.Level, n.Title, n.Text)
				}
				return runErr
			})
		},
	}
	cmd.Flags().StringVar(&sport, "sport", "", "Only settle one sport (NBA, NFL)")
	cmd.Flags().BoolVar(&skipRefresh, "skip-refresh", false, "Settle against stored results without polling the score feeds")
	return cmd
}

// --------------------------------------------------------------------------
// refresh command
// --------------------------------------------------------------------------

func refreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Pull recent scores into game_results without settling",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(func(ctx context.Context, cfg *config.Config, pool *db.Pool) error {
				refresher := scores.New(store.NewGames(pool.Pool), scores.Sources(cfg, logger), scores.Config{
					LookbackDays:   cfg.ScoreLookbackDays,
					BreakerTimeout: cfg.ScoreBreakerTimeout,
				}, logger)
				n, err := refresher.RefreshScores(ctx)
				logger.Info("Score refresh finished", "updated", n)
				return err
			})
		},
	}
}

// --------------------------------------------------------------------------
// runs command
// --------------------------------------------------------------------------

func runsCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Print recent settlement runs as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(func(ctx context.Context, cfg *config.Config, pool *db.Pool) error {
				data, err := store.NewRuns(pool.Pool).RecentJSON(ctx, limit)
				if err != nil {
					return err
				}
				var pretty []map[string]interface{}
				if err := json.Unmarshal(data, &pretty); err != nil {
					return fmt.Errorf("decode runs: %w", err)
				}
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(pretty)
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Number of runs to show")
	return cmd
}

// --------------------------------------------------------------------------
// sweep command
// --------------------------------------------------------------------------

func sweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Report open entries whose games are final but never matched",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(func(ctx context.Context, cfg *config.Config, pool *db.Pool) error {
				stale, err := maintenance.SweepStale(ctx, store.NewEntries(pool.Pool), cfg.Market, cfg.StaleEntryDays, logger)
				if err != nil {
					return err
				}
				for _, e := range stale {
					fmt.Printf("%s\t%s\t%s\t%s vs %s\n", e.EntryID, e.Sport, e.Date, e.SelectedTeam, e.OpponentTeam)
				}
				logger.Info("Sweep finished", "stale", len(stale))
				return nil
			})
		},
	}
}

// --------------------------------------------------------------------------
// Helpers
// --------------------------------------------------------------------------

func withDB(fn func(ctx context.Context, cfg *config.Config, pool *db.Pool) error) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	pool, err := db.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer pool.Close()

	return fn(ctx, cfg, pool)
}
