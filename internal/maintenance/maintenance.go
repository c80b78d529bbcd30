// Package maintenance runs periodic background tasks as Go tickers: pruning
// the settlement run log and flagging entries that look stuck.
package maintenance

import (
	"context"
	"log/slog"
	"time"

	"github.com/albapepper/scoracle-settlement/internal/store"
)

// RunPurger deletes old run log rows.
type RunPurger interface {
	Purge(ctx context.Context, retention time.Duration) (int64, error)
}

// StaleFinder finds open entries that should have matched by now.
type StaleFinder interface {
	FindStale(ctx context.Context, market string, olderThanDays, limit int) ([]store.StaleEntry, error)
}

// Config controls maintenance task intervals. Zero duration disables a task.
type Config struct {
	PurgeInterval time.Duration // Run log retention
	SweepInterval time.Duration // Stale entry report
	RunRetention  time.Duration
	StaleAfter    int // days
	Market        string
}

// DefaultConfig returns sensible production defaults.
func DefaultConfig() Config {
	return Config{
		PurgeInterval: 6 * time.Hour,
		SweepInterval: 1 * time.Hour,
		RunRetention:  30 * 24 * time.Hour,
		StaleAfter:    3,
		Market:        "moneyline",
	}
}

// Start launches all configured maintenance tickers. Blocks until ctx is
// cancelled. Intended to be called with `go`.
func Start(ctx context.Context, runs RunPurger, entries StaleFinder, cfg Config, logger *slog.Logger) {
	logger.Info("Maintenance tickers started",
		"purge", cfg.PurgeInterval,
		"sweep", cfg.SweepInterval)

	tickers := make([]*time.Ticker, 0, 2)
	defer func() {
		for _, t := range tickers {
			t.Stop()
		}
	}()

	if cfg.PurgeInterval > 0 && runs != nil {
		t := time.NewTicker(cfg.PurgeInterval)
		tickers = append(tickers, t)
		go runLoop(ctx, t.C, "purge", func() { _, _ = PurgeRuns(ctx, runs, cfg.RunRetention, logger) })
	}

	if cfg.SweepInterval > 0 && entries != nil {
		t := time.NewTicker(cfg.SweepInterval)
		tickers = append(tickers, t)
		go runLoop(ctx, t.C, "sweep", func() { _, _ = SweepStale(ctx, entries, cfg.Market, cfg.StaleAfter, logger) })
	}

	<-ctx.Done()
	logger.Info("Maintenance tickers stopped")
}

func runLoop(ctx context.Context, ch <-chan time.Time, name string, fn func()) {
	for {
		select {
		case <-ch:
			fn()
		case <-ctx.Done():
			return
		}
	}
}

// --------------------------------------------------------------------------
// Task implementations
// --------------------------------------------------------------------------

// PurgeRuns removes run log rows older than retention.
func PurgeRuns(ctx context.Context, runs RunPurger, retention time.Duration, logger *slog.Logger) (int64, error) {
	n, err := runs.Purge(ctx, retention)
	if err != nil {
		logger.Warn("Purge: failed to delete old runs", "error", err)
		return 0, err
	}
	if n > 0 {
		logger.Info("Purge: deleted old runs", "count", n)
	}
	return n, nil
}

const staleSweepLimit = 200

// SweepStale logs open entries older than staleAfter days whose game day
// already has final results. Settlement never touches these on its own;
// they usually need a team-name fix or a manual settle.
func SweepStale(ctx context.Context, entries StaleFinder, market string, staleAfter int, logger *slog.Logger) ([]store.StaleEntry, error) {
	stale, err := entries.FindStale(ctx, market, staleAfter, staleSweepLimit)
	if err != nil {
		logger.Warn("Sweep: failed to find stale entries", "error", err)
		return nil, err
	}
	for _, e := range stale {
		logger.Warn("Sweep: open entry has final games on its day but never matched",
			"entry_id", e.EntryID,
			"sport", e.Sport,
			"date", e.Date.String(),
			"selected", e.SelectedTeam,
			"opponent", e.OpponentTeam)
	}
	if len(stale) > 0 {
		logger.Info("Sweep: stale entries found", "count", len(stale))
	}
	return stale, nil
}
