package settlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

// EngineConfig selects which entries the engine settles.
type EngineConfig struct {
	// Market is the only market this engine settles, e.g. "moneyline".
	Market string
	// Sports limits the pass to these sports. Empty means every sport.
	Sports []string
}

// Engine executes settlement passes. It holds no timer state; see Scheduler.
type Engine struct {
	entries   EntryStore
	games     GameStore
	refresher ScoreRefresher
	cfg       EngineConfig
	logger    *slog.Logger
	now       func() time.Time
}

// NewEngine creates an engine. refresher may be nil to settle against the
// game store as it is, without pulling new scores first.
func NewEngine(entries EntryStore, games GameStore, refresher ScoreRefresher, cfg EngineConfig, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Market == "" {
		cfg.Market = defaultMarket
	}
	return &Engine{
		entries:   entries,
		games:     games,
		refresher: refresher,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}
}

// RunOnce executes exactly one settlement pass and returns its summary.
//
// Operational failures (score refresh, store reads, per-entry writes) are
// recorded in Run.Errors and never stop the pass. The returned error is
// non-nil only for a *MatchFault, which means the matching contract itself
// is broken.
func (e *Engine) RunOnce(ctx context.Context, trigger Trigger) (Run, error) {
	run := Run{
		ID:        uuid.NewString(),
		Trigger:   trigger,
		StartedAt: e.now(),
		Errors:    []string{},
	}

	// 1. Pull fresh scores. A dead provider must not block settlement of
	// games that were finalized by an earlier refresh.
	if e.refresher != nil {
		n, err := e.refresher.RefreshScores(ctx)
		if err != nil {
			e.logger.Warn("Score refresh failed, settling against existing results", "error", err)
			run.AddErrorf("score refresh: %v", err)
		} else {
			run.ScoresUpdated = n
		}
	}

	for _, sport := range e.sports() {
		if err := e.settleSport(ctx, sport, &run); err != nil {
			run.AddError(err.Error())
			e.finish(&run)
			return run, err
		}
	}

	e.finish(&run)
	return run, nil
}

// settleSport runs steps 2-8 for one sport filter ("" = all sports).
func (e *Engine) settleSport(ctx context.Context, sport string, run *Run) error {
	label := sport
	if label == "" {
		label = "all"
	}

	entries, err := e.entries.FetchOpenEntries(ctx, e.cfg.Market, sport)
	if err != nil {
		e.logger.Warn("Failed to fetch open entries", "sport", label, "error", err)
		run.AddErrorf("fetch open entries (%s): %v", label, err)
		return nil
	}
	if len(entries) == 0 {
		e.logger.Debug("No open entries", "sport", label)
		return nil
	}

	games, err := e.games.FetchFinalizedGames(ctx, sport, earliestDay(entries))
	if err != nil {
		e.logger.Warn("Failed to fetch finalized games", "sport", label, "error", err)
		run.AddErrorf("fetch finalized games (%s): %v", label, err)
		return nil
	}
	if len(games) == 0 {
		e.logger.Debug("No finalized games", "sport", label, "open_entries", len(entries))
		return nil
	}

	// Team names are not unique across leagues, so candidates are always
	// restricted to the entry's own sport.
	bySport := make(map[string][]GameRecord)
	for _, g := range games {
		key := strings.ToUpper(g.Sport)
		bySport[key] = append(bySport[key], g)
	}

	for _, entry := range entries {
		run.EntriesChecked++

		m, err := MatchEntry(entry, bySport[strings.ToUpper(entry.Sport)])
		if err != nil {
			var fault *MatchFault
			if errors.As(err, &fault) {
				return fmt.Errorf("settle %s: %w", label, err)
			}
			run.AddErrorf("entry %s: %v", entry.EntryID, err)
			continue
		}
		if !m.Found() {
			run.Unmatched++
			continue
		}
		if m.Candidates > 1 {
			e.logger.Warn("Multiple finalized games match entry, using first",
				"entry_id", entry.EntryID, "game_id", m.Game.GameID, "candidates", m.Candidates)
		}

		result := OutcomeFor(entry, *m.Game)
		applied, err := e.entries.TrySettleEntry(ctx, entry.EntryID, result)
		if err != nil {
			e.logger.Warn("Failed to settle entry", "entry_id", entry.EntryID, "error", err)
			run.AddErrorf("entry %s: settle: %v", entry.EntryID, err)
			continue
		}
		if !applied {
			run.AlreadySettled++
			e.logger.Debug("Entry already settled by another run", "entry_id", entry.EntryID)
			continue
		}

		run.Settled++
		if result == Win {
			run.Wins++
		} else {
			run.Losses++
		}
	}
	return nil
}

func (e *Engine) sports() []string {
	if len(e.cfg.Sports) == 0 {
		return []string{""}
	}
	return e.cfg.Sports
}

func (e *Engine) finish(run *Run) {
	run.FinishedAt = e.now()
	run.Duration = run.FinishedAt.Sub(run.StartedAt)
}

func earliestDay(entries []Entry) Day {
	var min Day
	for _, e := range entries {
		if e.Date.IsZero() {
			continue
		}
		if min.IsZero() || e.Date.Before(min) {
			min = e.Date
		}
	}
	return min
}
