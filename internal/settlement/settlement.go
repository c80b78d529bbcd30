// Package settlement reconciles open entries against finalized game results
// and commits each entry's win/loss outcome exactly once.
//
// The engine never assumes it is the only writer: every settlement is a
// conditional write guarded on the entry still being open, so overlapping
// scheduled passes and manual "force settle" triggers cannot double-settle.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

const (
	defaultMarket       = "moneyline"
	defaultInterval     = 15 * time.Minute
	defaultStartupDelay = 10 * time.Second
	defaultRunTimeout   = 5 * time.Minute
)

// GameStatus is the provider lifecycle state of a game.
type GameStatus string

const (
	GameScheduled  GameStatus = "scheduled"
	GameInProgress GameStatus = "in_progress"
	GameFinal      GameStatus = "final"
)

// EntryStatus is the settlement state of an entry.
type EntryStatus string

const (
	EntryOpen    EntryStatus = "open"
	EntrySettled EntryStatus = "settled"
)

// Outcome is the final result recorded on a settled entry.
type Outcome string

const (
	Win  Outcome = "win"
	Loss Outcome = "loss"
)

// Trigger identifies what started a run.
type Trigger string

const (
	TriggerScheduled Trigger = "scheduled"
	TriggerManual    Trigger = "manual"
	TriggerNotify    Trigger = "notify"
)

// ErrRunInProgress is returned by Scheduler.RunSettlement when a pass is
// already executing. The request is skipped, not queued.
var ErrRunInProgress = errors.New("settlement run already in progress")

// --------------------------------------------------------------------------
// Types
// --------------------------------------------------------------------------

// GameRecord is a sports result as written by the score refresh gateway.
// Once Status is final the record never changes.
type GameRecord struct {
	GameID    string     `json:"game_id"`
	Sport     string     `json:"sport"`
	Date      Day        `json:"date"`
	HomeTeam  string     `json:"home_team"`
	AwayTeam  string     `json:"away_team"`
	Status    GameStatus `json:"status"`
	HomeScore *int       `json:"home_score,omitempty"`
	AwayScore *int       `json:"away_score,omitempty"`
	Winner    string     `json:"winner,omitempty"`
}

// DeriveWinner returns the team with the higher score once the game is
// final. Ties and unfinished games have no winner.
func (g GameRecord) DeriveWinner() string {
	if g.Status != GameFinal || g.HomeScore == nil || g.AwayScore == nil {
		return ""
	}
	switch {
	case *g.HomeScore > *g.AwayScore:
		return g.HomeTeam
	case *g.AwayScore > *g.HomeScore:
		return g.AwayTeam
	default:
		return ""
	}
}

// Entry is a user's open prediction or wager awaiting an outcome.
type Entry struct {
	EntryID      string      `json:"entry_id"`
	OwnerID      string      `json:"owner_id"`
	Date         Day         `json:"date"`
	SelectedTeam string      `json:"selected_team"`
	OpponentTeam string      `json:"opponent_team"`
	Market       string      `json:"market"`
	Sport        string      `json:"sport"`
	Status       EntryStatus `json:"status"`
	Result       Outcome     `json:"result,omitempty"`
	SettledAt    *time.Time  `json:"settled_at,omitempty"`
}

// Run is the outcome of one settlement pass. Errors carries per-entry and
// gateway failures as data; it is never a scheduler fault state.
type Run struct {
	ID             string        `json:"id"`
	Trigger        Trigger       `json:"trigger"`
	StartedAt      time.Time     `json:"started_at"`
	FinishedAt     time.Time     `json:"finished_at"`
	Duration       time.Duration `json:"duration_ns"`
	ScoresUpdated  int           `json:"scores_updated"`
	EntriesChecked int           `json:"entries_checked"`
	Unmatched      int           `json:"unmatched"`
	AlreadySettled int           `json:"already_settled"`
	Settled        int           `json:"settled"`
	Wins           int           `json:"wins"`
	Losses         int           `json:"losses"`
	Errors         []string      `json:"errors"`
}

// AddError records an error message.
func (r *Run) AddError(msg string) {
	r.Errors = append(r.Errors, msg)
}

// AddErrorf records a formatted error message.
func (r *Run) AddErrorf(format string, args ...interface{}) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

// IsNoop reports whether the run neither settled anything nor hit an error.
func (r *Run) IsNoop() bool {
	return r.Settled == 0 && len(r.Errors) == 0
}

// Summary returns a human-readable summary.
func (r *Run) Summary() string {
	return fmt.Sprintf(
		"trigger=%s scores=%d checked=%d settled=%d wins=%d losses=%d unmatched=%d already_settled=%d errors=%d dur=%s",
		r.Trigger, r.ScoresUpdated, r.EntriesChecked, r.Settled, r.Wins, r.Losses,
		r.Unmatched, r.AlreadySettled, len(r.Errors), r.Duration.Round(time.Millisecond))
}

// --------------------------------------------------------------------------
// Collaborators
// --------------------------------------------------------------------------

// EntryStore reads open entries and applies conditional settlement writes.
type EntryStore interface {
	FetchOpenEntries(ctx context.Context, market, sport string) ([]Entry, error)
	// TrySettleEntry settles the entry only if it is still open. applied is
	// false when another writer settled it first.
	TrySettleEntry(ctx context.Context, entryID string, result Outcome) (applied bool, err error)
}

// GameStore reads finalized game records.
type GameStore interface {
	FetchFinalizedGames(ctx context.Context, sport string, since Day) ([]GameRecord, error)
}

// ScoreRefresher pulls the latest scores from a third-party provider into
// the game store. It may fail; the engine carries on with existing data.
type ScoreRefresher interface {
	RefreshScores(ctx context.Context) (updated int, err error)
}
