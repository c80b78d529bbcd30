package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/albapepper/scoracle-settlement/internal/settlement"
)

// Runs persists settlement run summaries.
type Runs struct {
	q Querier
}

// NewRuns creates a run log on q.
func NewRuns(q Querier) *Runs {
	return &Runs{q: q}
}

// Insert records a finished run.
func (s *Runs) Insert(ctx context.Context, run settlement.Run) error {
	errs := run.Errors
	if errs == nil {
		errs = []string{}
	}
	errJSON, err := json.Marshal(errs)
	if err != nil {
		return fmt.Errorf("encode run errors: %w", err)
	}

	_, err = s.q.Exec(ctx, `
		INSERT INTO settlement_runs (
			id, trigger, started_at, finished_at, duration_ms,
			scores_updated, entries_checked, unmatched, already_settled,
			settled, wins, losses, errors
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13::jsonb)
		ON CONFLICT (id) DO NOTHING`,
		run.ID, string(run.Trigger), run.StartedAt, run.FinishedAt, run.Duration.Milliseconds(),
		run.ScoresUpdated, run.EntriesChecked, run.Unmatched, run.AlreadySettled,
		run.Settled, run.Wins, run.Losses, string(errJSON),
	)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", run.ID, err)
	}
	return nil
}

// RecentJSON returns the latest runs, newest first, as a JSON array built
// by Postgres.
func (s *Runs) RecentJSON(ctx context.Context, limit int) ([]byte, error) {
	var data []byte
	err := s.q.QueryRow(ctx, `
		SELECT COALESCE(json_agg(r ORDER BY r.started_at DESC), '[]'::json)
		FROM (
			SELECT id, trigger, started_at, finished_at, duration_ms,
				scores_updated, entries_checked, unmatched, already_settled,
				settled, wins, losses, errors
			FROM settlement_runs
			ORDER BY started_at DESC
			LIMIT $1
		) r`, limit).Scan(&data)
	if err != nil {
		return nil, fmt.Errorf("recent runs: %w", err)
	}
	return data, nil
}

// Purge deletes runs that started before now minus retention.
func (s *Runs) Purge(ctx context.Context, retention time.Duration) (int64, error) {
	tag, err := s.q.Exec(ctx,
		`DELETE FROM settlement_runs WHERE started_at < $1`,
		time.Now().Add(-retention))
	if err != nil {
		return 0, fmt.Errorf("purge runs: %w", err)
	}
	return tag.RowsAffected(), nil
}
