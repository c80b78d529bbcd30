package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/albapepper/scoracle-settlement/internal/settlement"
)

// Entries reads and settles rows of the entries table.
type Entries struct {
	q Querier
}

// NewEntries creates an entry store on q.
func NewEntries(q Querier) *Entries {
	return &Entries{q: q}
}

// FetchOpenEntries returns open entries for the market. An empty sport
// matches every sport.
func (s *Entries) FetchOpenEntries(ctx context.Context, market, sport string) ([]settlement.Entry, error) {
	rows, err := s.q.Query(ctx, `
		SELECT id, owner_id, entry_date, selected_team, opponent_team, market, sport, status
		FROM entries
		WHERE status = 'open'
		  AND market = $1
		  AND ($2::text IS NULL OR upper(sport) = upper($2::text))
		ORDER BY entry_date, id`, market, nullIfEmpty(sport))
	if err != nil {
		return nil, fmt.Errorf("fetch open entries: %w", err)
	}
	defer rows.Close()

	var entries []settlement.Entry
	for rows.Next() {
		var (
			e    settlement.Entry
			date time.Time
		)
		if err := rows.Scan(
			&e.EntryID, &e.OwnerID, &date, &e.SelectedTeam,
			&e.OpponentTeam, &e.Market, &e.Sport, &e.Status,
		); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		e.Date = settlement.DayOf(date)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// TrySettleEntry settles the entry only if it is still open. A concurrent
// writer that got there first leaves zero rows affected and applied=false.
func (s *Entries) TrySettleEntry(ctx context.Context, entryID string, result settlement.Outcome) (bool, error) {
	tag, err := s.q.Exec(ctx, `
		UPDATE entries
		SET status = 'settled',
			result = $2,
			settled_at = NOW()
		WHERE id = $1 AND status = 'open'`, entryID, string(result))
	if err != nil {
		return false, fmt.Errorf("settle entry %s: %w", entryID, err)
	}
	return tag.RowsAffected() == 1, nil
}

// Get returns a single entry in any status.
func (s *Entries) Get(ctx context.Context, entryID string) (*settlement.Entry, error) {
	var (
		e         settlement.Entry
		date      time.Time
		result    *string
		settledAt *time.Time
	)
	err := s.q.QueryRow(ctx, `
		SELECT id, owner_id, entry_date, selected_team, opponent_team,
			market, sport, status, result, settled_at
		FROM entries WHERE id = $1`, entryID).Scan(
		&e.EntryID, &e.OwnerID, &date, &e.SelectedTeam, &e.OpponentTeam,
		&e.Market, &e.Sport, &e.Status, &result, &settledAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get entry %s: %w", entryID, err)
	}
	e.Date = settlement.DayOf(date)
	if result != nil {
		e.Result = settlement.Outcome(*result)
	}
	e.SettledAt = settledAt
	return &e, nil
}

// StaleEntry is an open entry whose game day already has finalized results
// in its sport but which never matched one of them.
type StaleEntry struct {
	EntryID      string
	Sport        string
	Date         settlement.Day
	SelectedTeam string
	OpponentTeam string
}

// FindStale returns open entries older than olderThanDays whose day has
// finalized games in the same sport. These usually point at a team-name
// mismatch between the provider and whatever created the entry.
func (s *Entries) FindStale(ctx context.Context, market string, olderThanDays, limit int) ([]StaleEntry, error) {
	rows, err := s.q.Query(ctx, `
		SELECT e.id, e.sport, e.entry_date, e.selected_team, e.opponent_team
		FROM entries e
		WHERE e.status = 'open'
		  AND e.market = $1
		  AND e.entry_date < CURRENT_DATE - $2::int
		  AND EXISTS (
			SELECT 1 FROM game_results g
			WHERE upper(g.sport) = upper(e.sport)
			  AND g.game_date = e.entry_date
			  AND g.status = 'final'
		  )
		ORDER BY e.entry_date
		LIMIT $3`, market, olderThanDays, limit)
	if err != nil {
		return nil, fmt.Errorf("find stale entries: %w", err)
	}
	defer rows.Close()

	var stale []StaleEntry
	for rows.Next() {
		var (
			e    StaleEntry
			date time.Time
		)
		if err := rows.Scan(&e.EntryID, &e.Sport, &date, &e.SelectedTeam, &e.OpponentTeam); err != nil {
			return nil, fmt.Errorf("scan stale entry: %w", err)
		}
		e.Date = settlement.DayOf(date)
		stale = append(stale, e)
	}
	return stale, rows.Err()
}
