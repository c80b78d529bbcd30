package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/albapepper/scoracle-settlement/internal/settlement"
)

// Games reads and writes rows of the game_results table.
type Games struct {
	q Querier
}

// NewGames creates a game store on q.
func NewGames(q Querier) *Games {
	return &Games{q: q}
}

// FetchFinalizedGames returns final games on or after since. An empty sport
// matches every sport and a zero since applies no date bound.
func (s *Games) FetchFinalizedGames(ctx context.Context, sport string, since settlement.Day) ([]settlement.GameRecord, error) {
	var sinceArg any
	if !since.IsZero() {
		sinceArg = since.Time()
	}

	rows, err := s.q.Query(ctx, `
		SELECT game_id, sport, game_date, home_team, away_team, status,
			home_score, away_score, COALESCE(winner, '')
		FROM game_results
		WHERE status = 'final'
		  AND ($1::text IS NULL OR upper(sport) = upper($1::text))
		  AND ($2::date IS NULL OR game_date >= $2::date)
		ORDER BY game_date, game_id`, nullIfEmpty(sport), sinceArg)
	if err != nil {
		return nil, fmt.Errorf("fetch finalized games: %w", err)
	}
	defer rows.Close()

	var games []settlement.GameRecord
	for rows.Next() {
		var (
			g    settlement.GameRecord
			date time.Time
		)
		if err := rows.Scan(
			&g.GameID, &g.Sport, &date, &g.HomeTeam, &g.AwayTeam, &g.Status,
			&g.HomeScore, &g.AwayScore, &g.Winner,
		); err != nil {
			return nil, fmt.Errorf("scan game: %w", err)
		}
		g.Date = settlement.DayOf(date)
		games = append(games, g)
	}
	return games, rows.Err()
}

// UpsertGames writes provider results in one batch. Rows that are already
// final are left untouched, as are rows whose state has not changed. It
// returns how many rows were inserted or changed.
func (s *Games) UpsertGames(ctx context.Context, games []settlement.GameRecord) (int, error) {
	if len(games) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, g := range games {
		winner := g.Winner
		if winner == "" {
			winner = g.DeriveWinner()
		}
		batch.Queue(`
			INSERT INTO game_results (
				game_id, sport, game_date, home_team, away_team, status,
				home_score, away_score, winner, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
			ON CONFLICT (game_id) DO UPDATE SET
				sport = EXCLUDED.sport,
				game_date = EXCLUDED.game_date,
				home_team = EXCLUDED.home_team,
				away_team = EXCLUDED.away_team,
				status = EXCLUDED.status,
				home_score = EXCLUDED.home_score,
				away_score = EXCLUDED.away_score,
				winner = EXCLUDED.winner,
				updated_at = NOW()
			WHERE game_results.status <> 'final'
			  AND (game_results.status, game_results.game_date,
				   game_results.home_score, game_results.away_score)
				  IS DISTINCT FROM
				  (EXCLUDED.status, EXCLUDED.game_date,
				   EXCLUDED.home_score, EXCLUDED.away_score)`,
			g.GameID, g.Sport, g.Date.Time(), g.HomeTeam, g.AwayTeam, string(g.Status),
			g.HomeScore, g.AwayScore, nullIfEmpty(winner),
		)
	}

	br := s.q.SendBatch(ctx, batch)
	defer br.Close()

	updated := 0
	for _, g := range games {
		tag, err := br.Exec()
		if err != nil {
			return updated, fmt.Errorf("upsert game %s: %w", g.GameID, err)
		}
		updated += int(tag.RowsAffected())
	}
	return updated, nil
}
