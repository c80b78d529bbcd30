// Package db provides a pgxpool-based connection pool with prepared statement
// registration and health checking.
package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/albapepper/scoracle-settlement/internal/config"
)

// Pool wraps pgxpool.Pool with application-specific helpers.
type Pool struct {
	*pgxpool.Pool
}

// New creates and validates a new connection pool.
func New(ctx context.Context, cfg *config.Config) (*Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	poolCfg.MinConns = int32(cfg.DBPoolMinConns)
	poolCfg.MaxConns = int32(cfg.DBPoolMaxConns)
	poolCfg.MaxConnLifetime = cfg.DBPoolMaxLife
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	// Register prepared statements on every new connection.
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return registerPreparedStatements(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	// Verify connectivity
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Pool{Pool: pool}, nil
}

// HealthCheck runs a trivial query to verify the database is reachable.
func (p *Pool) HealthCheck(ctx context.Context) error {
	var n int
	return p.QueryRow(ctx, "health_check").Scan(&n)
}

// OpenEntryCounts returns the number of open entries per sport for market.
func (p *Pool) OpenEntryCounts(ctx context.Context, market string) (map[string]int, error) {
	rows, err := p.Query(ctx, "open_entry_counts", market)
	if err != nil {
		return nil, fmt.Errorf("open entry counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var (
			sport string
			n     int
		)
		if err := rows.Scan(&sport, &n); err != nil {
			return nil, fmt.Errorf("scan open entry count: %w", err)
		}
		counts[sport] = n
	}
	return counts, rows.Err()
}

// NotifySettlementCompleted publishes a run ID on the settlement_completed
// channel so other replicas can drop cached entry responses.
func (p *Pool) NotifySettlementCompleted(ctx context.Context, runID string) error {
	_, err := p.Exec(ctx, "notify_settlement_completed", runID)
	if err != nil {
		return fmt.Errorf("notify settlement_completed: %w", err)
	}
	return nil
}

// registerPreparedStatements registers the statements the API and
// maintenance layers run on hot paths.
func registerPreparedStatements(ctx context.Context, conn *pgx.Conn) error {
	stmts := map[string]string{
		// Health
		"health_check": "SELECT 1",

		// API: settlement status
		"open_entry_counts": "SELECT upper(sport), count(*)::int FROM entries WHERE status = 'open' AND market = $1 GROUP BY upper(sport)",

		// Fan-out
		"notify_settlement_completed": "SELECT pg_notify('settlement_completed', $1)",
	}

	for name, sql := range stmts {
		if _, err := conn.Prepare(ctx, name, sql); err != nil {
			return fmt.Errorf("prepare %q: %w", name, err)
		}
	}
	return nil
}
