// Package store implements the settlement collaborators on Postgres via pgx.
//
// Every settlement write is conditional on the entry still being open, so
// the stores are safe to share with other writers (other engine replicas,
// manual force-settle actions) without any process-level locking.
package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// Querier is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// nullIfEmpty maps "" to SQL NULL, used for optional filters.
func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
