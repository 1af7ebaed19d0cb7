package database

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is the subset of pgx execution methods the repositories need.
// It is satisfied by *pgxpool.Pool, *pgxpool.Conn, *pgx.Conn and pgx.Tx,
// which lets bulk writes be pinned to a single session connection while
// override mode is active on it.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}
