package repositories

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rowsync-inc/rowsync-engine/pkg/apperrors"
	"github.com/rowsync-inc/rowsync-engine/pkg/database"
)

// RunLock is a per-mapping advisory lock guaranteeing at most one active sync
// run per mapping. The lock is session-scoped, so it is held on a dedicated
// connection for the full run and vanishes with the session if the process
// dies mid-run.
type RunLock struct {
	conn *pgxpool.Conn
	key  int64
}

// AcquireRunLock takes the advisory lock for a mapping without blocking.
// Returns apperrors.ErrSyncAlreadyRunning when another run holds it.
func AcquireRunLock(ctx context.Context, db *database.DB, mappingID uuid.UUID) (*RunLock, error) {
	conn, err := db.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock connection: %w", err)
	}

	key := lockKey(mappingID)
	var acquired bool
	if err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock($1)`, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, fmt.Errorf("failed to take run lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, apperrors.ErrSyncAlreadyRunning
	}

	return &RunLock{conn: conn, key: key}, nil
}

// Release unlocks and returns the connection to the pool.
func (l *RunLock) Release(ctx context.Context) {
	if l.conn == nil {
		return
	}
	_, _ = l.conn.Exec(ctx, `SELECT pg_advisory_unlock($1)`, l.key)
	l.conn.Release()
	l.conn = nil
}

// lockKey folds a mapping UUID into the bigint keyspace pg advisory locks use.
func lockKey(mappingID uuid.UUID) int64 {
	return int64(binary.BigEndian.Uint64(mappingID[:8]))
}
