package repositories

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/rowsync-inc/rowsync-engine/pkg/database"
)

// OverrideSession pins one database session for the duration of a bulk-write
// phase and relaxes trigger/constraint enforcement on it via
// session_replication_role. The relaxation is scoped to this session only;
// unrelated concurrent sessions keep full enforcement.
//
// Callers must pair Begin with Close (normally via defer); Close restores
// enforcement before releasing the connection, on every exit path.
type OverrideSession struct {
	conn   *pgxpool.Conn
	logger *zap.Logger
	closed bool
}

// BeginOverrideSession acquires a dedicated connection and switches it to
// replica role so child rows can be written before their parents exist and
// user triggers stay quiet during the bulk load.
func BeginOverrideSession(ctx context.Context, db *database.DB, logger *zap.Logger) (*OverrideSession, error) {
	conn, err := db.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire override connection: %w", err)
	}

	if _, err := conn.Exec(ctx, `SET session_replication_role = 'replica'`); err != nil {
		conn.Release()
		return nil, fmt.Errorf("failed to enter override mode: %w", err)
	}

	return &OverrideSession{conn: conn, logger: logger.Named("override-session")}, nil
}

// Querier returns the pinned connection. All writes that must happen under
// relaxed enforcement have to go through it.
func (s *OverrideSession) Querier() database.Querier {
	return s.conn
}

// Active reports whether override mode is still in effect on the session.
func (s *OverrideSession) Active() bool {
	return !s.closed
}

// Close restores full enforcement and releases the connection. Safe to call
// more than once. If restoring the role fails the connection is destroyed
// rather than returned to the pool, so a relaxed session can never leak.
func (s *OverrideSession) Close(ctx context.Context) {
	if s.closed {
		return
	}
	s.closed = true

	if _, err := s.conn.Exec(ctx, `SET session_replication_role = 'origin'`); err != nil {
		s.logger.Error("Failed to restore session replication role, discarding connection", zap.Error(err))
		_ = s.conn.Conn().Close(ctx)
	}
	s.conn.Release()
}
