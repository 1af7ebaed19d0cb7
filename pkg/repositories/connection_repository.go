package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/rowsync-inc/rowsync-engine/pkg/apperrors"
	"github.com/rowsync-inc/rowsync-engine/pkg/crypto"
	"github.com/rowsync-inc/rowsync-engine/pkg/database"
	"github.com/rowsync-inc/rowsync-engine/pkg/models"
)

// ConnectionRepository defines data access for Glide connections.
// The sync engine only reads connections and stamps last_sync; creation and
// credential management belong to the operator tooling.
type ConnectionRepository interface {
	// GetByID retrieves a connection by ID.
	GetByID(ctx context.Context, id uuid.UUID) (*models.Connection, error)

	// TouchLastSync stamps the connection's last successful sync time.
	TouchLastSync(ctx context.Context, id uuid.UUID, at time.Time) error
}

type connectionRepository struct {
	db     *database.DB
	cipher *crypto.APIKeyCipher
}

// NewConnectionRepository creates a new connection repository. cipher may be
// nil, in which case stored API keys are treated as plaintext.
func NewConnectionRepository(db *database.DB, cipher *crypto.APIKeyCipher) ConnectionRepository {
	return &connectionRepository{db: db, cipher: cipher}
}

func (r *connectionRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Connection, error) {
	query := `
		SELECT id, name, api_key, app_id, last_sync, created_at, updated_at
		FROM glide_connections
		WHERE id = $1`

	var conn models.Connection
	err := r.db.QueryRow(ctx, query, id).Scan(
		&conn.ID,
		&conn.Name,
		&conn.APIKey,
		&conn.AppID,
		&conn.LastSync,
		&conn.CreatedAt,
		&conn.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get connection: %w", err)
	}

	if r.cipher != nil {
		decrypted, err := r.cipher.Decrypt(conn.APIKey)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt connection api key: %w", err)
		}
		conn.APIKey = decrypted
	}

	return &conn, nil
}

func (r *connectionRepository) TouchLastSync(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `UPDATE glide_connections SET last_sync = $2, updated_at = $2 WHERE id = $1`

	result, err := r.db.Exec(ctx, query, id, at)
	if err != nil {
		return fmt.Errorf("failed to update last_sync: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}

	return nil
}

var _ ConnectionRepository = (*connectionRepository)(nil)
