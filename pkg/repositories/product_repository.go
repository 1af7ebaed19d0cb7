package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/rowsync-inc/rowsync-engine/pkg/apperrors"
	"github.com/rowsync-inc/rowsync-engine/pkg/database"
	"github.com/rowsync-inc/rowsync-engine/pkg/models"
)

// ProductRepository covers the parent side of the estimate worked example:
// placeholder materialization and the total_amount recomputation.
type ProductRepository interface {
	// GetByGlideRowID retrieves a product by its Glide stable identifier.
	GetByGlideRowID(ctx context.Context, glideRowID string) (*models.Product, error)

	// EnsurePlaceholders inserts a minimal product row for every given
	// glide_row_id that does not exist yet. Used proactively before child
	// rows referencing those ids are written. Returns rows created.
	EnsurePlaceholders(ctx context.Context, q database.Querier, glideRowIDs []string) (int64, error)

	// CreateMissingPlaceholders inserts one placeholder product per distinct
	// dangling product_glide_id on estimate_line_items. Returns rows created.
	CreateMissingPlaceholders(ctx context.Context, q database.Querier) (int64, error)

	// RecomputeTotals sets each product's total_amount to the sum of
	// quantity * unit_price over its line items (zero with none), touching
	// only rows whose stored total differs. Returns rows updated.
	RecomputeTotals(ctx context.Context, q database.Querier) (int64, error)
}

type productRepository struct {
	db *database.DB
}

// NewProductRepository creates a new product repository.
func NewProductRepository(db *database.DB) ProductRepository {
	return &productRepository{db: db}
}

func (r *productRepository) GetByGlideRowID(ctx context.Context, glideRowID string) (*models.Product, error) {
	query := `
		SELECT id, glide_row_id, name, description, price, total_amount, created_at, updated_at
		FROM products
		WHERE glide_row_id = $1`

	var p models.Product
	err := r.db.QueryRow(ctx, query, glideRowID).Scan(
		&p.ID,
		&p.GlideRowID,
		&p.Name,
		&p.Description,
		&p.Price,
		&p.TotalAmount,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get product: %w", err)
	}

	return &p, nil
}

func (r *productRepository) EnsurePlaceholders(ctx context.Context, q database.Querier, glideRowIDs []string) (int64, error) {
	if len(glideRowIDs) == 0 {
		return 0, nil
	}

	query := `
		INSERT INTO products (glide_row_id, created_at, updated_at)
		SELECT DISTINCT unnest($1::text[]), now(), now()
		ON CONFLICT (glide_row_id) DO NOTHING`

	result, err := q.Exec(ctx, query, glideRowIDs)
	if err != nil {
		return 0, fmt.Errorf("failed to ensure product placeholders: %w", err)
	}

	return result.RowsAffected(), nil
}

func (r *productRepository) CreateMissingPlaceholders(ctx context.Context, q database.Querier) (int64, error) {
	// One placeholder per missing parent id, not one per child.
	query := `
		INSERT INTO products (glide_row_id, created_at, updated_at)
		SELECT DISTINCT li.product_glide_id, now(), now()
		FROM estimate_line_items li
		WHERE li.product_glide_id IS NOT NULL
		  AND li.product_glide_id <> ''
		  AND NOT EXISTS (
		      SELECT 1 FROM products p WHERE p.glide_row_id = li.product_glide_id
		  )
		ON CONFLICT (glide_row_id) DO NOTHING`

	result, err := q.Exec(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to create missing product placeholders: %w", err)
	}

	return result.RowsAffected(), nil
}

func (r *productRepository) RecomputeTotals(ctx context.Context, q database.Querier) (int64, error) {
	query := `
		UPDATE products p
		SET total_amount = totals.amount,
		    updated_at = now()
		FROM (
		    SELECT p2.glide_row_id,
		           COALESCE(SUM(COALESCE(li.quantity, 0) * COALESCE(li.unit_price, 0)), 0) AS amount
		    FROM products p2
		    LEFT JOIN estimate_line_items li ON li.product_glide_id = p2.glide_row_id
		    GROUP BY p2.glide_row_id
		) totals
		WHERE totals.glide_row_id = p.glide_row_id
		  AND p.total_amount IS DISTINCT FROM totals.amount`

	result, err := q.Exec(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to recompute product totals: %w", err)
	}

	return result.RowsAffected(), nil
}

var _ ProductRepository = (*productRepository)(nil)
