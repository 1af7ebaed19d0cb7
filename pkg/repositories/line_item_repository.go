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

// LineItemRepository covers the child side of the estimate worked example:
// display-name recomputation and reads against the composite detail view.
type LineItemRepository interface {
	// GetByGlideRowID retrieves a line item by its Glide stable identifier.
	GetByGlideRowID(ctx context.Context, glideRowID string) (*models.EstimateLineItem, error)

	// FillDisplayNames recomputes display_name on rows where it is null or
	// empty: own description, else the parent product's name, else a
	// synthesized "Product <id>" label. Returns rows updated.
	FillDisplayNames(ctx context.Context, q database.Querier) (int64, error)

	// ListDetail reads the estimate_line_items_detail view for an estimate.
	// Left-join semantics: rows appear even when the parent is a placeholder
	// or absent.
	ListDetail(ctx context.Context, estimateID string) ([]*models.LineItemDetail, error)
}

type lineItemRepository struct {
	db *database.DB
}

// NewLineItemRepository creates a new line item repository.
func NewLineItemRepository(db *database.DB) LineItemRepository {
	return &lineItemRepository{db: db}
}

func (r *lineItemRepository) GetByGlideRowID(ctx context.Context, glideRowID string) (*models.EstimateLineItem, error) {
	query := `
		SELECT id, glide_row_id, estimate_id, product_glide_id, display_name, description,
		       quantity, unit_price, is_taxable, quoted_at, photo_url, contact_email,
		       created_at, updated_at
		FROM estimate_line_items
		WHERE glide_row_id = $1`

	var li models.EstimateLineItem
	err := r.db.QueryRow(ctx, query, glideRowID).Scan(
		&li.ID,
		&li.GlideRowID,
		&li.EstimateID,
		&li.ProductGlideID,
		&li.DisplayName,
		&li.Description,
		&li.Quantity,
		&li.UnitPrice,
		&li.IsTaxable,
		&li.QuotedAt,
		&li.PhotoURL,
		&li.ContactEmail,
		&li.CreatedAt,
		&li.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get line item: %w", err)
	}

	return &li, nil
}

func (r *lineItemRepository) FillDisplayNames(ctx context.Context, q database.Querier) (int64, error) {
	withParent := `
		UPDATE estimate_line_items li
		SET display_name = COALESCE(
		        NULLIF(li.description, ''),
		        NULLIF(p.name, ''),
		        'Product ' || li.product_glide_id
		    ),
		    updated_at = now()
		FROM products p
		WHERE p.glide_row_id = li.product_glide_id
		  AND (li.display_name IS NULL OR li.display_name = '')`

	result, err := q.Exec(ctx, withParent)
	if err != nil {
		return 0, fmt.Errorf("failed to fill display names: %w", err)
	}
	updated := result.RowsAffected()

	// Rows with no parent reference can still take their own description.
	withoutParent := `
		UPDATE estimate_line_items
		SET display_name = description,
		    updated_at = now()
		WHERE (product_glide_id IS NULL OR product_glide_id = '')
		  AND (display_name IS NULL OR display_name = '')
		  AND NULLIF(description, '') IS NOT NULL`

	result, err = q.Exec(ctx, withoutParent)
	if err != nil {
		return 0, fmt.Errorf("failed to fill parentless display names: %w", err)
	}

	return updated + result.RowsAffected(), nil
}

func (r *lineItemRepository) ListDetail(ctx context.Context, estimateID string) ([]*models.LineItemDetail, error) {
	query := `
		SELECT id, glide_row_id, estimate_id, product_glide_id, display_name, description,
		       quantity, unit_price, is_taxable, quoted_at, photo_url, contact_email,
		       created_at, updated_at, product_name, product_price
		FROM estimate_line_items_detail
		WHERE estimate_id = $1
		ORDER BY created_at`

	rows, err := r.db.Query(ctx, query, estimateID)
	if err != nil {
		return nil, fmt.Errorf("failed to list line item details: %w", err)
	}
	defer rows.Close()

	var details []*models.LineItemDetail
	for rows.Next() {
		var d models.LineItemDetail
		err := rows.Scan(
			&d.ID,
			&d.GlideRowID,
			&d.EstimateID,
			&d.ProductGlideID,
			&d.DisplayName,
			&d.Description,
			&d.Quantity,
			&d.UnitPrice,
			&d.IsTaxable,
			&d.QuotedAt,
			&d.PhotoURL,
			&d.ContactEmail,
			&d.CreatedAt,
			&d.UpdatedAt,
			&d.ProductName,
			&d.ProductPrice,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan line item detail: %w", err)
		}
		details = append(details, &d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating line item details: %w", err)
	}

	return details, nil
}

var _ LineItemRepository = (*lineItemRepository)(nil)
