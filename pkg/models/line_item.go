package models

import (
	"time"

	"github.com/google/uuid"
)

// Product is the parent table of the estimate worked example. Rows may start
// life as placeholders (glide_row_id and timestamps only) materialized for
// dangling line-item references, later enriched when the real product syncs.
type Product struct {
	ID          uuid.UUID `json:"id"`
	GlideRowID  string    `json:"glide_row_id"`
	Name        *string   `json:"name,omitempty"`
	Description *string   `json:"description,omitempty"`
	Price       *float64  `json:"price,omitempty"`
	TotalAmount float64   `json:"total_amount"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// IsPlaceholder reports whether the product row carries no synced data yet.
func (p *Product) IsPlaceholder() bool {
	return p.Name == nil && p.Description == nil && p.Price == nil
}

// EstimateLineItem is the child table of the worked example. EstimateID and
// ProductGlideID are soft references: plain text columns with no foreign key,
// kept consistent procedurally by the repair pass.
type EstimateLineItem struct {
	ID             uuid.UUID  `json:"id"`
	GlideRowID     string     `json:"glide_row_id"`
	EstimateID     *string    `json:"estimate_id,omitempty"`
	ProductGlideID *string    `json:"product_glide_id,omitempty"`
	DisplayName    *string    `json:"display_name,omitempty"`
	Description    *string    `json:"description,omitempty"`
	Quantity       *float64   `json:"quantity,omitempty"`
	UnitPrice      *float64   `json:"unit_price,omitempty"`
	IsTaxable      *bool      `json:"is_taxable,omitempty"`
	QuotedAt       *time.Time `json:"quoted_at,omitempty"`
	PhotoURL       *string    `json:"photo_url,omitempty"`
	ContactEmail   *string    `json:"contact_email,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// LineItemDetail is one row of the estimate_line_items_detail view: a line
// item joined to its resolved product's descriptive fields. Product fields
// are nil when the parent is a bare placeholder or absent.
type LineItemDetail struct {
	EstimateLineItem
	ProductName  *string  `json:"product_name,omitempty"`
	ProductPrice *float64 `json:"product_price,omitempty"`
}
