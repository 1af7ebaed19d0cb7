package repositories

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/rowsync-inc/rowsync-engine/pkg/database"
	"github.com/rowsync-inc/rowsync-engine/pkg/models"
)

// RecordRepository performs idempotent insert-or-update writes of transformed
// records into a mapping's target table, keyed by the glide_row_id column.
//
// Writes take an explicit Querier so the batch writer can pin them to the
// override session's connection while constraint enforcement is relaxed.
type RecordRepository interface {
	// UpsertBatch writes one chunk of records into table. Existing rows
	// (same glide_row_id) are updated in place; absent fields never erase
	// previously synced values, which is how a placeholder row gets enriched
	// by a later full upsert without a partial row un-enriching it.
	UpsertBatch(ctx context.Context, q database.Querier, table string, records []models.Record) error
}

type recordRepository struct{}

// NewRecordRepository creates a new record repository.
func NewRecordRepository() RecordRepository {
	return &recordRepository{}
}

func (r *recordRepository) UpsertBatch(ctx context.Context, q database.Querier, table string, records []models.Record) error {
	if len(records) == 0 {
		return nil
	}

	columns := unionColumns(records)

	var sb strings.Builder
	sb.WriteString("INSERT INTO ")
	sb.WriteString(pgx.Identifier{table}.Sanitize())
	sb.WriteString(" (")
	for i, col := range columns {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(pgx.Identifier{col}.Sanitize())
	}
	sb.WriteString(") VALUES ")

	args := make([]any, 0, len(records)*len(columns))
	for i, record := range records {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(")
		for j, col := range columns {
			if j > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "$%d", len(args)+1)
			args = append(args, record[col])
		}
		sb.WriteString(")")
	}

	sb.WriteString(" ON CONFLICT (")
	sb.WriteString(pgx.Identifier{models.GlideRowIDColumn}.Sanitize())
	sb.WriteString(") DO UPDATE SET ")
	first := true
	for _, col := range columns {
		if col == models.GlideRowIDColumn {
			continue
		}
		if !first {
			sb.WriteString(", ")
		}
		first = false
		sanitized := pgx.Identifier{col}.Sanitize()
		// COALESCE keeps an existing value when the incoming record dropped
		// the field (per-field validation) or never carried it.
		fmt.Fprintf(&sb, "%s = COALESCE(EXCLUDED.%s, %s.%s)",
			sanitized, sanitized, pgx.Identifier{table}.Sanitize(), sanitized)
	}
	if !first {
		sb.WriteString(", ")
	}
	sb.WriteString("updated_at = now()")

	if _, err := q.Exec(ctx, sb.String(), args...); err != nil {
		return fmt.Errorf("failed to upsert %d records into %s: %w", len(records), table, err)
	}

	return nil
}

// unionColumns collects the distinct column names across a chunk in a stable
// order. Records within one chunk may carry different field sets when
// per-field validation dropped assignments.
func unionColumns(records []models.Record) []string {
	seen := make(map[string]bool)
	for _, record := range records {
		for col := range record {
			seen[col] = true
		}
	}

	columns := make([]string, 0, len(seen))
	for col := range seen {
		columns = append(columns, col)
	}
	sort.Strings(columns)
	return columns
}

var _ RecordRepository = (*recordRepository)(nil)
