package services

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rowsync-inc/rowsync-engine/pkg/database"
	"github.com/rowsync-inc/rowsync-engine/pkg/models"
	"github.com/rowsync-inc/rowsync-engine/pkg/repositories"
)

// WriteOptions parameterizes one batch write. Querier must be the override
// session's connection while override mode is active, so relaxed enforcement
// actually covers the writes; outside override it is the pool.
type WriteOptions struct {
	MappingID      uuid.UUID
	Table          string
	BatchSizeLimit int
	Querier        database.Querier
}

// WriteResult aggregates a page's write outcome.
type WriteResult struct {
	Succeeded int
	Failed    int
}

// BatchWriter groups records into bounded chunks and upserts them keyed by
// glide_row_id. A failed chunk is counted and ledgered, never retried; the
// store's failure is atomic at chunk granularity, so individual-record
// attribution within a failed chunk is not attempted.
type BatchWriter struct {
	records repositories.RecordRepository
	ledger  ErrorLedger
	logger  *zap.Logger
}

// NewBatchWriter creates a batch writer.
func NewBatchWriter(records repositories.RecordRepository, ledger ErrorLedger, logger *zap.Logger) *BatchWriter {
	return &BatchWriter{
		records: records,
		ledger:  ledger,
		logger:  logger.Named("batch-writer"),
	}
}

// WriteBatch writes records in consecutive chunks no larger than
// opts.BatchSizeLimit.
func (w *BatchWriter) WriteBatch(ctx context.Context, records []models.Record, opts WriteOptions) WriteResult {
	var result WriteResult

	for start := 0; start < len(records); start += opts.BatchSizeLimit {
		end := start + opts.BatchSizeLimit
		if end > len(records) {
			end = len(records)
		}
		chunk := records[start:end]

		if err := w.records.UpsertBatch(ctx, opts.Querier, opts.Table, chunk); err != nil {
			result.Failed += len(chunk)
			w.logger.Error("Chunk upsert failed",
				zap.String("table", opts.Table),
				zap.Int("chunk_size", len(chunk)),
				zap.Error(err))
			w.ledger.Record(ctx, opts.MappingID, models.ErrorTypeAPI,
				"batch upsert failed: "+err.Error(),
				map[string]any{"table": opts.Table, "chunk_size": len(chunk)},
				true)
			continue
		}
		result.Succeeded += len(chunk)
	}

	return result
}
