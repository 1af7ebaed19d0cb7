package services

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rowsync-inc/rowsync-engine/pkg/models"
)

func makeRecords(n int) []models.Record {
	records := make([]models.Record, n)
	for i := range records {
		records[i] = models.Record{models.GlideRowIDColumn: fmt.Sprintf("row-%d", i)}
	}
	return records
}

func TestBatchWriter_ChunksByLimit(t *testing.T) {
	records := &mockRecordRepository{}
	ledger := NewErrorLedger(&mockSyncErrorRepository{}, zap.NewNop())
	writer := NewBatchWriter(records, ledger, zap.NewNop())

	result := writer.WriteBatch(context.Background(), makeRecords(1000), WriteOptions{
		MappingID:      uuid.New(),
		Table:          "estimate_line_items",
		BatchSizeLimit: 450,
	})

	assert.Equal(t, 1000, result.Succeeded)
	assert.Equal(t, 0, result.Failed)
	require.Len(t, records.chunks, 3)
	assert.Len(t, records.chunks[0], 450)
	assert.Len(t, records.chunks[1], 450)
	assert.Len(t, records.chunks[2], 100)
}

func TestBatchWriter_FailedChunkCountedAndLedgered(t *testing.T) {
	records := &mockRecordRepository{
		failCalls: map[int]error{1: errors.New("deadlock detected")},
	}
	errorRepo := &mockSyncErrorRepository{}
	ledger := NewErrorLedger(errorRepo, zap.NewNop())
	writer := NewBatchWriter(records, ledger, zap.NewNop())
	mappingID := uuid.New()

	result := writer.WriteBatch(context.Background(), makeRecords(1000), WriteOptions{
		MappingID:      mappingID,
		Table:          "estimate_line_items",
		BatchSizeLimit: 450,
	})

	assert.Equal(t, 550, result.Succeeded, "chunks after a failure still write")
	assert.Equal(t, 450, result.Failed, "the whole failed chunk is counted")

	require.Len(t, errorRepo.errors, 1)
	assert.Equal(t, models.ErrorTypeAPI, errorRepo.errors[0].ErrorType)
	assert.True(t, errorRepo.errors[0].Retryable)
	assert.Equal(t, 450, errorRepo.errors[0].RecordData["chunk_size"])
}

func TestBatchWriter_EmptyPage(t *testing.T) {
	records := &mockRecordRepository{}
	ledger := NewErrorLedger(&mockSyncErrorRepository{}, zap.NewNop())
	writer := NewBatchWriter(records, ledger, zap.NewNop())

	result := writer.WriteBatch(context.Background(), nil, WriteOptions{
		MappingID:      uuid.New(),
		Table:          "products",
		BatchSizeLimit: 450,
	})

	assert.Zero(t, result.Succeeded)
	assert.Zero(t, result.Failed)
	assert.Empty(t, records.chunks)
}
