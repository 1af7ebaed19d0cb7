package services

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rowsync-inc/rowsync-engine/pkg/models"
)

func TestErrorLedger_Record(t *testing.T) {
	repo := &mockSyncErrorRepository{}
	ledger := NewErrorLedger(repo, zap.NewNop())
	mappingID := uuid.New()

	id := ledger.Record(context.Background(), mappingID, models.ErrorTypeValidation,
		"field \"Quantity\" is not a valid number: a few",
		map[string]any{"row_id": "row-1"}, false)

	assert.NotEqual(t, uuid.Nil, id)
	require.Len(t, repo.errors, 1)
	assert.Equal(t, models.ErrorTypeValidation, repo.errors[0].ErrorType)
	assert.False(t, repo.errors[0].Retryable)
}

func TestErrorLedger_RecordSwallowsStoreFailure(t *testing.T) {
	repo := &mockSyncErrorRepository{createErr: errors.New("connection reset")}
	ledger := NewErrorLedger(repo, zap.NewNop())

	// A ledger write failure must not propagate into the sync run.
	id := ledger.Record(context.Background(), uuid.New(), models.ErrorTypeAPI, "boom", nil, true)

	assert.Equal(t, uuid.Nil, id)
	assert.Empty(t, repo.errors)
}

func TestErrorLedger_ResolveIsIdempotent(t *testing.T) {
	repo := &mockSyncErrorRepository{}
	ledger := NewErrorLedger(repo, zap.NewNop())
	mappingID := uuid.New()

	id := ledger.Record(context.Background(), mappingID, models.ErrorTypeTransform, "bad", nil, false)
	require.NotEqual(t, uuid.Nil, id)

	note := "fixed upstream"
	require.NoError(t, ledger.Resolve(context.Background(), id, &note))
	firstResolvedAt := repo.errors[0].ResolvedAt

	other := "second attempt"
	require.NoError(t, ledger.Resolve(context.Background(), id, &other))

	assert.Equal(t, firstResolvedAt, repo.errors[0].ResolvedAt, "re-resolving keeps the original resolution")
	assert.Equal(t, &note, repo.errors[0].ResolutionNotes)

	unresolved, err := ledger.List(context.Background(), mappingID, false)
	require.NoError(t, err)
	assert.Empty(t, unresolved)
}

func TestErrorLedger_ClearUnresolvedKeepsResolved(t *testing.T) {
	repo := &mockSyncErrorRepository{}
	ledger := NewErrorLedger(repo, zap.NewNop())
	mappingID := uuid.New()

	resolvedID := ledger.Record(context.Background(), mappingID, models.ErrorTypeValidation, "old", nil, false)
	ledger.Record(context.Background(), mappingID, models.ErrorTypeValidation, "stale", nil, false)
	require.NoError(t, ledger.Resolve(context.Background(), resolvedID, nil))

	require.NoError(t, ledger.ClearUnresolved(context.Background(), mappingID))

	all, err := ledger.List(context.Background(), mappingID, true)
	require.NoError(t, err)
	require.Len(t, all, 1, "resolved errors survive the audit trail")
	assert.Equal(t, resolvedID, all[0].ID)
}
