// Package services contains the sync engine's business logic.
package services

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rowsync-inc/rowsync-engine/pkg/models"
	"github.com/rowsync-inc/rowsync-engine/pkg/repositories"
)

// ErrorLedger records every validation/transform/write failure of a run as
// an independently resolvable row.
type ErrorLedger interface {
	// Record writes one error to the ledger and returns its id. Recording
	// never raises: a failed write is logged locally and swallowed, since
	// it must not abort the sync run itself. The returned id is Nil when
	// the write failed.
	Record(ctx context.Context, mappingID uuid.UUID, errorType, message string, recordData map[string]any, retryable bool) uuid.UUID

	// Resolve marks an error resolved. Idempotent: resolving an
	// already-resolved error is a no-op success.
	Resolve(ctx context.Context, errorID uuid.UUID, note *string) error

	// List returns a mapping's errors, unresolved only by default.
	List(ctx context.Context, mappingID uuid.UUID, includeResolved bool) ([]*models.SyncError, error)

	// ClearUnresolved drops a mapping's unresolved errors. A fresh run
	// supersedes stale unresolved errors from a prior run.
	ClearUnresolved(ctx context.Context, mappingID uuid.UUID) error
}

type errorLedger struct {
	repo   repositories.SyncErrorRepository
	logger *zap.Logger
}

// NewErrorLedger creates a new error ledger.
func NewErrorLedger(repo repositories.SyncErrorRepository, logger *zap.Logger) ErrorLedger {
	return &errorLedger{
		repo:   repo,
		logger: logger.Named("error-ledger"),
	}
}

func (l *errorLedger) Record(ctx context.Context, mappingID uuid.UUID, errorType, message string, recordData map[string]any, retryable bool) uuid.UUID {
	syncErr := &models.SyncError{
		MappingID:    mappingID,
		ErrorType:    errorType,
		ErrorMessage: message,
		RecordData:   recordData,
		Retryable:    retryable,
	}

	if err := l.repo.Create(ctx, syncErr); err != nil {
		l.logger.Error("Failed to write sync error to ledger",
			zap.String("mapping_id", mappingID.String()),
			zap.String("error_type", errorType),
			zap.String("error_message", message),
			zap.Error(err))
		return uuid.Nil
	}

	return syncErr.ID
}

func (l *errorLedger) Resolve(ctx context.Context, errorID uuid.UUID, note *string) error {
	return l.repo.Resolve(ctx, errorID, note)
}

func (l *errorLedger) List(ctx context.Context, mappingID uuid.UUID, includeResolved bool) ([]*models.SyncError, error) {
	return l.repo.List(ctx, mappingID, includeResolved)
}

func (l *errorLedger) ClearUnresolved(ctx context.Context, mappingID uuid.UUID) error {
	cleared, err := l.repo.DeleteUnresolved(ctx, mappingID)
	if err != nil {
		return err
	}
	if cleared > 0 {
		l.logger.Info("Cleared unresolved sync errors from previous runs",
			zap.String("mapping_id", mappingID.String()),
			zap.Int64("cleared", cleared))
	}
	return nil
}

var _ ErrorLedger = (*errorLedger)(nil)
