package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/rowsync-inc/rowsync-engine/pkg/database"
	"github.com/rowsync-inc/rowsync-engine/pkg/repositories"
)

// OverrideController brackets a bulk-write phase: trigger/constraint
// enforcement is relaxed on a pinned session before the first write and
// restored afterwards, with the repair pass run before control returns so a
// caller never observes constraints as restored while known inconsistencies
// are outstanding.
type OverrideController struct {
	db     *database.DB
	repair *RepairService
	logger *zap.Logger
}

// NewOverrideController creates an override controller.
func NewOverrideController(db *database.DB, repair *RepairService, logger *zap.Logger) *OverrideController {
	return &OverrideController{
		db:     db,
		repair: repair,
		logger: logger.Named("override"),
	}
}

// Run executes fn under override mode. fn receives the session's querier and
// must route every bulk write through it: the relaxation is session-scoped
// and covers nothing else.
//
// Enforcement is restored on every exit path, including a panic inside fn.
// The repair pass runs after restoration; a write error from fn takes
// precedence over a repair error in the returned error.
func (c *OverrideController) Run(ctx context.Context, fn func(q database.Querier) error) (*RepairResult, error) {
	session, err := repositories.BeginOverrideSession(ctx, c.db, c.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to enter override mode: %w", err)
	}
	// Close is idempotent; this defer is the guarantee for the panic path.
	defer session.Close(ctx)

	writeErr := fn(session.Querier())

	// Restore enforcement first, then reconcile on a fully enforced pool.
	session.Close(ctx)

	repairResult, repairErr := c.repair.Run(ctx, c.db)
	if repairErr != nil {
		c.logger.Error("Post-sync repair pass failed", zap.Error(repairErr))
	}

	if writeErr != nil {
		return repairResult, writeErr
	}
	return repairResult, repairErr
}
