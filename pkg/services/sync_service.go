package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rowsync-inc/rowsync-engine/pkg/apperrors"
	"github.com/rowsync-inc/rowsync-engine/pkg/database"
	"github.com/rowsync-inc/rowsync-engine/pkg/glide"
	"github.com/rowsync-inc/rowsync-engine/pkg/models"
	"github.com/rowsync-inc/rowsync-engine/pkg/repositories"
)

// LineItemsTable is the target table that takes the elaborated sync path:
// typed transformation, override bracketing, placeholder creation and the
// post-sync repair pass. Every other target gets the plain pass-through copy.
const LineItemsTable = "estimate_line_items"

// GlideClient is the slice of the Glide API the orchestrator needs.
type GlideClient interface {
	FetchPage(ctx context.Context, conn *models.Connection, tableName, startAt string) (*glide.TablePage, error)
	TestConnection(ctx context.Context, conn *models.Connection) error
	ListTables(ctx context.Context, conn *models.Connection) ([]glide.TableInfo, error)
	GetTableColumns(ctx context.Context, conn *models.Connection, tableName string) ([]glide.ColumnInfo, error)
}

// SyncResult is the structured outcome returned to the caller. Success is
// false only when the run failed outright; a completed run with nonzero
// FailedRecords still reports success so the caller can decide whether to
// inspect the ledger before retrying.
type SyncResult struct {
	Success          bool                `json:"success"`
	RecordsProcessed int                 `json:"recordsProcessed"`
	FailedRecords    int                 `json:"failedRecords"`
	Errors           []*models.SyncError `json:"errors"`
	Error            string              `json:"error,omitempty"`
}

// SyncOptions tunes a run.
type SyncOptions struct {
	BatchSizeLimit int
	PageDelay      time.Duration
}

// SyncService drives full synchronization runs and the connection
// management actions exposed over HTTP.
type SyncService interface {
	// SyncMapping runs one full glide-to-supabase synchronization for a
	// mapping. At most one run per mapping is active at a time.
	SyncMapping(ctx context.Context, mappingID uuid.UUID) (*SyncResult, error)

	// SyncAllEnabled runs every enabled mapping sequentially, used by the
	// scheduler. Individual failures do not stop the sweep.
	SyncAllEnabled(ctx context.Context) error

	// TestConnection verifies a connection's Glide credentials.
	TestConnection(ctx context.Context, connectionID uuid.UUID) error

	// ListTables lists the Glide tables visible to a connection.
	ListTables(ctx context.Context, connectionID uuid.UUID) ([]glide.TableInfo, error)

	// GetColumnMappings derives column descriptors for a Glide table.
	GetColumnMappings(ctx context.Context, connectionID uuid.UUID, tableName string) ([]glide.ColumnInfo, error)
}

// runLocker acquires the per-mapping run lock and returns the release
// callback. It is a struct field so tests can stand in for the advisory
// lock without a database.
type runLocker func(ctx context.Context, mappingID uuid.UUID) (release func(context.Context), err error)

type syncService struct {
	db          *database.DB
	lock        runLocker
	connections repositories.ConnectionRepository
	mappings    repositories.MappingRepository
	runs        repositories.SyncRunRepository
	products    repositories.ProductRepository
	client      GlideClient
	transformer *Transformer
	writer      *BatchWriter
	override    *OverrideController
	ledger      ErrorLedger
	opts        SyncOptions
	logger      *zap.Logger
}

// NewSyncService creates the sync orchestrator.
func NewSyncService(
	db *database.DB,
	connections repositories.ConnectionRepository,
	mappings repositories.MappingRepository,
	runs repositories.SyncRunRepository,
	products repositories.ProductRepository,
	client GlideClient,
	transformer *Transformer,
	writer *BatchWriter,
	override *OverrideController,
	ledger ErrorLedger,
	opts SyncOptions,
	logger *zap.Logger,
) SyncService {
	if opts.BatchSizeLimit <= 0 {
		opts.BatchSizeLimit = 450
	}
	s := &syncService{
		db:          db,
		connections: connections,
		mappings:    mappings,
		runs:        runs,
		products:    products,
		client:      client,
		transformer: transformer,
		writer:      writer,
		override:    override,
		ledger:      ledger,
		opts:        opts,
		logger:      logger.Named("sync"),
	}
	s.lock = func(ctx context.Context, mappingID uuid.UUID) (func(context.Context), error) {
		runLock, err := repositories.AcquireRunLock(ctx, db, mappingID)
		if err != nil {
			return nil, err
		}
		return runLock.Release, nil
	}
	return s
}

func (s *syncService) SyncMapping(ctx context.Context, mappingID uuid.UUID) (*SyncResult, error) {
	mapping, err := s.mappings.GetByID(ctx, mappingID)
	if err != nil {
		return nil, fmt.Errorf("failed to load mapping: %w", err)
	}
	if !mapping.Enabled {
		return nil, apperrors.ErrMappingDisabled
	}
	if mapping.SyncDirection == models.DirectionSupabaseToGlide {
		return nil, fmt.Errorf("mapping %s does not sync from Glide", mappingID)
	}

	conn, err := s.connections.GetByID(ctx, mapping.ConnectionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load connection: %w", err)
	}

	release, err := s.lock(ctx, mappingID)
	if err != nil {
		return nil, err
	}
	defer release(ctx)

	// The run log row exists before any external call, so even a run whose
	// first fetch fails leaves a durable record.
	run := &models.SyncRun{
		MappingID: mappingID,
		Message:   fmt.Sprintf("Syncing %s into %s", mapping.GlideTable, mapping.SupabaseTable),
	}
	if err := s.runs.Create(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to create run log: %w", err)
	}

	result, runErr := s.runSync(ctx, conn, mapping, run)
	if runErr != nil {
		msg := fmt.Sprintf("Sync failed: %v", runErr)
		if err := s.runs.Finish(ctx, run.ID, models.RunStatusFailed, msg, result.RecordsProcessed); err != nil {
			s.logger.Error("Failed to finalize failed run", zap.Error(err))
		}
		result.Success = false
		result.Error = runErr.Error()
		return result, nil
	}

	msg := fmt.Sprintf("Sync completed: %d records processed, %d failed",
		result.RecordsProcessed, result.FailedRecords)
	if err := s.runs.Finish(ctx, run.ID, models.RunStatusCompleted, msg, result.RecordsProcessed); err != nil {
		s.logger.Error("Failed to finalize completed run", zap.Error(err))
	}

	if err := s.connections.TouchLastSync(ctx, conn.ID, time.Now()); err != nil {
		s.logger.Error("Failed to stamp connection last_sync", zap.Error(err))
	}

	result.Success = true
	if ledgered, err := s.ledger.List(ctx, mappingID, false); err == nil {
		result.Errors = ledgered
	}
	return result, nil
}

// runSync drives the page loop. The returned error means the run failed
// outright (page-fetch retry exhaustion or an unexpected top-level failure);
// per-record and per-chunk failures are absorbed into the result instead.
func (s *syncService) runSync(ctx context.Context, conn *models.Connection, mapping *models.Mapping, run *models.SyncRun) (*SyncResult, error) {
	result := &SyncResult{Errors: []*models.SyncError{}}

	if mapping.RowIDMapping() == nil {
		// Configuration error: without the stable-identifier mapping no
		// upsert key exists, so the run is blocked before any fetch.
		return result, apperrors.ErrMissingRowIDMapping
	}

	if mapping.SupabaseTable == LineItemsTable {
		// A fresh run supersedes stale unresolved errors for this mapping.
		if err := s.ledger.ClearUnresolved(ctx, mapping.ID); err != nil {
			s.logger.Warn("Failed to clear stale sync errors", zap.Error(err))
		}

		var pageErr error
		_, overrideErr := s.override.Run(ctx, func(q database.Querier) error {
			pageErr = s.pageLoop(ctx, conn, mapping, run, result, q, true)
			return pageErr
		})
		if pageErr != nil {
			return result, pageErr
		}
		if overrideErr != nil {
			return result, overrideErr
		}
		return result, nil
	}

	return result, s.pageLoop(ctx, conn, mapping, run, result, s.db, false)
}

// pageLoop fetches, transforms and writes pages strictly sequentially; the
// continuation token for page N+1 is only known after page N's response.
func (s *syncService) pageLoop(ctx context.Context, conn *models.Connection, mapping *models.Mapping, run *models.SyncRun, result *SyncResult, q database.Querier, elaborated bool) error {
	startAt := ""
	page := 0

	for {
		tablePage, err := s.client.FetchPage(ctx, conn, mapping.GlideTable, startAt)
		if err != nil {
			s.recordFetchFailure(ctx, mapping.ID, err)
			return fmt.Errorf("page fetch aborted the run: %w", err)
		}
		page++

		var records []models.Record
		if elaborated {
			records = s.transformPage(ctx, mapping, tablePage.Rows, result)
		} else {
			records = s.copyPage(ctx, mapping, tablePage.Rows, result)
		}

		if elaborated {
			// Proactive placeholders: child rows may reference parents that
			// have not synced yet.
			refs := collectParentRefs(records)
			if len(refs) > 0 {
				if _, err := s.products.EnsurePlaceholders(ctx, q, refs); err != nil {
					s.logger.Warn("Failed to pre-create product placeholders; repair pass will catch up",
						zap.Error(err))
				}
			}
		}

		writeResult := s.writer.WriteBatch(ctx, records, WriteOptions{
			MappingID:      mapping.ID,
			Table:          mapping.SupabaseTable,
			BatchSizeLimit: s.opts.BatchSizeLimit,
			Querier:        q,
		})
		result.RecordsProcessed += writeResult.Succeeded
		result.FailedRecords += writeResult.Failed

		progress := fmt.Sprintf("Processed page %d: %d records so far, %d failed",
			page, result.RecordsProcessed, result.FailedRecords)
		if err := s.runs.UpdateProgress(ctx, run.ID, progress, result.RecordsProcessed); err != nil {
			s.logger.Warn("Failed to update run progress", zap.Error(err))
		}

		if tablePage.Next == "" {
			return nil
		}
		startAt = tablePage.Next

		// Courtesy delay between pages to stay under Glide's rate limits.
		if s.opts.PageDelay > 0 {
			select {
			case <-time.After(s.opts.PageDelay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// transformPage runs the typed transformer over a page, ledgering field
// errors and counting rejected records as failed.
func (s *syncService) transformPage(ctx context.Context, mapping *models.Mapping, rows []models.GlideRow, result *SyncResult) []models.Record {
	var records []models.Record
	for _, row := range rows {
		tr := s.transformer.Transform(row, mapping)
		for _, fieldErr := range tr.Errors {
			s.ledger.Record(ctx, mapping.ID, fieldErr.Type, fieldErr.Message, fieldErr.RecordData, false)
		}
		if tr.Record == nil {
			result.FailedRecords++
			continue
		}
		records = append(records, tr.Record)
	}
	return records
}

// copyPage is the pass-through path: a raw glide_row_id-keyed field copy
// with no coercion table and no placeholder machinery.
func (s *syncService) copyPage(ctx context.Context, mapping *models.Mapping, rows []models.GlideRow, result *SyncResult) []models.Record {
	var records []models.Record
	for _, row := range rows {
		record := make(models.Record)
		for _, cm := range mapping.ColumnMappings {
			if value, ok := lookupField(row, cm); ok {
				record[cm.SupabaseColumn] = value
			}
		}
		if record.RowID() == "" {
			result.FailedRecords++
			s.ledger.Record(ctx, mapping.ID, models.ErrorTypeValidation,
				"missing required identifier: row has no value for "+models.GlideRowIDColumn,
				map[string]any{"glide_table": mapping.GlideTable, "row": row}, false)
			continue
		}
		records = append(records, record)
	}
	return records
}

// recordFetchFailure ledgers an aborted page fetch with its classification.
func (s *syncService) recordFetchFailure(ctx context.Context, mappingID uuid.UUID, err error) {
	errorType := models.ErrorTypeAPI
	retryable := false
	var apiErr *glide.APIError
	if errors.As(err, &apiErr) {
		errorType = apiErr.Kind
		retryable = apiErr.IsRetryable()
	}
	s.ledger.Record(ctx, mappingID, errorType, err.Error(), nil, retryable)
}

func (s *syncService) SyncAllEnabled(ctx context.Context) error {
	mappings, err := s.mappings.ListEnabled(ctx)
	if err != nil {
		return fmt.Errorf("failed to list enabled mappings: %w", err)
	}

	for _, mapping := range mappings {
		result, err := s.SyncMapping(ctx, mapping.ID)
		switch {
		case errors.Is(err, apperrors.ErrSyncAlreadyRunning):
			s.logger.Info("Skipping mapping with active run",
				zap.String("mapping_id", mapping.ID.String()))
		case err != nil:
			s.logger.Error("Scheduled sync failed to start",
				zap.String("mapping_id", mapping.ID.String()),
				zap.Error(err))
		case !result.Success:
			s.logger.Error("Scheduled sync run failed",
				zap.String("mapping_id", mapping.ID.String()),
				zap.String("error", result.Error))
		}
	}
	return nil
}

func (s *syncService) TestConnection(ctx context.Context, connectionID uuid.UUID) error {
	conn, err := s.connections.GetByID(ctx, connectionID)
	if err != nil {
		return err
	}
	return s.client.TestConnection(ctx, conn)
}

func (s *syncService) ListTables(ctx context.Context, connectionID uuid.UUID) ([]glide.TableInfo, error) {
	conn, err := s.connections.GetByID(ctx, connectionID)
	if err != nil {
		return nil, err
	}
	return s.client.ListTables(ctx, conn)
}

func (s *syncService) GetColumnMappings(ctx context.Context, connectionID uuid.UUID, tableName string) ([]glide.ColumnInfo, error) {
	conn, err := s.connections.GetByID(ctx, connectionID)
	if err != nil {
		return nil, err
	}
	return s.client.GetTableColumns(ctx, conn, tableName)
}

// collectParentRefs gathers the distinct product references in a page.
func collectParentRefs(records []models.Record) []string {
	seen := make(map[string]bool)
	var refs []string
	for _, record := range records {
		v, ok := record["product_glide_id"]
		if !ok {
			continue
		}
		id, ok := v.(string)
		if !ok || id == "" || seen[id] {
			continue
		}
		seen[id] = true
		refs = append(refs, id)
	}
	return refs
}

var _ SyncService = (*syncService)(nil)
