package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rowsync-inc/rowsync-engine/pkg/apperrors"
	"github.com/rowsync-inc/rowsync-engine/pkg/database"
	"github.com/rowsync-inc/rowsync-engine/pkg/glide"
	"github.com/rowsync-inc/rowsync-engine/pkg/models"
	"github.com/rowsync-inc/rowsync-engine/pkg/repositories"
)

// mockSyncErrorRepository is an in-memory ledger store.
type mockSyncErrorRepository struct {
	mu        sync.Mutex
	errors    []*models.SyncError
	createErr error
}

func (m *mockSyncErrorRepository) Create(ctx context.Context, syncErr *models.SyncError) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	syncErr.ID = uuid.New()
	syncErr.CreatedAt = time.Now()
	m.errors = append(m.errors, syncErr)
	return nil
}

func (m *mockSyncErrorRepository) Resolve(ctx context.Context, id uuid.UUID, note *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.errors {
		if e.ID == id && !e.Resolved {
			e.Resolved = true
			e.ResolutionNotes = note
			now := time.Now()
			e.ResolvedAt = &now
		}
	}
	return nil
}

func (m *mockSyncErrorRepository) List(ctx context.Context, mappingID uuid.UUID, includeResolved bool) ([]*models.SyncError, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.SyncError
	for _, e := range m.errors {
		if e.MappingID == mappingID && (includeResolved || !e.Resolved) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *mockSyncErrorRepository) DeleteUnresolved(ctx context.Context, mappingID uuid.UUID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var kept []*models.SyncError
	var dropped int64
	for _, e := range m.errors {
		if e.MappingID == mappingID && !e.Resolved {
			dropped++
			continue
		}
		kept = append(kept, e)
	}
	m.errors = kept
	return dropped, nil
}

var _ repositories.SyncErrorRepository = (*mockSyncErrorRepository)(nil)

// mockRecordRepository captures upserted chunks and can fail selected calls.
type mockRecordRepository struct {
	chunks    [][]models.Record
	tables    []string
	failCalls map[int]error // zero-based call index to forced error
}

func (m *mockRecordRepository) UpsertBatch(ctx context.Context, q database.Querier, table string, records []models.Record) error {
	call := len(m.chunks)
	m.chunks = append(m.chunks, records)
	m.tables = append(m.tables, table)
	if err, ok := m.failCalls[call]; ok {
		return err
	}
	return nil
}

var _ repositories.RecordRepository = (*mockRecordRepository)(nil)

// mockSyncRunRepository tracks run lifecycle transitions.
type mockSyncRunRepository struct {
	created      []*models.SyncRun
	progress     []string
	finishStatus string
	finishMsg    string
	finishCount  int
	createErr    error
}

func (m *mockSyncRunRepository) Create(ctx context.Context, run *models.SyncRun) error {
	if m.createErr != nil {
		return m.createErr
	}
	run.ID = uuid.New()
	run.Status = models.RunStatusStarted
	run.StartedAt = time.Now()
	m.created = append(m.created, run)
	return nil
}

func (m *mockSyncRunRepository) UpdateProgress(ctx context.Context, id uuid.UUID, message string, recordsProcessed int) error {
	m.progress = append(m.progress, message)
	return nil
}

func (m *mockSyncRunRepository) Finish(ctx context.Context, id uuid.UUID, status, message string, recordsProcessed int) error {
	m.finishStatus = status
	m.finishMsg = message
	m.finishCount = recordsProcessed
	return nil
}

var _ repositories.SyncRunRepository = (*mockSyncRunRepository)(nil)

// mockProductRepository records placeholder requests.
type mockProductRepository struct {
	ensured        [][]string
	ensureErr      error
	missingCreated int64
	totalsUpdated  int64
}

func (m *mockProductRepository) GetByGlideRowID(ctx context.Context, glideRowID string) (*models.Product, error) {
	return nil, nil
}

func (m *mockProductRepository) EnsurePlaceholders(ctx context.Context, q database.Querier, glideRowIDs []string) (int64, error) {
	if m.ensureErr != nil {
		return 0, m.ensureErr
	}
	m.ensured = append(m.ensured, glideRowIDs)
	return int64(len(glideRowIDs)), nil
}

func (m *mockProductRepository) CreateMissingPlaceholders(ctx context.Context, q database.Querier) (int64, error) {
	return m.missingCreated, nil
}

func (m *mockProductRepository) RecomputeTotals(ctx context.Context, q database.Querier) (int64, error) {
	return m.totalsUpdated, nil
}

var _ repositories.ProductRepository = (*mockProductRepository)(nil)

// mockConnectionRepository serves one canned connection.
type mockConnectionRepository struct {
	conn        *models.Connection
	getErr      error
	lastSynced  []uuid.UUID
	touchFailed error
}

func (m *mockConnectionRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Connection, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	return m.conn, nil
}

func (m *mockConnectionRepository) TouchLastSync(ctx context.Context, id uuid.UUID, at time.Time) error {
	if m.touchFailed != nil {
		return m.touchFailed
	}
	m.lastSynced = append(m.lastSynced, id)
	return nil
}

var _ repositories.ConnectionRepository = (*mockConnectionRepository)(nil)

// mockMappingRepository serves canned mappings by id.
type mockMappingRepository struct {
	mappings map[uuid.UUID]*models.Mapping
	getErr   error
}

func (m *mockMappingRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Mapping, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	mapping, ok := m.mappings[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return mapping, nil
}

func (m *mockMappingRepository) ListEnabled(ctx context.Context) ([]*models.Mapping, error) {
	var out []*models.Mapping
	for _, mapping := range m.mappings {
		if mapping.Enabled && mapping.SyncDirection != models.DirectionSupabaseToGlide {
			out = append(out, mapping)
		}
	}
	return out, nil
}

var _ repositories.MappingRepository = (*mockMappingRepository)(nil)

// mockGlideClient serves canned pages keyed by startAt token.
type mockGlideClient struct {
	pages      map[string]*glide.TablePage
	fetchErr   error
	fetchCalls int
	testErr    error
	tables     []glide.TableInfo
	columns    []glide.ColumnInfo
}

func (m *mockGlideClient) FetchPage(ctx context.Context, conn *models.Connection, tableName, startAt string) (*glide.TablePage, error) {
	m.fetchCalls++
	if m.fetchErr != nil {
		return nil, m.fetchErr
	}
	page, ok := m.pages[startAt]
	if !ok {
		return &glide.TablePage{}, nil
	}
	return page, nil
}

func (m *mockGlideClient) TestConnection(ctx context.Context, conn *models.Connection) error {
	return m.testErr
}

func (m *mockGlideClient) ListTables(ctx context.Context, conn *models.Connection) ([]glide.TableInfo, error) {
	return m.tables, nil
}

func (m *mockGlideClient) GetTableColumns(ctx context.Context, conn *models.Connection, tableName string) ([]glide.ColumnInfo, error) {
	return m.columns, nil
}

var _ GlideClient = (*mockGlideClient)(nil)

// mockSyncServiceNoop satisfies SyncService where only wiring is under test.
type mockSyncServiceNoop struct{}

func (m *mockSyncServiceNoop) SyncMapping(ctx context.Context, mappingID uuid.UUID) (*SyncResult, error) {
	return &SyncResult{Success: true}, nil
}

func (m *mockSyncServiceNoop) SyncAllEnabled(ctx context.Context) error { return nil }

func (m *mockSyncServiceNoop) TestConnection(ctx context.Context, connectionID uuid.UUID) error {
	return nil
}

func (m *mockSyncServiceNoop) ListTables(ctx context.Context, connectionID uuid.UUID) ([]glide.TableInfo, error) {
	return nil, nil
}

func (m *mockSyncServiceNoop) GetColumnMappings(ctx context.Context, connectionID uuid.UUID, tableName string) ([]glide.ColumnInfo, error) {
	return nil, nil
}

var _ SyncService = (*mockSyncServiceNoop)(nil)
