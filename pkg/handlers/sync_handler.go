package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rowsync-inc/rowsync-engine/pkg/apperrors"
	"github.com/rowsync-inc/rowsync-engine/pkg/models"
	"github.com/rowsync-inc/rowsync-engine/pkg/services"
)

// SyncRequest is the action-dispatched body of POST /api/glide-sync.
type SyncRequest struct {
	Action       string `json:"action"`
	ConnectionID string `json:"connectionId"`
	MappingID    string `json:"mappingId,omitempty"`
	TableID      string `json:"tableId,omitempty"`
	ErrorID      string `json:"errorId,omitempty"`
	Note         string `json:"note,omitempty"`
}

// SyncHandler exposes the sync engine's orchestration entry point.
type SyncHandler struct {
	sync   services.SyncService
	ledger services.ErrorLedger
	logger *zap.Logger
}

// NewSyncHandler creates a new SyncHandler.
func NewSyncHandler(sync services.SyncService, ledger services.ErrorLedger, logger *zap.Logger) *SyncHandler {
	return &SyncHandler{
		sync:   sync,
		ledger: ledger,
		logger: logger.Named("sync-handler"),
	}
}

// RegisterRoutes registers the sync handler's routes on the given mux.
func (h *SyncHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/glide-sync", h.Dispatch)
}

// Dispatch routes a request by its action field. Unknown actions are a
// client error, not a crash.
func (h *SyncHandler) Dispatch(w http.ResponseWriter, r *http.Request) {
	var req SyncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	switch req.Action {
	case "syncData":
		h.syncData(w, r, &req)
	case "testConnection":
		h.testConnection(w, r, &req)
	case "listTables":
		h.listTables(w, r, &req)
	case "getColumnMappings":
		h.getColumnMappings(w, r, &req)
	case "listErrors":
		h.listErrors(w, r, &req)
	case "resolveError":
		h.resolveError(w, r, &req)
	default:
		h.respondError(w, http.StatusBadRequest, "unknown action: "+req.Action)
	}
}

func (h *SyncHandler) syncData(w http.ResponseWriter, r *http.Request, req *SyncRequest) {
	mappingID, err := uuid.Parse(req.MappingID)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid mappingId")
		return
	}

	result, err := h.sync.SyncMapping(r.Context(), mappingID)
	if err != nil {
		h.logger.Error("Sync run could not start",
			zap.String("mapping_id", mappingID.String()),
			zap.Error(err))
		h.respondError(w, statusFor(err), err.Error())
		return
	}

	status := http.StatusOK
	if !result.Success {
		status = http.StatusInternalServerError
	}
	h.respond(w, status, result)
}

func (h *SyncHandler) testConnection(w http.ResponseWriter, r *http.Request, req *SyncRequest) {
	connectionID, err := uuid.Parse(req.ConnectionID)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid connectionId")
		return
	}

	if err := h.sync.TestConnection(r.Context(), connectionID); err != nil {
		h.respond(w, statusFor(err), map[string]any{
			"error":   "connection test failed",
			"details": map[string]string{"message": err.Error()},
		})
		return
	}
	h.respond(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *SyncHandler) listTables(w http.ResponseWriter, r *http.Request, req *SyncRequest) {
	connectionID, err := uuid.Parse(req.ConnectionID)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid connectionId")
		return
	}

	tables, err := h.sync.ListTables(r.Context(), connectionID)
	if err != nil {
		h.respondError(w, statusFor(err), err.Error())
		return
	}

	names := make([]string, 0, len(tables))
	for _, t := range tables {
		names = append(names, t.Name)
	}
	h.respond(w, http.StatusOK, map[string][]string{"tables": names})
}

func (h *SyncHandler) getColumnMappings(w http.ResponseWriter, r *http.Request, req *SyncRequest) {
	connectionID, err := uuid.Parse(req.ConnectionID)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid connectionId")
		return
	}
	if req.TableID == "" {
		h.respondError(w, http.StatusBadRequest, "tableId is required")
		return
	}

	columns, err := h.sync.GetColumnMappings(r.Context(), connectionID, req.TableID)
	if err != nil {
		h.respondError(w, statusFor(err), err.Error())
		return
	}
	h.respond(w, http.StatusOK, map[string]any{"columns": columns})
}

func (h *SyncHandler) listErrors(w http.ResponseWriter, r *http.Request, req *SyncRequest) {
	mappingID, err := uuid.Parse(req.MappingID)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid mappingId")
		return
	}

	syncErrors, err := h.ledger.List(r.Context(), mappingID, false)
	if err != nil {
		h.respondError(w, statusFor(err), err.Error())
		return
	}
	if syncErrors == nil {
		syncErrors = []*models.SyncError{}
	}
	h.respond(w, http.StatusOK, map[string]any{"errors": syncErrors})
}

func (h *SyncHandler) resolveError(w http.ResponseWriter, r *http.Request, req *SyncRequest) {
	errorID, err := uuid.Parse(req.ErrorID)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid errorId")
		return
	}

	var note *string
	if req.Note != "" {
		note = &req.Note
	}
	if err := h.ledger.Resolve(r.Context(), errorID, note); err != nil {
		h.respondError(w, statusFor(err), err.Error())
		return
	}
	h.respond(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *SyncHandler) respond(w http.ResponseWriter, status int, body any) {
	if err := WriteJSON(w, status, body); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}

func (h *SyncHandler) respondError(w http.ResponseWriter, status int, message string) {
	if err := ErrorResponse(w, status, message); err != nil {
		h.logger.Error("Failed to encode error response", zap.Error(err))
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperrors.ErrSyncAlreadyRunning):
		return http.StatusConflict
	case errors.Is(err, apperrors.ErrMappingDisabled),
		errors.Is(err, apperrors.ErrMissingRowIDMapping):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
