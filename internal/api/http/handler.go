package http

import (
	"encoding/json"
	"net/http"

	"log/slog"

	"github.com/iqra-app/media-importer/internal/domain"
	apperrors "github.com/iqra-app/media-importer/internal/errors"
)

// ImportServiceI defines the interface for the import session the API
// exposes.
type ImportServiceI interface {
	StartImportAsync(req domain.ImportRequest) error
	Cancel()
	Snapshot() domain.Snapshot
}

// ImportHandler handles HTTP requests for the import session.
type ImportHandler struct {
	importService ImportServiceI
	logger        *slog.Logger
}

// NewImportHandler creates a new ImportHandler with the provided service and logger.
func NewImportHandler(importService ImportServiceI, logger *slog.Logger) *ImportHandler {
	return &ImportHandler{
		importService: importService,
		logger:        logger,
	}
}

// StartImport handles the HTTP POST /imports request to begin an import.
func (h *ImportHandler) StartImport(w http.ResponseWriter, r *http.Request) {
	var req domain.ImportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Error("failed to decode request", "error", err)
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.importService.StartImportAsync(req); err != nil {
		switch apperrors.KindOf(err) {
		case apperrors.KindInvalidInput:
			h.logger.Warn("rejected import request", "url", req.SourceURL, "error", err)
			writeError(w, http.StatusBadRequest, err.Error())
		case apperrors.KindAlreadyInProgress:
			writeError(w, http.StatusConflict, err.Error())
		default:
			h.logger.Error("failed to start import", "error", err)
			writeError(w, http.StatusInternalServerError, "internal server error")
		}
		return
	}

	h.logger.Info("import started", "url", req.SourceURL)
	writeJSON(w, http.StatusAccepted, h.importService.Snapshot())
}

// GetCurrent handles the HTTP GET /imports/current request for the
// session snapshot.
func (h *ImportHandler) GetCurrent(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.importService.Snapshot())
}

// CancelCurrent handles the HTTP DELETE /imports/current request to
// cancel the in-flight import.
func (h *ImportHandler) CancelCurrent(w http.ResponseWriter, r *http.Request) {
	h.importService.Cancel()
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
	})
}
