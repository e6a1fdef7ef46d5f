package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/oroshi/backoffice/internal/platform/logger"
	"github.com/oroshi/backoffice/internal/store"
	"github.com/oroshi/backoffice/internal/task"
)

// defaultListLimit bounds the ledger listing when the client does not
// pass one.
const defaultListLimit = 50

// maxListLimit is the hard ceiling for the ledger listing.
const maxListLimit = 200

// LedgerReader is the slice of the ledger store the API needs.
type LedgerReader interface {
	GetLedger(ctx context.Context, correlationID string) (*task.Ledger, error)
	ListRecent(ctx context.Context, limit int) ([]*task.Ledger, error)
}

// TaskHandler serves read access to batch ledgers.
type TaskHandler struct {
	ledgers LedgerReader
}

// NewTaskHandler creates a TaskHandler.
func NewTaskHandler(ledgers LedgerReader) *TaskHandler {
	return &TaskHandler{ledgers: ledgers}
}

// GetTask handles GET /tasks/{correlationID}.
func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	correlationID := chi.URLParam(r, "correlationID")
	if correlationID == "" {
		RespondWithError(w, r, http.StatusBadRequest, "Missing correlation id", nil)
		return
	}

	ledger, err := h.ledgers.GetLedger(ctx, correlationID)
	if err != nil {
		if store.IsNotFoundError(err) {
			RespondWithError(w, r, http.StatusNotFound, "Task not found", err)
			return
		}
		log.Error("failed to load task ledger",
			"correlation_id", correlationID,
			"error", err)
		RespondWithError(w, r, http.StatusInternalServerError, "Failed to load task", err)
		return
	}

	RespondWithJSON(w, r, http.StatusOK, ledger)
}

// ListTasks handles GET /tasks with an optional limit query parameter.
func (h *TaskHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			RespondWithError(w, r, http.StatusBadRequest, "Invalid limit", err)
			return
		}
		limit = parsed
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	ledgers, err := h.ledgers.ListRecent(ctx, limit)
	if err != nil {
		log.Error("failed to list task ledgers", "error", err)
		RespondWithError(w, r, http.StatusInternalServerError, "Failed to list tasks", err)
		return
	}
	if ledgers == nil {
		ledgers = []*task.Ledger{}
	}

	RespondWithJSON(w, r, http.StatusOK, ledgers)
}
