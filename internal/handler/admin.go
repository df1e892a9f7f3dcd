package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pairlink/pairlink/internal/reconcile"
)

// ReconcileHandler triggers reconciliation jobs on demand, alongside the
// interval scheduler. Runs are synchronous; the response carries the run
// summary.
type ReconcileHandler struct {
	reconciler *reconcile.Reconciler
	logger     *slog.Logger
}

// NewReconcileHandler creates a new ReconcileHandler.
func NewReconcileHandler(reconciler *reconcile.Reconciler, logger *slog.Logger) *ReconcileHandler {
	return &ReconcileHandler{
		reconciler: reconciler,
		logger:     logger,
	}
}

// Run handles POST /api/v1/admin/reconcile/{job}.
func (h *ReconcileHandler) Run(w http.ResponseWriter, r *http.Request) {
	var (
		summary reconcile.Summary
		err     error
	)

	job := chi.URLParam(r, "job")
	switch job {
	case "inactive":
		summary, err = h.reconciler.PurgeInactiveAccounts(r.Context())
	case "expired":
		summary, err = h.reconciler.RevokeExpiredEntitlements(r.Context())
	default:
		writeError(w, http.StatusNotFound, "UNKNOWN_JOB", "unknown reconciliation job")
		return
	}

	if err != nil {
		h.logger.Error("manual reconciliation failed", "job", job, "error", err)
		writeError(w, http.StatusInternalServerError, CodeInternal, "job failed")
		return
	}

	writeJSON(w, http.StatusOK, summary)
}
