// Package handler provides HTTP request handlers.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/pairlink/pairlink/internal/pairing"
)

// Error codes shared with the mobile clients. These are part of the wire
// contract and must stay stable.
const (
	CodeInternal             = "ERROR_INTERNAL"
	CodeNotAuthenticated     = "ERROR_NOT_AUTHENTICATED"
	CodeUserNotFound         = "ERROR_USER_NOT_FOUND"
	CodeReceiverHasPartner   = "ERROR_RECEIVER_ALREADY_HAS_PARTNER"
	CodeReceiverHasPending   = "ERROR_RECEIVER_HAS_PENDING_REQUEST"
	CodeReceiverEmailMissing = "ERROR_RECEIVER_EMAIL_REQUIRED"
	CodeReceiverEmailIsOwn   = "ERROR_RECEIVER_EMAIL_IS_SENDERS"
	CodeNoPartner            = "ERROR_NO_PARTNER"
	CodeNoPendingRequest     = "ERROR_NO_PENDING_REQUEST"
)

// Handler holds the fallback handlers for unmatched routes.
type Handler struct{}

// New creates a new Handler instance.
func New() *Handler {
	return &Handler{}
}

// Hello is the root info endpoint.
// GET /
func (h *Handler) Hello(w http.ResponseWriter, r *http.Request) {
	response := map[string]string{
		"service": "pairlink",
		"version": "1.0.0",
	}
	writeJSON(w, http.StatusOK, response)
}

// NotFound handles 404 responses.
func (h *Handler) NotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, "NOT_FOUND", "resource not found")
}

// MethodNotAllowed handles 405 responses.
func (h *Handler) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
}

// errorResponse is the uniform error body.
type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		_ = err
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: code, Message: message})
}

// writePairingError maps a pairing/saga error onto the HTTP error taxonomy.
// Unknown failures default to internal.
func writePairingError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, pairing.ErrEmailRequired):
		writeError(w, http.StatusBadRequest, CodeReceiverEmailMissing, err.Error())
	case errors.Is(err, pairing.ErrSelfRequest):
		writeError(w, http.StatusBadRequest, CodeReceiverEmailIsOwn, err.Error())
	case errors.Is(err, pairing.ErrAccountNotFound):
		writeError(w, http.StatusNotFound, CodeUserNotFound, err.Error())
	case errors.Is(err, pairing.ErrAlreadyPaired):
		writeError(w, http.StatusConflict, CodeReceiverHasPartner, err.Error())
	case errors.Is(err, pairing.ErrRequestPending):
		writeError(w, http.StatusConflict, CodeReceiverHasPending, err.Error())
	case errors.Is(err, pairing.ErrNoPartner):
		writeError(w, http.StatusNotFound, CodeNoPartner, err.Error())
	case errors.Is(err, pairing.ErrNoPendingRequest):
		writeError(w, http.StatusNotFound, CodeNoPendingRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, CodeInternal, "internal error")
	}
}
