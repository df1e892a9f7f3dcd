package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/pairlink/pairlink/internal/auth"
	"github.com/pairlink/pairlink/internal/entitlement"
	"github.com/pairlink/pairlink/internal/pairing"
)

// PairingHandler handles HTTP requests for pairing operations.
type PairingHandler struct {
	pairing *pairing.Service
	saga    *entitlement.Saga
	logger  *slog.Logger
}

// NewPairingHandler creates a new PairingHandler.
func NewPairingHandler(svc *pairing.Service, saga *entitlement.Saga, logger *slog.Logger) *PairingHandler {
	return &PairingHandler{
		pairing: svc,
		saga:    saga,
		logger:  logger,
	}
}

// partnerRequest is the payload for operations targeting another account.
type partnerRequest struct {
	Email string `json:"email"`
}

// SendRequest handles POST /api/v1/partner/requests.
func (h *PairingHandler) SendRequest(w http.ResponseWriter, r *http.Request) {
	caller := auth.MustCallerFromContext(r.Context())

	var req partnerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "invalid request body")
		return
	}

	if err := h.pairing.SendRequest(r.Context(), *caller, req.Email); err != nil {
		writePairingError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CancelRequest handles DELETE /api/v1/partner/requests/outgoing.
func (h *PairingHandler) CancelRequest(w http.ResponseWriter, r *http.Request) {
	caller := auth.MustCallerFromContext(r.Context())

	if err := h.pairing.CancelRequest(r.Context(), caller.UID); err != nil {
		writePairingError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AcceptRequest handles POST /api/v1/partner/requests/accept.
func (h *PairingHandler) AcceptRequest(w http.ResponseWriter, r *http.Request) {
	caller := auth.MustCallerFromContext(r.Context())

	if err := h.pairing.AcceptRequest(r.Context(), caller.UID); err != nil {
		writePairingError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RejectRequest handles POST /api/v1/partner/requests/reject.
func (h *PairingHandler) RejectRequest(w http.ResponseWriter, r *http.Request) {
	caller := auth.MustCallerFromContext(r.Context())

	if err := h.pairing.RejectRequest(r.Context(), caller.UID); err != nil {
		writePairingError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RemovePartner handles DELETE /api/v1/partner.
func (h *PairingHandler) RemovePartner(w http.ResponseWriter, r *http.Request) {
	caller := auth.MustCallerFromContext(r.Context())

	if err := h.pairing.RemovePartner(r.Context(), caller.UID); err != nil {
		writePairingError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteAccount handles DELETE /api/v1/account.
func (h *PairingHandler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	caller := auth.MustCallerFromContext(r.Context())

	if err := h.pairing.DeleteAccount(r.Context(), caller.UID); err != nil {
		writePairingError(w, err)
		return
	}

	h.logger.Info("account_deleted", "uid", caller.UID)
	w.WriteHeader(http.StatusNoContent)
}

// Link handles POST /api/v1/partner/link: pair directly with the account
// behind the given email and share whichever active entitlement exists.
func (h *PairingHandler) Link(w http.ResponseWriter, r *http.Request) {
	caller := auth.MustCallerFromContext(r.Context())

	var req partnerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "invalid request body")
		return
	}

	if err := h.saga.LinkAndShare(r.Context(), *caller, req.Email); err != nil {
		writePairingError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
