package handler

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/pairlink/pairlink/internal/entitlement"
	"github.com/pairlink/pairlink/internal/webhook"
)

const (
	// SignatureHeader carries the hex HMAC-SHA256 of "{timestamp}.{body}".
	SignatureHeader = "X-Payment-Signature"
	// TimestampHeader carries the unix timestamp the signature covers.
	TimestampHeader = "X-Payment-Timestamp"

	// eventCheckoutCompleted is the only event type acted upon; everything
	// else is acknowledged and dropped.
	eventCheckoutCompleted = "checkout.completed"

	// defaultEntitlementTerm is granted when the provider sends no expiry.
	defaultEntitlementTerm = 1 // years
)

// paymentEvent is the provider's callback payload.
type paymentEvent struct {
	Type       string     `json:"type"`
	AccountUID string     `json:"account_uid"`
	Since      *time.Time `json:"since,omitempty"`
	Expiry     *time.Time `json:"expiry,omitempty"`
}

// PaymentWebhookHandler ingests payment-completion callbacks and grants
// entitlements. Processing failures are logged only; once the signature
// checks out the provider always gets an acknowledgement, retrying a grant
// is this service's job, not the provider's.
type PaymentWebhookHandler struct {
	saga   *entitlement.Saga
	secret string
	logger *slog.Logger
}

// NewPaymentWebhookHandler creates a new PaymentWebhookHandler.
func NewPaymentWebhookHandler(saga *entitlement.Saga, secret string, logger *slog.Logger) *PaymentWebhookHandler {
	return &PaymentWebhookHandler{
		saga:   saga,
		secret: secret,
		logger: logger,
	}
}

// HandleEvent handles POST /webhooks/payment.
func (h *PaymentWebhookHandler) HandleEvent(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "failed to read body")
		return
	}

	timestamp, err := strconv.ParseInt(r.Header.Get(TimestampHeader), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_SIGNATURE", "missing or malformed timestamp")
		return
	}

	signature := r.Header.Get(SignatureHeader)
	if err := webhook.ValidateSignature(h.secret, signature, timestamp, body, webhook.DefaultReplayWindow); err != nil {
		h.logger.Warn("rejected payment webhook", "error", err)
		writeError(w, http.StatusBadRequest, "INVALID_SIGNATURE", "signature verification failed")
		return
	}

	var event paymentEvent
	if err := json.Unmarshal(body, &event); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "invalid event payload")
		return
	}

	if event.Type == eventCheckoutCompleted && event.AccountUID != "" {
		since := time.Now().UTC()
		if event.Since != nil {
			since = *event.Since
		}
		expiry := since.AddDate(defaultEntitlementTerm, 0, 0)
		if event.Expiry != nil {
			expiry = *event.Expiry
		}

		if err := h.saga.Grant(r.Context(), event.AccountUID, since, expiry); err != nil {
			h.logger.Error("payment grant failed",
				"uid", event.AccountUID,
				"error", err,
			)
		}
	}

	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}
