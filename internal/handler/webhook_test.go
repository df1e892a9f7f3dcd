package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/pairlink/pairlink/internal/entitlement"
	"github.com/pairlink/pairlink/internal/model"
	"github.com/pairlink/pairlink/internal/pairing"
	"github.com/pairlink/pairlink/internal/webhook"
)

const testWebhookSecret = "test-webhook-secret"

func newTestWebhookHandler(store *memStore, id *memIdentity) *PaymentWebhookHandler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := pairing.NewService(store, id, logger, nil)
	saga := entitlement.NewSaga(svc, id, logger, nil)
	return NewPaymentWebhookHandler(saga, testWebhookSecret, logger)
}

func signedEvent(t *testing.T, payload string) *http.Request {
	t.Helper()
	timestamp := time.Now().Unix()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/payment", strings.NewReader(payload))
	req.Header.Set(TimestampHeader, strconv.FormatInt(timestamp, 10))
	req.Header.Set(SignatureHeader, webhook.GenerateSignature(testWebhookSecret, timestamp, []byte(payload)))
	return req
}

func TestHandleEvent_GrantsEntitlement(t *testing.T) {
	t.Parallel()

	store := newMemStore("alice", "bob")
	id := newMemIdentity()
	h := newTestWebhookHandler(store, id)

	// Pair the two sides so the grant mirrors.
	svc := pairing.NewService(store, id, slog.New(slog.NewTextHandler(io.Discard, nil)), nil)
	alice := model.Caller{UID: "alice", Email: "alice@example.com"}
	if _, err := svc.Link(context.Background(), alice, "bob@example.com"); err != nil {
		t.Fatalf("pair setup: %v", err)
	}

	rec := httptest.NewRecorder()
	h.HandleEvent(rec, signedEvent(t, `{"type":"checkout.completed","account_uid":"alice"}`))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]bool
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if !body["received"] {
		t.Error("response missing received acknowledgement")
	}

	for _, uid := range []string{"alice", "bob"} {
		got, _ := id.Entitlement(context.Background(), uid)
		if got == nil || !got.Active {
			t.Errorf("entitlement for %s = %+v, want active", uid, got)
		}
	}
}

func TestHandleEvent_DefaultTermIsOneYear(t *testing.T) {
	t.Parallel()

	id := newMemIdentity()
	h := newTestWebhookHandler(newMemStore("alice"), id)

	before := time.Now().UTC()
	rec := httptest.NewRecorder()
	h.HandleEvent(rec, signedEvent(t, `{"type":"checkout.completed","account_uid":"alice"}`))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	got, _ := id.Entitlement(context.Background(), "alice")
	if got == nil {
		t.Fatal("entitlement not granted")
	}
	wantMin := before.AddDate(1, 0, 0).Add(-time.Minute)
	wantMax := before.AddDate(1, 0, 0).Add(time.Minute)
	if got.Expiry.Before(wantMin) || got.Expiry.After(wantMax) {
		t.Errorf("expiry = %v, want about one year out", got.Expiry)
	}
}

func TestHandleEvent_BadSignatureRejected(t *testing.T) {
	t.Parallel()

	id := newMemIdentity()
	h := newTestWebhookHandler(newMemStore("alice"), id)

	payload := `{"type":"checkout.completed","account_uid":"alice"}`
	timestamp := time.Now().Unix()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/payment", strings.NewReader(payload))
	req.Header.Set(TimestampHeader, strconv.FormatInt(timestamp, 10))
	req.Header.Set(SignatureHeader, "deadbeef")

	rec := httptest.NewRecorder()
	h.HandleEvent(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if got, _ := id.Entitlement(context.Background(), "alice"); got != nil {
		t.Errorf("entitlement = %+v, want none after rejected signature", got)
	}
}

func TestHandleEvent_StaleTimestampRejected(t *testing.T) {
	t.Parallel()

	h := newTestWebhookHandler(newMemStore("alice"), newMemIdentity())

	payload := `{"type":"checkout.completed","account_uid":"alice"}`
	stale := time.Now().Add(-time.Hour).Unix()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/payment", strings.NewReader(payload))
	req.Header.Set(TimestampHeader, strconv.FormatInt(stale, 10))
	req.Header.Set(SignatureHeader, webhook.GenerateSignature(testWebhookSecret, stale, []byte(payload)))

	rec := httptest.NewRecorder()
	h.HandleEvent(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestHandleEvent_IgnoresOtherEventTypes(t *testing.T) {
	t.Parallel()

	id := newMemIdentity()
	h := newTestWebhookHandler(newMemStore("alice"), id)

	rec := httptest.NewRecorder()
	h.HandleEvent(rec, signedEvent(t, `{"type":"checkout.cancelled","account_uid":"alice"}`))

	// Unknown event types are still acknowledged.
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got, _ := id.Entitlement(context.Background(), "alice"); got != nil {
		t.Errorf("entitlement = %+v, want none for ignored event", got)
	}
}

func TestHandleEvent_IdentityWithoutAccountRecord(t *testing.T) {
	t.Parallel()

	id := newMemIdentity()
	h := newTestWebhookHandler(newMemStore(), id)

	// No account record to mirror through; the purchaser's own grant still
	// lands and the provider gets its acknowledgement.
	rec := httptest.NewRecorder()
	h.HandleEvent(rec, signedEvent(t, `{"type":"checkout.completed","account_uid":"ghost"}`))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got, _ := id.Entitlement(context.Background(), "ghost"); got == nil || !got.Active {
		t.Errorf("entitlement = %+v, want granted", got)
	}
}
