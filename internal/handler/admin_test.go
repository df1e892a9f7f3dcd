package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pairlink/pairlink/internal/model"
	"github.com/pairlink/pairlink/internal/reconcile"
)

type staticIdentityLister struct {
	identities []model.Identity
}

func (s *staticIdentityLister) List(context.Context, string, int64) ([]model.Identity, string, error) {
	return s.identities, "", nil
}

func (s *staticIdentityLister) RemoveEntitlement(context.Context, string) error {
	return nil
}

type countingDeleter struct {
	n int
}

func (c *countingDeleter) DeleteAccount(context.Context, string) error {
	c.n++
	return nil
}

func newReconcileRouter(identities []model.Identity) (*chi.Mux, *countingDeleter) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	deleter := &countingDeleter{}
	rc := reconcile.NewReconciler(&staticIdentityLister{identities: identities}, deleter, logger, nil, reconcile.Config{Workers: 1})
	h := NewReconcileHandler(rc, logger)

	r := chi.NewRouter()
	r.Post("/api/v1/admin/reconcile/{job}", h.Run)
	return r, deleter
}

func TestReconcileHandler_Inactive(t *testing.T) {
	t.Parallel()

	stale := time.Now().UTC().Add(-90 * 24 * time.Hour)
	router, deleter := newReconcileRouter([]model.Identity{
		{UID: "stale", LastSignIn: stale},
		{UID: "fresh", LastSignIn: time.Now().UTC()},
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/admin/reconcile/inactive", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var summary reconcile.Summary
	if err := json.NewDecoder(rec.Body).Decode(&summary); err != nil {
		t.Fatalf("decode summary: %v", err)
	}
	if summary.Scanned != 2 || summary.Processed != 1 {
		t.Errorf("summary = %+v, want scanned 2 processed 1", summary)
	}
	if deleter.n != 1 {
		t.Errorf("deletions = %d, want 1", deleter.n)
	}
}

func TestReconcileHandler_Expired(t *testing.T) {
	t.Parallel()

	router, _ := newReconcileRouter(nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/admin/reconcile/expired", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestReconcileHandler_UnknownJob(t *testing.T) {
	t.Parallel()

	router, _ := newReconcileRouter(nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/admin/reconcile/bogus", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}
