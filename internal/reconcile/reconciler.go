// Package reconcile runs the scheduled bulk jobs that reclaim inactive
// accounts and revoke expired entitlements. Both jobs share the same shape:
// enumerate the whole identity store, filter candidates, and process them
// through a bounded worker pool with per-item fault isolation.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/pairlink/pairlink/internal/metrics"
	"github.com/pairlink/pairlink/internal/model"
)

const (
	// JobPurgeInactive deletes accounts with no recent sign-in and no live
	// entitlement.
	JobPurgeInactive = "purge_inactive"
	// JobRevokeExpired strips entitlements whose expiry has passed.
	JobRevokeExpired = "revoke_expired"

	// DefaultPageSize is the identity enumeration page size.
	DefaultPageSize = 1000
	// DefaultWorkers caps concurrent per-candidate processing.
	DefaultWorkers = 3
	// DefaultInactiveAfter is how long without a sign-in makes an account
	// a deletion candidate.
	DefaultInactiveAfter = 60 * 24 * time.Hour
)

// IdentityStore is the slice of the identity store the jobs consume.
type IdentityStore interface {
	List(ctx context.Context, pageToken string, pageSize int64) ([]model.Identity, string, error)
	RemoveEntitlement(ctx context.Context, uid string) error
}

// AccountDeleter tears down one account end to end: pairing cleanup, account
// record and identity record. The pairing state machine provides it.
type AccountDeleter interface {
	DeleteAccount(ctx context.Context, uid string) error
}

// Config tunes a Reconciler. Zero values fall back to the defaults.
type Config struct {
	PageSize      int64
	Workers       int
	InactiveAfter time.Duration
}

// Summary reports one job run.
type Summary struct {
	Scanned    int `json:"scanned"`
	Candidates int `json:"candidates"`
	Processed  int `json:"processed"`
	Failed     int `json:"failed"`
}

// Reconciler owns both reconciliation jobs.
type Reconciler struct {
	identity IdentityStore
	accounts AccountDeleter
	logger   *slog.Logger
	metrics  metrics.Recorder
	cfg      Config

	// now is swapped out in tests.
	now func() time.Time
}

// NewReconciler creates a Reconciler.
func NewReconciler(identity IdentityStore, accounts AccountDeleter, logger *slog.Logger, recorder metrics.Recorder, cfg Config) *Reconciler {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.InactiveAfter <= 0 {
		cfg.InactiveAfter = DefaultInactiveAfter
	}
	return &Reconciler{
		identity: identity,
		accounts: accounts,
		logger:   logger.With("component", "reconcile"),
		metrics:  recorder,
		cfg:      cfg,
		now:      time.Now,
	}
}

// PurgeInactiveAccounts deletes every account whose last sign-in is older
// than the inactivity window and whose entitlement, if any, has expired.
// Enumeration failure aborts the run; per-candidate failures are logged and
// the remaining candidates still process.
func (r *Reconciler) PurgeInactiveAccounts(ctx context.Context) (Summary, error) {
	now := r.now()
	cutoff := now.Add(-r.cfg.InactiveAfter)

	return r.run(ctx, JobPurgeInactive,
		func(id *model.Identity) bool {
			if !id.LastSignIn.Before(cutoff) {
				return false
			}
			ent := id.Entitlement()
			return ent == nil || ent.Expired(now)
		},
		func(ctx context.Context, id model.Identity) error {
			if err := r.accounts.DeleteAccount(ctx, id.UID); err != nil {
				return err
			}
			r.logger.InfoContext(ctx, "deleted inactive account",
				"uid", id.UID,
				"last_sign_in", id.LastSignIn,
			)
			return nil
		},
	)
}

// RevokeExpiredEntitlements strips the premium claim from every account whose
// entitlement expiry has passed. Only the expiring account's own claim is
// touched; the partner's claim carries its own expiry and is picked up by the
// same job when it lapses.
func (r *Reconciler) RevokeExpiredEntitlements(ctx context.Context) (Summary, error) {
	now := r.now()

	return r.run(ctx, JobRevokeExpired,
		func(id *model.Identity) bool {
			ent := id.Entitlement()
			return ent != nil && ent.Expired(now)
		},
		func(ctx context.Context, id model.Identity) error {
			if err := r.identity.RemoveEntitlement(ctx, id.UID); err != nil {
				return err
			}
			r.metrics.IncEntitlementRevoked()
			r.logger.InfoContext(ctx, "revoked expired entitlement", "uid", id.UID)
			return nil
		},
	)
}

// run is the common job shape: enumerate, filter, drain through the pool.
func (r *Reconciler) run(ctx context.Context, job string, keep func(*model.Identity) bool, process func(context.Context, model.Identity) error) (Summary, error) {
	start := time.Now()

	all, err := r.listAll(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("enumerate identities: %w", err)
	}

	candidates := make([]model.Identity, 0)
	for i := range all {
		if keep(&all[i]) {
			candidates = append(candidates, all[i])
		}
	}

	r.logger.InfoContext(ctx, "reconciliation job starting",
		"job", job,
		"scanned", len(all),
		"candidates", len(candidates),
	)

	var processed, failed atomic.Int64
	runPool(ctx, r.cfg.Workers, candidates, func(ctx context.Context, id model.Identity) {
		if err := process(ctx, id); err != nil {
			failed.Add(1)
			r.metrics.IncJobItem(job, "failed")
			r.logger.ErrorContext(ctx, "reconciliation item failed",
				"job", job,
				"uid", id.UID,
				"error", err,
			)
			return
		}
		processed.Add(1)
		r.metrics.IncJobItem(job, "success")
	})

	summary := Summary{
		Scanned:    len(all),
		Candidates: len(candidates),
		Processed:  int(processed.Load()),
		Failed:     int(failed.Load()),
	}

	duration := time.Since(start)
	r.metrics.ObserveJobDuration(job, duration)
	r.logger.InfoContext(ctx, "reconciliation job finished",
		"job", job,
		"processed", summary.Processed,
		"failed", summary.Failed,
		"duration_ms", float64(duration.Microseconds())/1000,
	)
	return summary, nil
}

// listAll pages through the identity store, following the continuation token
// until exhaustion, and returns the accumulated records.
func (r *Reconciler) listAll(ctx context.Context) ([]model.Identity, error) {
	var (
		all   []model.Identity
		token string
	)
	for {
		page, next, err := r.identity.List(ctx, token, r.cfg.PageSize)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if next == "" {
			return all, nil
		}
		token = next
	}
}
