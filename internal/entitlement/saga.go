// Package entitlement orchestrates the premium entitlement across a pairing.
// The pairing transaction and the entitlement grant live in two independent
// transactional domains, so the link-and-share composite runs as an explicit
// saga: pair first, propagate the entitlement second, and compensate the
// pairing when propagation fails.
package entitlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pairlink/pairlink/internal/metrics"
	"github.com/pairlink/pairlink/internal/model"
	"github.com/pairlink/pairlink/internal/pairing"
)

// ErrShareFailed is returned when entitlement propagation failed and the
// pairing was rolled back.
var ErrShareFailed = errors.New("entitlement share failed, pairing reverted")

// Compensation retries. The compensating unlink is idempotent, so a short
// bounded retry is safe; after the last attempt the inconsistency is logged
// for operator reconciliation.
var compensationDelays = []time.Duration{
	100 * time.Millisecond,
	500 * time.Millisecond,
	2 * time.Second,
}

// Pairing is the slice of the pairing state machine the saga drives.
type Pairing interface {
	Link(ctx context.Context, caller model.Caller, receiverEmail string) (*pairing.LinkResult, error)
	Unlink(ctx context.Context, uidA, uidB string) error
	Account(ctx context.Context, uid string) (*model.Account, error)
	FlagTokenRefresh(ctx context.Context, uids ...string) error
}

// IdentityStore is the slice of the identity store the saga reads and writes.
type IdentityStore interface {
	Entitlement(ctx context.Context, uid string) (*model.Entitlement, error)
	SetEntitlement(ctx context.Context, uid string, e model.Entitlement) error
}

// Saga runs the cross-store entitlement propagation.
type Saga struct {
	pairing  Pairing
	identity IdentityStore
	logger   *slog.Logger
	metrics  metrics.Recorder

	// sleep is swapped out in tests to skip compensation backoff.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewSaga creates a Saga.
func NewSaga(p Pairing, identity IdentityStore, logger *slog.Logger, recorder metrics.Recorder) *Saga {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &Saga{
		pairing:  p,
		identity: identity,
		logger:   logger.With("component", "entitlement"),
		metrics:  recorder,
		sleep:    sleepCtx,
	}
}

// LinkAndShare pairs the caller with the account behind receiverEmail and
// mirrors whichever active entitlement one side already holds onto the other.
// The caller's entitlement wins when both sides hold one.
//
// The pairing transaction commits before the grant is attempted. A failed
// grant triggers the compensating unlink; a failed entitlement lookup leaves
// the pairing in place, since paired-but-unentitled is a convergeable state
// while a dangling half-grant is not.
func (s *Saga) LinkAndShare(ctx context.Context, caller model.Caller, receiverEmail string) error {
	linked, err := s.pairing.Link(ctx, caller, receiverEmail)
	if err != nil {
		return err
	}

	senderEnt, err := s.identity.Entitlement(ctx, linked.Sender.UID)
	if err != nil {
		return fmt.Errorf("lookup sender entitlement: %w", err)
	}
	receiverEnt, err := s.identity.Entitlement(ctx, linked.Receiver.UID)
	if err != nil {
		return fmt.Errorf("lookup receiver entitlement: %w", err)
	}

	var (
		grantee string
		source  *model.Entitlement
	)
	switch {
	case isActive(senderEnt):
		grantee, source = linked.Receiver.UID, senderEnt
	case isActive(receiverEnt):
		grantee, source = linked.Sender.UID, receiverEnt
	default:
		// Neither side is entitled; the pairing alone is the whole result.
		return nil
	}

	grant := model.Entitlement{Since: source.Since, Expiry: source.Expiry, Active: true}
	if err := s.identity.SetEntitlement(ctx, grantee, grant); err != nil {
		s.logger.ErrorContext(ctx, "entitlement grant failed, compensating pairing",
			"grantee_uid", grantee,
			"sender_uid", linked.Sender.UID,
			"receiver_uid", linked.Receiver.UID,
			"error", err,
		)
		s.compensate(ctx, linked.Sender.UID, linked.Receiver.UID)
		return fmt.Errorf("%w: %v", ErrShareFailed, err)
	}
	s.metrics.IncEntitlementGranted()

	if err := s.pairing.FlagTokenRefresh(ctx, linked.Sender.UID, linked.Receiver.UID); err != nil {
		// Pairing and grant are both committed; the flag only accelerates
		// client refresh, so a failure here must not unwind anything.
		s.logger.WarnContext(ctx, "failed to flag token refresh", "error", err)
	}

	s.logger.InfoContext(ctx, "entitlement shared",
		"grantee_uid", grantee,
		"expiry", grant.Expiry,
	)
	return nil
}

// Grant applies a purchased entitlement to the account and, when paired, to
// its partner. It backs the payment-completion interface: failures are logged
// by the caller and never surfaced to the payment provider.
func (s *Saga) Grant(ctx context.Context, uid string, since, expiry time.Time) error {
	ent := model.Entitlement{Since: since, Expiry: expiry, Active: true}

	if err := s.identity.SetEntitlement(ctx, uid, ent); err != nil {
		return fmt.Errorf("grant entitlement to %s: %w", uid, err)
	}
	s.metrics.IncEntitlementGranted()

	flagged := []string{uid}

	account, err := s.pairing.Account(ctx, uid)
	switch {
	case errors.Is(err, pairing.ErrAccountNotFound):
		// Identity without account record; nothing to mirror.
	case err != nil:
		return fmt.Errorf("read account %s: %w", uid, err)
	case account.Partner != nil:
		if err := s.identity.SetEntitlement(ctx, account.Partner.UID, ent); err != nil {
			return fmt.Errorf("grant entitlement to partner %s: %w", account.Partner.UID, err)
		}
		s.metrics.IncEntitlementGranted()
		flagged = append(flagged, account.Partner.UID)
	}

	if err := s.pairing.FlagTokenRefresh(ctx, flagged...); err != nil {
		s.logger.WarnContext(ctx, "failed to flag token refresh", "error", err)
	}

	s.logger.InfoContext(ctx, "entitlement granted",
		"uid", uid,
		"mirrored", len(flagged) > 1,
		"expiry", expiry,
	)
	return nil
}

// compensate undoes the committed pairing after a failed grant. Unlink is
// idempotent, so each retry either finishes the revert or confirms it already
// happened. Exhausting the retries leaves an inconsistency that only an
// operator can resolve; it is logged as such and not retried further.
func (s *Saga) compensate(ctx context.Context, senderUID, receiverUID string) {
	var lastErr error
	for attempt := 0; attempt <= len(compensationDelays); attempt++ {
		if attempt > 0 {
			if err := s.sleep(ctx, compensationDelays[attempt-1]); err != nil {
				lastErr = err
				break
			}
		}
		if lastErr = s.pairing.Unlink(ctx, senderUID, receiverUID); lastErr == nil {
			s.metrics.IncSagaCompensation("reverted")
			return
		}
	}

	s.metrics.IncSagaCompensation("failed")
	s.logger.ErrorContext(ctx, "unresolved inconsistency: pairing compensation failed",
		"sender_uid", senderUID,
		"receiver_uid", receiverUID,
		"error", lastErr,
	)
}

func isActive(e *model.Entitlement) bool {
	return e != nil && e.Active
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
