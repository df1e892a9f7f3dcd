// Package pairing implements the partner-pairing state machine. Every
// transition runs as one atomic multi-record transaction against the account
// store, keeping the mirrored partner/request fields and the couple record
// consistent on both sides.
package pairing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pairlink/pairlink/internal/metrics"
	"github.com/pairlink/pairlink/internal/model"
)

// Service executes pairing transitions.
type Service struct {
	store    Store
	identity IdentityDeleter
	logger   *slog.Logger
	metrics  metrics.Recorder
}

// NewService creates a pairing Service.
func NewService(store Store, identity IdentityDeleter, logger *slog.Logger, recorder metrics.Recorder) *Service {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &Service{
		store:    store,
		identity: identity,
		logger:   logger.With("component", "pairing"),
		metrics:  recorder,
	}
}

// LinkResult reports the two sides of a completed direct pairing.
type LinkResult struct {
	Sender   model.PartnerInfo
	Receiver model.PartnerInfo
	CoupleID string
}

// SendRequest records a pending partner request from the caller to the
// account resolved by receiverEmail. Both mirrored request fields are written
// in one transaction.
func (s *Service) SendRequest(ctx context.Context, caller model.Caller, receiverEmail string) error {
	receiverEmail = strings.TrimSpace(receiverEmail)
	if receiverEmail == "" {
		return ErrEmailRequired
	}
	if receiverEmail == caller.Email {
		return ErrSelfRequest
	}

	err := s.store.RunTransaction(ctx, func(tx Tx) error {
		sender, err := tx.Account(caller.UID)
		if err != nil {
			return err
		}
		receiver, err := tx.AccountByEmail(receiverEmail)
		if err != nil {
			return err
		}
		if receiver.UID == sender.UID {
			return ErrSelfRequest
		}

		if err := requireUnpaired(receiver); err != nil {
			return err
		}
		if err := requireUnpaired(sender); err != nil {
			return err
		}

		receiver.RequestIn = ptr(sender.Info())
		sender.RequestOut = ptr(receiver.Info())

		if err := tx.SaveAccount(receiver); err != nil {
			return err
		}
		return tx.SaveAccount(sender)
	})
	s.record(ctx, "send_request", err, "sender_uid", caller.UID)
	return err
}

// CancelRequest withdraws the caller's outgoing request, clearing the
// mirrored field on the receiving side.
func (s *Service) CancelRequest(ctx context.Context, callerUID string) error {
	err := s.store.RunTransaction(ctx, func(tx Tx) error {
		sender, err := tx.Account(callerUID)
		if err != nil {
			return err
		}
		if sender.RequestOut == nil {
			return ErrNoPendingRequest
		}

		if err := s.clearCounterpart(tx, sender.RequestOut.UID, func(peer *model.Account) {
			peer.RequestIn = nil
		}); err != nil {
			return err
		}

		sender.RequestOut = nil
		return tx.SaveAccount(sender)
	})
	s.record(ctx, "cancel_request", err, "sender_uid", callerUID)
	return err
}

// RejectRequest declines the caller's incoming request, clearing the mirrored
// field on the sending side.
func (s *Service) RejectRequest(ctx context.Context, callerUID string) error {
	err := s.store.RunTransaction(ctx, func(tx Tx) error {
		receiver, err := tx.Account(callerUID)
		if err != nil {
			return err
		}
		if receiver.RequestIn == nil {
			return ErrNoPendingRequest
		}

		if err := s.clearCounterpart(tx, receiver.RequestIn.UID, func(peer *model.Account) {
			peer.RequestOut = nil
		}); err != nil {
			return err
		}

		receiver.RequestIn = nil
		return tx.SaveAccount(receiver)
	})
	s.record(ctx, "reject_request", err, "receiver_uid", callerUID)
	return err
}

// AcceptRequest turns the caller's incoming request into a pairing: it
// creates the couple record, sets both partner fields referencing it and
// clears both request fields, all in one transaction.
func (s *Service) AcceptRequest(ctx context.Context, callerUID string) error {
	err := s.store.RunTransaction(ctx, func(tx Tx) error {
		receiver, err := tx.Account(callerUID)
		if err != nil {
			return err
		}
		if receiver.RequestIn == nil {
			return ErrNoPendingRequest
		}

		sender, err := tx.Account(receiver.RequestIn.UID)
		if err != nil {
			return err
		}

		coupleID, err := tx.CreateCouple(receiver.UID, sender.UID)
		if err != nil {
			return err
		}

		receiver.Partner = ptr(sender.Info())
		receiver.CoupleID = coupleID
		receiver.RequestIn = nil

		sender.Partner = ptr(receiver.Info())
		sender.CoupleID = coupleID
		sender.RequestOut = nil

		if err := tx.SaveAccount(receiver); err != nil {
			return err
		}
		return tx.SaveAccount(sender)
	})
	s.record(ctx, "accept_request", err, "receiver_uid", callerUID)
	return err
}

// Link pairs the caller directly with the account resolved by receiverEmail,
// without a request handshake. It is the pairing half of the link-and-share
// composite operation; the entitlement propagation on top of it lives in the
// entitlement package.
func (s *Service) Link(ctx context.Context, caller model.Caller, receiverEmail string) (*LinkResult, error) {
	receiverEmail = strings.TrimSpace(receiverEmail)
	if receiverEmail == "" {
		return nil, ErrEmailRequired
	}
	if receiverEmail == caller.Email {
		return nil, ErrSelfRequest
	}

	var result LinkResult
	err := s.store.RunTransaction(ctx, func(tx Tx) error {
		sender, err := tx.Account(caller.UID)
		if err != nil {
			return err
		}
		receiver, err := tx.AccountByEmail(receiverEmail)
		if err != nil {
			return err
		}
		if receiver.UID == sender.UID {
			return ErrSelfRequest
		}

		if err := requireUnpaired(receiver); err != nil {
			return err
		}
		if err := requireUnpaired(sender); err != nil {
			return err
		}

		coupleID, err := tx.CreateCouple(receiver.UID, sender.UID)
		if err != nil {
			return err
		}

		receiver.Partner = ptr(sender.Info())
		receiver.CoupleID = coupleID
		sender.Partner = ptr(receiver.Info())
		sender.CoupleID = coupleID

		if err := tx.SaveAccount(receiver); err != nil {
			return err
		}
		if err := tx.SaveAccount(sender); err != nil {
			return err
		}

		result = LinkResult{
			Sender:   sender.Info(),
			Receiver: receiver.Info(),
			CoupleID: coupleID,
		}
		return nil
	})
	s.record(ctx, "link", err, "sender_uid", caller.UID)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// RemovePartner dissolves the caller's pairing: both partner fields are
// cleared and the couple record deleted in one transaction.
func (s *Service) RemovePartner(ctx context.Context, callerUID string) error {
	err := s.store.RunTransaction(ctx, func(tx Tx) error {
		account, err := tx.Account(callerUID)
		if err != nil {
			return err
		}
		if account.Partner == nil {
			return ErrNoPartner
		}
		return unpair(tx, account)
	})
	s.record(ctx, "remove_partner", err, "uid", callerUID)
	return err
}

// Unlink dissolves the pairing between the two uids if it still exists. It is
// the idempotent compensation primitive for the link-and-share saga: when the
// accounts are no longer paired with each other the call succeeds without
// mutating anything, so a retried compensation converges.
func (s *Service) Unlink(ctx context.Context, uidA, uidB string) error {
	err := s.store.RunTransaction(ctx, func(tx Tx) error {
		account, err := tx.Account(uidA)
		if errors.Is(err, ErrAccountNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if account.Partner == nil || account.Partner.UID != uidB {
			return nil
		}
		return unpair(tx, account)
	})
	s.record(ctx, "unlink", err, "uid_a", uidA, "uid_b", uidB)
	return err
}

// Account reads a single account record.
func (s *Service) Account(ctx context.Context, uid string) (*model.Account, error) {
	var account *model.Account
	err := s.store.RunTransaction(ctx, func(tx Tx) error {
		a, err := tx.Account(uid)
		if err != nil {
			return err
		}
		account = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return account, nil
}

// FlagTokenRefresh marks the given accounts so clients re-fetch credentials.
// Accounts that no longer exist are skipped.
func (s *Service) FlagTokenRefresh(ctx context.Context, uids ...string) error {
	return s.store.RunTransaction(ctx, func(tx Tx) error {
		for _, uid := range uids {
			account, err := tx.Account(uid)
			if errors.Is(err, ErrAccountNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			account.RefreshToken = true
			if err := tx.SaveAccount(account); err != nil {
				return err
			}
		}
		return nil
	})
}

// DeleteAccount removes the account record together with every mirrored
// reference to it, then deletes the identity-store record as a separate
// post-commit step. The whole operation is idempotent: a record that is
// already gone is treated as success, and the identity deletion runs
// regardless, so a retry after a partial prior failure converges.
func (s *Service) DeleteAccount(ctx context.Context, uid string) error {
	err := s.store.RunTransaction(ctx, func(tx Tx) error {
		account, err := tx.Account(uid)
		if errors.Is(err, ErrAccountNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		if account.Partner != nil {
			if err := s.clearCounterpart(tx, account.Partner.UID, func(peer *model.Account) {
				peer.Partner = nil
				peer.CoupleID = ""
			}); err != nil {
				return err
			}
			if account.CoupleID != "" {
				if err := tx.DeleteCouple(account.CoupleID); err != nil {
					return err
				}
			}
		}
		if account.RequestOut != nil {
			if err := s.clearCounterpart(tx, account.RequestOut.UID, func(peer *model.Account) {
				peer.RequestIn = nil
			}); err != nil {
				return err
			}
		}
		if account.RequestIn != nil {
			if err := s.clearCounterpart(tx, account.RequestIn.UID, func(peer *model.Account) {
				peer.RequestOut = nil
			}); err != nil {
				return err
			}
		}

		return tx.DeleteAccount(uid)
	})
	if err != nil {
		s.record(ctx, "delete_account", err, "uid", uid)
		return err
	}

	// Identity removal is not transactional with the account store. It is
	// idempotent, so the caller can retry the whole operation on failure.
	if err := s.identity.Delete(ctx, uid); err != nil {
		err = fmt.Errorf("remove identity: %w", err)
		s.record(ctx, "delete_account", err, "uid", uid)
		return err
	}

	s.record(ctx, "delete_account", nil, "uid", uid)
	return nil
}

// unpair clears both partner fields and deletes the couple record. The
// counterpart row may already be gone; the remaining references are cleaned
// up regardless.
func unpair(tx Tx, account *model.Account) error {
	partnerUID := account.Partner.UID
	coupleID := account.CoupleID

	peer, err := tx.Account(partnerUID)
	if err == nil {
		peer.Partner = nil
		peer.CoupleID = ""
		if err := tx.SaveAccount(peer); err != nil {
			return err
		}
	} else if !errors.Is(err, ErrAccountNotFound) {
		return err
	}

	account.Partner = nil
	account.CoupleID = ""
	if err := tx.SaveAccount(account); err != nil {
		return err
	}

	if coupleID != "" {
		return tx.DeleteCouple(coupleID)
	}
	return nil
}

// clearCounterpart applies mutate to the peer account and saves it. A peer
// that no longer exists leaves nothing to clear.
func (s *Service) clearCounterpart(tx Tx, peerUID string, mutate func(*model.Account)) error {
	peer, err := tx.Account(peerUID)
	if errors.Is(err, ErrAccountNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	mutate(peer)
	return tx.SaveAccount(peer)
}

// requireUnpaired rejects accounts that already have a partner or a pending
// request in either direction. Requests are single-slot on both sides.
func requireUnpaired(a *model.Account) error {
	if a.Paired() {
		return ErrAlreadyPaired
	}
	if a.HasPendingRequest() {
		return ErrRequestPending
	}
	return nil
}

func (s *Service) record(ctx context.Context, op string, err error, attrs ...any) {
	if err != nil {
		s.metrics.IncPairingOp(op, "error")
		s.logger.WarnContext(ctx, "pairing operation failed", append([]any{"op", op, "error", err}, attrs...)...)
		return
	}
	s.metrics.IncPairingOp(op, "success")
	s.logger.InfoContext(ctx, "pairing operation completed", append([]any{"op", op}, attrs...)...)
}

func ptr(info model.PartnerInfo) *model.PartnerInfo {
	return &info
}
