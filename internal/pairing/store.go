package pairing

import (
	"context"

	"github.com/pairlink/pairlink/internal/model"
)

// Store is the transactional contract the state machine runs on. The
// implementation must re-execute fn from scratch when a conflicting
// concurrent write is detected, so fn has to be free of side effects
// beyond the mutations it issues through Tx.
type Store interface {
	RunTransaction(ctx context.Context, fn func(tx Tx) error) error
}

// Tx provides typed multi-record access within one transaction. Reads
// observe a consistent snapshot; every precondition check in a transition
// uses these reads.
type Tx interface {
	// Account returns the record for uid, or ErrAccountNotFound.
	Account(uid string) (*model.Account, error)
	// AccountByEmail resolves an account by email, or ErrAccountNotFound.
	AccountByEmail(email string) (*model.Account, error)
	// SaveAccount writes the full record back.
	SaveAccount(a *model.Account) error
	// DeleteAccount removes the record. Deleting a missing record is not
	// an error.
	DeleteAccount(uid string) error
	// CreateCouple creates a couple record owned by exactly the two uids
	// and returns its generated id.
	CreateCouple(ownerA, ownerB string) (string, error)
	// DeleteCouple removes a couple record. Idempotent.
	DeleteCouple(id string) error
}

// IdentityDeleter removes an account's record from the identity store. It is
// a separate transactional domain from Store; callers invoke it only after
// the account-store transaction has committed.
type IdentityDeleter interface {
	Delete(ctx context.Context, uid string) error
}
