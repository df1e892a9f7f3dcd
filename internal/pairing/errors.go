package pairing

import "errors"

// Errors returned by pairing operations. Precondition violations are detected
// from the transaction's own reads, never from caller-cached state.
var (
	// ErrEmailRequired is returned when the receiver email is missing.
	ErrEmailRequired = errors.New("receiver email is required")
	// ErrSelfRequest is returned when an account targets itself.
	ErrSelfRequest = errors.New("receiver email is the caller's own")
	// ErrAccountNotFound is returned when no account matches the given key.
	ErrAccountNotFound = errors.New("account not found")
	// ErrAlreadyPaired is returned when either side already has a partner.
	ErrAlreadyPaired = errors.New("account already has a partner")
	// ErrRequestPending is returned when either side already has a pending request.
	ErrRequestPending = errors.New("account has a pending partner request")
	// ErrNoPartner is returned when an unpaired account tries to unpair.
	ErrNoPartner = errors.New("account has no partner")
	// ErrNoPendingRequest is returned when no request exists to act on.
	ErrNoPendingRequest = errors.New("no pending partner request")
)
