// Package model defines the core data types shared across the application.
package model

import "time"

// PairingState describes where an account sits in the pairing lifecycle.
// The state is derived from which of the mutually exclusive pairing fields
// is set on the account, not stored separately.
type PairingState string

const (
	// StateUnpaired means the account has no partner and no pending request.
	StateUnpaired PairingState = "unpaired"
	// StateRequestSent means the account has an outgoing partner request.
	StateRequestSent PairingState = "request_sent"
	// StateRequestReceived means the account has an incoming partner request.
	StateRequestReceived PairingState = "request_received"
	// StatePaired means the account is linked to a partner.
	StatePaired PairingState = "paired"
)

// PartnerInfo is the denormalized back-reference an account keeps about its
// counterpart: the partner when paired, or the other side of a pending request.
type PartnerInfo struct {
	UID   string `json:"uid"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Account is a single user record in the account store.
//
// At most one of Partner, RequestOut and RequestIn may be set at a time, and
// CoupleID is set exactly when Partner is. The mirrored fields on the
// counterpart account are maintained in the same transaction.
type Account struct {
	UID   string `json:"uid"`
	Email string `json:"email"`
	Name  string `json:"name"`

	// Partner and CoupleID are set while paired.
	Partner  *PartnerInfo `json:"partner,omitempty"`
	CoupleID string       `json:"couple_id,omitempty"`

	// RequestOut is a pending request this account sent.
	RequestOut *PartnerInfo `json:"request_out,omitempty"`
	// RequestIn is a pending request this account received.
	RequestIn *PartnerInfo `json:"request_in,omitempty"`

	// RefreshToken signals clients that their claims changed and the ID
	// token should be re-fetched.
	RefreshToken bool `json:"refresh_token"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// State derives the pairing state from the account's fields.
func (a *Account) State() PairingState {
	switch {
	case a.Partner != nil:
		return StatePaired
	case a.RequestOut != nil:
		return StateRequestSent
	case a.RequestIn != nil:
		return StateRequestReceived
	default:
		return StateUnpaired
	}
}

// Paired reports whether the account currently has a partner.
func (a *Account) Paired() bool {
	return a.Partner != nil
}

// HasPendingRequest reports whether a request is pending in either direction.
func (a *Account) HasPendingRequest() bool {
	return a.RequestOut != nil || a.RequestIn != nil
}

// Info returns the account's own PartnerInfo, as stored on its counterpart.
func (a *Account) Info() PartnerInfo {
	return PartnerInfo{UID: a.UID, Name: a.Name, Email: a.Email}
}

// CoupleRecord represents an active pairing. It is created by the accept and
// link transitions and deleted in the same transaction that clears the last
// partner field referencing it.
type CoupleRecord struct {
	ID        string    `json:"id"`
	Owners    [2]string `json:"owners"`
	CreatedAt time.Time `json:"created_at"`
}

// Caller is the resolved identity of an authenticated request.
type Caller struct {
	UID   string `json:"uid"`
	Email string `json:"email"`
	Name  string `json:"name"`
}
