package model

import (
	"encoding/json"
	"time"
)

// Entitlement is a time-bounded premium status attached to an account in the
// identity store. It is intentionally not linked transactionally to the
// account store; consistency across a pairing is maintained procedurally.
type Entitlement struct {
	Since  time.Time `json:"since"`
	Expiry time.Time `json:"expiry"`
	Active bool      `json:"active"`
}

// Expired reports whether the entitlement expiry has passed at the given time.
func (e *Entitlement) Expired(now time.Time) bool {
	return !e.Expiry.After(now)
}

// Claims is the opaque per-account claim set stored in the identity store.
// Premium is the only claim the service itself reads or writes; anything
// else a client put there is preserved round-trip.
type Claims struct {
	Premium *Entitlement   `json:"premium,omitempty"`
	Extra   map[string]any `json:"-"`
}

// MarshalJSON emits the premium claim alongside any preserved foreign keys.
func (c Claims) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(c.Extra)+1)
	for k, v := range c.Extra {
		out[k] = v
	}
	if c.Premium != nil {
		out["premium"] = c.Premium
	} else {
		delete(out, "premium")
	}
	return json.Marshal(out)
}

// UnmarshalJSON parses the premium claim and keeps every other key verbatim,
// so claims written by other systems survive a read-modify-write cycle.
func (c *Claims) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	c.Premium = nil
	c.Extra = nil

	for k, v := range raw {
		if k == "premium" {
			var e Entitlement
			if err := json.Unmarshal(v, &e); err != nil {
				return err
			}
			c.Premium = &e
			continue
		}
		if c.Extra == nil {
			c.Extra = make(map[string]any)
		}
		var val any
		if err := json.Unmarshal(v, &val); err != nil {
			return err
		}
		c.Extra[k] = val
	}
	return nil
}

// Identity is one account's record in the identity store.
type Identity struct {
	UID        string    `json:"uid"`
	Email      string    `json:"email"`
	LastSignIn time.Time `json:"last_sign_in"`
	Claims     Claims    `json:"claims"`
}

// Entitlement returns the premium entitlement, or nil when none is set.
func (id *Identity) Entitlement() *Entitlement {
	return id.Claims.Premium
}
