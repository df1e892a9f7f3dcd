package model

import (
	"encoding/json"
	"testing"
	"time"
)

func TestEntitlementExpired(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		expiry time.Time
		want   bool
	}{
		{"future expiry", now.Add(time.Hour), false},
		{"past expiry", now.Add(-time.Hour), true},
		{"exactly now", now, true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			e := Entitlement{Expiry: tt.expiry}
			if got := e.Expired(now); got != tt.want {
				t.Errorf("Expired() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestClaims_PreservesForeignKeys(t *testing.T) {
	t.Parallel()

	raw := `{"premium":{"since":"2026-01-01T00:00:00Z","expiry":"2027-01-01T00:00:00Z","active":true},"beta_tester":true,"tier":"gold"}`

	var claims Claims
	if err := json.Unmarshal([]byte(raw), &claims); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	if claims.Premium == nil || !claims.Premium.Active {
		t.Fatalf("Premium = %+v, want active entitlement", claims.Premium)
	}
	if claims.Extra["beta_tester"] != true {
		t.Errorf("Extra[beta_tester] = %v, want true", claims.Extra["beta_tester"])
	}

	// A read-modify-write cycle must keep the foreign keys.
	claims.Premium = nil
	out, err := json.Marshal(claims)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	var rewritten map[string]any
	if err := json.Unmarshal(out, &rewritten); err != nil {
		t.Fatalf("reparse: %v", err)
	}
	if _, ok := rewritten["premium"]; ok {
		t.Error("cleared premium claim still serialized")
	}
	if rewritten["tier"] != "gold" {
		t.Errorf("tier = %v, want gold preserved", rewritten["tier"])
	}
}

func TestClaims_EmptySerializesToObject(t *testing.T) {
	t.Parallel()

	out, err := json.Marshal(Claims{})
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if string(out) != "{}" {
		t.Errorf("Marshal() = %s, want {}", out)
	}
}

func TestIdentityEntitlement(t *testing.T) {
	t.Parallel()

	var id Identity
	if id.Entitlement() != nil {
		t.Error("empty identity reports an entitlement")
	}

	id.Claims.Premium = &Entitlement{Active: true}
	if got := id.Entitlement(); got == nil || !got.Active {
		t.Errorf("Entitlement() = %+v, want the premium claim", got)
	}
}
