package security

import (
	"errors"
	"testing"
	"time"
)

func newTestIssuer(t *testing.T) *TokenIssuer {
	t.Helper()
	issuer, err := NewTokenIssuer("unit-test-secret", "hospital-records", 15*time.Minute, 7*24*time.Hour)
	if err != nil {
		t.Fatalf("NewTokenIssuer returned error: %v", err)
	}
	return issuer
}

func TestTokenIssuerRoundTrip(t *testing.T) {
	issuer := newTestIssuer(t)

	access, refresh, err := issuer.IssuePair("acc-1", "doctor", "DR001")
	if err != nil {
		t.Fatalf("IssuePair returned error: %v", err)
	}

	claims, err := issuer.Parse(access, TokenUseAccess)
	if err != nil {
		t.Fatalf("Parse access token: %v", err)
	}
	if claims.Subject != "acc-1" || claims.Kind != "doctor" || claims.IdentityKey != "DR001" {
		t.Fatalf("unexpected claims: %+v", claims)
	}

	if _, err := issuer.Parse(refresh, TokenUseRefresh); err != nil {
		t.Fatalf("Parse refresh token: %v", err)
	}
}

func TestTokenIssuerRejectsWrongUse(t *testing.T) {
	issuer := newTestIssuer(t)

	access, refresh, err := issuer.IssuePair("acc-1", "doctor", "DR001")
	if err != nil {
		t.Fatalf("IssuePair returned error: %v", err)
	}

	if _, err := issuer.Parse(access, TokenUseRefresh); !errors.Is(err, ErrTokenWrongUse) {
		t.Fatalf("expected ErrTokenWrongUse for access token, got %v", err)
	}
	if _, err := issuer.Parse(refresh, TokenUseAccess); !errors.Is(err, ErrTokenWrongUse) {
		t.Fatalf("expected ErrTokenWrongUse for refresh token, got %v", err)
	}
}

func TestTokenIssuerRejectsExpired(t *testing.T) {
	issuer := newTestIssuer(t)

	issued := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	issuer.WithClock(func() time.Time { return issued })

	access, _, err := issuer.IssuePair("acc-1", "doctor", "DR001")
	if err != nil {
		t.Fatalf("IssuePair returned error: %v", err)
	}

	issuer.WithClock(func() time.Time { return issued.Add(16 * time.Minute) })
	if _, err := issuer.Parse(access, TokenUseAccess); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestTokenIssuerRejectsForeignSignature(t *testing.T) {
	issuer := newTestIssuer(t)
	other, err := NewTokenIssuer("different-secret", "hospital-records", 0, 0)
	if err != nil {
		t.Fatalf("NewTokenIssuer returned error: %v", err)
	}

	access, _, err := other.IssuePair("acc-1", "doctor", "DR001")
	if err != nil {
		t.Fatalf("IssuePair returned error: %v", err)
	}

	if _, err := issuer.Parse(access, TokenUseAccess); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}
}
