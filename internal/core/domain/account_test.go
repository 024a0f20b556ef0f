package domain

import (
	"testing"
	"time"
)

func TestAccountLocksAtThreshold(t *testing.T) {
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	acc := &Account{}

	for i := 0; i < 4; i++ {
		acc.RecordFailure(now, 5, 30*time.Minute)
		if acc.Locked(now) {
			t.Fatalf("locked after %d failures", i+1)
		}
	}

	acc.RecordFailure(now, 5, 30*time.Minute)
	if !acc.Locked(now) {
		t.Fatal("expected lock after fifth failure")
	}
	if got := acc.RemainingLock(now); got != 30*time.Minute {
		t.Fatalf("remaining lock = %v, want 30m", got)
	}
}

func TestAccountLockExpiresExactlyAtBoundary(t *testing.T) {
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	until := now.Add(30 * time.Minute)
	acc := &Account{LoginAttempts: 5, LockedUntil: &until}

	if !acc.Locked(until.Add(-time.Second)) {
		t.Fatal("expected locked just before expiry")
	}
	if acc.Locked(until) {
		t.Fatal("expected unlocked exactly at expiry instant")
	}
	if got := acc.RemainingLock(until); got != 0 {
		t.Fatalf("remaining lock after expiry = %v, want 0", got)
	}
}

func TestAccountReLocksAfterLapsedLock(t *testing.T) {
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	past := now.Add(-time.Minute)
	acc := &Account{LoginAttempts: 5, LockedUntil: &past}

	if acc.Locked(now) {
		t.Fatal("lapsed lock should not count as locked")
	}

	// Attempts survive lock expiry, so one more failure re-locks.
	acc.RecordFailure(now, 5, 30*time.Minute)
	if !acc.Locked(now) {
		t.Fatal("expected immediate re-lock after failure past a lapsed lock")
	}
}

func TestAccountRecordSuccessResetsState(t *testing.T) {
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	acc := &Account{}
	for i := 0; i < 3; i++ {
		acc.RecordFailure(now, 5, 30*time.Minute)
	}

	acc.RecordSuccess()
	if acc.LoginAttempts != 0 {
		t.Fatalf("attempts = %d, want 0", acc.LoginAttempts)
	}
	if acc.LockedUntil != nil {
		t.Fatal("expected lock cleared")
	}

	// Counter restarts from zero after a success.
	for i := 0; i < 4; i++ {
		acc.RecordFailure(now, 5, 30*time.Minute)
	}
	if acc.Locked(now) {
		t.Fatal("four failures after a reset must not lock")
	}
}
