package domain

import "time"

// AccountKind distinguishes the two staff populations that can sign in.
type AccountKind string

const (
	AccountKindDoctor AccountKind = "doctor"
	AccountKindAdmin  AccountKind = "admin"
)

// Valid reports whether the kind is one of the known populations.
func (k AccountKind) Valid() bool {
	return k == AccountKindDoctor || k == AccountKindAdmin
}

// Account mirrors the persisted representation in the accounts table.
// IdentityKey is the hospital job number for doctors and the admin id
// for administrators; it is unique within a kind.
type Account struct {
	ID            string
	Kind          AccountKind
	IdentityKey   string
	Name          string
	Email         string
	Department    string
	PasswordHash  string
	LoginAttempts int
	LockedUntil   *time.Time
	CreatedAt     time.Time
}

// Locked reports whether the account is under an active timed lock at
// the given instant. A lapsed lock counts as unlocked; no sweeper is
// required to clear it.
func (a *Account) Locked(now time.Time) bool {
	return a.LockedUntil != nil && now.Before(*a.LockedUntil)
}

// RemainingLock returns how long the lock has left at the given
// instant, or zero when the account is not locked.
func (a *Account) RemainingLock(now time.Time) time.Duration {
	if !a.Locked(now) {
		return 0
	}
	return a.LockedUntil.Sub(now)
}

// RecordFailure increments the failed-attempt counter and, once the
// counter reaches threshold, starts a timed lock. Attempts survive a
// lapsed lock, so the first failure after expiry re-locks immediately;
// only RecordSuccess clears them.
func (a *Account) RecordFailure(now time.Time, threshold int, lockFor time.Duration) {
	a.LoginAttempts++
	if a.LoginAttempts >= threshold {
		until := now.Add(lockFor)
		a.LockedUntil = &until
	}
}

// RecordSuccess resets the failure counter and releases any lock.
func (a *Account) RecordSuccess() {
	a.LoginAttempts = 0
	a.LockedUntil = nil
}
