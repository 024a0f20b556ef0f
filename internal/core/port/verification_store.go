package port

import (
	"context"
	"time"

	"github.com/medscan/hospital-records/internal/core/domain"
)

// VerificationStore owns pending registration sessions. Implementations
// must make Consume atomic: exactly one concurrent caller may observe
// the session; the rest get repository.ErrNotFound.
type VerificationStore interface {
	// Put stores the session until its expiry and records it in the
	// per-identity index so a later registration can supersede it.
	Put(ctx context.Context, session domain.VerificationSession) error
	Get(ctx context.Context, id string) (*domain.VerificationSession, error)
	// Update rewrites mutable fields (code, last_sent_at, attempts)
	// without extending expiry.
	Update(ctx context.Context, session domain.VerificationSession) error
	// Consume removes the session and returns it; a miss (absent,
	// expired, or already consumed) is repository.ErrNotFound.
	Consume(ctx context.Context, id string) (*domain.VerificationSession, error)
	// DeleteByIdentity invalidates any pending session for the
	// identity key; absence is not an error.
	DeleteByIdentity(ctx context.Context, kind domain.AccountKind, identityKey string) error
}

// RateLimitStore defines the persistence operations required to enforce sliding-window limits.
type RateLimitStore interface {
	TrimWindow(ctx context.Context, identifier string, window time.Duration, reference time.Time) error
	CountAttempts(ctx context.Context, identifier string, window time.Duration, reference time.Time) (int, error)
	RecordAttempt(ctx context.Context, identifier string, at time.Time) error
	OldestAttempt(ctx context.Context, identifier string, window time.Duration, reference time.Time) (time.Time, bool, error)
}
