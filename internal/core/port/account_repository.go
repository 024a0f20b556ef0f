package port

import (
	"context"

	"github.com/medscan/hospital-records/internal/core/domain"
)

// AccountRepository exposes persistence behavior for staff accounts.
type AccountRepository interface {
	Create(ctx context.Context, account domain.Account) error
	GetByID(ctx context.Context, id string) (*domain.Account, error)
	GetByIdentity(ctx context.Context, kind domain.AccountKind, identityKey string) (*domain.Account, error)
	ExistsByIdentity(ctx context.Context, kind domain.AccountKind, identityKey string) (bool, error)
	// UpdateLockState persists the failed-attempt counter and lock
	// deadline produced by a login attempt.
	UpdateLockState(ctx context.Context, account domain.Account) error
}
