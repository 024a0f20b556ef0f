package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/medscan/hospital-records/internal/core/domain"
	"github.com/medscan/hospital-records/internal/core/port"
	"github.com/medscan/hospital-records/internal/infra/security"
	"github.com/medscan/hospital-records/internal/infra/telemetry"
	"github.com/medscan/hospital-records/internal/repository"
)

const (
	defaultLockoutThreshold = 5
	defaultLockoutDuration  = 30 * time.Minute
)

var (
	// ErrInvalidCredentials indicates the identity or password is wrong.
	// Deliberately identical for a missing account and a bad password.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidRefreshToken indicates the refresh token is malformed or not a refresh token.
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	// ErrExpiredRefreshToken indicates the refresh token has expired.
	ErrExpiredRefreshToken = errors.New("refresh token expired")
	// ErrInvalidAccessToken indicates the access token is malformed or signature validation failed.
	ErrInvalidAccessToken = errors.New("invalid access token")
	// ErrExpiredAccessToken indicates the access token has expired.
	ErrExpiredAccessToken = errors.New("access token expired")
)

// AccountLockedError reports an active timed lock. RetryAfter is how
// long the caller has to wait before credentials are evaluated again.
type AccountLockedError struct {
	RetryAfter time.Duration
}

// Error implements error for AccountLockedError.
func (e *AccountLockedError) Error() string {
	return fmt.Sprintf("account locked, retry in %s", e.RetryAfter)
}

// LockoutPolicy tunes the failed-attempt guard.
type LockoutPolicy struct {
	Threshold int
	Duration  time.Duration
}

// TokenPair bundles the issued access and refresh tokens.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// identityMutex serializes read-modify-write cycles per account so
// concurrent failures cannot under-count toward the threshold.
type identityMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newIdentityMutex() *identityMutex {
	return &identityMutex{locks: make(map[string]*sync.Mutex)}
}

func (m *identityMutex) forKey(key string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	lock, ok := m.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[key] = lock
	}
	return lock
}

// AuthService coordinates login, token refresh, and the lockout guard.
type AuthService struct {
	accounts port.AccountRepository
	issuer   *security.TokenIssuer
	events   port.EventPublisher
	metrics  *telemetry.Metrics
	policy   LockoutPolicy

	perAccount *identityMutex
	now        func() time.Time
}

// NewAuthService constructs an AuthService instance.
func NewAuthService(accounts port.AccountRepository, issuer *security.TokenIssuer, events port.EventPublisher, policy LockoutPolicy) *AuthService {
	if policy.Threshold <= 0 {
		policy.Threshold = defaultLockoutThreshold
	}
	if policy.Duration <= 0 {
		policy.Duration = defaultLockoutDuration
	}
	return &AuthService{
		accounts:   accounts,
		issuer:     issuer,
		events:     events,
		policy:     policy,
		perAccount: newIdentityMutex(),
		now:        time.Now,
	}
}

// WithClock overrides the service time source for tests.
func (s *AuthService) WithClock(now func() time.Time) *AuthService {
	s.now = now
	return s
}

// WithMetrics attaches the service collectors.
func (s *AuthService) WithMetrics(metrics *telemetry.Metrics) *AuthService {
	s.metrics = metrics
	return s
}

// Login evaluates credentials under the lockout guard and issues a
// token pair on success.
func (s *AuthService) Login(ctx context.Context, kind domain.AccountKind, identityKey, password string) (*domain.Account, TokenPair, error) {
	if !kind.Valid() {
		return nil, TokenPair{}, fmt.Errorf("unknown account kind %q", kind)
	}
	if identityKey == "" || password == "" {
		return nil, TokenPair{}, ErrInvalidCredentials
	}

	account, lockedEvent, err := s.evaluate(ctx, kind, identityKey, password)

	// Audit publication stays outside the per-account critical section
	// and never changes the verdict.
	if lockedEvent != nil {
		if s.events != nil {
			_ = s.events.PublishAccountLocked(ctx, *lockedEvent)
		}
		if s.metrics != nil {
			s.metrics.AccountsLocked.Inc()
		}
	}

	if err != nil {
		return nil, TokenPair{}, err
	}

	access, refresh, err := s.issuer.IssuePair(account.ID, string(account.Kind), account.IdentityKey)
	if err != nil {
		return nil, TokenPair{}, fmt.Errorf("issue tokens: %w", err)
	}

	return account, TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// evaluate runs the serialized credential check and returns the account
// on success, plus a lock event when this attempt tripped the guard.
func (s *AuthService) evaluate(ctx context.Context, kind domain.AccountKind, identityKey, password string) (*domain.Account, *domain.AccountLockedEvent, error) {
	lock := s.perAccount.forKey(string(kind) + ":" + identityKey)
	lock.Lock()
	defer lock.Unlock()

	account, err := s.accounts.GetByIdentity(ctx, kind, identityKey)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, ErrInvalidCredentials
		}
		return nil, nil, fmt.Errorf("load account: %w", err)
	}

	now := s.now().UTC()

	// An active lock short-circuits before the password is examined, so
	// probing a locked account reveals nothing and never extends the lock.
	if account.Locked(now) {
		return nil, nil, &AccountLockedError{RetryAfter: account.RemainingLock(now)}
	}

	ok, err := security.VerifyPassword(password, account.PasswordHash)
	if err != nil {
		return nil, nil, fmt.Errorf("verify password: %w", err)
	}

	if !ok {
		account.RecordFailure(now, s.policy.Threshold, s.policy.Duration)
		if err := s.accounts.UpdateLockState(ctx, *account); err != nil {
			return nil, nil, fmt.Errorf("persist failed attempt: %w", err)
		}
		if account.Locked(now) {
			event := &domain.AccountLockedEvent{
				AccountID:   account.ID,
				Kind:        string(account.Kind),
				IdentityKey: account.IdentityKey,
				Attempts:    account.LoginAttempts,
				LockedAt:    now,
				LockedUntil: *account.LockedUntil,
			}
			return nil, event, &AccountLockedError{RetryAfter: account.RemainingLock(now)}
		}
		return nil, nil, ErrInvalidCredentials
	}

	if account.LoginAttempts != 0 || account.LockedUntil != nil {
		account.RecordSuccess()
		if err := s.accounts.UpdateLockState(ctx, *account); err != nil {
			return nil, nil, fmt.Errorf("reset lock state: %w", err)
		}
	}

	return account, nil, nil
}

// Refresh exchanges a valid refresh token for a new token pair.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*domain.Account, TokenPair, error) {
	claims, err := s.issuer.Parse(refreshToken, security.TokenUseRefresh)
	if err != nil {
		if errors.Is(err, security.ErrTokenExpired) {
			return nil, TokenPair{}, ErrExpiredRefreshToken
		}
		return nil, TokenPair{}, ErrInvalidRefreshToken
	}

	account, err := s.accounts.GetByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, TokenPair{}, ErrInvalidRefreshToken
		}
		return nil, TokenPair{}, fmt.Errorf("load account: %w", err)
	}

	if account.Locked(s.now().UTC()) {
		return nil, TokenPair{}, &AccountLockedError{RetryAfter: account.RemainingLock(s.now().UTC())}
	}

	access, refresh, err := s.issuer.IssuePair(account.ID, string(account.Kind), account.IdentityKey)
	if err != nil {
		return nil, TokenPair{}, fmt.Errorf("issue tokens: %w", err)
	}

	return account, TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// ParseAccessToken validates an access token for protected routes.
func (s *AuthService) ParseAccessToken(tokenString string) (*security.StaffClaims, error) {
	claims, err := s.issuer.Parse(tokenString, security.TokenUseAccess)
	if err != nil {
		if errors.Is(err, security.ErrTokenExpired) {
			return nil, ErrExpiredAccessToken
		}
		return nil, ErrInvalidAccessToken
	}
	return claims, nil
}
