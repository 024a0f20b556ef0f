package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/medscan/hospital-records/internal/core/domain"
	"github.com/medscan/hospital-records/internal/infra/security"
	"github.com/medscan/hospital-records/internal/repository"
)

type mockAccountRepo struct {
	accounts map[string]*domain.Account
	updates  int
}

func newMockAccountRepo(accounts ...*domain.Account) *mockAccountRepo {
	repo := &mockAccountRepo{accounts: make(map[string]*domain.Account)}
	for _, account := range accounts {
		repo.accounts[string(account.Kind)+":"+account.IdentityKey] = account
	}
	return repo
}

func (m *mockAccountRepo) Create(_ context.Context, account domain.Account) error {
	key := string(account.Kind) + ":" + account.IdentityKey
	if _, ok := m.accounts[key]; ok {
		return repository.ErrDuplicate
	}
	copied := account
	m.accounts[key] = &copied
	return nil
}

func (m *mockAccountRepo) GetByID(_ context.Context, id string) (*domain.Account, error) {
	for _, account := range m.accounts {
		if account.ID == id {
			copied := *account
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *mockAccountRepo) GetByIdentity(_ context.Context, kind domain.AccountKind, identityKey string) (*domain.Account, error) {
	account, ok := m.accounts[string(kind)+":"+identityKey]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *account
	return &copied, nil
}

func (m *mockAccountRepo) ExistsByIdentity(_ context.Context, kind domain.AccountKind, identityKey string) (bool, error) {
	_, ok := m.accounts[string(kind)+":"+identityKey]
	return ok, nil
}

func (m *mockAccountRepo) UpdateLockState(_ context.Context, account domain.Account) error {
	stored, ok := m.accounts[string(account.Kind)+":"+account.IdentityKey]
	if !ok {
		return repository.ErrNotFound
	}
	stored.LoginAttempts = account.LoginAttempts
	stored.LockedUntil = account.LockedUntil
	m.updates++
	return nil
}

func testIssuer(t *testing.T, now func() time.Time) *security.TokenIssuer {
	t.Helper()
	issuer, err := security.NewTokenIssuer("unit-test-signing-secret", "med", 15*time.Minute, 7*24*time.Hour)
	if err != nil {
		t.Fatalf("NewTokenIssuer returned error: %v", err)
	}
	return issuer.WithClock(now)
}

func testAccount(t *testing.T, password string) *domain.Account {
	t.Helper()
	hash, err := security.HashPassword(password)
	if err != nil {
		t.Fatalf("HashPassword returned error: %v", err)
	}
	return &domain.Account{
		ID:           "acc-1",
		Kind:         domain.AccountKindDoctor,
		IdentityKey:  "DR001",
		Name:         "Zhang Wei",
		Email:        "zhang.wei@hospital.example",
		Department:   "Radiology",
		PasswordHash: hash,
	}
}

func TestLoginLocksAfterThreshold(t *testing.T) {
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	repo := newMockAccountRepo(testAccount(t, "Test123456!"))
	svc := NewAuthService(repo, testIssuer(t, clock), nil, LockoutPolicy{Threshold: 5, Duration: 30 * time.Minute}).
		WithClock(clock)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_, _, err := svc.Login(ctx, domain.AccountKindDoctor, "DR001", "wrong-pass-1")
		if !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d: expected ErrInvalidCredentials, got %v", i+1, err)
		}
	}

	_, _, err := svc.Login(ctx, domain.AccountKindDoctor, "DR001", "wrong-pass-1")
	var locked *AccountLockedError
	if !errors.As(err, &locked) {
		t.Fatalf("expected AccountLockedError on fifth failure, got %v", err)
	}
	if locked.RetryAfter != 30*time.Minute {
		t.Fatalf("expected 30m retry window, got %v", locked.RetryAfter)
	}

	// The correct password makes no difference while the lock is active.
	_, _, err = svc.Login(ctx, domain.AccountKindDoctor, "DR001", "Test123456!")
	if !errors.As(err, &locked) {
		t.Fatalf("expected AccountLockedError for correct password during lock, got %v", err)
	}
}

func TestLoginSuccessResetsAttempts(t *testing.T) {
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	repo := newMockAccountRepo(testAccount(t, "Test123456!"))
	svc := NewAuthService(repo, testIssuer(t, clock), nil, LockoutPolicy{}).WithClock(clock)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, _, err := svc.Login(ctx, domain.AccountKindDoctor, "DR001", "wrong-pass-1"); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("expected ErrInvalidCredentials, got %v", err)
		}
	}

	account, pair, err := svc.Login(ctx, domain.AccountKindDoctor, "DR001", "Test123456!")
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatal("expected token pair on successful login")
	}
	if account.LoginAttempts != 0 || account.LockedUntil != nil {
		t.Fatalf("expected reset lock state, got attempts=%d locked_until=%v", account.LoginAttempts, account.LockedUntil)
	}

	stored, err := repo.GetByIdentity(ctx, domain.AccountKindDoctor, "DR001")
	if err != nil {
		t.Fatalf("GetByIdentity returned error: %v", err)
	}
	if stored.LoginAttempts != 0 || stored.LockedUntil != nil {
		t.Fatalf("reset not persisted: attempts=%d locked_until=%v", stored.LoginAttempts, stored.LockedUntil)
	}
}

func TestLoginUnlocksAtBoundaryAndRelocksFast(t *testing.T) {
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	repo := newMockAccountRepo(testAccount(t, "Test123456!"))
	svc := NewAuthService(repo, testIssuer(t, clock), nil, LockoutPolicy{Threshold: 5, Duration: 30 * time.Minute}).
		WithClock(clock)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		svc.Login(ctx, domain.AccountKindDoctor, "DR001", "wrong-pass-1")
	}

	// One second short of expiry the lock still holds.
	now = now.Add(30*time.Minute - time.Second)
	var locked *AccountLockedError
	_, _, err := svc.Login(ctx, domain.AccountKindDoctor, "DR001", "wrong-pass-1")
	if !errors.As(err, &locked) {
		t.Fatalf("expected AccountLockedError just before expiry, got %v", err)
	}

	// Exactly at expiry the account is evaluated again, and the attempt
	// counter has not been forgiven: a single failure re-locks at once.
	now = now.Add(time.Second)
	_, _, err = svc.Login(ctx, domain.AccountKindDoctor, "DR001", "wrong-pass-1")
	if !errors.As(err, &locked) {
		t.Fatalf("expected immediate re-lock after lapsed lock, got %v", err)
	}

	// Only a successful login clears the counter.
	now = now.Add(30 * time.Minute)
	if _, _, err := svc.Login(ctx, domain.AccountKindDoctor, "DR001", "Test123456!"); err != nil {
		t.Fatalf("expected success at boundary of second lock, got %v", err)
	}
	if _, _, err := svc.Login(ctx, domain.AccountKindDoctor, "DR001", "wrong-pass-1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected plain invalid credentials after reset, got %v", err)
	}
}

func TestLoginUnknownIdentity(t *testing.T) {
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	repo := newMockAccountRepo()
	svc := NewAuthService(repo, testIssuer(t, clock), nil, LockoutPolicy{}).WithClock(clock)

	_, _, err := svc.Login(context.Background(), domain.AccountKindDoctor, "DR404", "whatever1")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown identity, got %v", err)
	}
}

func TestRefreshRoundTrip(t *testing.T) {
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	repo := newMockAccountRepo(testAccount(t, "Test123456!"))
	svc := NewAuthService(repo, testIssuer(t, clock), nil, LockoutPolicy{}).WithClock(clock)
	ctx := context.Background()

	_, pair, err := svc.Login(ctx, domain.AccountKindDoctor, "DR001", "Test123456!")
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}

	account, refreshed, err := svc.Refresh(ctx, pair.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh returned error: %v", err)
	}
	if account.IdentityKey != "DR001" {
		t.Fatalf("unexpected account from refresh: %+v", account)
	}
	if refreshed.AccessToken == "" || refreshed.RefreshToken == "" {
		t.Fatal("expected fresh token pair")
	}

	// An access token is not accepted by the refresh endpoint.
	if _, _, err := svc.Refresh(ctx, pair.AccessToken); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("expected ErrInvalidRefreshToken for access token, got %v", err)
	}

	if _, _, err := svc.Refresh(ctx, "not-a-token"); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("expected ErrInvalidRefreshToken for garbage, got %v", err)
	}
}

func TestParseAccessToken(t *testing.T) {
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	repo := newMockAccountRepo(testAccount(t, "Test123456!"))
	svc := NewAuthService(repo, testIssuer(t, clock), nil, LockoutPolicy{}).WithClock(clock)

	_, pair, err := svc.Login(context.Background(), domain.AccountKindDoctor, "DR001", "Test123456!")
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}

	claims, err := svc.ParseAccessToken(pair.AccessToken)
	if err != nil {
		t.Fatalf("ParseAccessToken returned error: %v", err)
	}
	if claims.Subject != "acc-1" || claims.Kind != string(domain.AccountKindDoctor) {
		t.Fatalf("unexpected claims: %+v", claims)
	}

	now = now.Add(16 * time.Minute)
	if _, err := svc.ParseAccessToken(pair.AccessToken); !errors.Is(err, ErrExpiredAccessToken) {
		t.Fatalf("expected ErrExpiredAccessToken, got %v", err)
	}
}
