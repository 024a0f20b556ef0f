package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/medscan/hospital-records/internal/core/domain"
	"github.com/medscan/hospital-records/internal/infra/security"
	"github.com/medscan/hospital-records/internal/repository/memory"
)

type mockCodeSender struct {
	sent     []string
	lastCode string
	fail     bool
}

func (m *mockCodeSender) SendVerificationCode(_ context.Context, email, _, code string) error {
	if m.fail {
		return errors.New("smtp relay unavailable")
	}
	m.sent = append(m.sent, email)
	m.lastCode = code
	return nil
}

// wrongCode returns a code guaranteed not to match the real one.
func wrongCode(code string) string {
	if code == "000000" {
		return "111111"
	}
	return "000000"
}

func registerInput() RegisterInput {
	return RegisterInput{
		Kind:        domain.AccountKindDoctor,
		IdentityKey: "DR001",
		Name:        "Zhang Wei",
		Email:       "zhang.wei@hospital.example",
		Department:  "Radiology",
		Password:    "Test123456!",
	}
}

func newRegistrationFixture(t *testing.T, now *time.Time) (*RegistrationService, *mockAccountRepo, *memory.VerificationStore, *mockCodeSender) {
	t.Helper()
	clock := func() time.Time { return *now }

	accounts := newMockAccountRepo()
	sessions := memory.NewVerificationStore()
	sessions.WithClock(clock)
	sender := &mockCodeSender{}

	svc := NewRegistrationService(accounts, sessions, sender, nil, testIssuer(t, clock), VerificationPolicy{
		SessionTTL:      30 * time.Minute,
		ResendInterval:  time.Minute,
		CodeLength:      6,
		ConfirmAttempts: 5,
	}, zap.NewNop()).WithClock(clock)

	return svc, accounts, sessions, sender
}

func TestRegisterConfirmThenLogin(t *testing.T) {
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	svc, accounts, _, sender := newRegistrationFixture(t, &now)
	ctx := context.Background()

	result, err := svc.Register(ctx, registerInput())
	if err != nil {
		t.Fatalf("Register returned error: %v", err)
	}
	if result.SessionID == "" || !result.Delivered {
		t.Fatalf("unexpected register result: %+v", result)
	}
	if len(sender.lastCode) != 6 {
		t.Fatalf("expected 6-digit code, got %q", sender.lastCode)
	}

	// A wrong guess burns one attempt but keeps the session alive.
	_, err = svc.Confirm(ctx, result.SessionID, wrongCode(sender.lastCode))
	var mismatch *CodeMismatchError
	if !errors.As(err, &mismatch) || mismatch.AttemptsRemaining != 4 {
		t.Fatalf("expected mismatch with 4 attempts remaining, got %v", err)
	}

	confirmed, err := svc.Confirm(ctx, result.SessionID, sender.lastCode)
	if err != nil {
		t.Fatalf("Confirm returned error: %v", err)
	}
	if confirmed.Account.IdentityKey != "DR001" || confirmed.Account.LoginAttempts != 0 || confirmed.Account.LockedUntil != nil {
		t.Fatalf("unexpected account: %+v", confirmed.Account)
	}
	if confirmed.Tokens.AccessToken == "" || confirmed.Tokens.RefreshToken == "" {
		t.Fatal("expected token pair after confirm")
	}

	clock := func() time.Time { return now }
	auth := NewAuthService(accounts, testIssuer(t, clock), nil, LockoutPolicy{}).WithClock(clock)
	if _, _, err := auth.Login(ctx, domain.AccountKindDoctor, "DR001", "Test123456!"); err != nil {
		t.Fatalf("login after confirm failed: %v", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	svc, _, _, _ := newRegistrationFixture(t, &now)
	ctx := context.Background()

	cases := []struct {
		name  string
		mut   func(*RegisterInput)
		field string
	}{
		{"short password", func(in *RegisterInput) { in.Password = "123456" }, "password"},
		{"no digit", func(in *RegisterInput) { in.Password = "OnlyLettersHere" }, "password"},
		{"guessable password", func(in *RegisterInput) { in.Password = "password1" }, "password"},
		{"bad email", func(in *RegisterInput) { in.Email = "not-an-email" }, "email"},
		{"missing name", func(in *RegisterInput) { in.Name = "  " }, "name"},
		{"missing identity", func(in *RegisterInput) { in.IdentityKey = "" }, "identity_key"},
		{"unknown kind", func(in *RegisterInput) { in.Kind = "nurse" }, "kind"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			input := registerInput()
			tc.mut(&input)

			_, err := svc.Register(ctx, input)
			var violation *ValidationError
			if !errors.As(err, &violation) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if violation.Field != tc.field {
				t.Fatalf("expected field %q, got %q (%s)", tc.field, violation.Field, violation.Message)
			}
		})
	}
}

func TestRegisterConflictWithExistingAccount(t *testing.T) {
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	svc, accounts, _, _ := newRegistrationFixture(t, &now)
	ctx := context.Background()

	if err := accounts.Create(ctx, domain.Account{
		ID:          "acc-1",
		Kind:        domain.AccountKindDoctor,
		IdentityKey: "DR001",
	}); err != nil {
		t.Fatalf("seed account: %v", err)
	}

	if _, err := svc.Register(ctx, registerInput()); !errors.Is(err, ErrIdentityTaken) {
		t.Fatalf("expected ErrIdentityTaken, got %v", err)
	}
}

func TestRegisterSupersedesPendingSession(t *testing.T) {
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	svc, _, _, sender := newRegistrationFixture(t, &now)
	ctx := context.Background()

	first, err := svc.Register(ctx, registerInput())
	if err != nil {
		t.Fatalf("first Register returned error: %v", err)
	}
	firstCode := sender.lastCode

	second, err := svc.Register(ctx, registerInput())
	if err != nil {
		t.Fatalf("second Register returned error: %v", err)
	}
	if second.SessionID == first.SessionID {
		t.Fatal("expected a fresh session id")
	}

	// The superseded session is gone even with its own valid code.
	if _, err := svc.Confirm(ctx, first.SessionID, firstCode); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound for superseded session, got %v", err)
	}
	if _, err := svc.Confirm(ctx, second.SessionID, sender.lastCode); err != nil {
		t.Fatalf("Confirm of replacement failed: %v", err)
	}
}

func TestResendThrottled(t *testing.T) {
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	svc, _, _, sender := newRegistrationFixture(t, &now)
	ctx := context.Background()

	result, err := svc.Register(ctx, registerInput())
	if err != nil {
		t.Fatalf("Register returned error: %v", err)
	}

	now = now.Add(20 * time.Second)
	_, err = svc.Resend(ctx, result.SessionID)
	var tooSoon *TooSoonError
	if !errors.As(err, &tooSoon) {
		t.Fatalf("expected TooSoonError, got %v", err)
	}
	if tooSoon.RetryAfter != 40*time.Second {
		t.Fatalf("expected 40s retry window, got %v", tooSoon.RetryAfter)
	}

	now = now.Add(41 * time.Second)
	resent, err := svc.Resend(ctx, result.SessionID)
	if err != nil {
		t.Fatalf("Resend returned error: %v", err)
	}
	if !resent.Delivered || len(sender.sent) != 2 {
		t.Fatalf("expected second delivery, got delivered=%v sent=%d", resent.Delivered, len(sender.sent))
	}

	// The regenerated code is the one that now confirms.
	if _, err := svc.Confirm(ctx, result.SessionID, sender.lastCode); err != nil {
		t.Fatalf("Confirm with resent code failed: %v", err)
	}
}

func TestResendImmediateWhenThrottleDisabled(t *testing.T) {
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	sessions := memory.NewVerificationStore()
	sessions.WithClock(clock)
	sender := &mockCodeSender{}

	// A zero interval disables throttling entirely; it must not be
	// normalized back to a default.
	svc := NewRegistrationService(newMockAccountRepo(), sessions, sender, nil, testIssuer(t, clock), VerificationPolicy{
		SessionTTL:      30 * time.Minute,
		ResendInterval:  0,
		CodeLength:      6,
		ConfirmAttempts: 5,
	}, zap.NewNop()).WithClock(clock)
	ctx := context.Background()

	result, err := svc.Register(ctx, registerInput())
	if err != nil {
		t.Fatalf("Register returned error: %v", err)
	}

	for i := 1; i <= 2; i++ {
		if _, err := svc.Resend(ctx, result.SessionID); err != nil {
			t.Fatalf("back-to-back Resend %d returned error: %v", i, err)
		}
	}
	if len(sender.sent) != 3 {
		t.Fatalf("expected 3 deliveries, got %d", len(sender.sent))
	}
}

func TestResendUnknownSession(t *testing.T) {
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	svc, _, _, _ := newRegistrationFixture(t, &now)

	if _, err := svc.Resend(context.Background(), "ghost"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestConfirmAttemptsExhausted(t *testing.T) {
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	svc, _, _, sender := newRegistrationFixture(t, &now)
	ctx := context.Background()

	result, err := svc.Register(ctx, registerInput())
	if err != nil {
		t.Fatalf("Register returned error: %v", err)
	}
	bad := wrongCode(sender.lastCode)

	var mismatch *CodeMismatchError
	for want := 4; want >= 1; want-- {
		_, err := svc.Confirm(ctx, result.SessionID, bad)
		if !errors.As(err, &mismatch) || mismatch.AttemptsRemaining != want {
			t.Fatalf("expected mismatch with %d attempts remaining, got %v", want, err)
		}
	}

	// The fifth wrong guess invalidates the session outright.
	_, err = svc.Confirm(ctx, result.SessionID, bad)
	if !errors.As(err, &mismatch) || mismatch.AttemptsRemaining != 0 {
		t.Fatalf("expected mismatch with 0 attempts remaining, got %v", err)
	}

	// Even the real code is useless afterwards.
	if _, err := svc.Confirm(ctx, result.SessionID, sender.lastCode); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound after exhaustion, got %v", err)
	}
}

func TestConfirmExpiredSession(t *testing.T) {
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	svc, _, _, sender := newRegistrationFixture(t, &now)
	ctx := context.Background()

	result, err := svc.Register(ctx, registerInput())
	if err != nil {
		t.Fatalf("Register returned error: %v", err)
	}

	now = now.Add(31 * time.Minute)
	if _, err := svc.Confirm(ctx, result.SessionID, sender.lastCode); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound for lapsed session, got %v", err)
	}
}

func TestConfirmConsumesOnce(t *testing.T) {
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	svc, _, _, sender := newRegistrationFixture(t, &now)
	ctx := context.Background()

	result, err := svc.Register(ctx, registerInput())
	if err != nil {
		t.Fatalf("Register returned error: %v", err)
	}

	if _, err := svc.Confirm(ctx, result.SessionID, sender.lastCode); err != nil {
		t.Fatalf("first Confirm returned error: %v", err)
	}
	if _, err := svc.Confirm(ctx, result.SessionID, sender.lastCode); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound on replay, got %v", err)
	}
}

func TestVerificationCodeStoredAsDigest(t *testing.T) {
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	svc, _, sessions, sender := newRegistrationFixture(t, &now)
	ctx := context.Background()

	result, err := svc.Register(ctx, registerInput())
	if err != nil {
		t.Fatalf("Register returned error: %v", err)
	}

	stored, err := sessions.Get(ctx, result.SessionID)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if stored.CodeHash == sender.lastCode {
		t.Fatal("session holds the plaintext code")
	}
	if stored.CodeHash != security.HashToken(sender.lastCode) {
		t.Fatalf("stored digest does not match the emailed code: %q", stored.CodeHash)
	}

	// The digest rotates with the code on resend.
	now = now.Add(2 * time.Minute)
	if _, err := svc.Resend(ctx, result.SessionID); err != nil {
		t.Fatalf("Resend returned error: %v", err)
	}
	rotated, err := sessions.Get(ctx, result.SessionID)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if rotated.CodeHash != security.HashToken(sender.lastCode) {
		t.Fatalf("digest not rotated with the resent code: %q", rotated.CodeHash)
	}
}

func TestRegisterReportsDeliveryFailure(t *testing.T) {
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	svc, _, _, sender := newRegistrationFixture(t, &now)
	sender.fail = true
	ctx := context.Background()

	result, err := svc.Register(ctx, registerInput())
	if err != nil {
		t.Fatalf("Register returned error: %v", err)
	}
	if result.Delivered {
		t.Fatal("expected delivered=false when relay is down")
	}

	// The session survives; once the relay recovers, resend retries.
	sender.fail = false
	now = now.Add(2 * time.Minute)
	resent, err := svc.Resend(ctx, result.SessionID)
	if err != nil {
		t.Fatalf("Resend returned error: %v", err)
	}
	if !resent.Delivered {
		t.Fatal("expected delivered=true after relay recovery")
	}
}
