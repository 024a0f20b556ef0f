package usecase

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/medscan/hospital-records/internal/core/domain"
	"github.com/medscan/hospital-records/internal/core/port"
	"github.com/medscan/hospital-records/internal/infra/logger"
	"github.com/medscan/hospital-records/internal/infra/security"
	"github.com/medscan/hospital-records/internal/repository"
)

const (
	defaultVerificationTTL = 30 * time.Minute
	defaultResendInterval  = time.Minute
	defaultCodeLength      = 6
	defaultConfirmAttempts = 5
)

var (
	// ErrIdentityTaken indicates an account already exists for the identity key.
	ErrIdentityTaken = errors.New("identity already registered")
	// ErrSessionNotFound indicates the verification session is absent,
	// expired out of the store, or already consumed.
	ErrSessionNotFound = errors.New("verification session not found")
	// ErrSessionExpired indicates the session was found but has lapsed.
	ErrSessionExpired = errors.New("verification session expired")

	emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
)

// ValidationError reports a rejected registration field.
type ValidationError struct {
	Field   string
	Rule    string
	Message string
}

// Error implements error for ValidationError.
func (e *ValidationError) Error() string {
	return e.Message
}

// TooSoonError reports a resend request inside the throttle interval.
type TooSoonError struct {
	RetryAfter time.Duration
}

// Error implements error for TooSoonError.
func (e *TooSoonError) Error() string {
	return fmt.Sprintf("code already sent, retry in %s", e.RetryAfter)
}

// CodeMismatchError reports a wrong verification code. AttemptsRemaining
// of zero means the session has been invalidated.
type CodeMismatchError struct {
	AttemptsRemaining int
}

// Error implements error for CodeMismatchError.
func (e *CodeMismatchError) Error() string {
	return fmt.Sprintf("verification code mismatch, %d attempts remaining", e.AttemptsRemaining)
}

// VerificationPolicy tunes the pending-session lifecycle.
type VerificationPolicy struct {
	SessionTTL      time.Duration
	ResendInterval  time.Duration
	CodeLength      int
	ConfirmAttempts int
}

// RegisterInput carries a registration application.
type RegisterInput struct {
	Kind        domain.AccountKind
	IdentityKey string
	Name        string
	Email       string
	Department  string
	Password    string
}

// RegisterResult references the created verification session. Delivered
// is false when the code email could not be handed to the relay; the
// session exists either way and resend can retry delivery.
type RegisterResult struct {
	SessionID string
	ExpiresAt time.Time
	Delivered bool
}

// ConfirmResult is a materialized account plus its first token pair.
type ConfirmResult struct {
	Account *domain.Account
	Tokens  TokenPair
}

// RegistrationService manages the verification-gated registration flow:
// apply, email a numeric code, confirm it, materialize the account.
type RegistrationService struct {
	accounts port.AccountRepository
	sessions port.VerificationStore
	sender   port.CodeSender
	events   port.EventPublisher
	issuer   *security.TokenIssuer
	policy   VerificationPolicy
	log      *zap.Logger

	now func() time.Time
}

// NewRegistrationService constructs a RegistrationService instance.
func NewRegistrationService(
	accounts port.AccountRepository,
	sessions port.VerificationStore,
	sender port.CodeSender,
	events port.EventPublisher,
	issuer *security.TokenIssuer,
	policy VerificationPolicy,
	log *zap.Logger,
) *RegistrationService {
	if policy.SessionTTL <= 0 {
		policy.SessionTTL = defaultVerificationTTL
	}
	if policy.CodeLength <= 0 {
		policy.CodeLength = defaultCodeLength
	}
	if policy.ConfirmAttempts <= 0 {
		policy.ConfirmAttempts = defaultConfirmAttempts
	}
	if policy.ResendInterval < 0 {
		policy.ResendInterval = defaultResendInterval
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &RegistrationService{
		accounts: accounts,
		sessions: sessions,
		sender:   sender,
		events:   events,
		issuer:   issuer,
		policy:   policy,
		log:      log,
		now:      time.Now,
	}
}

// WithClock overrides the service time source for tests.
func (s *RegistrationService) WithClock(now func() time.Time) *RegistrationService {
	s.now = now
	return s
}

// Register validates the application, stores a pending verification
// session superseding any earlier one for the same identity, and emails
// the confirmation code.
func (s *RegistrationService) Register(ctx context.Context, input RegisterInput) (*RegisterResult, error) {
	if err := s.validate(input); err != nil {
		return nil, err
	}

	exists, err := s.accounts.ExistsByIdentity(ctx, input.Kind, input.IdentityKey)
	if err != nil {
		return nil, fmt.Errorf("check identity: %w", err)
	}
	if exists {
		return nil, ErrIdentityTaken
	}

	hash, err := security.HashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	code, err := security.GenerateNumericCode(s.policy.CodeLength)
	if err != nil {
		return nil, fmt.Errorf("generate verification code: %w", err)
	}

	// A re-register for the same identity invalidates the pending
	// session before its replacement is stored.
	if err := s.sessions.DeleteByIdentity(ctx, input.Kind, input.IdentityKey); err != nil {
		return nil, fmt.Errorf("supersede pending session: %w", err)
	}

	now := s.now().UTC()
	session := domain.VerificationSession{
		ID: uuid.NewString(),
		Profile: domain.RegistrationProfile{
			Kind:        input.Kind,
			IdentityKey: input.IdentityKey,
			Name:        input.Name,
			Email:       input.Email,
			Department:  input.Department,
		},
		PasswordHash:      hash,
		CodeHash:          security.HashToken(code),
		CreatedAt:         now,
		LastSentAt:        now,
		ExpiresAt:         now.Add(s.policy.SessionTTL),
		AttemptsRemaining: s.policy.ConfirmAttempts,
	}

	if err := s.sessions.Put(ctx, session); err != nil {
		return nil, fmt.Errorf("store verification session: %w", err)
	}

	delivered := s.deliverCode(ctx, session, code)

	return &RegisterResult{
		SessionID: session.ID,
		ExpiresAt: session.ExpiresAt,
		Delivered: delivered,
	}, nil
}

// Resend regenerates the code and emails it again, throttled per session.
func (s *RegistrationService) Resend(ctx context.Context, sessionID string) (*RegisterResult, error) {
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("load verification session: %w", err)
	}

	now := s.now().UTC()
	if session.Expired(now) {
		return nil, ErrSessionNotFound
	}

	if s.policy.ResendInterval > 0 {
		if availableAt := session.ResendAvailableAt(s.policy.ResendInterval); now.Before(availableAt) {
			return nil, &TooSoonError{RetryAfter: availableAt.Sub(now)}
		}
	}

	code, err := security.GenerateNumericCode(s.policy.CodeLength)
	if err != nil {
		return nil, fmt.Errorf("generate verification code: %w", err)
	}

	session.CodeHash = security.HashToken(code)
	session.LastSentAt = now
	if err := s.sessions.Update(ctx, *session); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("update verification session: %w", err)
	}

	delivered := s.deliverCode(ctx, *session, code)

	return &RegisterResult{
		SessionID: session.ID,
		ExpiresAt: session.ExpiresAt,
		Delivered: delivered,
	}, nil
}

// Confirm checks the code, consumes the session exactly once, and
// materializes the account with a fresh lock state and a token pair.
func (s *RegistrationService) Confirm(ctx context.Context, sessionID, code string) (*ConfirmResult, error) {
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("load verification session: %w", err)
	}

	now := s.now().UTC()
	if session.Expired(now) {
		_, _ = s.sessions.Consume(ctx, sessionID)
		return nil, ErrSessionExpired
	}

	if code == "" || session.CodeHash != security.HashToken(code) {
		session.AttemptsRemaining--
		if session.AttemptsRemaining <= 0 {
			// Out of attempts: invalidate so further guesses see not-found.
			_, _ = s.sessions.Consume(ctx, sessionID)
			return nil, &CodeMismatchError{AttemptsRemaining: 0}
		}
		if err := s.sessions.Update(ctx, *session); err != nil && !errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("record failed attempt: %w", err)
		}
		return nil, &CodeMismatchError{AttemptsRemaining: session.AttemptsRemaining}
	}

	// Atomic consume decides the winner among concurrent confirms; the
	// losers observe not-found.
	consumed, err := s.sessions.Consume(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("consume verification session: %w", err)
	}

	account := domain.Account{
		ID:           uuid.NewString(),
		Kind:         consumed.Profile.Kind,
		IdentityKey:  consumed.Profile.IdentityKey,
		Name:         consumed.Profile.Name,
		Email:        consumed.Profile.Email,
		Department:   consumed.Profile.Department,
		PasswordHash: consumed.PasswordHash,
		CreatedAt:    now,
	}

	if err := s.accounts.Create(ctx, account); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrIdentityTaken
		}
		// Restore the consumed session so the applicant can retry.
		if restoreErr := s.sessions.Put(ctx, *consumed); restoreErr != nil {
			s.log.Warn("failed to restore verification session after create error",
				zap.String("session_id", sessionID),
				zap.Error(restoreErr))
		}
		return nil, fmt.Errorf("create account: %w", err)
	}

	if s.events != nil {
		_ = s.events.PublishAccountRegistered(ctx, domain.AccountRegisteredEvent{
			AccountID:    account.ID,
			Kind:         string(account.Kind),
			IdentityKey:  account.IdentityKey,
			Email:        account.Email,
			Department:   account.Department,
			RegisteredAt: now,
		})
	}

	access, refresh, err := s.issuer.IssuePair(account.ID, string(account.Kind), account.IdentityKey)
	if err != nil {
		return nil, fmt.Errorf("issue tokens: %w", err)
	}

	return &ConfirmResult{
		Account: &account,
		Tokens:  TokenPair{AccessToken: access, RefreshToken: refresh},
	}, nil
}

// deliverCode emails the plaintext code after all store writes have
// completed; only its digest is at rest by then. Delivery failure never
// fails the flow; the caller reports it.
func (s *RegistrationService) deliverCode(ctx context.Context, session domain.VerificationSession, code string) bool {
	if s.sender == nil {
		return false
	}
	if err := s.sender.SendVerificationCode(ctx, session.Profile.Email, session.Profile.Name, code); err != nil {
		s.log.Warn("verification code delivery failed",
			zap.String("session_id", session.ID),
			zap.String("email", logger.MaskEmail(session.Profile.Email)),
			zap.Error(err))
		return false
	}
	return true
}

func (s *RegistrationService) validate(input RegisterInput) error {
	if !input.Kind.Valid() {
		return &ValidationError{Field: "kind", Rule: "oneof", Message: "kind must be doctor or admin"}
	}
	if strings.TrimSpace(input.IdentityKey) == "" {
		return &ValidationError{Field: "identity_key", Rule: "required", Message: "identity key is required"}
	}
	if strings.TrimSpace(input.Name) == "" {
		return &ValidationError{Field: "name", Rule: "required", Message: "name is required"}
	}
	if !emailPattern.MatchString(input.Email) {
		return &ValidationError{Field: "email", Rule: "email", Message: "email address is malformed"}
	}

	validator := security.NewPasswordValidatorWithContext(input.IdentityKey, input.Name, input.Email)
	if err := validator.Validate(input.Password); err != nil {
		var violation *security.PasswordValidationError
		if errors.As(err, &violation) {
			return &ValidationError{Field: "password", Rule: violation.Code, Message: violation.Message}
		}
		return &ValidationError{Field: "password", Rule: "policy", Message: err.Error()}
	}

	return nil
}
