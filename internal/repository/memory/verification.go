package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/medscan/hospital-records/internal/core/domain"
	"github.com/medscan/hospital-records/internal/core/port"
	"github.com/medscan/hospital-records/internal/repository"
)

type identityRef struct {
	kind        domain.AccountKind
	identityKey string
}

// VerificationStore is an in-process implementation of
// port.VerificationStore with the same single-consumer semantics as the
// Redis store. Used for tests and single-node development.
type VerificationStore struct {
	mu       sync.Mutex
	sessions map[string]domain.VerificationSession
	identity map[identityRef]string

	now func() time.Time
}

// NewVerificationStore constructs an empty in-memory store.
func NewVerificationStore() *VerificationStore {
	return &VerificationStore{
		sessions: make(map[string]domain.VerificationSession),
		identity: make(map[identityRef]string),
		now:      time.Now,
	}
}

// WithClock overrides the internal clock, used in tests.
func (s *VerificationStore) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// Put stores the session and points the identity index at it.
func (s *VerificationStore) Put(_ context.Context, session domain.VerificationSession) error {
	if session.ID == "" {
		return errors.New("session id is required")
	}
	if !session.ExpiresAt.After(s.now().UTC()) {
		return errors.New("session already expired")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[session.ID] = session
	s.identity[identityRef{session.Profile.Kind, session.Profile.IdentityKey}] = session.ID
	return nil
}

// Get retrieves the session; lapsed sessions are dropped lazily.
func (s *VerificationStore) Get(_ context.Context, id string) (*domain.VerificationSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.lookup(id)
	if !ok {
		return nil, repository.ErrNotFound
	}

	copied := session
	return &copied, nil
}

// Update rewrites mutable fields of an existing session.
func (s *VerificationStore) Update(_ context.Context, session domain.VerificationSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.lookup(session.ID)
	if !ok {
		return repository.ErrNotFound
	}

	stored.CodeHash = session.CodeHash
	stored.LastSentAt = session.LastSentAt
	stored.AttemptsRemaining = session.AttemptsRemaining
	s.sessions[session.ID] = stored
	return nil
}

// Consume removes the session and returns it; exactly one caller wins.
func (s *VerificationStore) Consume(_ context.Context, id string) (*domain.VerificationSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.lookup(id)
	if !ok {
		return nil, repository.ErrNotFound
	}

	delete(s.sessions, id)
	ref := identityRef{session.Profile.Kind, session.Profile.IdentityKey}
	if s.identity[ref] == id {
		delete(s.identity, ref)
	}

	copied := session
	return &copied, nil
}

// DeleteByIdentity invalidates any pending session for the identity key.
func (s *VerificationStore) DeleteByIdentity(_ context.Context, kind domain.AccountKind, identityKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ref := identityRef{kind, identityKey}
	if id, ok := s.identity[ref]; ok {
		delete(s.sessions, id)
		delete(s.identity, ref)
	}
	return nil
}

// lookup returns the live session for id, expiring it lazily. Callers
// must hold the mutex.
func (s *VerificationStore) lookup(id string) (domain.VerificationSession, bool) {
	session, ok := s.sessions[id]
	if !ok {
		return domain.VerificationSession{}, false
	}
	if session.Expired(s.now().UTC()) {
		delete(s.sessions, id)
		ref := identityRef{session.Profile.Kind, session.Profile.IdentityKey}
		if s.identity[ref] == id {
			delete(s.identity, ref)
		}
		return domain.VerificationSession{}, false
	}
	return session, true
}

var _ port.VerificationStore = (*VerificationStore)(nil)
