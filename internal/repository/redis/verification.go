package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	red "github.com/redis/go-redis/v9"

	"github.com/medscan/hospital-records/internal/core/domain"
	"github.com/medscan/hospital-records/internal/core/port"
	"github.com/medscan/hospital-records/internal/repository"
)

const (
	defaultVerificationPrefix = "med:verification"

	fieldKind         = "kind"
	fieldIdentityKey  = "identity_key"
	fieldName         = "name"
	fieldEmail        = "email"
	fieldDepartment   = "department"
	fieldPasswordHash = "password_hash"
	fieldCodeHash     = "code_hash"
	fieldCreatedAt    = "created_at"
	fieldLastSentAt   = "last_sent_at"
	fieldExpiresAt    = "expires_at"
	fieldAttempts     = "attempts"
)

// VerificationRepository persists pending registration sessions in Redis
// hashes. Key expiry enforces the session TTL; single-use consumption
// relies on DEL returning the number of removed keys, so exactly one
// concurrent consumer wins.
type VerificationRepository struct {
	client *red.Client
	prefix string
	now    func() time.Time
}

// NewVerificationRepository constructs a Redis-backed verification store.
func NewVerificationRepository(client *red.Client, keyPrefix string) *VerificationRepository {
	prefix := strings.TrimSpace(keyPrefix)
	if prefix == "" {
		prefix = defaultVerificationPrefix
	}

	return &VerificationRepository{
		client: client,
		prefix: prefix,
		now:    time.Now,
	}
}

// WithClock overrides the internal clock, used in tests.
func (r *VerificationRepository) WithClock(clock func() time.Time) {
	if clock != nil {
		r.now = clock
	}
}

// Put stores the session until its expiry and points the identity index
// at it so a later registration can supersede the pending session.
func (r *VerificationRepository) Put(ctx context.Context, session domain.VerificationSession) error {
	if session.ID == "" {
		return errors.New("session id is required")
	}

	ttl := session.ExpiresAt.Sub(r.now().UTC())
	if ttl <= 0 {
		return errors.New("session already expired")
	}

	key := r.sessionKey(session.ID)
	indexKey := r.identityKey(session.Profile.Kind, session.Profile.IdentityKey)

	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, key, map[string]any{
		fieldKind:         string(session.Profile.Kind),
		fieldIdentityKey:  session.Profile.IdentityKey,
		fieldName:         session.Profile.Name,
		fieldEmail:        session.Profile.Email,
		fieldDepartment:   session.Profile.Department,
		fieldPasswordHash: session.PasswordHash,
		fieldCodeHash:     session.CodeHash,
		fieldCreatedAt:    strconv.FormatInt(session.CreatedAt.Unix(), 10),
		fieldLastSentAt:   strconv.FormatInt(session.LastSentAt.Unix(), 10),
		fieldExpiresAt:    strconv.FormatInt(session.ExpiresAt.Unix(), 10),
		fieldAttempts:     strconv.Itoa(session.AttemptsRemaining),
	})
	pipe.Expire(ctx, key, ttl)
	pipe.Set(ctx, indexKey, session.ID, ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis store verification session: %w", err)
	}

	return nil
}

// Get retrieves the session; absence or expiry is repository.ErrNotFound.
func (r *VerificationRepository) Get(ctx context.Context, id string) (*domain.VerificationSession, error) {
	values, err := r.client.HGetAll(ctx, r.sessionKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall verification session: %w", err)
	}
	if len(values) == 0 {
		return nil, repository.ErrNotFound
	}

	return decodeSession(id, values)
}

// Update rewrites the mutable fields (code_hash, last_sent_at,
// attempts) without extending expiry.
func (r *VerificationRepository) Update(ctx context.Context, session domain.VerificationSession) error {
	key := r.sessionKey(session.ID)

	exists, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("redis exists verification session: %w", err)
	}
	if exists == 0 {
		return repository.ErrNotFound
	}

	if err := r.client.HSet(ctx, key, map[string]any{
		fieldCodeHash:   session.CodeHash,
		fieldLastSentAt: strconv.FormatInt(session.LastSentAt.Unix(), 10),
		fieldAttempts:   strconv.Itoa(session.AttemptsRemaining),
	}).Err(); err != nil {
		return fmt.Errorf("redis update verification session: %w", err)
	}

	return nil
}

// Consume removes the session and returns it. The DEL count decides the
// winner when consumers race; losers observe repository.ErrNotFound.
func (r *VerificationRepository) Consume(ctx context.Context, id string) (*domain.VerificationSession, error) {
	key := r.sessionKey(id)

	values, err := r.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall verification session: %w", err)
	}
	if len(values) == 0 {
		return nil, repository.ErrNotFound
	}

	session, err := decodeSession(id, values)
	if err != nil {
		return nil, err
	}

	deleted, err := r.client.Del(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("redis delete verification session: %w", err)
	}
	if deleted == 0 {
		return nil, repository.ErrNotFound
	}

	// Drop the identity index only if it still points at this session;
	// a superseding registration may have repointed it already.
	indexKey := r.identityKey(session.Profile.Kind, session.Profile.IdentityKey)
	if current, err := r.client.Get(ctx, indexKey).Result(); err == nil && current == id {
		_ = r.client.Del(ctx, indexKey).Err()
	}

	return session, nil
}

// DeleteByIdentity invalidates any pending session for the identity key.
func (r *VerificationRepository) DeleteByIdentity(ctx context.Context, kind domain.AccountKind, identityKey string) error {
	indexKey := r.identityKey(kind, identityKey)

	id, err := r.client.Get(ctx, indexKey).Result()
	if err == red.Nil {
		return nil
	}
	if err != nil {
		return fmt.Errorf("redis get verification index: %w", err)
	}

	if err := r.client.Del(ctx, r.sessionKey(id), indexKey).Err(); err != nil {
		return fmt.Errorf("redis delete superseded session: %w", err)
	}

	return nil
}

func (r *VerificationRepository) sessionKey(id string) string {
	return fmt.Sprintf("%s:session:%s", r.prefix, id)
}

func (r *VerificationRepository) identityKey(kind domain.AccountKind, identityKey string) string {
	return fmt.Sprintf("%s:identity:%s:%s", r.prefix, kind, identityKey)
}

func decodeSession(id string, values map[string]string) (*domain.VerificationSession, error) {
	createdAt, err := parseUnix(values[fieldCreatedAt])
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	lastSentAt, err := parseUnix(values[fieldLastSentAt])
	if err != nil {
		return nil, fmt.Errorf("parse last_sent_at: %w", err)
	}
	expiresAt, err := parseUnix(values[fieldExpiresAt])
	if err != nil {
		return nil, fmt.Errorf("parse expires_at: %w", err)
	}

	attempts := 0
	if raw := values[fieldAttempts]; raw != "" {
		if v, convErr := strconv.Atoi(raw); convErr == nil {
			attempts = v
		}
	}

	return &domain.VerificationSession{
		ID: id,
		Profile: domain.RegistrationProfile{
			Kind:        domain.AccountKind(values[fieldKind]),
			IdentityKey: values[fieldIdentityKey],
			Name:        values[fieldName],
			Email:       values[fieldEmail],
			Department:  values[fieldDepartment],
		},
		PasswordHash:      values[fieldPasswordHash],
		CodeHash:          values[fieldCodeHash],
		CreatedAt:         createdAt,
		LastSentAt:        lastSentAt,
		ExpiresAt:         expiresAt,
		AttemptsRemaining: attempts,
	}, nil
}

func parseUnix(raw string) (time.Time, error) {
	if strings.TrimSpace(raw) == "" {
		return time.Time{}, errors.New("timestamp is empty")
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(v, 0).UTC(), nil
}

var _ port.VerificationStore = (*VerificationRepository)(nil)
