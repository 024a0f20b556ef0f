package kafka

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/medscan/hospital-records/internal/core/domain"
	"github.com/medscan/hospital-records/internal/core/port"
)

// StubPublisher logs events instead of sending them to Kafka. Used when
// no brokers are configured.
type StubPublisher struct {
	logger *zap.Logger
}

// NewStubPublisher constructs a development-friendly event publisher.
func NewStubPublisher(logger *zap.Logger) *StubPublisher {
	return &StubPublisher{logger: logger}
}

func (p *StubPublisher) logEvent(eventType, accountID string, at time.Time, payload any) {
	if at.IsZero() {
		at = time.Now().UTC()
	}

	p.logger.Info("stub event published",
		zap.String("event_type", eventType),
		zap.String("account_id", accountID),
		zap.Time("timestamp", at.UTC()),
		zap.Any("payload", payload),
	)
}

// PublishAccountRegistered logs med.account.registered events.
func (p *StubPublisher) PublishAccountRegistered(_ context.Context, event domain.AccountRegisteredEvent) error {
	payload := map[string]any{
		"account_id":    event.AccountID,
		"kind":          event.Kind,
		"identity_key":  event.IdentityKey,
		"email":         event.Email,
		"department":    event.Department,
		"registered_at": event.RegisteredAt,
		"metadata":      event.Metadata,
	}
	p.logEvent("account.registered", event.AccountID, event.RegisteredAt, payload)
	return nil
}

// PublishAccountLocked logs med.account.locked events.
func (p *StubPublisher) PublishAccountLocked(_ context.Context, event domain.AccountLockedEvent) error {
	payload := map[string]any{
		"account_id":   event.AccountID,
		"kind":         event.Kind,
		"identity_key": event.IdentityKey,
		"attempts":     event.Attempts,
		"locked_at":    event.LockedAt,
		"locked_until": event.LockedUntil,
		"metadata":     event.Metadata,
	}
	p.logEvent("account.locked", event.AccountID, event.LockedAt, payload)
	return nil
}

// PublishPredictionCreated logs med.prediction.created events.
func (p *StubPublisher) PublishPredictionCreated(_ context.Context, event domain.PredictionCreatedEvent) error {
	payload := map[string]any{
		"record_id":   event.RecordID,
		"sequence_id": event.SequenceID,
		"patient_id":  event.PatientID,
		"created_at":  event.CreatedAt,
		"metadata":    event.Metadata,
	}
	p.logEvent("prediction.created", "", event.CreatedAt, payload)
	return nil
}

var _ port.EventPublisher = (*StubPublisher)(nil)
