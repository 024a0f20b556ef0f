package port

import (
	"context"

	"github.com/medscan/hospital-records/internal/core/domain"
)

// EventPublisher publishes audit events to the message bus.
type EventPublisher interface {
	PublishAccountRegistered(ctx context.Context, event domain.AccountRegisteredEvent) error
	PublishAccountLocked(ctx context.Context, event domain.AccountLockedEvent) error
	PublishPredictionCreated(ctx context.Context, event domain.PredictionCreatedEvent) error
}
