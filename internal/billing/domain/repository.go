package domain

import (
	"context"

	"github.com/google/uuid"
)

// SubscriptionRepository is the durable record store. Finders return nil and
// no error when nothing matches.
type SubscriptionRepository interface {
	FindByUserID(ctx context.Context, userID uuid.UUID) (*Subscription, error)
	FindBySubscriptionID(ctx context.Context, providerSubscriptionID string) (*Subscription, error)

	// Upsert inserts the record, or updates the existing record of the same
	// user unless it already carries the incoming last event id. It reports
	// whether a row was written.
	Upsert(ctx context.Context, s *Subscription) (bool, error)

	// ConditionalUpdate writes s only if the stored last event id still
	// equals expectedLastEventID.
	ConditionalUpdate(ctx context.Context, s *Subscription, expectedLastEventID string) (bool, error)

	// ListByStatus returns records in any of the given statuses, most
	// recently updated first. No statuses means all records.
	ListByStatus(ctx context.Context, statuses []Status, limit int) ([]*Subscription, error)
}

// AccountStore removes a user's billing data during account deletion.
type AccountStore interface {
	DeleteByUserID(ctx context.Context, userID uuid.UUID) (bool, error)
}
