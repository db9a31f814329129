package application

import (
	"context"
	"fmt"

	"github.com/felixgeelhaar/paysync/internal/billing/domain"
	"github.com/google/uuid"
)

// DefaultListLimit bounds ListSubscriptions when no limit is given.
const DefaultListLimit = 100

// Service provides read access to subscription records.
type Service struct {
	subscriptions domain.SubscriptionRepository
}

// NewService creates a new billing service.
func NewService(subscriptions domain.SubscriptionRepository) *Service {
	return &Service{subscriptions: subscriptions}
}

// GetSubscription returns the user's subscription, if any.
func (s *Service) GetSubscription(ctx context.Context, userID uuid.UUID) (*domain.Subscription, error) {
	if s == nil || s.subscriptions == nil {
		return nil, nil
	}
	return s.subscriptions.FindByUserID(ctx, userID)
}

// FindBySubscriptionID returns the record of a provider subscription, if any.
func (s *Service) FindBySubscriptionID(ctx context.Context, id string) (*domain.Subscription, error) {
	if s == nil || s.subscriptions == nil {
		return nil, nil
	}
	return s.subscriptions.FindBySubscriptionID(ctx, id)
}

// ListSubscriptions returns records in the given statuses.
func (s *Service) ListSubscriptions(ctx context.Context, statuses []domain.Status, limit int) ([]*domain.Subscription, error) {
	if s == nil || s.subscriptions == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}
	return s.subscriptions.ListByStatus(ctx, statuses, limit)
}

// ParseStatuses parses a list of status names, skipping blanks.
func ParseStatuses(names []string) ([]domain.Status, error) {
	out := make([]domain.Status, 0, len(names))
	for _, n := range names {
		if n == "" {
			continue
		}
		st, ok := domain.ParseStatus(n)
		if !ok {
			return nil, fmt.Errorf("%w: unknown subscription status %q", domain.ErrValidation, n)
		}
		out = append(out, st)
	}
	return out, nil
}
