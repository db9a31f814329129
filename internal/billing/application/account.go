package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/felixgeelhaar/paysync/internal/billing/domain"
	"github.com/felixgeelhaar/paysync/pkg/observability"
	"github.com/google/uuid"
)

// DefaultCancellationTimeout bounds the provider call made during account deletion.
const DefaultCancellationTimeout = 10 * time.Second

// ProviderCanceller cancels a subscription at the payment provider.
type ProviderCanceller interface {
	CancelSubscription(ctx context.Context, id, effective string) error
}

// DeletionResult reports what an account deletion did. CancellationWarning is
// informational; the deletion itself succeeded whenever err is nil.
type DeletionResult struct {
	UserID                uuid.UUID
	RecordDeleted         bool
	CancellationAttempted bool
	CancellationWarning   error
}

// AccountService removes a user's billing data.
type AccountService struct {
	store     domain.AccountStore
	repo      domain.SubscriptionRepository
	canceller ProviderCanceller
	effective string
	timeout   time.Duration
	logger    *slog.Logger
}

// NewAccountService creates an account service. canceller may be nil when no
// provider API key is configured.
func NewAccountService(repo domain.SubscriptionRepository, store domain.AccountStore, canceller ProviderCanceller, logger *slog.Logger) *AccountService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AccountService{
		store:     store,
		repo:      repo,
		canceller: canceller,
		effective: "immediately",
		timeout:   DefaultCancellationTimeout,
		logger:    logger,
	}
}

// WithCancellationTimeout overrides the provider call timeout.
func (s *AccountService) WithCancellationTimeout(d time.Duration) *AccountService {
	if d > 0 {
		s.timeout = d
	}
	return s
}

// DeleteAccount deletes the local record and then asks the provider to cancel
// the subscription. A provider failure never fails the deletion.
func (s *AccountService) DeleteAccount(ctx context.Context, userID uuid.UUID) (*DeletionResult, error) {
	logger := s.logger.With(observability.UserIDKey, userID.String())
	result := &DeletionResult{UserID: userID}

	current, err := s.repo.FindByUserID(ctx, userID)
	if err != nil {
		return nil, persistenceError("load", err)
	}

	deleted, err := s.store.DeleteByUserID(ctx, userID)
	if err != nil {
		return nil, persistenceError("delete", err)
	}
	result.RecordDeleted = deleted
	logger.InfoContext(ctx, "billing record deleted", "deleted", deleted)

	if current == nil || current.ProviderSubscriptionID == "" || current.Status == domain.StatusCancelled {
		return result, nil
	}
	if s.canceller == nil {
		result.CancellationWarning = fmt.Errorf("provider cancellation skipped for %s: no provider client configured", current.ProviderSubscriptionID)
		logger.WarnContext(ctx, "provider cancellation skipped", observability.ErrorKey, result.CancellationWarning)
		return result, nil
	}

	result.CancellationAttempted = true
	cancelCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()
	if err := s.canceller.CancelSubscription(cancelCtx, current.ProviderSubscriptionID, s.effective); err != nil {
		result.CancellationWarning = err
		logger.WarnContext(ctx, "provider cancellation failed",
			"subscription_id", current.ProviderSubscriptionID,
			observability.ErrorKey, err,
		)
	}
	return result, nil
}
