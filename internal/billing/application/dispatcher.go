// Package application applies provider billing events to subscription records.
package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/felixgeelhaar/paysync/internal/billing/domain"
	sharedApplication "github.com/felixgeelhaar/paysync/internal/shared/application"
	"github.com/felixgeelhaar/paysync/internal/shared/infrastructure/outbox"
	"github.com/felixgeelhaar/paysync/pkg/observability"
)

// Verifier authenticates a raw request body against its signature header.
type Verifier interface {
	Verify(body []byte, header string) error
}

// Result is reported back to the provider.
type Result struct {
	Success   bool   `json:"success"`
	EventType string `json:"event_type"`
	Skipped   bool   `json:"skipped,omitempty"`
}

// DispatcherConfig tunes event application.
type DispatcherConfig struct {
	LockTTL     time.Duration
	MaxAttempts int
}

// DefaultDispatcherConfig returns the default configuration.
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{LockTTL: 30 * time.Second, MaxAttempts: 3}
}

// Dispatcher authenticates, validates and applies provider events.
type Dispatcher struct {
	verifier Verifier
	repo     domain.SubscriptionRepository
	outbox   outbox.Repository
	uow      sharedApplication.UnitOfWork
	locker   Locker
	plans    domain.PlanResolver
	config   DispatcherConfig
	logger   *slog.Logger
	metrics  observability.Metrics
	now      func() time.Time
}

// NewDispatcher creates a dispatcher. Without a verifier every signed request
// is refused with a configuration error.
func NewDispatcher(
	repo domain.SubscriptionRepository,
	uow sharedApplication.UnitOfWork,
	plans domain.PlanResolver,
	config DispatcherConfig,
	logger *slog.Logger,
	metrics observability.Metrics,
) *Dispatcher {
	if config.MaxAttempts < 1 {
		config.MaxAttempts = 1
	}
	if config.LockTTL <= 0 {
		config.LockTTL = DefaultDispatcherConfig().LockTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = observability.NoopMetrics{}
	}
	return &Dispatcher{
		repo:    repo,
		uow:     uow,
		locker:  noopLocker{},
		plans:   plans,
		config:  config,
		logger:  logger,
		metrics: metrics,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// WithVerifier sets the signature verifier.
func (d *Dispatcher) WithVerifier(v Verifier) *Dispatcher {
	d.verifier = v
	return d
}

// WithLocker sets the in-flight locker.
func (d *Dispatcher) WithLocker(l Locker) *Dispatcher {
	if l != nil {
		d.locker = l
	}
	return d
}

// WithOutbox stores a change notification next to every applied transition.
func (d *Dispatcher) WithOutbox(repo outbox.Repository) *Dispatcher {
	d.outbox = repo
	return d
}

// WithClock replaces the wall clock.
func (d *Dispatcher) WithClock(now func() time.Time) *Dispatcher {
	if now != nil {
		d.now = now
	}
	return d
}

// Handle processes one webhook request.
func (d *Dispatcher) Handle(ctx context.Context, body []byte, signatureHeader string) (*Result, error) {
	if d.verifier == nil {
		return nil, fmt.Errorf("%w: webhook secret is not set", domain.ErrConfig)
	}
	if err := d.verifier.Verify(body, signatureHeader); err != nil {
		return nil, err
	}
	ev, err := domain.ParseEvent(body)
	if err != nil {
		return nil, err
	}
	return d.Apply(ctx, ev)
}

// Apply applies an authenticated event.
func (d *Dispatcher) Apply(ctx context.Context, ev *domain.Event) (*Result, error) {
	logger := d.logger.With(
		observability.EventIDKey, ev.ID,
		observability.EventTypeKey, ev.Type,
		observability.UserIDKey, ev.UserID.String(),
	)
	result := &Result{Success: true, EventType: ev.Type}
	eventTag := observability.T("event_type", string(ev.Kind))

	if !ev.HasID() {
		logger.WarnContext(ctx, "event has no event_id, duplicate deliveries cannot be detected")
	} else {
		unlock, acquired, err := d.locker.TryLock(ctx, lockKey(ev), d.config.LockTTL)
		switch {
		case err != nil:
			logger.WarnContext(ctx, "in-flight lock unavailable, relying on conditional update", observability.ErrorKey, err)
		case !acquired:
			logger.InfoContext(ctx, "event is being processed by another delivery")
			d.metrics.Counter(observability.MetricWebhookSkipped, 1, observability.T("reason", "in_flight"))
			result.Skipped = true
			return result, nil
		default:
			defer func() {
				if err := unlock(context.WithoutCancel(ctx)); err != nil {
					logger.WarnContext(ctx, "failed to release in-flight lock", observability.ErrorKey, err)
				}
			}()
		}
	}

	for attempt := 1; attempt <= d.config.MaxAttempts; attempt++ {
		current, err := d.load(ctx, ev)
		if err != nil {
			logger.ErrorContext(ctx, "failed to load subscription", observability.ErrorKey, err)
			return nil, err
		}

		if IsDuplicate(current, ev) {
			logger.InfoContext(ctx, "duplicate delivery skipped", "attempt", attempt)
			d.metrics.Counter(observability.MetricWebhookSkipped, 1, observability.T("reason", "duplicate"))
			result.Skipped = true
			return result, nil
		}

		tr := domain.Apply(current, ev, domain.TransitionEnv{Now: d.now(), Plans: d.plans})
		d.logNotes(ctx, logger, tr.Notes)

		if !tr.Mutated {
			d.metrics.Counter(observability.MetricWebhookIgnored, 1, eventTag)
			return result, nil
		}

		written, err := d.persist(ctx, current, tr.Next, ev)
		if err != nil {
			logger.ErrorContext(ctx, "failed to persist subscription", observability.ErrorKey, err)
			return nil, persistenceError("save", err)
		}
		if written {
			d.metrics.Counter(observability.MetricWebhookApplied, 1, eventTag)
			logger.InfoContext(ctx, "event applied",
				"status", string(tr.Next.Status),
				"plan", string(tr.Next.Plan),
				"subscription_id", tr.Next.ProviderSubscriptionID,
			)
			return result, nil
		}

		d.metrics.Counter(observability.MetricApplyConflicts, 1, eventTag)
		logger.InfoContext(ctx, "subscription changed concurrently, retrying", "attempt", attempt)
	}

	return nil, fmt.Errorf("%w: subscription changed concurrently %d times", domain.ErrPersistence, d.config.MaxAttempts)
}

func (d *Dispatcher) load(ctx context.Context, ev *domain.Event) (*domain.Subscription, error) {
	var (
		current *domain.Subscription
		err     error
	)
	if ev.Kind.LookupBySubscription() {
		current, err = d.repo.FindBySubscriptionID(ctx, ev.Data.SubscriptionID)
	} else {
		current, err = d.repo.FindByUserID(ctx, ev.UserID)
	}
	if err != nil {
		return nil, persistenceError("load", err)
	}
	return current, nil
}

// persist writes next and its change notification in one unit of work. It
// reports false when the stored record no longer matches current.
func (d *Dispatcher) persist(ctx context.Context, current, next *domain.Subscription, ev *domain.Event) (bool, error) {
	return sharedApplication.InUnitOfWork(ctx, d.uow, func(txCtx context.Context) (bool, error) {
		var (
			written bool
			err     error
		)
		if current == nil {
			written, err = d.repo.Upsert(txCtx, next)
		} else {
			written, err = d.repo.ConditionalUpdate(txCtx, next, current.LastEventID)
		}
		if err != nil || !written || d.outbox == nil {
			return written, err
		}

		change := domain.NewSubscriptionChanged(current, next, ev)
		change.SetMetadata(sharedApplication.NewEventMetadata(
			observability.CorrelationIDFromContext(ctx), ev.ID, next.UserID))
		msg, err := outbox.NewMessage(change)
		if err != nil {
			return false, err
		}
		if err := d.outbox.Save(txCtx, msg); err != nil {
			return false, err
		}
		return true, nil
	})
}

func (d *Dispatcher) logNotes(ctx context.Context, logger *slog.Logger, notes []domain.Note) {
	for _, n := range notes {
		switch n.Kind {
		case domain.NotePlanCorrected:
			d.metrics.Counter(observability.MetricPlanCorrections, 1)
		case domain.NoteReconciliationWarning:
			d.metrics.Counter(observability.MetricPlanConflicts, 1)
		}
		if n.Warning {
			logger.WarnContext(ctx, n.Message, "note", string(n.Kind))
		} else {
			logger.InfoContext(ctx, n.Message, "note", string(n.Kind))
		}
	}
}

func persistenceError(op string, err error) error {
	if errors.Is(err, domain.ErrPersistence) {
		return err
	}
	return fmt.Errorf("%w: %s: %v", domain.ErrPersistence, op, err)
}

type noopLocker struct{}

func (noopLocker) TryLock(context.Context, string, time.Duration) (func(context.Context) error, bool, error) {
	return func(context.Context) error { return nil }, true, nil
}
