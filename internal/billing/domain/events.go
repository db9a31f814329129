package domain

import (
	"time"

	"github.com/felixgeelhaar/paysync/internal/shared/domain"
)

const (
	// AggregateType is the aggregate name used on outbox messages.
	AggregateType = "Subscription"

	// RoutingKeySubscriptionChanged is the broker routing key for record changes.
	RoutingKeySubscriptionChanged = "billing.subscription.changed"
)

// SubscriptionChanged is raised whenever an event changes a subscription record.
type SubscriptionChanged struct {
	domain.BaseEvent
	UserID                 string     `json:"user_id"`
	ProviderSubscriptionID string     `json:"provider_subscription_id,omitempty"`
	ProviderEventID        string     `json:"provider_event_id,omitempty"`
	ProviderEventType      string     `json:"provider_event_type"`
	PreviousStatus         Status     `json:"previous_status"`
	Status                 Status     `json:"status"`
	PreviousPlan           Plan       `json:"previous_plan"`
	Plan                   Plan       `json:"plan"`
	PlanSource             PlanSource `json:"plan_source"`
	CurrentPeriodEnd       *time.Time `json:"current_period_end,omitempty"`
	CancelAt               *time.Time `json:"cancel_at,omitempty"`
}

// NewSubscriptionChanged describes the move from prev (nil for a new record) to next.
func NewSubscriptionChanged(prev, next *Subscription, ev *Event) *SubscriptionChanged {
	e := &SubscriptionChanged{
		BaseEvent:              domain.NewBaseEvent(next.ID, AggregateType, RoutingKeySubscriptionChanged),
		UserID:                 next.UserID.String(),
		ProviderSubscriptionID: next.ProviderSubscriptionID,
		ProviderEventID:        ev.ID,
		ProviderEventType:      ev.Type,
		PreviousStatus:         StatusNone,
		Status:                 next.Status,
		PreviousPlan:           PlanUnknown,
		Plan:                   next.Plan,
		PlanSource:             next.PlanSource,
		CurrentPeriodEnd:       cloneTime(next.CurrentPeriodEnd),
		CancelAt:               cloneTime(next.CancelAt),
	}
	if prev != nil {
		e.PreviousStatus = prev.Status
		e.PreviousPlan = prev.Plan
	}
	return e
}

// EventType names the event for consumers.
func (e *SubscriptionChanged) EventType() string {
	return "SubscriptionChanged"
}
