package domain

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status represents the billing state of a subscription.
type Status string

const (
	StatusNone      Status = "none"
	StatusTrialing  Status = "trialing"
	StatusActive    Status = "active"
	StatusPastDue   Status = "past_due"
	StatusPaused    Status = "paused"
	StatusCancelled Status = "cancelled"
)

// ParseStatus maps a provider status string to a Status.
// The provider spells the terminal state "canceled".
func ParseStatus(s string) (Status, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none":
		return StatusNone, true
	case "trialing":
		return StatusTrialing, true
	case "active":
		return StatusActive, true
	case "past_due":
		return StatusPastDue, true
	case "paused":
		return StatusPaused, true
	case "canceled", "cancelled":
		return StatusCancelled, true
	}
	return "", false
}

// Plan is the billing tier of a subscription.
type Plan string

const (
	PlanMonthly Plan = "monthly"
	PlanYearly  Plan = "yearly"
	PlanUnknown Plan = "unknown"
)

// ParsePlan parses a stored plan value.
func ParsePlan(s string) (Plan, bool) {
	switch Plan(s) {
	case PlanMonthly, PlanYearly, PlanUnknown:
		return Plan(s), true
	}
	return "", false
}

// PlanSource records which signal the stored plan was derived from.
type PlanSource string

const (
	PlanSourceNone    PlanSource = "none"
	PlanSourcePriceID PlanSource = "price_id"
	PlanSourceAmount  PlanSource = "amount"
)

// Money is an amount as sent by the provider. The amount is kept as decimal
// text so nothing is lost before it is stored.
type Money struct {
	Amount   string
	Currency string
}

// Value returns the numeric amount.
func (m Money) Value() (float64, bool) {
	if m.Amount == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(m.Amount, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// Transaction is the snapshot of the most recent completed transaction.
type Transaction struct {
	ID     string
	Amount Money
	Date   *time.Time
}

// Subscription is the one subscription record a user has.
type Subscription struct {
	ID                     uuid.UUID
	UserID                 uuid.UUID
	ProviderSubscriptionID string
	ProviderCustomerID     string
	Status                 Status
	Plan                   Plan
	PlanSource             PlanSource
	PriceID                string
	CurrentPeriodStart     *time.Time
	CurrentPeriodEnd       *time.Time
	TrialStart             *time.Time
	TrialEnd               *time.Time
	CancelAt               *time.Time
	CancelledAt            *time.Time
	LastEventID            string
	LastTransaction        Transaction
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// NewSubscription creates an empty record for a user.
func NewSubscription(userID uuid.UUID, now time.Time) *Subscription {
	return &Subscription{
		ID:         uuid.New(),
		UserID:     userID,
		Status:     StatusNone,
		Plan:       PlanUnknown,
		PlanSource: PlanSourceNone,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Clone returns a deep copy.
func (s *Subscription) Clone() *Subscription {
	if s == nil {
		return nil
	}
	c := *s
	c.CurrentPeriodStart = cloneTime(s.CurrentPeriodStart)
	c.CurrentPeriodEnd = cloneTime(s.CurrentPeriodEnd)
	c.TrialStart = cloneTime(s.TrialStart)
	c.TrialEnd = cloneTime(s.TrialEnd)
	c.CancelAt = cloneTime(s.CancelAt)
	c.CancelledAt = cloneTime(s.CancelledAt)
	c.LastTransaction.Date = cloneTime(s.LastTransaction.Date)
	return &c
}

// ApplyEventID records the provider event that produced this state.
// Events without an id leave the previous value in place.
func (s *Subscription) ApplyEventID(id string) {
	if id != "" {
		s.LastEventID = id
	}
}

// HasEvent reports whether id is the last event applied to the record.
func (s *Subscription) HasEvent(id string) bool {
	return s != nil && id != "" && s.LastEventID == id
}

// IsActive reports whether the subscription currently grants access.
func (s *Subscription) IsActive() bool {
	if s == nil {
		return false
	}
	switch s.Status {
	case StatusActive, StatusTrialing, StatusPastDue:
		return true
	}
	return false
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
