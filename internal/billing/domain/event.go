package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// EventKind is the closed set of provider event types the state machine knows.
type EventKind string

const (
	KindSubscriptionCreated   EventKind = "subscription.created"
	KindSubscriptionUpdated   EventKind = "subscription.updated"
	KindSubscriptionActivated EventKind = "subscription.activated"
	KindSubscriptionCanceled  EventKind = "subscription.canceled"
	KindSubscriptionPaused    EventKind = "subscription.paused"
	KindSubscriptionResumed   EventKind = "subscription.resumed"
	KindSubscriptionPastDue   EventKind = "subscription.past_due"
	KindTransactionCompleted  EventKind = "transaction.completed"
	KindUnknown               EventKind = "unknown"
)

// KindOf classifies a provider event type.
func KindOf(eventType string) EventKind {
	switch k := EventKind(eventType); k {
	case KindSubscriptionCreated, KindSubscriptionUpdated, KindSubscriptionActivated,
		KindSubscriptionCanceled, KindSubscriptionPaused, KindSubscriptionResumed,
		KindSubscriptionPastDue, KindTransactionCompleted:
		return k
	}
	return KindUnknown
}

// LookupBySubscription reports whether events of this kind locate their record
// by provider subscription id instead of user id.
func (k EventKind) LookupBySubscription() bool {
	return k == KindTransactionCompleted
}

// ScheduledChange is a change the provider will apply at a later time.
type ScheduledChange struct {
	Action      string
	EffectiveAt *time.Time
}

// IsCancellation reports whether the change cancels the subscription.
func (c *ScheduledChange) IsCancellation() bool {
	return c != nil && strings.EqualFold(c.Action, "cancel")
}

// EventData is the subset of the provider payload the reconciler reads.
type EventData struct {
	ID              string
	CustomerID      string
	Status          string
	PriceID         string
	UnitPrice       *Money
	PeriodStart     *time.Time
	PeriodEnd       *time.Time
	ScheduledChange *ScheduledChange
	CanceledAt      *time.Time
	SubscriptionID  string
	BilledAt        *time.Time
	Total           *Money
	CurrencyCode    string
}

// Event is a validated provider event.
type Event struct {
	ID         string
	Type       string
	Kind       EventKind
	OccurredAt *time.Time
	UserID     uuid.UUID
	Data       EventData
}

// HasID reports whether the event can be deduplicated.
func (e *Event) HasID() bool {
	return e.ID != ""
}

// SubscriptionKey returns the provider subscription id the event refers to.
func (e *Event) SubscriptionKey() string {
	if e.Kind.LookupBySubscription() {
		return e.Data.SubscriptionID
	}
	return e.Data.ID
}

// Amount returns the monetary signal used for plan fallback: the transaction
// total when present, otherwise the unit price of the first item.
func (e *Event) Amount() *Money {
	if e.Data.Total != nil {
		return e.Data.Total
	}
	return e.Data.UnitPrice
}

type envelope struct {
	EventID    *string         `json:"event_id"`
	EventType  *string         `json:"event_type"`
	OccurredAt timestamp       `json:"occurred_at"`
	Data       json.RawMessage `json:"data"`
}

type wireData struct {
	ID         string          `json:"id"`
	CustomerID string          `json:"customer_id"`
	Status     string          `json:"status"`
	CustomData json.RawMessage `json:"custom_data"`
	Items      []struct {
		Price struct {
			ID        string `json:"id"`
			UnitPrice *struct {
				Amount       amount `json:"amount"`
				CurrencyCode string `json:"currency_code"`
			} `json:"unit_price"`
		} `json:"price"`
	} `json:"items"`
	CurrentBillingPeriod *struct {
		StartsAt timestamp `json:"starts_at"`
		EndsAt   timestamp `json:"ends_at"`
	} `json:"current_billing_period"`
	ScheduledChange *struct {
		Action      string    `json:"action"`
		EffectiveAt timestamp `json:"effective_at"`
	} `json:"scheduled_change"`
	CanceledAt     timestamp `json:"canceled_at"`
	SubscriptionID string    `json:"subscription_id"`
	BilledAt       timestamp `json:"billed_at"`
	Details        *struct {
		Totals *struct {
			Total amount `json:"total"`
		} `json:"totals"`
	} `json:"details"`
	CurrencyCode string `json:"currency_code"`
}

// ParseEvent decodes and validates a raw provider event.
func ParseEvent(raw []byte) (*Event, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if env.EventType == nil || *env.EventType == "" {
		return nil, fmt.Errorf("%w: event_type is required", ErrInvalidPayload)
	}
	data := bytes.TrimSpace(env.Data)
	if len(data) == 0 || data[0] != '{' {
		return nil, fmt.Errorf("%w: data must be an object", ErrInvalidPayload)
	}
	return parseData(env, data)
}

// EventFromSubscriptionData wraps a provider subscription entity, as returned
// by the provider API, into an updated event without an event id.
func EventFromSubscriptionData(data []byte) (*Event, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '{' {
		return nil, fmt.Errorf("%w: data must be an object", ErrInvalidPayload)
	}
	eventType := string(KindSubscriptionUpdated)
	return parseData(envelope{EventType: &eventType}, data)
}

func parseData(env envelope, data []byte) (*Event, error) {
	var wd wireData
	if err := json.Unmarshal(data, &wd); err != nil {
		return nil, fmt.Errorf("%w: data: %v", ErrInvalidPayload, err)
	}

	userID, err := parseUserID(wd.CustomData)
	if err != nil {
		return nil, err
	}

	ev := &Event{
		Type:       *env.EventType,
		Kind:       KindOf(*env.EventType),
		OccurredAt: env.OccurredAt.ptr(),
		UserID:     userID,
		Data: EventData{
			ID:             wd.ID,
			CustomerID:     wd.CustomerID,
			Status:         wd.Status,
			CanceledAt:     wd.CanceledAt.ptr(),
			SubscriptionID: wd.SubscriptionID,
			BilledAt:       wd.BilledAt.ptr(),
			CurrencyCode:   strings.ToUpper(wd.CurrencyCode),
		},
	}
	if env.EventID != nil {
		ev.ID = *env.EventID
	}

	if len(wd.Items) > 0 {
		price := wd.Items[0].Price
		ev.Data.PriceID = price.ID
		if price.UnitPrice != nil && price.UnitPrice.Amount != "" {
			ev.Data.UnitPrice = &Money{
				Amount:   string(price.UnitPrice.Amount),
				Currency: strings.ToUpper(price.UnitPrice.CurrencyCode),
			}
		}
	}
	if p := wd.CurrentBillingPeriod; p != nil {
		ev.Data.PeriodStart = p.StartsAt.ptr()
		ev.Data.PeriodEnd = p.EndsAt.ptr()
	}
	if sc := wd.ScheduledChange; sc != nil {
		ev.Data.ScheduledChange = &ScheduledChange{Action: sc.Action, EffectiveAt: sc.EffectiveAt.ptr()}
	}
	if d := wd.Details; d != nil && d.Totals != nil && d.Totals.Total != "" {
		ev.Data.Total = &Money{Amount: string(d.Totals.Total), Currency: ev.Data.CurrencyCode}
	}
	return ev, nil
}

func parseUserID(customData json.RawMessage) (uuid.UUID, error) {
	var cd struct {
		UserID json.RawMessage `json:"user_id"`
	}
	if len(customData) == 0 || json.Unmarshal(customData, &cd) != nil || len(cd.UserID) == 0 {
		return uuid.Nil, ErrInvalidUser
	}
	var s string
	if err := json.Unmarshal(cd.UserID, &s); err != nil {
		return uuid.Nil, ErrInvalidUser
	}
	id, ok := ParseUserID(s)
	if !ok {
		return uuid.Nil, ErrInvalidUser
	}
	return id, nil
}

// ParseUserID accepts only the canonical hyphenated form of a version 4 UUID.
func ParseUserID(s string) (uuid.UUID, bool) {
	if len(s) != 36 {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(s)
	if err != nil || id.Version() != 4 || id.Variant() != uuid.RFC4122 {
		return uuid.Nil, false
	}
	return id, true
}

// amount accepts a JSON number or a numeric string. Anything else decodes as
// absent; an unreadable amount must not block the event.
type amount string

func (a *amount) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*a = ""
		return nil
	}
	s := string(b)
	if b[0] == '"' {
		if err := json.Unmarshal(b, &s); err != nil {
			*a = ""
			return nil
		}
		s = strings.TrimSpace(s)
	}
	if _, err := strconv.ParseFloat(s, 64); err != nil {
		*a = ""
		return nil
	}
	*a = amount(s)
	return nil
}

// timestamp accepts an RFC 3339 string. Missing or unreadable values decode as absent.
type timestamp struct {
	t *time.Time
}

func (ts *timestamp) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		ts.t = nil
		return nil
	}
	ts.t = parseTimestamp(s)
	return nil
}

func (ts timestamp) ptr() *time.Time {
	return ts.t
}

func parseTimestamp(s string) *time.Time {
	t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(s))
	if err != nil {
		return nil
	}
	t = t.UTC()
	return &t
}
