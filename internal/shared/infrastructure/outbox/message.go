// Package outbox stores domain events next to the state change that raised
// them and relays them to the message broker.
package outbox

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/paysync/internal/shared/domain"
)

// Message is a domain event waiting to be published.
type Message struct {
	ID             int64
	EventID        uuid.UUID
	AggregateType  string
	AggregateID    uuid.UUID
	EventType      string
	RoutingKey     string
	Payload        json.RawMessage
	Metadata       json.RawMessage
	CreatedAt      time.Time
	PublishedAt    *time.Time
	NextRetryAt    *time.Time
	RetryCount     int
	LastError      string
	DeadLetteredAt *time.Time
}

// typed is implemented by events that carry a name distinct from their routing key.
type typed interface {
	EventType() string
}

// NewMessage serialises a domain event for the outbox.
func NewMessage(event domain.DomainEvent) (*Message, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("outbox: encode payload: %w", err)
	}
	metadata, err := json.Marshal(event.Metadata())
	if err != nil {
		return nil, fmt.Errorf("outbox: encode metadata: %w", err)
	}

	eventType := event.RoutingKey()
	if t, ok := event.(typed); ok {
		eventType = t.EventType()
	}

	return &Message{
		EventID:       event.EventID(),
		AggregateType: event.AggregateType(),
		AggregateID:   event.AggregateID(),
		EventType:     eventType,
		RoutingKey:    event.RoutingKey(),
		Payload:       payload,
		Metadata:      metadata,
		CreatedAt:     event.OccurredAt(),
	}, nil
}

// IsPublished reports whether the broker accepted the message.
func (m *Message) IsPublished() bool {
	return m.PublishedAt != nil
}

// Trace decodes the tracing metadata, tolerating malformed rows.
func (m *Message) Trace() domain.EventMetadata {
	var md domain.EventMetadata
	if len(m.Metadata) > 0 {
		_ = json.Unmarshal(m.Metadata, &md)
	}
	return md
}
