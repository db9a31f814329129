// Package eventbus publishes integration events to the message broker.
package eventbus

import (
	"context"
	"time"
)

// Message is one broker delivery.
type Message struct {
	ID            string
	RoutingKey    string
	Type          string
	CorrelationID string
	Timestamp     time.Time
	Body          []byte
}

// Publisher sends messages to the broker.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
	Close() error
}
