package outbox

import (
	"context"
	"time"
)

// Repository persists outbox messages. Save joins the unit of work found in
// ctx so a message commits or rolls back with the state change that raised it.
type Repository interface {
	Save(ctx context.Context, msg *Message) error

	// Pending returns unpublished, live messages whose retry time has come.
	Pending(ctx context.Context, now time.Time, limit int) ([]*Message, error)

	MarkPublished(ctx context.Context, id int64, at time.Time) error
	MarkFailed(ctx context.Context, id int64, reason string, nextRetryAt time.Time) error
	MarkDead(ctx context.Context, id int64, reason string, at time.Time) error

	// CountPending reports the backlog size.
	CountPending(ctx context.Context) (int64, error)

	// DeleteOld removes published messages older than the cutoff.
	DeleteOld(ctx context.Context, before time.Time) (int64, error)
}
