package application

import (
	"context"
	"time"

	"github.com/felixgeelhaar/paysync/internal/billing/domain"
)

// Locker grants short-lived exclusive locks. A lock only narrows the window
// for concurrent duplicate deliveries; the conditional update in the store is
// what makes application exactly-once.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (unlock func(context.Context) error, acquired bool, err error)
}

// IsDuplicate reports whether ev was already applied to current.
func IsDuplicate(current *domain.Subscription, ev *domain.Event) bool {
	return ev.HasID() && current.HasEvent(ev.ID)
}

func lockKey(ev *domain.Event) string {
	return "event:" + ev.ID
}
