package application

import (
	"context"
	"sync"
	"time"

	"github.com/felixgeelhaar/paysync/internal/billing/domain"
	"github.com/felixgeelhaar/paysync/internal/shared/infrastructure/outbox"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// memoryRepo is an in-memory SubscriptionRepository and AccountStore.
type memoryRepo struct {
	mu      sync.Mutex
	records map[uuid.UUID]*domain.Subscription
	writes  int

	// beforeUpdate runs ahead of every conditional update, outside the lock.
	beforeUpdate func(attempt int)
	updates      int
	findErr      error
	writeErr     error
}

func newMemoryRepo(records ...*domain.Subscription) *memoryRepo {
	r := &memoryRepo{records: make(map[uuid.UUID]*domain.Subscription)}
	for _, s := range records {
		r.records[s.UserID] = s.Clone()
	}
	return r
}

func (r *memoryRepo) FindByUserID(_ context.Context, userID uuid.UUID) (*domain.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.findErr != nil {
		return nil, r.findErr
	}
	return r.records[userID].Clone(), nil
}

func (r *memoryRepo) FindBySubscriptionID(_ context.Context, id string) (*domain.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.findErr != nil {
		return nil, r.findErr
	}
	for _, s := range r.records {
		if id != "" && s.ProviderSubscriptionID == id {
			return s.Clone(), nil
		}
	}
	return nil, nil
}

func (r *memoryRepo) Upsert(_ context.Context, s *domain.Subscription) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.writeErr != nil {
		return false, r.writeErr
	}
	if cur, ok := r.records[s.UserID]; ok && s.LastEventID != "" && cur.LastEventID == s.LastEventID {
		return false, nil
	}
	r.records[s.UserID] = s.Clone()
	r.writes++
	return true, nil
}

func (r *memoryRepo) ConditionalUpdate(_ context.Context, s *domain.Subscription, expected string) (bool, error) {
	r.updates++
	if r.beforeUpdate != nil {
		r.beforeUpdate(r.updates)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.writeErr != nil {
		return false, r.writeErr
	}
	cur, ok := r.records[s.UserID]
	if !ok || cur.ID != s.ID || cur.LastEventID != expected {
		return false, nil
	}
	r.records[s.UserID] = s.Clone()
	r.writes++
	return true, nil
}

func (r *memoryRepo) ListByStatus(_ context.Context, statuses []domain.Status, limit int) ([]*domain.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Subscription
	for _, s := range r.records {
		if len(statuses) > 0 && !containsStatus(statuses, s.Status) {
			continue
		}
		out = append(out, s.Clone())
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *memoryRepo) DeleteByUserID(_ context.Context, userID uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.writeErr != nil {
		return false, r.writeErr
	}
	_, ok := r.records[userID]
	delete(r.records, userID)
	return ok, nil
}

func (r *memoryRepo) get(userID uuid.UUID) *domain.Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.records[userID].Clone()
}

// set replaces a record as a concurrent writer would.
func (r *memoryRepo) set(s *domain.Subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[s.UserID] = s.Clone()
}

func containsStatus(list []domain.Status, s domain.Status) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

type stubUnitOfWork struct {
	commits   int
	rollbacks int
}

func (u *stubUnitOfWork) Begin(ctx context.Context) (context.Context, error) { return ctx, nil }
func (u *stubUnitOfWork) Commit(context.Context) error                       { u.commits++; return nil }
func (u *stubUnitOfWork) Rollback(context.Context) error                     { u.rollbacks++; return nil }

type mockOutboxRepo struct {
	mock.Mock
}

func (m *mockOutboxRepo) Save(ctx context.Context, msg *outbox.Message) error {
	return m.Called(ctx, msg).Error(0)
}

func (m *mockOutboxRepo) Pending(ctx context.Context, now time.Time, limit int) ([]*outbox.Message, error) {
	args := m.Called(ctx, now, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*outbox.Message), args.Error(1)
}

func (m *mockOutboxRepo) MarkPublished(ctx context.Context, id int64, at time.Time) error {
	return m.Called(ctx, id, at).Error(0)
}

func (m *mockOutboxRepo) MarkFailed(ctx context.Context, id int64, reason string, nextRetryAt time.Time) error {
	return m.Called(ctx, id, reason, nextRetryAt).Error(0)
}

func (m *mockOutboxRepo) MarkDead(ctx context.Context, id int64, reason string, at time.Time) error {
	return m.Called(ctx, id, reason, at).Error(0)
}

func (m *mockOutboxRepo) CountPending(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockOutboxRepo) DeleteOld(ctx context.Context, before time.Time) (int64, error) {
	args := m.Called(ctx, before)
	return args.Get(0).(int64), args.Error(1)
}

type stubLocker struct {
	acquired bool
	err      error
	released int
}

func (l *stubLocker) TryLock(context.Context, string, time.Duration) (func(context.Context) error, bool, error) {
	if l.err != nil || !l.acquired {
		return nil, false, l.err
	}
	return func(context.Context) error { l.released++; return nil }, true, nil
}

type mockCanceller struct {
	mock.Mock
}

func (m *mockCanceller) CancelSubscription(ctx context.Context, id, effective string) error {
	return m.Called(ctx, id, effective).Error(0)
}
