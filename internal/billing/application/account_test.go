package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/felixgeelhaar/paysync/internal/billing/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestAccountService_DeleteAccount(t *testing.T) {
	t.Run("deletes and cancels at the provider", func(t *testing.T) {
		repo := newMemoryRepo(storedRecord(domain.StatusActive, "evt_0"))
		canceller := new(mockCanceller)
		canceller.On("CancelSubscription", mock.Anything, "sub_01", "immediately").Return(nil).Once()

		res, err := NewAccountService(repo, repo, canceller, nil).DeleteAccount(context.Background(), testUser)
		require.NoError(t, err)
		assert.True(t, res.RecordDeleted)
		assert.True(t, res.CancellationAttempted)
		assert.NoError(t, res.CancellationWarning)
		assert.Nil(t, repo.get(testUser))
		canceller.AssertExpectations(t)
	})

	t.Run("provider failure is only a warning", func(t *testing.T) {
		repo := newMemoryRepo(storedRecord(domain.StatusActive, "evt_0"))
		canceller := new(mockCanceller)
		canceller.On("CancelSubscription", mock.Anything, "sub_01", "immediately").Return(errors.New("provider down"))

		res, err := NewAccountService(repo, repo, canceller, nil).DeleteAccount(context.Background(), testUser)
		require.NoError(t, err)
		assert.True(t, res.RecordDeleted)
		assert.EqualError(t, res.CancellationWarning, "provider down")
		assert.Nil(t, repo.get(testUser))
	})

	t.Run("provider call survives caller cancellation", func(t *testing.T) {
		repo := newMemoryRepo(storedRecord(domain.StatusActive, "evt_0"))
		canceller := new(mockCanceller)
		canceller.On("CancelSubscription", mock.MatchedBy(func(ctx context.Context) bool {
			_, hasDeadline := ctx.Deadline()
			return ctx.Err() == nil && hasDeadline
		}), "sub_01", "immediately").Return(nil).Once()

		ctx, cancel := context.WithCancel(context.Background())
		svc := NewAccountService(repo, repo, canceller, nil).WithCancellationTimeout(time.Second)

		// The store does not observe ctx, so only the provider call could be affected.
		cancel()
		res, err := svc.DeleteAccount(ctx, testUser)
		require.NoError(t, err)
		assert.NoError(t, res.CancellationWarning)
		canceller.AssertExpectations(t)
	})

	t.Run("cancelled subscriptions are not cancelled again", func(t *testing.T) {
		repo := newMemoryRepo(storedRecord(domain.StatusCancelled, "evt_0"))
		canceller := new(mockCanceller)

		res, err := NewAccountService(repo, repo, canceller, nil).DeleteAccount(context.Background(), testUser)
		require.NoError(t, err)
		assert.True(t, res.RecordDeleted)
		assert.False(t, res.CancellationAttempted)
		canceller.AssertNotCalled(t, "CancelSubscription", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("missing provider client is reported", func(t *testing.T) {
		repo := newMemoryRepo(storedRecord(domain.StatusActive, "evt_0"))

		res, err := NewAccountService(repo, repo, nil, nil).DeleteAccount(context.Background(), testUser)
		require.NoError(t, err)
		assert.True(t, res.RecordDeleted)
		assert.False(t, res.CancellationAttempted)
		assert.Error(t, res.CancellationWarning)
	})

	t.Run("no record", func(t *testing.T) {
		repo := newMemoryRepo()

		res, err := NewAccountService(repo, repo, new(mockCanceller), nil).DeleteAccount(context.Background(), testUser)
		require.NoError(t, err)
		assert.False(t, res.RecordDeleted)
		assert.False(t, res.CancellationAttempted)
	})

	t.Run("store failure fails the deletion", func(t *testing.T) {
		repo := newMemoryRepo(storedRecord(domain.StatusActive, "evt_0"))
		repo.writeErr = errors.New("read only")

		_, err := NewAccountService(repo, repo, new(mockCanceller), nil).DeleteAccount(context.Background(), testUser)
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrPersistence)
	})
}
