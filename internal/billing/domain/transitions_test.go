package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func testEnv() TransitionEnv {
	return TransitionEnv{Now: testNow, Plans: testResolver()}
}

func ts(s string) *time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return &t
}

func newEvent(kind EventKind, id string, data EventData) *Event {
	return &Event{
		ID:     id,
		Type:   string(kind),
		Kind:   kind,
		UserID: uuid.MustParse(testUserID),
		Data:   data,
	}
}

func existing(status Status) *Subscription {
	s := NewSubscription(uuid.MustParse(testUserID), testNow.Add(-24*time.Hour))
	s.Status = status
	s.Plan = PlanMonthly
	s.PlanSource = PlanSourcePriceID
	s.PriceID = "pri_monthly"
	s.ProviderSubscriptionID = "sub_01"
	s.TrialStart = ts("2026-02-01T00:00:00Z")
	s.TrialEnd = ts("2026-02-15T00:00:00Z")
	s.LastEventID = "evt_prev"
	return s
}

func TestApply_CreatedTrialingYearly(t *testing.T) {
	ev := newEvent(KindSubscriptionCreated, "evt_1", EventData{
		ID:          "sub_01",
		CustomerID:  "ctm_01",
		Status:      "trialing",
		PriceID:     "pri_yearly",
		PeriodStart: ts("2026-03-01T00:00:00Z"),
		PeriodEnd:   ts("2026-03-15T00:00:00Z"),
	})

	tr := Apply(nil, ev, testEnv())
	require.True(t, tr.Mutated)
	next := tr.Next

	assert.Equal(t, StatusTrialing, next.Status)
	assert.Equal(t, PlanYearly, next.Plan)
	assert.Equal(t, PlanSourcePriceID, next.PlanSource)
	assert.Equal(t, "pri_yearly", next.PriceID)
	assert.Equal(t, "sub_01", next.ProviderSubscriptionID)
	assert.Equal(t, "ctm_01", next.ProviderCustomerID)
	assert.Equal(t, ev.Data.PeriodStart, next.TrialStart)
	assert.Equal(t, ev.Data.PeriodEnd, next.TrialEnd)
	assert.Equal(t, ev.Data.PeriodStart, next.CurrentPeriodStart)
	assert.Equal(t, "evt_1", next.LastEventID)
	assert.Equal(t, ev.UserID, next.UserID)
	assert.Equal(t, testNow, next.UpdatedAt)
}

func TestApply_CreatedOnExistingRecordKeepsIdentity(t *testing.T) {
	current := existing(StatusCancelled)
	ev := newEvent(KindSubscriptionCreated, "evt_2", EventData{ID: "sub_02", Status: "active", PriceID: "pri_monthly"})

	tr := Apply(current, ev, testEnv())
	require.True(t, tr.Mutated)
	assert.Equal(t, current.ID, tr.Next.ID)
	assert.Equal(t, current.CreatedAt, tr.Next.CreatedAt)
	assert.Equal(t, StatusActive, tr.Next.Status)
	assert.Equal(t, "sub_02", tr.Next.ProviderSubscriptionID)
	assert.Equal(t, StatusCancelled, current.Status, "current must not be modified")
}

func TestApply_CreatedWithoutPriceUsesAmount(t *testing.T) {
	ev := newEvent(KindSubscriptionCreated, "evt_1", EventData{Status: "active", UnitPrice: &Money{Amount: "7"}})

	tr := Apply(nil, ev, testEnv())
	require.True(t, tr.Mutated)
	assert.Equal(t, PlanMonthly, tr.Next.Plan)
	assert.Equal(t, PlanSourceAmount, tr.Next.PlanSource)
}

func TestApply_Updated(t *testing.T) {
	t.Run("status, plan and period", func(t *testing.T) {
		current := existing(StatusTrialing)
		ev := newEvent(KindSubscriptionUpdated, "evt_u", EventData{
			Status:      "active",
			PriceID:     "pri_yearly",
			PeriodStart: ts("2026-03-15T00:00:00Z"),
			PeriodEnd:   ts("2027-03-15T00:00:00Z"),
		})

		tr := Apply(current, ev, testEnv())
		require.True(t, tr.Mutated)
		assert.Equal(t, StatusActive, tr.Next.Status)
		assert.Equal(t, PlanYearly, tr.Next.Plan)
		assert.Equal(t, "pri_yearly", tr.Next.PriceID)
		assert.Equal(t, ev.Data.PeriodEnd, tr.Next.CurrentPeriodEnd)
		assert.Equal(t, current.TrialStart, tr.Next.TrialStart, "trial bounds are preserved")
		require.Len(t, tr.Notes, 1)
		assert.Equal(t, NotePlanCorrected, tr.Notes[0].Kind)
	})

	t.Run("scheduled cancellation sets cancel_at only", func(t *testing.T) {
		current := existing(StatusActive)
		ev := newEvent(KindSubscriptionUpdated, "evt_u", EventData{
			Status:          "active",
			ScheduledChange: &ScheduledChange{Action: "cancel", EffectiveAt: ts("2026-04-01T00:00:00Z")},
		})

		tr := Apply(current, ev, testEnv())
		require.True(t, tr.Mutated)
		assert.Equal(t, StatusActive, tr.Next.Status)
		assert.Equal(t, ev.Data.ScheduledChange.EffectiveAt, tr.Next.CancelAt)
		assert.Nil(t, tr.Next.CancelledAt)
	})

	t.Run("amount never downgrades price plan", func(t *testing.T) {
		current := existing(StatusActive)
		current.Plan = PlanYearly
		current.PriceID = "pri_yearly"
		ev := newEvent(KindSubscriptionUpdated, "evt_u", EventData{Status: "active", UnitPrice: &Money{Amount: "7"}})

		tr := Apply(current, ev, testEnv())
		require.True(t, tr.Mutated)
		assert.Equal(t, PlanYearly, tr.Next.Plan)
		assert.Equal(t, PlanSourcePriceID, tr.Next.PlanSource)
		assert.Equal(t, "pri_yearly", tr.Next.PriceID)
		require.Len(t, tr.Notes, 1)
		assert.Equal(t, NoteReconciliationWarning, tr.Notes[0].Kind)
		assert.True(t, tr.Notes[0].Warning)
	})

	t.Run("unknown status keeps current", func(t *testing.T) {
		current := existing(StatusPaused)
		tr := Apply(current, newEvent(KindSubscriptionUpdated, "evt_u", EventData{Status: "frozen"}), testEnv())
		require.True(t, tr.Mutated)
		assert.Equal(t, StatusPaused, tr.Next.Status)
	})

	t.Run("trial bounds set once", func(t *testing.T) {
		current := existing(StatusActive)
		current.TrialStart, current.TrialEnd = nil, nil
		ev := newEvent(KindSubscriptionUpdated, "evt_u", EventData{
			Status:      "trialing",
			PeriodStart: ts("2026-03-01T00:00:00Z"),
			PeriodEnd:   ts("2026-03-08T00:00:00Z"),
		})
		tr := Apply(current, ev, testEnv())
		assert.Equal(t, ev.Data.PeriodStart, tr.Next.TrialStart)
		assert.Equal(t, ev.Data.PeriodEnd, tr.Next.TrialEnd)
	})

	t.Run("requires a record", func(t *testing.T) {
		tr := Apply(nil, newEvent(KindSubscriptionUpdated, "evt_u", EventData{Status: "active"}), testEnv())
		assert.False(t, tr.Mutated)
		require.Len(t, tr.Notes, 1)
		assert.Equal(t, NoteNoRecord, tr.Notes[0].Kind)
	})
}

func TestApply_ActivatedOnCancelledIsIgnored(t *testing.T) {
	current := existing(StatusCancelled)

	tr := Apply(current, newEvent(KindSubscriptionActivated, "evt_a", EventData{}), testEnv())
	assert.False(t, tr.Mutated)
	assert.Nil(t, tr.Next)
	require.Len(t, tr.Notes, 1)
	assert.Equal(t, NoteActivationIgnored, tr.Notes[0].Kind)
	assert.Equal(t, StatusCancelled, current.Status)
	assert.Equal(t, "evt_prev", current.LastEventID)
}

func TestApply_ActivatedPreservesTrial(t *testing.T) {
	current := existing(StatusTrialing)

	tr := Apply(current, newEvent(KindSubscriptionActivated, "evt_a", EventData{}), testEnv())
	require.True(t, tr.Mutated)
	assert.Equal(t, StatusActive, tr.Next.Status)
	assert.Equal(t, current.TrialStart, tr.Next.TrialStart)
	assert.Equal(t, current.TrialEnd, tr.Next.TrialEnd)
}

func TestApply_Canceled(t *testing.T) {
	t.Run("uses payload timestamps", func(t *testing.T) {
		ev := newEvent(KindSubscriptionCanceled, "evt_c", EventData{
			CanceledAt:      ts("2026-03-09T00:00:00Z"),
			ScheduledChange: &ScheduledChange{Action: "cancel", EffectiveAt: ts("2026-04-01T00:00:00Z")},
		})
		tr := Apply(existing(StatusActive), ev, testEnv())
		require.True(t, tr.Mutated)
		assert.Equal(t, StatusCancelled, tr.Next.Status)
		assert.Equal(t, ev.Data.CanceledAt, tr.Next.CancelledAt)
		assert.Equal(t, ev.Data.ScheduledChange.EffectiveAt, tr.Next.CancelAt)
	})

	t.Run("defaults cancelled_at to now", func(t *testing.T) {
		tr := Apply(existing(StatusActive), newEvent(KindSubscriptionCanceled, "evt_c", EventData{}), testEnv())
		require.NotNil(t, tr.Next.CancelledAt)
		assert.Equal(t, testNow, *tr.Next.CancelledAt)
		assert.Nil(t, tr.Next.CancelAt)
	})

	t.Run("takes effective time of any scheduled change", func(t *testing.T) {
		for _, action := range []string{"pause", ""} {
			ev := newEvent(KindSubscriptionCanceled, "evt_c", EventData{
				ScheduledChange: &ScheduledChange{Action: action, EffectiveAt: ts("2026-04-01T00:00:00Z")},
			})
			tr := Apply(existing(StatusActive), ev, testEnv())
			require.NotNil(t, tr.Next.CancelAt, "action %q", action)
			assert.Equal(t, *ev.Data.ScheduledChange.EffectiveAt, *tr.Next.CancelAt)
		}
	})
}

func TestApply_StatusOnlyEvents(t *testing.T) {
	tests := []struct {
		kind EventKind
		from Status
		want Status
	}{
		{KindSubscriptionPaused, StatusActive, StatusPaused},
		{KindSubscriptionResumed, StatusPaused, StatusActive},
		{KindSubscriptionPastDue, StatusActive, StatusPastDue},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			current := existing(tt.from)
			tr := Apply(current, newEvent(tt.kind, "evt_s", EventData{PriceID: "pri_yearly"}), testEnv())
			require.True(t, tr.Mutated)
			assert.Equal(t, tt.want, tr.Next.Status)
			assert.Equal(t, current.Plan, tr.Next.Plan)
			assert.Equal(t, "evt_s", tr.Next.LastEventID)
		})
	}
}

func TestApply_TransactionCompleted(t *testing.T) {
	t.Run("price id wins over monthly amount", func(t *testing.T) {
		current := existing(StatusActive)
		ev := newEvent(KindTransactionCompleted, "evt_t", EventData{
			ID:             "txn_01",
			SubscriptionID: "sub_01",
			PriceID:        "pri_yearly",
			BilledAt:       ts("2026-03-10T00:00:00Z"),
			Total:          &Money{Amount: "7", Currency: "USD"},
		})

		tr := Apply(current, ev, testEnv())
		require.True(t, tr.Mutated)
		assert.Equal(t, PlanYearly, tr.Next.Plan)
		assert.Equal(t, StatusActive, tr.Next.Status)
		assert.Equal(t, "txn_01", tr.Next.LastTransaction.ID)
		assert.Equal(t, Money{Amount: "7", Currency: "USD"}, tr.Next.LastTransaction.Amount)
		assert.Equal(t, ev.Data.BilledAt, tr.Next.LastTransaction.Date)
	})

	t.Run("amount conflict is logged, not applied", func(t *testing.T) {
		current := existing(StatusPastDue)
		ev := newEvent(KindTransactionCompleted, "evt_t", EventData{ID: "txn_02", Total: &Money{Amount: "50"}})

		tr := Apply(current, ev, testEnv())
		require.True(t, tr.Mutated)
		assert.Equal(t, PlanMonthly, tr.Next.Plan)
		assert.Equal(t, StatusPastDue, tr.Next.Status)
		assert.Equal(t, testNow, *tr.Next.LastTransaction.Date)
		require.Len(t, tr.Notes, 1)
		assert.Equal(t, NoteReconciliationWarning, tr.Notes[0].Kind)
	})

	t.Run("amount 1000 leaves plan unchanged", func(t *testing.T) {
		current := existing(StatusActive)
		tr := Apply(current, newEvent(KindTransactionCompleted, "evt_t", EventData{Total: &Money{Amount: "1000"}}), testEnv())
		assert.Equal(t, PlanMonthly, tr.Next.Plan)
		assert.Empty(t, tr.Notes)
	})
}

func TestApply_UnknownEventIsAccepted(t *testing.T) {
	current := existing(StatusActive)
	ev := newEvent(KindUnknown, "evt_x", EventData{})
	ev.Type = "customer.created"

	tr := Apply(current, ev, testEnv())
	assert.False(t, tr.Mutated)
	require.Len(t, tr.Notes, 1)
	assert.Equal(t, NoteUnknownEvent, tr.Notes[0].Kind)
}

func TestApply_WithoutEventIDKeepsLastEventID(t *testing.T) {
	current := existing(StatusActive)
	tr := Apply(current, newEvent(KindSubscriptionPaused, "", EventData{}), testEnv())
	require.True(t, tr.Mutated)
	assert.Equal(t, "evt_prev", tr.Next.LastEventID)
}

func TestTransitionTableIsExhaustive(t *testing.T) {
	for _, kind := range []EventKind{
		KindSubscriptionCreated, KindSubscriptionUpdated, KindSubscriptionActivated,
		KindSubscriptionCanceled, KindSubscriptionPaused, KindSubscriptionResumed,
		KindSubscriptionPastDue, KindTransactionCompleted,
	} {
		_, ok := transitions[kind]
		assert.True(t, ok, "missing transition for %s", kind)
		assert.Equal(t, kind, KindOf(string(kind)))
	}
	_, ok := transitions[KindUnknown]
	assert.False(t, ok)
}

func TestSubscriptionClone(t *testing.T) {
	s := existing(StatusActive)
	c := s.Clone()
	*c.TrialStart = testNow
	assert.NotEqual(t, testNow, *s.TrialStart)
	assert.Nil(t, (*Subscription)(nil).Clone())
}

func TestNewSubscriptionChanged(t *testing.T) {
	prev := existing(StatusTrialing)
	next := prev.Clone()
	next.Status = StatusActive
	ev := newEvent(KindSubscriptionActivated, "evt_a", EventData{})

	e := NewSubscriptionChanged(prev, next, ev)
	assert.Equal(t, RoutingKeySubscriptionChanged, e.RoutingKey())
	assert.Equal(t, AggregateType, e.AggregateType())
	assert.Equal(t, next.ID, e.AggregateID())
	assert.Equal(t, StatusTrialing, e.PreviousStatus)
	assert.Equal(t, StatusActive, e.Status)
	assert.Equal(t, "evt_a", e.ProviderEventID)

	created := NewSubscriptionChanged(nil, next, ev)
	assert.Equal(t, StatusNone, created.PreviousStatus)
}
