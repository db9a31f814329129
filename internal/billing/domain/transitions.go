package domain

import (
	"fmt"
	"time"
)

// NoteKind identifies something worth logging about a transition.
type NoteKind string

const (
	NotePlanCorrected         NoteKind = "plan_corrected"
	NotePlanInferred          NoteKind = "plan_inferred"
	NoteReconciliationWarning NoteKind = "reconciliation_warning"
	NoteUnsupportedCurrency   NoteKind = "unsupported_currency"
	NoteActivationIgnored     NoteKind = "activation_ignored"
	NoteUnknownEvent          NoteKind = "unknown_event"
	NoteNoRecord              NoteKind = "no_record"
	NoteUnknownStatus         NoteKind = "unknown_status"
)

// Note is a log-only observation made while applying an event.
type Note struct {
	Kind    NoteKind
	Warning bool
	Message string
}

func info(kind NoteKind, msg string) Note { return Note{Kind: kind, Message: msg} }
func warn(kind NoteKind, msg string) Note { return Note{Kind: kind, Warning: true, Message: msg} }

// TransitionEnv carries the inputs a transition needs besides the record and the event.
type TransitionEnv struct {
	Now   time.Time
	Plans PlanResolver
}

// Transition is the result of applying one event to one record.
// Next is only meaningful when Mutated is true.
type Transition struct {
	Next    *Subscription
	Mutated bool
	Notes   []Note
}

// TransitionFunc computes the next record. It never performs I/O and never
// modifies current.
type TransitionFunc func(current *Subscription, ev *Event, env TransitionEnv) Transition

var transitions = map[EventKind]TransitionFunc{
	KindSubscriptionCreated:   applyCreated,
	KindSubscriptionUpdated:   requireRecord(applyUpdated),
	KindSubscriptionActivated: requireRecord(applyActivated),
	KindSubscriptionCanceled:  requireRecord(applyCanceled),
	KindSubscriptionPaused:    requireRecord(setStatus(StatusPaused)),
	KindSubscriptionResumed:   requireRecord(setStatus(StatusActive)),
	KindSubscriptionPastDue:   requireRecord(setStatus(StatusPastDue)),
	KindTransactionCompleted:  requireRecord(applyTransactionCompleted),
}

// TransitionFor returns the transition for kind; unknown kinds are accepted
// without changing state.
func TransitionFor(kind EventKind) TransitionFunc {
	if fn, ok := transitions[kind]; ok {
		return fn
	}
	return ignoreEvent
}

// Apply runs the transition for ev against current, which may be nil.
func Apply(current *Subscription, ev *Event, env TransitionEnv) Transition {
	tr := TransitionFor(ev.Kind)(current, ev, env)
	if tr.Mutated {
		tr.Next.ApplyEventID(ev.ID)
		tr.Next.UpdatedAt = env.Now
	}
	return tr
}

func requireRecord(fn TransitionFunc) TransitionFunc {
	return func(current *Subscription, ev *Event, env TransitionEnv) Transition {
		if current == nil {
			return Transition{Notes: []Note{info(NoteNoRecord,
				fmt.Sprintf("%s for a subscription that is not recorded", ev.Type))}}
		}
		return fn(current, ev, env)
	}
}

func ignoreEvent(_ *Subscription, ev *Event, _ TransitionEnv) Transition {
	return Transition{Notes: []Note{info(NoteUnknownEvent, fmt.Sprintf("ignoring event type %s", ev.Type))}}
}

func applyCreated(current *Subscription, ev *Event, env TransitionEnv) Transition {
	next := current.Clone()
	if next == nil {
		next = NewSubscription(ev.UserID, env.Now)
	}
	var notes []Note

	if status, ok := ParseStatus(ev.Data.Status); ok {
		next.Status = status
	} else {
		if ev.Data.Status != "" {
			notes = append(notes, warn(NoteUnknownStatus, fmt.Sprintf("unknown status %q", ev.Data.Status)))
		}
		if next.Status == StatusNone {
			next.Status = StatusActive
		}
	}

	fillProviderIDs(next, ev)
	notes = append(notes, resolvePlan(next, ev, env)...)
	updatePeriod(next, ev)

	if next.Status == StatusTrialing {
		if ev.Data.PeriodStart != nil {
			next.TrialStart = cloneTime(ev.Data.PeriodStart)
		}
		if ev.Data.PeriodEnd != nil {
			next.TrialEnd = cloneTime(ev.Data.PeriodEnd)
		}
	}
	return Transition{Next: next, Mutated: true, Notes: notes}
}

func applyUpdated(current *Subscription, ev *Event, env TransitionEnv) Transition {
	next := current.Clone()
	var notes []Note

	if status, ok := ParseStatus(ev.Data.Status); ok {
		next.Status = status
	} else if ev.Data.Status != "" {
		notes = append(notes, warn(NoteUnknownStatus, fmt.Sprintf("unknown status %q, keeping %s", ev.Data.Status, current.Status)))
	}

	fillProviderIDs(next, ev)
	notes = append(notes, resolvePlan(next, ev, env)...)
	updatePeriod(next, ev)

	if sc := ev.Data.ScheduledChange; sc.IsCancellation() && sc.EffectiveAt != nil {
		next.CancelAt = cloneTime(sc.EffectiveAt)
	}
	if next.Status == StatusTrialing && next.TrialStart == nil && next.TrialEnd == nil {
		next.TrialStart = cloneTime(ev.Data.PeriodStart)
		next.TrialEnd = cloneTime(ev.Data.PeriodEnd)
	}
	return Transition{Next: next, Mutated: true, Notes: notes}
}

func applyActivated(current *Subscription, ev *Event, _ TransitionEnv) Transition {
	if current.Status == StatusCancelled {
		return Transition{Notes: []Note{warn(NoteActivationIgnored, "activation ignored for a cancelled subscription")}}
	}
	next := current.Clone()
	next.Status = StatusActive
	fillProviderIDs(next, ev)
	return Transition{Next: next, Mutated: true}
}

func applyCanceled(current *Subscription, ev *Event, env TransitionEnv) Transition {
	next := current.Clone()
	next.Status = StatusCancelled
	if ev.Data.CanceledAt != nil {
		next.CancelledAt = cloneTime(ev.Data.CanceledAt)
	} else {
		now := env.Now
		next.CancelledAt = &now
	}
	// A cancelled subscription takes any scheduled effective time as its end.
	if sc := ev.Data.ScheduledChange; sc != nil && sc.EffectiveAt != nil {
		next.CancelAt = cloneTime(sc.EffectiveAt)
	}
	return Transition{Next: next, Mutated: true}
}

func setStatus(status Status) TransitionFunc {
	return func(current *Subscription, _ *Event, _ TransitionEnv) Transition {
		next := current.Clone()
		next.Status = status
		return Transition{Next: next, Mutated: true}
	}
}

func applyTransactionCompleted(current *Subscription, ev *Event, env TransitionEnv) Transition {
	next := current.Clone()

	tx := Transaction{ID: ev.Data.ID, Date: cloneTime(ev.Data.BilledAt)}
	if m := ev.Amount(); m != nil {
		tx.Amount = *m
		if tx.Amount.Currency == "" {
			tx.Amount.Currency = ev.Data.CurrencyCode
		}
	}
	if tx.Date == nil {
		now := env.Now
		tx.Date = &now
	}
	next.LastTransaction = tx

	res := env.Plans.Resolve(ev.Data.PriceID, ev.Amount())
	var notes []Note
	next.Plan, next.PlanSource, notes = Reconcile(next.Plan, next.PlanSource, res)
	if res.Source == PlanSourcePriceID {
		next.PriceID = ev.Data.PriceID
	}
	return Transition{Next: next, Mutated: true, Notes: notes}
}

// resolvePlan re-derives plan and price id for lifecycle events. The unit
// price is the amount signal here; transaction totals only matter for
// transaction events.
func resolvePlan(next *Subscription, ev *Event, env TransitionEnv) []Note {
	if ev.Data.PriceID != "" {
		next.PriceID = ev.Data.PriceID
	}
	res := env.Plans.Resolve(ev.Data.PriceID, ev.Data.UnitPrice)
	var notes []Note
	next.Plan, next.PlanSource, notes = Reconcile(next.Plan, next.PlanSource, res)
	return notes
}

func fillProviderIDs(next *Subscription, ev *Event) {
	if ev.Data.ID != "" {
		next.ProviderSubscriptionID = ev.Data.ID
	}
	if ev.Data.CustomerID != "" {
		next.ProviderCustomerID = ev.Data.CustomerID
	}
}

func updatePeriod(next *Subscription, ev *Event) {
	if ev.Data.PeriodStart != nil {
		next.CurrentPeriodStart = cloneTime(ev.Data.PeriodStart)
	}
	if ev.Data.PeriodEnd != nil {
		next.CurrentPeriodEnd = cloneTime(ev.Data.PeriodEnd)
	}
}
