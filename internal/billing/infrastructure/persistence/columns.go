// Package persistence stores subscription records in PostgreSQL or SQLite.
package persistence

import (
	"fmt"
	"strings"

	"github.com/felixgeelhaar/paysync/internal/billing/domain"
	"github.com/felixgeelhaar/paysync/internal/shared/infrastructure/database"
)

// subscriptionColumns is the column order shared by inserts and selects.
var subscriptionColumns = []string{
	"id",
	"user_id",
	"provider_subscription_id",
	"provider_customer_id",
	"status",
	"plan",
	"plan_source",
	"price_id",
	"current_period_start",
	"current_period_end",
	"trial_start",
	"trial_end",
	"cancel_at",
	"cancelled_at",
	"last_event_id",
	"last_transaction_id",
	"last_transaction_amount",
	"last_transaction_currency",
	"last_transaction_date",
	"created_at",
	"updated_at",
}

// immutableColumns are never rewritten once a row exists.
var immutableColumns = map[string]bool{"id": true, "user_id": true, "created_at": true}

func selectColumns() string {
	return strings.Join(subscriptionColumns, ", ")
}

// placeholder renders the n-th (1-based) bind parameter.
type placeholder func(n int) string

func dollar(n int) string { return fmt.Sprintf("$%d", n) }
func question(int) string { return "?" }

func insertSQL(ph placeholder) string {
	params := make([]string, len(subscriptionColumns))
	for i := range subscriptionColumns {
		params[i] = ph(i + 1)
	}
	var set []string
	for _, c := range subscriptionColumns {
		if !immutableColumns[c] {
			set = append(set, c+" = excluded."+c)
		}
	}
	return "INSERT INTO subscriptions (" + selectColumns() + ") VALUES (" + strings.Join(params, ", ") + ")" +
		" ON CONFLICT (user_id) DO UPDATE SET " + strings.Join(set, ", ") +
		" WHERE subscriptions.last_event_id <> excluded.last_event_id OR excluded.last_event_id = ''"
}

// conditionalUpdateSQL binds the mutable columns first, then id and the
// expected last event id.
func conditionalUpdateSQL(ph placeholder) string {
	var set []string
	n := 0
	for _, c := range subscriptionColumns {
		if immutableColumns[c] {
			continue
		}
		n++
		set = append(set, c+" = "+ph(n))
	}
	return "UPDATE subscriptions SET " + strings.Join(set, ", ") +
		" WHERE id = " + ph(n+1) + " AND last_event_id = " + ph(n+2)
}

// mutableArgs drops the immutable columns from a full argument list.
func mutableArgs(all []any) []any {
	out := make([]any, 0, len(all))
	for i, c := range subscriptionColumns {
		if !immutableColumns[c] {
			out = append(out, all[i])
		}
	}
	return out
}

func statusStrings(statuses []domain.Status) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

func persistenceError(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", domain.ErrPersistence, op, err)
}

func applied(res database.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func parseEnums(s *domain.Subscription, status, plan, source string) error {
	st, ok := domain.ParseStatus(status)
	if !ok {
		return fmt.Errorf("unknown status %q", status)
	}
	p, ok := domain.ParsePlan(plan)
	if !ok {
		return fmt.Errorf("unknown plan %q", plan)
	}
	switch domain.PlanSource(source) {
	case domain.PlanSourceNone, domain.PlanSourcePriceID, domain.PlanSourceAmount:
	default:
		return fmt.Errorf("unknown plan source %q", source)
	}
	s.Status, s.Plan, s.PlanSource = st, p, domain.PlanSource(source)
	return nil
}
