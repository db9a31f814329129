package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/paysync/internal/billing/domain"
	"github.com/felixgeelhaar/paysync/internal/shared/infrastructure/database"
)

var (
	sqliteUpsertSQL            = insertSQL(question)
	sqliteConditionalUpdateSQL = conditionalUpdateSQL(question)
)

// SQLiteSubscriptionRepository implements domain.SubscriptionRepository with SQLite.
type SQLiteSubscriptionRepository struct {
	conn database.Connection
}

// NewSQLiteSubscriptionRepository creates a new repository.
func NewSQLiteSubscriptionRepository(conn database.Connection) *SQLiteSubscriptionRepository {
	return &SQLiteSubscriptionRepository{conn: conn}
}

func (r *SQLiteSubscriptionRepository) FindByUserID(ctx context.Context, userID uuid.UUID) (*domain.Subscription, error) {
	return r.findOne(ctx, "find by user", `WHERE user_id = ?`, userID.String())
}

func (r *SQLiteSubscriptionRepository) FindBySubscriptionID(ctx context.Context, providerSubscriptionID string) (*domain.Subscription, error) {
	if providerSubscriptionID == "" {
		return nil, nil
	}
	return r.findOne(ctx, "find by subscription", `WHERE provider_subscription_id = ? ORDER BY updated_at DESC LIMIT 1`, providerSubscriptionID)
}

func (r *SQLiteSubscriptionRepository) findOne(ctx context.Context, op, where string, arg any) (*domain.Subscription, error) {
	exec := database.ExecutorFromContext(ctx, r.conn)
	s, err := scanSQLite(exec.QueryRow(ctx, `SELECT `+selectColumns()+` FROM subscriptions `+where, arg))
	if err != nil {
		if database.IsNoRows(err) {
			return nil, nil
		}
		return nil, persistenceError(op, err)
	}
	return s, nil
}

// Upsert inserts or updates a subscription.
func (r *SQLiteSubscriptionRepository) Upsert(ctx context.Context, s *domain.Subscription) (bool, error) {
	exec := database.ExecutorFromContext(ctx, r.conn)
	res, err := exec.Exec(ctx, sqliteUpsertSQL, sqliteArgs(s)...)
	if err != nil {
		return false, persistenceError("upsert", err)
	}
	return applied(res)
}

func (r *SQLiteSubscriptionRepository) ConditionalUpdate(ctx context.Context, s *domain.Subscription, expectedLastEventID string) (bool, error) {
	exec := database.ExecutorFromContext(ctx, r.conn)
	args := append(mutableArgs(sqliteArgs(s)), s.ID.String(), expectedLastEventID)
	res, err := exec.Exec(ctx, sqliteConditionalUpdateSQL, args...)
	if err != nil {
		return false, persistenceError("conditional update", err)
	}
	return applied(res)
}

func (r *SQLiteSubscriptionRepository) ListByStatus(ctx context.Context, statuses []domain.Status, limit int) ([]*domain.Subscription, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT ` + selectColumns() + ` FROM subscriptions`
	args := []any{}
	if len(statuses) > 0 {
		marks := strings.TrimSuffix(strings.Repeat("?, ", len(statuses)), ", ")
		query += ` WHERE status IN (` + marks + `)`
		for _, s := range statusStrings(statuses) {
			args = append(args, s)
		}
	}
	query += ` ORDER BY updated_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := database.ExecutorFromContext(ctx, r.conn).Query(ctx, query, args...)
	if err != nil {
		return nil, persistenceError("list", err)
	}
	defer rows.Close()

	var out []*domain.Subscription
	for rows.Next() {
		s, err := scanSQLite(rows)
		if err != nil {
			return nil, persistenceError("list", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, persistenceError("list", err)
	}
	return out, nil
}

func (r *SQLiteSubscriptionRepository) DeleteByUserID(ctx context.Context, userID uuid.UUID) (bool, error) {
	res, err := database.ExecutorFromContext(ctx, r.conn).Exec(ctx, `DELETE FROM subscriptions WHERE user_id = ?`, userID.String())
	if err != nil {
		return false, persistenceError("delete", err)
	}
	return applied(res)
}

func sqliteArgs(s *domain.Subscription) []any {
	return []any{
		s.ID.String(),
		s.UserID.String(),
		s.ProviderSubscriptionID,
		s.ProviderCustomerID,
		string(s.Status),
		string(s.Plan),
		string(s.PlanSource),
		s.PriceID,
		database.NullTextTime(s.CurrentPeriodStart),
		database.NullTextTime(s.CurrentPeriodEnd),
		database.NullTextTime(s.TrialStart),
		database.NullTextTime(s.TrialEnd),
		database.NullTextTime(s.CancelAt),
		database.NullTextTime(s.CancelledAt),
		s.LastEventID,
		s.LastTransaction.ID,
		s.LastTransaction.Amount.Amount,
		s.LastTransaction.Amount.Currency,
		database.NullTextTime(s.LastTransaction.Date),
		database.FormatTextTime(s.CreatedAt),
		database.FormatTextTime(s.UpdatedAt),
	}
}

func scanSQLite(row database.Row) (*domain.Subscription, error) {
	var (
		s                    domain.Subscription
		id, userID           string
		status, plan, source string
		createdAt, updatedAt string
		times                [7]sql.NullString
	)
	err := row.Scan(
		&id,
		&userID,
		&s.ProviderSubscriptionID,
		&s.ProviderCustomerID,
		&status,
		&plan,
		&source,
		&s.PriceID,
		&times[0],
		&times[1],
		&times[2],
		&times[3],
		&times[4],
		&times[5],
		&s.LastEventID,
		&s.LastTransaction.ID,
		&s.LastTransaction.Amount.Amount,
		&s.LastTransaction.Amount.Currency,
		&times[6],
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if s.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("id: %w", err)
	}
	if s.UserID, err = uuid.Parse(userID); err != nil {
		return nil, fmt.Errorf("user_id: %w", err)
	}
	if err := parseEnums(&s, status, plan, source); err != nil {
		return nil, err
	}

	targets := []**time.Time{
		&s.CurrentPeriodStart, &s.CurrentPeriodEnd,
		&s.TrialStart, &s.TrialEnd,
		&s.CancelAt, &s.CancelledAt,
		&s.LastTransaction.Date,
	}
	for i, target := range targets {
		if *target, err = database.ParseNullTextTime(times[i]); err != nil {
			return nil, fmt.Errorf("%s: %w", timeColumns[i], err)
		}
	}
	if s.CreatedAt, err = database.ParseTextTime(createdAt); err != nil {
		return nil, fmt.Errorf("created_at: %w", err)
	}
	if s.UpdatedAt, err = database.ParseTextTime(updatedAt); err != nil {
		return nil, fmt.Errorf("updated_at: %w", err)
	}
	return &s, nil
}

var timeColumns = [7]string{
	"current_period_start", "current_period_end",
	"trial_start", "trial_end",
	"cancel_at", "cancelled_at",
	"last_transaction_date",
}

var (
	_ domain.SubscriptionRepository = (*SQLiteSubscriptionRepository)(nil)
	_ domain.AccountStore           = (*SQLiteSubscriptionRepository)(nil)
)
