package persistence

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/felixgeelhaar/paysync/internal/billing/domain"
	"github.com/felixgeelhaar/paysync/internal/shared/infrastructure/database"
)

var (
	pgUpsertSQL            = insertSQL(dollar)
	pgConditionalUpdateSQL = conditionalUpdateSQL(dollar)
)

// PostgresSubscriptionRepository implements domain.SubscriptionRepository with PostgreSQL.
type PostgresSubscriptionRepository struct {
	conn database.Connection
}

// NewPostgresSubscriptionRepository creates a new repository.
func NewPostgresSubscriptionRepository(conn database.Connection) *PostgresSubscriptionRepository {
	return &PostgresSubscriptionRepository{conn: conn}
}

func (r *PostgresSubscriptionRepository) FindByUserID(ctx context.Context, userID uuid.UUID) (*domain.Subscription, error) {
	return r.findOne(ctx, "find by user", `WHERE user_id = $1`, userID)
}

func (r *PostgresSubscriptionRepository) FindBySubscriptionID(ctx context.Context, providerSubscriptionID string) (*domain.Subscription, error) {
	if providerSubscriptionID == "" {
		return nil, nil
	}
	return r.findOne(ctx, "find by subscription", `WHERE provider_subscription_id = $1 ORDER BY updated_at DESC LIMIT 1`, providerSubscriptionID)
}

func (r *PostgresSubscriptionRepository) findOne(ctx context.Context, op, where string, arg any) (*domain.Subscription, error) {
	exec := database.ExecutorFromContext(ctx, r.conn)
	s, err := scanPostgres(exec.QueryRow(ctx, `SELECT `+selectColumns()+` FROM subscriptions `+where, arg))
	if err != nil {
		if database.IsNoRows(err) {
			return nil, nil
		}
		return nil, persistenceError(op, err)
	}
	return s, nil
}

// Upsert inserts or updates a subscription.
func (r *PostgresSubscriptionRepository) Upsert(ctx context.Context, s *domain.Subscription) (bool, error) {
	exec := database.ExecutorFromContext(ctx, r.conn)
	res, err := exec.Exec(ctx, pgUpsertSQL, postgresArgs(s)...)
	if err != nil {
		return false, persistenceError("upsert", err)
	}
	return applied(res)
}

func (r *PostgresSubscriptionRepository) ConditionalUpdate(ctx context.Context, s *domain.Subscription, expectedLastEventID string) (bool, error) {
	exec := database.ExecutorFromContext(ctx, r.conn)
	args := append(mutableArgs(postgresArgs(s)), s.ID, expectedLastEventID)
	res, err := exec.Exec(ctx, pgConditionalUpdateSQL, args...)
	if err != nil {
		return false, persistenceError("conditional update", err)
	}
	return applied(res)
}

func (r *PostgresSubscriptionRepository) ListByStatus(ctx context.Context, statuses []domain.Status, limit int) ([]*domain.Subscription, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT ` + selectColumns() + ` FROM subscriptions`
	args := []any{}
	if len(statuses) > 0 {
		query += ` WHERE status = ANY($1)`
		args = append(args, pq.Array(statusStrings(statuses)))
	}
	query += ` ORDER BY updated_at DESC LIMIT ` + dollar(len(args)+1)
	args = append(args, limit)

	rows, err := database.ExecutorFromContext(ctx, r.conn).Query(ctx, query, args...)
	if err != nil {
		return nil, persistenceError("list", err)
	}
	defer rows.Close()

	var out []*domain.Subscription
	for rows.Next() {
		s, err := scanPostgres(rows)
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

func (r *PostgresSubscriptionRepository) DeleteByUserID(ctx context.Context, userID uuid.UUID) (bool, error) {
	res, err := database.ExecutorFromContext(ctx, r.conn).Exec(ctx, `DELETE FROM subscriptions WHERE user_id = $1`, userID)
	if err != nil {
		return false, persistenceError("delete", err)
	}
	return applied(res)
}

func postgresArgs(s *domain.Subscription) []any {
	return []any{
		s.ID,
		s.UserID,
		s.ProviderSubscriptionID,
		s.ProviderCustomerID,
		string(s.Status),
		string(s.Plan),
		string(s.PlanSource),
		s.PriceID,
		s.CurrentPeriodStart,
		s.CurrentPeriodEnd,
		s.TrialStart,
		s.TrialEnd,
		s.CancelAt,
		s.CancelledAt,
		s.LastEventID,
		s.LastTransaction.ID,
		s.LastTransaction.Amount.Amount,
		s.LastTransaction.Amount.Currency,
		s.LastTransaction.Date,
		s.CreatedAt,
		s.UpdatedAt,
	}
}

func scanPostgres(row database.Row) (*domain.Subscription, error) {
	var (
		s                    domain.Subscription
		status, plan, source string
		createdAt, updatedAt time.Time
	)
	err := row.Scan(
		&s.ID,
		&s.UserID,
		&s.ProviderSubscriptionID,
		&s.ProviderCustomerID,
		&status,
		&plan,
		&source,
		&s.PriceID,
		&s.CurrentPeriodStart,
		&s.CurrentPeriodEnd,
		&s.TrialStart,
		&s.TrialEnd,
		&s.CancelAt,
		&s.CancelledAt,
		&s.LastEventID,
		&s.LastTransaction.ID,
		&s.LastTransaction.Amount.Amount,
		&s.LastTransaction.Amount.Currency,
		&s.LastTransaction.Date,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := parseEnums(&s, status, plan, source); err != nil {
		return nil, err
	}
	s.CreatedAt, s.UpdatedAt = createdAt.UTC(), updatedAt.UTC()
	return &s, nil
}

var (
	_ domain.SubscriptionRepository = (*PostgresSubscriptionRepository)(nil)
	_ domain.AccountStore           = (*PostgresSubscriptionRepository)(nil)
)
