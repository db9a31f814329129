package outbox

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/paysync/internal/shared/infrastructure/database"
)

// SQLiteRepository implements Repository on SQLite. Timestamps are stored as
// fixed-width UTC text.
type SQLiteRepository struct {
	conn database.Connection
}

// NewSQLiteRepository creates a SQLite outbox repository.
func NewSQLiteRepository(conn database.Connection) *SQLiteRepository {
	return &SQLiteRepository{conn: conn}
}

func (r *SQLiteRepository) Save(ctx context.Context, msg *Message) error {
	exec := database.ExecutorFromContext(ctx, r.conn)
	var metadata sql.NullString
	if len(msg.Metadata) > 0 {
		metadata = sql.NullString{String: string(msg.Metadata), Valid: true}
	}
	err := exec.QueryRow(ctx, `
		INSERT INTO outbox (
			event_id, aggregate_type, aggregate_id, event_type, routing_key,
			payload, metadata, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`,
		msg.EventID.String(), msg.AggregateType, msg.AggregateID.String(), msg.EventType, msg.RoutingKey,
		string(msg.Payload), metadata, database.FormatTextTime(msg.CreatedAt),
	).Scan(&msg.ID)
	if err != nil {
		return fmt.Errorf("outbox: save %s: %w", msg.EventID, err)
	}
	return nil
}

func (r *SQLiteRepository) Pending(ctx context.Context, now time.Time, limit int) ([]*Message, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT id, event_id, aggregate_type, aggregate_id, event_type, routing_key,
		       payload, metadata, created_at, published_at, next_retry_at, retry_count,
		       COALESCE(last_error, ''), dead_lettered_at
		FROM outbox
		WHERE published_at IS NULL
		  AND dead_lettered_at IS NULL
		  AND (next_retry_at IS NULL OR next_retry_at <= ?)
		ORDER BY id
		LIMIT ?`, database.FormatTextTime(now), limit)
	if err != nil {
		return nil, fmt.Errorf("outbox: query pending: %w", err)
	}
	defer rows.Close()

	var out []*Message
	for rows.Next() {
		var (
			m                        Message
			eventID, aggregateID     string
			payload                  string
			metadata                 sql.NullString
			createdAt                string
			publishedAt, nextRetryAt sql.NullString
			deadAt                   sql.NullString
		)
		if err := rows.Scan(&m.ID, &eventID, &m.AggregateType, &aggregateID, &m.EventType, &m.RoutingKey,
			&payload, &metadata, &createdAt, &publishedAt, &nextRetryAt, &m.RetryCount,
			&m.LastError, &deadAt); err != nil {
			return nil, fmt.Errorf("outbox: scan: %w", err)
		}
		if m.EventID, err = uuid.Parse(eventID); err != nil {
			return nil, fmt.Errorf("outbox: row %d: event id: %w", m.ID, err)
		}
		if m.AggregateID, err = uuid.Parse(aggregateID); err != nil {
			return nil, fmt.Errorf("outbox: row %d: aggregate id: %w", m.ID, err)
		}
		if m.CreatedAt, err = database.ParseTextTime(createdAt); err != nil {
			return nil, fmt.Errorf("outbox: row %d: created_at: %w", m.ID, err)
		}
		if m.PublishedAt, err = database.ParseNullTextTime(publishedAt); err != nil {
			return nil, err
		}
		if m.NextRetryAt, err = database.ParseNullTextTime(nextRetryAt); err != nil {
			return nil, err
		}
		if m.DeadLetteredAt, err = database.ParseNullTextTime(deadAt); err != nil {
			return nil, err
		}
		m.Payload = []byte(payload)
		if metadata.Valid {
			m.Metadata = []byte(metadata.String)
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) MarkPublished(ctx context.Context, id int64, at time.Time) error {
	_, err := r.conn.Exec(ctx, `UPDATE outbox SET published_at = ? WHERE id = ?`, database.FormatTextTime(at), id)
	return err
}

func (r *SQLiteRepository) MarkFailed(ctx context.Context, id int64, reason string, nextRetryAt time.Time) error {
	_, err := r.conn.Exec(ctx, `
		UPDATE outbox
		SET retry_count = retry_count + 1, last_error = ?, next_retry_at = ?
		WHERE id = ?`, reason, database.FormatTextTime(nextRetryAt), id)
	return err
}

func (r *SQLiteRepository) MarkDead(ctx context.Context, id int64, reason string, at time.Time) error {
	_, err := r.conn.Exec(ctx, `
		UPDATE outbox
		SET retry_count = retry_count + 1, last_error = ?, dead_lettered_at = ?
		WHERE id = ?`, reason, database.FormatTextTime(at), id)
	return err
}

func (r *SQLiteRepository) CountPending(ctx context.Context) (int64, error) {
	var n int64
	err := r.conn.QueryRow(ctx,
		`SELECT COUNT(*) FROM outbox WHERE published_at IS NULL AND dead_lettered_at IS NULL`).Scan(&n)
	return n, err
}

func (r *SQLiteRepository) DeleteOld(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.conn.Exec(ctx,
		`DELETE FROM outbox WHERE published_at IS NOT NULL AND published_at < ?`, database.FormatTextTime(before))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// NewRepository picks the implementation matching the connection's driver.
func NewRepository(conn database.Connection) Repository {
	if conn.Driver() == database.DriverPostgres {
		return NewPostgresRepository(conn)
	}
	return NewSQLiteRepository(conn)
}

var _ Repository = (*SQLiteRepository)(nil)
