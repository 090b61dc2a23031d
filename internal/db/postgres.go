// Package db implements the Postgres storage layer: the orders table, the
// outbox table, and the transactional co-write that ties them together.
package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/orderproc/order-outbox/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const uniqueViolationCode = "23505"

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres config: %w", err)
	}

	p, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}

	if err := p.Ping(ctx); err != nil {
		return nil, fmt.Errorf("no response from postgres: %w", err)
	}

	return &PostgresStore{pool: p}, nil
}

// EnsureSchema creates the two durable tables on startup. The primary key on
// orders.id is the authoritative idempotency guard; the partial index keeps
// the relay's pending scan cheap.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS orders (
			id         UUID PRIMARY KEY,
			amount     NUMERIC(18,2) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		);

		CREATE TABLE IF NOT EXISTS outbox_events (
			id           UUID PRIMARY KEY,
			event_type   TEXT NOT NULL,
			payload      JSONB NOT NULL,
			processed    BOOLEAN NOT NULL DEFAULT FALSE,
			created_at   TIMESTAMPTZ NOT NULL,
			processed_at TIMESTAMPTZ
		);

		CREATE INDEX IF NOT EXISTS idx_outbox_events_pending
			ON outbox_events (created_at)
			WHERE processed = FALSE;
	`

	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}

// GetOrder looks up an order by its client-supplied identifier.
func (s *PostgresStore) GetOrder(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	query := `SELECT id, amount::text, created_at FROM orders WHERE id = $1`

	var (
		order     models.Order
		amountStr string
	)
	err := s.pool.QueryRow(ctx, query, id).Scan(&order.ID, &amountStr, &order.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to query order: %w", err)
	}

	amount, err := decimal.NewFromString(amountStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse stored amount: %w", err)
	}
	order.Amount = amount

	return &order, nil
}

// CreateOrderWithEvent inserts the business record and its outbox event in a
// single transaction. Either both rows become visible or neither does. A
// concurrent duplicate that slips past the caller's pre-check fires the
// primary key constraint and surfaces as ErrDuplicateOrder.
func (s *PostgresStore) CreateOrderWithEvent(ctx context.Context, order *models.Order, event *models.OutboxEvent) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO orders (id, amount, created_at) VALUES ($1, $2::numeric, $3)`,
		order.ID, order.Amount.String(), order.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return models.ErrDuplicateOrder
		}
		return fmt.Errorf("failed to insert order: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO outbox_events (id, event_type, payload, processed, created_at) VALUES ($1, $2, $3, FALSE, $4)`,
		event.ID, event.EventType, event.Payload, event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert outbox event: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		if isUniqueViolation(err) {
			return models.ErrDuplicateOrder
		}
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// FetchPending loads unprocessed events in commit order. Delivery order must
// match creation order, so the sort key is created_at ascending.
func (s *PostgresStore) FetchPending(ctx context.Context, limit int) ([]models.OutboxEvent, error) {
	query := `
		SELECT id, event_type, payload, processed, created_at, processed_at
		FROM outbox_events
		WHERE processed = FALSE
		ORDER BY created_at ASC
		LIMIT $1
	`

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch pending events: %w", err)
	}
	defer rows.Close()

	var events []models.OutboxEvent
	for rows.Next() {
		var event models.OutboxEvent
		err := rows.Scan(
			&event.ID,
			&event.EventType,
			&event.Payload,
			&event.Processed,
			&event.CreatedAt,
			&event.ProcessedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan outbox event: %w", err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read pending events: %w", err)
	}

	return events, nil
}

// MarkProcessed persists the processed flag and timestamp for the delivered
// events in one transactional write. The processed = FALSE guard makes the
// mark idempotent: a timestamp is never overwritten on a retried cycle.
func (s *PostgresStore) MarkProcessed(ctx context.Context, events []models.OutboxEvent) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, event := range events {
		batch.Queue(
			`UPDATE outbox_events SET processed = TRUE, processed_at = $2 WHERE id = $1 AND processed = FALSE`,
			event.ID, event.ProcessedAt,
		)
	}

	results := tx.SendBatch(ctx, batch)
	for range events {
		if _, err := results.Exec(); err != nil {
			results.Close()
			return fmt.Errorf("failed to mark event processed: %w", err)
		}
	}
	if err := results.Close(); err != nil {
		return fmt.Errorf("failed to close batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit processed marks: %w", err)
	}

	return nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode
}
