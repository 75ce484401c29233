package postgres

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ledgerlab/payments/internal/domain"
)

func (s *Store) InsertOutboxEvent(ctx context.Context, tx pgx.Tx, evt domain.OutboxEvent) error {
	const q = `
		INSERT INTO outbox_events (
			id, aggregate_type, aggregate_id, event_type,
			payload_json, status, attempts, next_retry_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := tx.Exec(ctx, q,
		evt.ID,
		evt.AggregateType,
		evt.AggregateID,
		string(evt.EventType),
		evt.PayloadJSON,
		string(evt.Status),
		evt.Attempts,
		evt.NextRetryAt,
	)
	if err != nil {
		return fmt.Errorf("insert outbox event: %w", err)
	}
	return nil
}

// ClaimBatch claims up to batchSize due events and stamps the lease in
// the same statement: status flips to processing and next_retry_at
// becomes the lease expiry. SKIP LOCKED keeps concurrent workers off
// each other's rows; an expired lease on a processing row makes the
// event claimable again, which is how crashed workers' events recover.
func (s *Store) ClaimBatch(ctx context.Context, batchSize int, leaseTTL time.Duration) ([]string, error) {
	const q = `
		UPDATE outbox_events
		SET status = 'processing',
		    next_retry_at = now() + make_interval(secs => $2)
		WHERE id IN (
			SELECT id
			FROM outbox_events
			WHERE status IN ('pending', 'processing')
			  AND (next_retry_at IS NULL OR next_retry_at <= now())
			ORDER BY created_at ASC, id ASC
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, created_at
	`

	rows, err := s.pool.Query(ctx, q, batchSize, leaseTTL.Seconds())
	if err != nil {
		return nil, fmt.Errorf("claim outbox batch: %w", err)
	}
	defer rows.Close()

	type claimed struct {
		id        string
		createdAt time.Time
	}
	var batch []claimed
	for rows.Next() {
		var c claimed
		if err := rows.Scan(&c.id, &c.createdAt); err != nil {
			return nil, fmt.Errorf("scan claimed event: %w", err)
		}
		batch = append(batch, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("claim outbox batch: %w", err)
	}

	// RETURNING does not preserve the subquery order.
	sort.Slice(batch, func(i, j int) bool {
		if !batch[i].createdAt.Equal(batch[j].createdAt) {
			return batch[i].createdAt.Before(batch[j].createdAt)
		}
		return batch[i].id < batch[j].id
	})

	ids := make([]string, len(batch))
	for i, c := range batch {
		ids[i] = c.id
	}
	return ids, nil
}

func (s *Store) GetEventForUpdate(ctx context.Context, tx pgx.Tx, id string) (*domain.OutboxEvent, error) {
	const q = `
		SELECT id, aggregate_type, aggregate_id, event_type,
		       payload_json, status, attempts, next_retry_at, created_at
		FROM outbox_events
		WHERE id = $1
		FOR UPDATE
	`

	var evt domain.OutboxEvent
	var eventType, status string
	err := tx.QueryRow(ctx, q, id).Scan(
		&evt.ID, &evt.AggregateType, &evt.AggregateID, &eventType,
		&evt.PayloadJSON, &status, &evt.Attempts, &evt.NextRetryAt, &evt.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrEventNotFound, id)
		}
		return nil, fmt.Errorf("lock outbox event %s: %w", id, err)
	}
	evt.EventType = domain.OutboxEventType(eventType)
	evt.Status = domain.OutboxStatus(status)
	return &evt, nil
}

func (s *Store) MarkEventProcessed(ctx context.Context, tx pgx.Tx, id string) error {
	const q = `
		UPDATE outbox_events
		SET status = 'processed', next_retry_at = NULL
		WHERE id = $1
	`

	if _, err := tx.Exec(ctx, q, id); err != nil {
		return fmt.Errorf("mark event processed: %w", err)
	}
	return nil
}

func (s *Store) MarkEventDead(ctx context.Context, tx pgx.Tx, id string, attempts int32) error {
	const q = `
		UPDATE outbox_events
		SET status = 'dead', attempts = $2, next_retry_at = NULL
		WHERE id = $1
	`

	if _, err := tx.Exec(ctx, q, id, attempts); err != nil {
		return fmt.Errorf("mark event dead: %w", err)
	}
	return nil
}

// RescheduleEvent returns a transiently failed event to the queue with
// its bumped attempt count and backoff deadline.
func (s *Store) RescheduleEvent(ctx context.Context, tx pgx.Tx, id string, attempts int32, nextRetryAt time.Time) error {
	const q = `
		UPDATE outbox_events
		SET status = 'pending', attempts = $2, next_retry_at = $3
		WHERE id = $1
	`

	if _, err := tx.Exec(ctx, q, id, attempts, nextRetryAt); err != nil {
		return fmt.Errorf("reschedule event: %w", err)
	}
	return nil
}

func (s *Store) CountEventsByStatus(ctx context.Context, status domain.OutboxStatus) (int64, error) {
	const q = `SELECT count(*) FROM outbox_events WHERE status = $1`

	var n int64
	if err := s.pool.QueryRow(ctx, q, string(status)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count outbox events: %w", err)
	}
	return n, nil
}

func (s *Store) GetEvent(ctx context.Context, id string) (*domain.OutboxEvent, error) {
	const q = `
		SELECT id, aggregate_type, aggregate_id, event_type,
		       payload_json, status, attempts, next_retry_at, created_at
		FROM outbox_events
		WHERE id = $1
	`

	var evt domain.OutboxEvent
	var eventType, status string
	err := s.pool.QueryRow(ctx, q, id).Scan(
		&evt.ID, &evt.AggregateType, &evt.AggregateID, &eventType,
		&evt.PayloadJSON, &status, &evt.Attempts, &evt.NextRetryAt, &evt.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrEventNotFound, id)
		}
		return nil, fmt.Errorf("get outbox event %s: %w", id, err)
	}
	evt.EventType = domain.OutboxEventType(eventType)
	evt.Status = domain.OutboxStatus(status)
	return &evt, nil
}
