package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/ledgerlab/payments/internal/domain"
)

// GetIdempotencyRecord returns nil when the key is unknown. Takes a
// Querier so the same lookup serves the in-transaction check and the
// post-rollback re-read after a unique-violation race.
func (s *Store) GetIdempotencyRecord(ctx context.Context, q Querier, key string) (*domain.IdempotencyRecord, error) {
	const query = `
		SELECT key, request_hash, response_json, created_at
		FROM idempotency_keys
		WHERE key = $1
	`

	var rec domain.IdempotencyRecord
	err := q.QueryRow(ctx, query, key).Scan(
		&rec.Key, &rec.RequestHash, &rec.ResponseJSON, &rec.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get idempotency record: %w", err)
	}
	return &rec, nil
}

func (s *Store) InsertIdempotencyRecord(ctx context.Context, tx pgx.Tx, key, requestHash, responseJSON string) error {
	const q = `
		INSERT INTO idempotency_keys (key, request_hash, response_json)
		VALUES ($1, $2, $3)
	`

	if _, err := tx.Exec(ctx, q, key, requestHash, responseJSON); err != nil {
		return fmt.Errorf("insert idempotency record: %w", err)
	}
	return nil
}
