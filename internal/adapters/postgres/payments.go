package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/ledgerlab/payments/internal/domain"
)

func (s *Store) InsertPayment(ctx context.Context, tx pgx.Tx, p domain.Payment) error {
	const q = `
		INSERT INTO payments (
			id, idempotency_key, request_hash,
			source_account_id, destination_account_id,
			amount_cents, method, status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := tx.Exec(ctx, q,
		p.ID,
		p.IdempotencyKey,
		p.RequestHash,
		p.SourceAccountID,
		p.DestinationAccountID,
		p.AmountCents,
		string(p.Method),
		string(p.Status),
	)
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

// GetPaymentForUpdate row-locks the payment. The worker takes this lock
// before any account lock so that concurrent deliveries of the same
// payment serialize cleanly.
func (s *Store) GetPaymentForUpdate(ctx context.Context, tx pgx.Tx, id string) (*domain.Payment, error) {
	const q = `
		SELECT id, idempotency_key, request_hash,
		       source_account_id, destination_account_id,
		       amount_cents, method, status, created_at
		FROM payments
		WHERE id = $1
		FOR UPDATE
	`

	var p domain.Payment
	var method, status string
	err := tx.QueryRow(ctx, q, id).Scan(
		&p.ID, &p.IdempotencyKey, &p.RequestHash,
		&p.SourceAccountID, &p.DestinationAccountID,
		&p.AmountCents, &method, &status, &p.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrPaymentNotFound, id)
		}
		return nil, fmt.Errorf("lock payment %s: %w", id, err)
	}
	p.Method = domain.PaymentMethod(method)
	p.Status = domain.PaymentStatus(status)
	return &p, nil
}

func (s *Store) SetPaymentStatus(ctx context.Context, tx pgx.Tx, id string, status domain.PaymentStatus) error {
	const q = `UPDATE payments SET status = $2 WHERE id = $1`

	tag, err := tx.Exec(ctx, q, id, string(status))
	if err != nil {
		return fmt.Errorf("set payment status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrPaymentNotFound, id)
	}
	return nil
}

func (s *Store) GetPayment(ctx context.Context, id string) (*domain.Payment, error) {
	const q = `
		SELECT id, idempotency_key, request_hash,
		       source_account_id, destination_account_id,
		       amount_cents, method, status, created_at
		FROM payments
		WHERE id = $1
	`

	var p domain.Payment
	var method, status string
	err := s.pool.QueryRow(ctx, q, id).Scan(
		&p.ID, &p.IdempotencyKey, &p.RequestHash,
		&p.SourceAccountID, &p.DestinationAccountID,
		&p.AmountCents, &method, &status, &p.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrPaymentNotFound, id)
		}
		return nil, fmt.Errorf("get payment %s: %w", id, err)
	}
	p.Method = domain.PaymentMethod(method)
	p.Status = domain.PaymentStatus(status)
	return &p, nil
}

func (s *Store) CountPaymentsByStatus(ctx context.Context, status domain.PaymentStatus) (int64, error) {
	const q = `SELECT count(*) FROM payments WHERE status = $1`

	var n int64
	if err := s.pool.QueryRow(ctx, q, string(status)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count payments by status: %w", err)
	}
	return n, nil
}
