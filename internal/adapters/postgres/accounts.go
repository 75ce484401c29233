package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ledgerlab/payments/internal/domain"
	"github.com/ledgerlab/payments/internal/telemetry"
)

var (
	ErrAccountNotFound = errors.New("account not found")
	ErrPaymentNotFound = errors.New("payment not found")
	ErrEventNotFound   = errors.New("outbox event not found")

	ErrVersionConflict = errors.New("account version conflict")
)

// Store is the shared persistence layer for intake and worker. Every
// mutation runs against a caller-provided pgx.Tx so commits always cover
// the full unit of work.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Pool() *pgxpool.Pool { return s.pool }

// LockPair row-locks both accounts in ascending id order and hands them
// back as (source, destination). This is the only path that locks
// accounts; symmetric transfers cannot deadlock against each other.
func (s *Store) LockPair(ctx context.Context, tx pgx.Tx, sourceID, destinationID string) (*domain.Account, *domain.Account, error) {
	firstID, secondID := sourceID, destinationID
	if secondID < firstID {
		firstID, secondID = secondID, firstID
	}

	first, err := s.lockAccount(ctx, tx, firstID)
	if err != nil {
		return nil, nil, err
	}
	second, err := s.lockAccount(ctx, tx, secondID)
	if err != nil {
		return nil, nil, err
	}

	if first.ID == sourceID {
		return first, second, nil
	}
	return second, first, nil
}

func (s *Store) lockAccount(ctx context.Context, tx pgx.Tx, id string) (*domain.Account, error) {
	const q = `
		SELECT id, available_cents, reserved_cents, version, created_at
		FROM accounts
		WHERE id = $1
		FOR UPDATE
	`

	var acc domain.Account
	err := tx.QueryRow(ctx, q, id).Scan(
		&acc.ID, &acc.AvailableCents, &acc.ReservedCents, &acc.Version, &acc.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, id)
		}
		return nil, fmt.Errorf("lock account %s: %w", id, err)
	}
	return &acc, nil
}

// UpdateAccountBalances writes mutated balances, guarded by the version
// the row carried when it was locked. Under row locks the guard cannot
// fail; a zero-row update means another writer slipped a version bump in
// and the transaction must not proceed.
func (s *Store) UpdateAccountBalances(ctx context.Context, tx pgx.Tx, acc *domain.Account) error {
	const q = `
		UPDATE accounts
		SET available_cents = $2, reserved_cents = $3, version = version + 1
		WHERE id = $1 AND version = $4
	`

	tag, err := tx.Exec(ctx, q, acc.ID, acc.AvailableCents, acc.ReservedCents, acc.Version)
	if err != nil {
		return fmt.Errorf("update account %s: %w", acc.ID, err)
	}
	if tag.RowsAffected() == 0 {
		telemetry.OptimisticLockConflict.Inc()
		return fmt.Errorf("%w: %s", ErrVersionConflict, acc.ID)
	}
	acc.Version++
	return nil
}

func (s *Store) GetAccount(ctx context.Context, id string) (*domain.Account, error) {
	const q = `
		SELECT id, available_cents, reserved_cents, version, created_at
		FROM accounts
		WHERE id = $1
	`

	var acc domain.Account
	err := s.pool.QueryRow(ctx, q, id).Scan(
		&acc.ID, &acc.AvailableCents, &acc.ReservedCents, &acc.Version, &acc.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, id)
		}
		return nil, fmt.Errorf("get account %s: %w", id, err)
	}
	return &acc, nil
}
