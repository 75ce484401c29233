package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/ledgerlab/payments/internal/domain"
)

// AppendLedgerPair writes the DEBIT and CREDIT rows for a completed
// transfer. Both rows ride the caller's transaction: they exist together
// or not at all.
func (s *Store) AppendLedgerPair(ctx context.Context, tx pgx.Tx, paymentID, sourceID, destinationID string, amountCents int64) error {
	const q = `
		INSERT INTO ledger_entries (id, payment_id, account_id, direction, amount_cents)
		VALUES ($1, $2, $3, $4, $5)
	`

	if _, err := tx.Exec(ctx, q, domain.NewLedgerEntryID(), paymentID, sourceID, string(domain.Debit), amountCents); err != nil {
		return fmt.Errorf("insert debit entry: %w", err)
	}
	if _, err := tx.Exec(ctx, q, domain.NewLedgerEntryID(), paymentID, destinationID, string(domain.Credit), amountCents); err != nil {
		return fmt.Errorf("insert credit entry: %w", err)
	}
	return nil
}

func (s *Store) ledgerImbalance(ctx context.Context, q Querier) (int64, error) {
	const query = `
		SELECT COALESCE(SUM(CASE WHEN direction = 'DEBIT' THEN amount_cents ELSE -amount_cents END), 0)
		FROM ledger_entries
	`

	var imbalance int64
	if err := q.QueryRow(ctx, query).Scan(&imbalance); err != nil {
		return 0, fmt.Errorf("sum ledger imbalance: %w", err)
	}
	return imbalance, nil
}

func (s *Store) negativeBalanceCount(ctx context.Context, q Querier) (int64, error) {
	const query = `
		SELECT count(*)
		FROM accounts
		WHERE available_cents < 0 OR reserved_cents < 0
	`

	var n int64
	if err := q.QueryRow(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("count negative balances: %w", err)
	}
	return n, nil
}

func (s *Store) LedgerImbalance(ctx context.Context) (int64, error) {
	return s.ledgerImbalance(ctx, s.pool)
}

func (s *Store) NegativeBalanceCount(ctx context.Context) (int64, error) {
	return s.negativeBalanceCount(ctx, s.pool)
}

func (s *Store) CountLedgerEntries(ctx context.Context, paymentID string) (int64, error) {
	const q = `SELECT count(*) FROM ledger_entries WHERE payment_id = $1`

	var n int64
	if err := s.pool.QueryRow(ctx, q, paymentID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count ledger entries: %w", err)
	}
	return n, nil
}

// ReconciliationSnapshot reads both global invariants in one read-only
// transaction so they observe the same database state.
func (s *Store) ReconciliationSnapshot(ctx context.Context) (imbalance int64, negative int64, err error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return 0, 0, fmt.Errorf("begin reconciliation transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	imbalance, err = s.ledgerImbalance(ctx, tx)
	if err != nil {
		return 0, 0, err
	}
	negative, err = s.negativeBalanceCount(ctx, tx)
	if err != nil {
		return 0, 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, 0, fmt.Errorf("commit reconciliation transaction: %w", err)
	}
	return imbalance, negative, nil
}

// Stats is the /internal/stats body: live aggregates straight from the
// database, all integers.
type Stats struct {
	Completed               int64 `json:"completed"`
	Rejected                int64 `json:"rejected"`
	OutboxPending           int64 `json:"outbox_pending"`
	OutboxDead              int64 `json:"outbox_dead"`
	LedgerImbalance         int64 `json:"ledger_imbalance"`
	NegativeBalanceDetected int64 `json:"negative_balance_detected"`
}

func (s *Store) CollectStats(ctx context.Context) (Stats, error) {
	var stats Stats
	var err error

	if stats.Completed, err = s.CountPaymentsByStatus(ctx, domain.StatusCompleted); err != nil {
		return Stats{}, err
	}
	if stats.Rejected, err = s.CountPaymentsByStatus(ctx, domain.StatusRejected); err != nil {
		return Stats{}, err
	}
	if stats.OutboxPending, err = s.CountEventsByStatus(ctx, domain.OutboxPending); err != nil {
		return Stats{}, err
	}
	if stats.OutboxDead, err = s.CountEventsByStatus(ctx, domain.OutboxDead); err != nil {
		return Stats{}, err
	}
	if stats.LedgerImbalance, err = s.LedgerImbalance(ctx); err != nil {
		return Stats{}, err
	}
	negative, err := s.NegativeBalanceCount(ctx)
	if err != nil {
		return Stats{}, err
	}
	if negative > 0 {
		stats.NegativeBalanceDetected = 1
	}
	return stats, nil
}
