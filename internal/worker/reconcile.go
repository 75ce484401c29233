package worker

import (
	"context"
	"log/slog"

	"github.com/ledgerlab/payments/internal/adapters/postgres"
	"github.com/ledgerlab/payments/internal/telemetry"
)

// Reconciler runs the periodic read-only invariant scan. In a healthy
// system both numbers stay zero; a non-zero reading is an incident
// signal, not something the scan repairs.
type Reconciler struct {
	store *postgres.Store
	log   *slog.Logger
}

func NewReconciler(store *postgres.Store, log *slog.Logger) *Reconciler {
	return &Reconciler{store: store, log: log}
}

type ReconciliationReport struct {
	ImbalanceCents   int64
	NegativeAccounts int64
}

func (r *Reconciler) RunOnce(ctx context.Context) (ReconciliationReport, error) {
	imbalance, negative, err := r.store.ReconciliationSnapshot(ctx)
	if err != nil {
		return ReconciliationReport{}, err
	}

	if imbalance != 0 {
		telemetry.LedgerImbalance.Inc()
		r.log.ErrorContext(ctx, "ledger imbalance detected", "imbalance_cents", imbalance)
	}
	if negative > 0 {
		telemetry.NegativeBalanceDetected.Inc()
		r.log.ErrorContext(ctx, "negative balances detected", "accounts", negative)
	}
	return ReconciliationReport{ImbalanceCents: imbalance, NegativeAccounts: negative}, nil
}
