package worker

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/ledgerlab/payments/internal/adapters/postgres"
	"github.com/ledgerlab/payments/internal/domain"
	"github.com/ledgerlab/payments/internal/telemetry"
)

// settlementStrategy finalizes one outbox event inside the caller's
// transaction. Dispatch is by event type rather than by the worker's
// configured mode, so a mid-flight mode change cannot dead-letter
// events that are still perfectly applicable.
type settlementStrategy interface {
	process(ctx context.Context, tx pgx.Tx, evt *domain.OutboxEvent, payload domain.EventPayload) error
}

type settlementHelpers struct {
	store *postgres.Store
}

// lockPayment takes the payment row lock first; account locks follow.
// Concurrent deliveries of the same payment serialize here.
func (h settlementHelpers) lockPayment(ctx context.Context, tx pgx.Tx, id string) (*domain.Payment, error) {
	payment, err := h.store.GetPaymentForUpdate(ctx, tx, id)
	if err != nil {
		if errors.Is(err, postgres.ErrPaymentNotFound) {
			return nil, permanentf("payment not found: %s", id)
		}
		return nil, err
	}
	return payment, nil
}

func (h settlementHelpers) lockAccounts(ctx context.Context, tx pgx.Tx, sourceID, destinationID string) (*domain.Account, *domain.Account, error) {
	source, destination, err := h.store.LockPair(ctx, tx, sourceID, destinationID)
	if err != nil {
		if errors.Is(err, postgres.ErrAccountNotFound) {
			return nil, nil, permanentf("account not found")
		}
		return nil, nil, err
	}
	return source, destination, nil
}

func (h settlementHelpers) settle(ctx context.Context, tx pgx.Tx, evt *domain.OutboxEvent, payload domain.EventPayload, source, destination *domain.Account) error {
	if err := h.store.UpdateAccountBalances(ctx, tx, source); err != nil {
		return err
	}
	if err := h.store.UpdateAccountBalances(ctx, tx, destination); err != nil {
		return err
	}
	if err := h.store.SetPaymentStatus(ctx, tx, payload.PaymentID, domain.StatusCompleted); err != nil {
		return err
	}
	if err := h.store.AppendLedgerPair(ctx, tx, payload.PaymentID, payload.SourceAccountID, payload.DestinationAccountID, payload.AmountCents); err != nil {
		return err
	}
	if err := h.store.MarkEventProcessed(ctx, tx, evt.ID); err != nil {
		return err
	}
	telemetry.PaymentsProcessed.Inc()
	return nil
}

// reservedSettlement completes a hybrid-mode reservation: the reserved
// amount leaves the source and lands on the destination's available
// balance.
type reservedSettlement struct {
	settlementHelpers
}

func (s reservedSettlement) process(ctx context.Context, tx pgx.Tx, evt *domain.OutboxEvent, payload domain.EventPayload) error {
	payment, err := s.lockPayment(ctx, tx, payload.PaymentID)
	if err != nil {
		return err
	}
	if payment.Status.IsTerminal() {
		return s.store.MarkEventProcessed(ctx, tx, evt.ID)
	}

	source, destination, err := s.lockAccounts(ctx, tx, payload.SourceAccountID, payload.DestinationAccountID)
	if err != nil {
		return err
	}
	if source.ReservedCents < payload.AmountCents {
		return permanentf("reserved funds below amount: account %s has %d, event wants %d",
			source.ID, source.ReservedCents, payload.AmountCents)
	}

	source.ReservedCents -= payload.AmountCents
	destination.AvailableCents += payload.AmountCents
	return s.settle(ctx, tx, evt, payload, source, destination)
}

// requestedSettlement applies an eventual-mode payment: the funds check
// happens here, and a shortfall is a business rejection rather than a
// failure.
type requestedSettlement struct {
	settlementHelpers
}

func (s requestedSettlement) process(ctx context.Context, tx pgx.Tx, evt *domain.OutboxEvent, payload domain.EventPayload) error {
	payment, err := s.lockPayment(ctx, tx, payload.PaymentID)
	if err != nil {
		return err
	}
	if payment.Status.IsTerminal() {
		return s.store.MarkEventProcessed(ctx, tx, evt.ID)
	}

	source, destination, err := s.lockAccounts(ctx, tx, payload.SourceAccountID, payload.DestinationAccountID)
	if err != nil {
		return err
	}
	if source.AvailableCents < payload.AmountCents {
		if err := s.store.SetPaymentStatus(ctx, tx, payload.PaymentID, domain.StatusRejected); err != nil {
			return err
		}
		if err := s.store.MarkEventProcessed(ctx, tx, evt.ID); err != nil {
			return err
		}
		telemetry.PaymentsProcessed.Inc()
		return nil
	}

	source.AvailableCents -= payload.AmountCents
	destination.AvailableCents += payload.AmountCents
	return s.settle(ctx, tx, evt, payload, source, destination)
}
