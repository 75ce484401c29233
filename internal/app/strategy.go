package app

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/ledgerlab/payments/internal/adapters/postgres"
	"github.com/ledgerlab/payments/internal/domain"
)

// intakeStrategy is the mode-selected body of the intake transaction.
// Implementations share helpers instead of a back-reference to the
// service, which keeps the dependency one-directional.
type intakeStrategy interface {
	execute(ctx context.Context, tx pgx.Tx, req domain.CreatePaymentRequest, requestHash, traceparent string) (domain.PaymentResponse, error)
}

type intakeHelpers struct {
	store *postgres.Store
}

func (h intakeHelpers) lockAccounts(ctx context.Context, tx pgx.Tx, sourceID, destinationID string) (*domain.Account, *domain.Account, error) {
	source, destination, err := h.store.LockPair(ctx, tx, sourceID, destinationID)
	if err != nil {
		if errors.Is(err, postgres.ErrAccountNotFound) {
			return nil, nil, domain.ErrInvalidPayment(domain.MsgAccountNotFound)
		}
		return nil, nil, err
	}
	return source, destination, nil
}

func validateFunds(source *domain.Account, amountCents int64) error {
	if source.AvailableCents < amountCents {
		return domain.ErrInsufficientFunds()
	}
	return nil
}

func (h intakeHelpers) createPayment(ctx context.Context, tx pgx.Tx, req domain.CreatePaymentRequest, requestHash string, status domain.PaymentStatus) (string, error) {
	payment := domain.Payment{
		ID:                   domain.NewPaymentID(),
		IdempotencyKey:       req.IdempotencyKey,
		RequestHash:          requestHash,
		SourceAccountID:      req.SourceAccountID,
		DestinationAccountID: req.DestinationAccountID,
		AmountCents:          req.AmountCents,
		Method:               req.Method,
		Status:               status,
	}
	if err := h.store.InsertPayment(ctx, tx, payment); err != nil {
		return "", err
	}
	return payment.ID, nil
}

func (h intakeHelpers) emitOutbox(ctx context.Context, tx pgx.Tx, paymentID string, eventType domain.OutboxEventType, req domain.CreatePaymentRequest, traceparent string) error {
	payload, err := domain.NewEventPayload(paymentID, req, traceparent).MarshalCanonical()
	if err != nil {
		return err
	}
	event := domain.OutboxEvent{
		ID:            domain.NewEventID(),
		AggregateType: "payment",
		AggregateID:   paymentID,
		EventType:     eventType,
		PayloadJSON:   payload,
		Status:        domain.OutboxPending,
		Attempts:      0,
	}
	return h.store.InsertOutboxEvent(ctx, tx, event)
}

// strongIntake debits and credits synchronously; the payment is terminal
// before the response leaves the building, so no outbox event exists.
type strongIntake struct {
	intakeHelpers
}

func (s strongIntake) execute(ctx context.Context, tx pgx.Tx, req domain.CreatePaymentRequest, requestHash, _ string) (domain.PaymentResponse, error) {
	source, destination, err := s.lockAccounts(ctx, tx, req.SourceAccountID, req.DestinationAccountID)
	if err != nil {
		return domain.PaymentResponse{}, err
	}
	if err := validateFunds(source, req.AmountCents); err != nil {
		return domain.PaymentResponse{}, err
	}

	source.AvailableCents -= req.AmountCents
	destination.AvailableCents += req.AmountCents
	if err := s.store.UpdateAccountBalances(ctx, tx, source); err != nil {
		return domain.PaymentResponse{}, err
	}
	if err := s.store.UpdateAccountBalances(ctx, tx, destination); err != nil {
		return domain.PaymentResponse{}, err
	}

	paymentID, err := s.createPayment(ctx, tx, req, requestHash, domain.StatusCompleted)
	if err != nil {
		return domain.PaymentResponse{}, err
	}
	if err := s.store.AppendLedgerPair(ctx, tx, paymentID, req.SourceAccountID, req.DestinationAccountID, req.AmountCents); err != nil {
		return domain.PaymentResponse{}, err
	}
	return domain.PaymentResponse{PaymentID: paymentID, Status: domain.StatusCompleted}, nil
}

// hybridIntake reserves the funds on the source and defers the credit to
// the worker. The destination is locked purely to keep the lock ordering
// uniform; its balance is untouched here.
type hybridIntake struct {
	intakeHelpers
}

func (s hybridIntake) execute(ctx context.Context, tx pgx.Tx, req domain.CreatePaymentRequest, requestHash, traceparent string) (domain.PaymentResponse, error) {
	source, _, err := s.lockAccounts(ctx, tx, req.SourceAccountID, req.DestinationAccountID)
	if err != nil {
		return domain.PaymentResponse{}, err
	}
	if err := validateFunds(source, req.AmountCents); err != nil {
		return domain.PaymentResponse{}, err
	}

	source.AvailableCents -= req.AmountCents
	source.ReservedCents += req.AmountCents
	if err := s.store.UpdateAccountBalances(ctx, tx, source); err != nil {
		return domain.PaymentResponse{}, err
	}

	paymentID, err := s.createPayment(ctx, tx, req, requestHash, domain.StatusReserved)
	if err != nil {
		return domain.PaymentResponse{}, err
	}
	if err := s.emitOutbox(ctx, tx, paymentID, domain.EventPaymentReserved, req, traceparent); err != nil {
		return domain.PaymentResponse{}, err
	}
	return domain.PaymentResponse{PaymentID: paymentID, Status: domain.StatusReserved}, nil
}

// eventualIntake skips locking and the funds check entirely; the worker
// decides completion or business rejection later.
type eventualIntake struct {
	intakeHelpers
}

func (s eventualIntake) execute(ctx context.Context, tx pgx.Tx, req domain.CreatePaymentRequest, requestHash, traceparent string) (domain.PaymentResponse, error) {
	paymentID, err := s.createPayment(ctx, tx, req, requestHash, domain.StatusReceived)
	if err != nil {
		return domain.PaymentResponse{}, err
	}
	if err := s.emitOutbox(ctx, tx, paymentID, domain.EventPaymentRequested, req, traceparent); err != nil {
		return domain.PaymentResponse{}, err
	}
	return domain.PaymentResponse{PaymentID: paymentID, Status: domain.StatusReceived}, nil
}
