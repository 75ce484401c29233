package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel/trace"

	"github.com/ledgerlab/payments/internal/adapters/postgres"
	"github.com/ledgerlab/payments/internal/domain"
	"github.com/ledgerlab/payments/internal/telemetry"
)

// FailureInjector is the deterministic fault source the processor
// consults once per event attempt.
type FailureInjector interface {
	MaybeApplyDBDelay(eventID string, attempt int32)
	ShouldRaiseWorkerException(eventID string, attempt int32) bool
	ShouldFailRedisSimulation(eventID string, attempt int32) bool
}

// permanentError marks a failure that retrying cannot fix: missing
// entities, unknown event types, malformed payloads, impossible
// arithmetic. The event dead-letters immediately.
type permanentError struct {
	reason string
}

func (e *permanentError) Error() string { return e.reason }

func permanentf(format string, args ...any) error {
	return &permanentError{reason: fmt.Sprintf(format, args...)}
}

func isPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

// Processor drains the outbox: claim a batch under one transaction,
// then apply each event in its own transaction. Every other failure
// path is a separate small transaction so the event row always reflects
// what actually happened.
type Processor struct {
	store      *postgres.Store
	injector   FailureInjector
	leaseTTL   time.Duration
	batchSize  int
	log        *slog.Logger
	tracer     trace.Tracer
	strategies map[domain.OutboxEventType]settlementStrategy
}

func NewProcessor(store *postgres.Store, injector FailureInjector, leaseTTL time.Duration, batchSize int, log *slog.Logger) *Processor {
	helpers := settlementHelpers{store: store}
	return &Processor{
		store:     store,
		injector:  injector,
		leaseTTL:  leaseTTL,
		batchSize: batchSize,
		log:       log,
		tracer:    telemetry.Tracer("payments.worker"),
		strategies: map[domain.OutboxEventType]settlementStrategy{
			domain.EventPaymentReserved:  reservedSettlement{helpers},
			domain.EventPaymentRequested: requestedSettlement{helpers},
		},
	}
}

// ProcessAvailableEvents claims one batch and works through it. Returns
// the number of events claimed.
func (p *Processor) ProcessAvailableEvents(ctx context.Context) (int, error) {
	ids, err := p.store.ClaimBatch(ctx, p.batchSize, p.leaseTTL)
	if err != nil {
		return 0, err
	}
	for _, id := range ids {
		p.processEvent(ctx, id)
	}
	return len(ids), nil
}

func (p *Processor) processEvent(ctx context.Context, id string) {
	err := postgres.WithTx(ctx, p.store.Pool(), func(tx pgx.Tx) error {
		evt, err := p.store.GetEventForUpdate(ctx, tx, id)
		if err != nil {
			if errors.Is(err, postgres.ErrEventNotFound) {
				return nil
			}
			return err
		}
		if evt.Status == domain.OutboxProcessed || evt.Status == domain.OutboxDead {
			return nil
		}
		return p.applyEvent(ctx, tx, evt)
	})
	if err == nil {
		return
	}

	if isPermanent(err) {
		p.deadLetter(ctx, id, err)
		return
	}
	p.scheduleRetry(ctx, id, err)
}

func (p *Processor) applyEvent(ctx context.Context, tx pgx.Tx, evt *domain.OutboxEvent) error {
	payload, err := domain.ParseEventPayload(evt.PayloadJSON)
	if err != nil {
		return permanentf("%v", err)
	}

	if payload.Traceparent != nil {
		ctx = telemetry.ContextFromTraceparent(ctx, *payload.Traceparent)
	}
	ctx, span := p.tracer.Start(ctx, "worker.process_event")
	defer span.End()

	attempt := evt.Attempts + 1
	p.injector.MaybeApplyDBDelay(evt.ID, attempt)
	if p.injector.ShouldRaiseWorkerException(evt.ID, attempt) {
		return fmt.Errorf("injected fault on %s attempt %d: deterministic worker failure", evt.ID, attempt)
	}
	if p.injector.ShouldFailRedisSimulation(evt.ID, attempt) {
		return fmt.Errorf("injected fault on %s attempt %d: deterministic redis failure simulation", evt.ID, attempt)
	}

	strategy, ok := p.strategies[evt.EventType]
	if !ok {
		return permanentf("unexpected event %s", evt.EventType)
	}
	return strategy.process(ctx, tx, evt, payload)
}

// deadLetter transitions the event to its terminal failure state. The
// attempts count is left as-is; permanent failures skip the retry
// budget entirely.
func (p *Processor) deadLetter(ctx context.Context, id string, cause error) {
	err := postgres.WithTx(ctx, p.store.Pool(), func(tx pgx.Tx) error {
		evt, err := p.store.GetEventForUpdate(ctx, tx, id)
		if err != nil {
			if errors.Is(err, postgres.ErrEventNotFound) {
				return nil
			}
			return err
		}
		return p.store.MarkEventDead(ctx, tx, id, evt.Attempts)
	})
	if err != nil {
		p.log.ErrorContext(ctx, "failed to dead-letter event", "event_id", id, "err", err)
		return
	}
	telemetry.InvariantViolation.Inc()
	p.log.ErrorContext(ctx, "outbox event dead-lettered", "event_id", id, "cause", cause)
}

// scheduleRetry bumps the attempt count and either re-queues the event
// with exponential backoff or, on the seventh failure, dead-letters it.
func (p *Processor) scheduleRetry(ctx context.Context, id string, cause error) {
	dead := false
	err := postgres.WithTx(ctx, p.store.Pool(), func(tx pgx.Tx) error {
		evt, err := p.store.GetEventForUpdate(ctx, tx, id)
		if err != nil {
			if errors.Is(err, postgres.ErrEventNotFound) {
				return nil
			}
			return err
		}
		delay := retryDelay(evt.Attempts)
		attempts := evt.Attempts + 1
		if attempts >= domain.MaxOutboxAttempts {
			dead = true
			return p.store.MarkEventDead(ctx, tx, id, attempts)
		}
		return p.store.RescheduleEvent(ctx, tx, id, attempts, time.Now().UTC().Add(delay))
	})
	if err != nil {
		p.log.ErrorContext(ctx, "failed to schedule retry", "event_id", id, "err", err)
		return
	}
	if dead {
		p.log.ErrorContext(ctx, "outbox event exhausted retries", "event_id", id, "cause", cause)
		return
	}
	telemetry.OutboxRetry.Inc()
	p.log.WarnContext(ctx, "outbox event scheduled for retry", "event_id", id, "cause", cause)
}

// retryDelay returns 2^min(attempts+1, 6) seconds, capped at 64s.
// attempts is the count before this failure.
func retryDelay(attempts int32) time.Duration {
	exp := attempts + 1
	if exp > 6 {
		exp = 6
	}
	return time.Duration(1<<uint(exp)) * time.Second
}
