package app

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel/trace"

	"github.com/ledgerlab/payments/internal/adapters/postgres"
	redisadapter "github.com/ledgerlab/payments/internal/adapters/redis"
	"github.com/ledgerlab/payments/internal/domain"
	"github.com/ledgerlab/payments/internal/telemetry"
)

const cacheTTL = 24 * time.Hour

// PaymentService is the intake use case: validate, resolve idempotency,
// and run the mode-selected strategy inside a single transaction that
// also persists the idempotency row and (for non-strong modes) the
// outbox event.
type PaymentService struct {
	store      *postgres.Store
	cache      *redisadapter.ResponseCache // nil when Redis is disabled
	mode       domain.ConsistencyMode
	log        *slog.Logger
	tracer     trace.Tracer
	strategies map[domain.ConsistencyMode]intakeStrategy
}

func NewPaymentService(
	store *postgres.Store,
	cache *redisadapter.ResponseCache,
	mode domain.ConsistencyMode,
	log *slog.Logger,
) *PaymentService {
	helpers := intakeHelpers{store: store}
	return &PaymentService{
		store:  store,
		cache:  cache,
		mode:   mode,
		log:    log,
		tracer: telemetry.Tracer("payments.app"),
		strategies: map[domain.ConsistencyMode]intakeStrategy{
			domain.ModeStrong:   strongIntake{helpers},
			domain.ModeHybrid:   hybridIntake{helpers},
			domain.ModeEventual: eventualIntake{helpers},
		},
	}
}

// CreatePayment executes the intake path. The traceparent header value
// travels into the outbox payload verbatim for downstream correlation.
func (s *PaymentService) CreatePayment(ctx context.Context, req domain.CreatePaymentRequest, traceparent string) (domain.PaymentResponse, error) {
	if err := req.Validate(); err != nil {
		return domain.PaymentResponse{}, err
	}
	requestHash, err := req.Hash()
	if err != nil {
		return domain.PaymentResponse{}, err
	}

	telemetry.PaymentsReceived.Inc()

	if resp, ok := s.replayFromCache(ctx, req.IdempotencyKey, requestHash); ok {
		return resp, nil
	}

	ctx, span := s.tracer.Start(ctx, "payments.db.transaction")
	resp, created, err := s.runTransaction(ctx, req, requestHash, traceparent)
	span.End()
	if err != nil {
		return domain.PaymentResponse{}, err
	}

	if created {
		telemetry.PaymentsProcessed.Inc()
		s.log.InfoContext(ctx, "payment accepted",
			"payment_id", resp.PaymentID,
			"status", resp.Status,
			"mode", s.mode,
			"source", req.SourceAccountID,
			"destination", req.DestinationAccountID,
			"amount_cents", req.AmountCents,
		)
	}
	s.cacheResponse(ctx, req.IdempotencyKey, requestHash, resp)
	return resp, nil
}

func (s *PaymentService) runTransaction(ctx context.Context, req domain.CreatePaymentRequest, requestHash, traceparent string) (domain.PaymentResponse, bool, error) {
	var resp domain.PaymentResponse
	created := false

	err := postgres.WithTx(ctx, s.store.Pool(), func(tx pgx.Tx) error {
		replay, err := s.resolveIdempotency(ctx, tx, req.IdempotencyKey, requestHash)
		if err != nil {
			return err
		}
		if replay != nil {
			resp = *replay
			return nil
		}

		strategy := s.strategies[s.mode]
		resp, err = strategy.execute(ctx, tx, req, requestHash, traceparent)
		if err != nil {
			return err
		}

		responseJSON, err := json.Marshal(resp)
		if err != nil {
			return err
		}
		if err := s.store.InsertIdempotencyRecord(ctx, tx, req.IdempotencyKey, requestHash, string(responseJSON)); err != nil {
			return err
		}
		created = true
		return nil
	})

	if err == nil {
		return resp, created, nil
	}

	var domainErr *domain.Error
	if errors.As(err, &domainErr) {
		return domain.PaymentResponse{}, false, domainErr
	}

	if postgres.IsUniqueViolation(err) {
		// A concurrent writer won the key. Re-read outside the aborted
		// transaction: a readable matching row is a replay, anything
		// else asks the client to retry.
		replay, rerr := s.resolveIdempotencyQuerier(ctx, s.store.Pool(), req.IdempotencyKey, requestHash)
		if rerr != nil {
			if errors.As(rerr, &domainErr) {
				return domain.PaymentResponse{}, false, domain.ErrIdempotencyUnavailable(domain.MsgIdempotencyRace)
			}
			return domain.PaymentResponse{}, false, domain.ErrDependencyUnavailable()
		}
		if replay != nil {
			return *replay, false, nil
		}
		return domain.PaymentResponse{}, false, domain.ErrIdempotencyUnavailable(domain.MsgIdempotencyRace)
	}

	s.log.ErrorContext(ctx, "payment transaction failed", "err", err, "idempotency_key", req.IdempotencyKey)
	return domain.PaymentResponse{}, false, domain.ErrDependencyUnavailable()
}

// resolveIdempotency applies the key rules: matching stored response →
// replay; differing hash → conflict; row without a response → a writer
// is mid-flight, tell the client to retry.
func (s *PaymentService) resolveIdempotency(ctx context.Context, tx pgx.Tx, key, requestHash string) (*domain.PaymentResponse, error) {
	return s.resolveIdempotencyQuerier(ctx, tx, key, requestHash)
}

func (s *PaymentService) resolveIdempotencyQuerier(ctx context.Context, q postgres.Querier, key, requestHash string) (*domain.PaymentResponse, error) {
	rec, err := s.store.GetIdempotencyRecord(ctx, q, key)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, nil
	}
	if rec.RequestHash != requestHash {
		return nil, domain.ErrIdempotencyConflict()
	}
	if rec.ResponseJSON == "" {
		return nil, domain.ErrIdempotencyUnavailable(domain.MsgIdempotencyInProgress)
	}

	var resp domain.PaymentResponse
	if err := json.Unmarshal([]byte(rec.ResponseJSON), &resp); err != nil {
		return nil, domain.ErrIdempotencyUnavailable(domain.MsgIdempotencyInProgress)
	}
	telemetry.IdempotencyReplay.Inc()
	return &resp, nil
}

func (s *PaymentService) replayFromCache(ctx context.Context, key, requestHash string) (domain.PaymentResponse, bool) {
	if s.cache == nil {
		return domain.PaymentResponse{}, false
	}
	entry, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		s.log.WarnContext(ctx, "idempotency cache unavailable, falling back to database",
			"err", err, "idempotency_key", key)
		return domain.PaymentResponse{}, false
	}
	if !ok || entry.RequestHash != requestHash {
		// A hash mismatch still goes through the database so the
		// conflict is decided by the authoritative row.
		return domain.PaymentResponse{}, false
	}
	telemetry.IdempotencyReplay.Inc()
	s.log.InfoContext(ctx, "idempotent replay from cache",
		"payment_id", entry.Response.PaymentID, "idempotency_key", key)
	return entry.Response, true
}

func (s *PaymentService) cacheResponse(ctx context.Context, key, requestHash string, resp domain.PaymentResponse) {
	if s.cache == nil {
		return
	}
	entry := redisadapter.Entry{RequestHash: requestHash, Response: resp}
	if err := s.cache.Set(ctx, key, entry, cacheTTL); err != nil {
		s.log.WarnContext(ctx, "failed to cache idempotency response", "err", err)
	}
}
