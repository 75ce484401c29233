package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ledgerlab/payments/internal/adapters/postgres"
	"github.com/ledgerlab/payments/internal/app"
	"github.com/ledgerlab/payments/internal/domain"
	"github.com/ledgerlab/payments/internal/telemetry"
)

type createPaymentRequest struct {
	IdempotencyKey       string `json:"idempotency_key"`
	SourceAccountID      string `json:"source_account_id"`
	DestinationAccountID string `json:"destination_account_id"`
	AmountCents          int64  `json:"amount_cents"`
	Method               string `json:"method"`
}

type errorResponse struct {
	ErrorCode domain.ErrorCode `json:"error_code"`
	Message   string           `json:"message"`
}

type Handler struct {
	svc   *app.PaymentService
	store *postgres.Store
	log   *slog.Logger
}

func NewHandler(svc *app.PaymentService, store *postgres.Store, log *slog.Logger) *Handler {
	return &Handler{svc: svc, store: store, log: log}
}

func (h *Handler) createPayment(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer func() {
		telemetry.RequestLatencyMS.Observe(float64(time.Since(start)) / float64(time.Millisecond))
	}()

	var body createPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, domain.ErrInvalidPayment("cannot parse request body"))
		return
	}

	req := domain.CreatePaymentRequest{
		IdempotencyKey:       body.IdempotencyKey,
		SourceAccountID:      body.SourceAccountID,
		DestinationAccountID: body.DestinationAccountID,
		AmountCents:          body.AmountCents,
		Method:               domain.PaymentMethod(body.Method),
	}

	resp, err := h.svc.CreatePayment(r.Context(), req, r.Header.Get("traceparent"))
	if err != nil {
		h.mapError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.CollectStats(r.Context())
	if err != nil {
		h.mapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) metrics() http.Handler {
	return promhttp.Handler()
}

// mapError translates domain failures to their wire form. Anything that
// is not a domain error at this point slipped past the transaction
// boundary and is treated as a dependency outage.
func (h *Handler) mapError(w http.ResponseWriter, r *http.Request, err error) {
	var domainErr *domain.Error
	if errors.As(err, &domainErr) {
		writeError(w, domainErr)
		return
	}

	h.log.ErrorContext(r.Context(), "unhandled error in HTTP handler",
		"err", err,
		"path", r.URL.Path,
		"method", r.Method,
	)
	writeError(w, domain.ErrDependencyUnavailable())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		return
	}
}

func writeError(w http.ResponseWriter, err *domain.Error) {
	writeJSON(w, err.HTTPStatus, errorResponse{ErrorCode: err.Code, Message: err.Message})
}

// ReadinessCheck is a function that confirms a dependency is reachable
type ReadinessCheck func(ctx context.Context) error

func livenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func readinessHandler(checks []ReadinessCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		for _, check := range checks {
			if err := check(ctx); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{
					"status": "degraded",
					"error":  err.Error(),
				})
				return
			}
		}

		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
