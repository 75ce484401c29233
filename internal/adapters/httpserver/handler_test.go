package httpserver

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerlab/payments/internal/domain"
)

func testHandler() *Handler {
	return NewHandler(nil, nil, slog.New(slog.NewTextHandler(&strings.Builder{}, nil)))
}

func TestMapError(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   domain.ErrorCode
	}{
		{"invalid payment", domain.ErrInvalidPayment("bad"), http.StatusUnprocessableEntity, domain.CodeInvalidPayment},
		{"insufficient funds", domain.ErrInsufficientFunds(), http.StatusUnprocessableEntity, domain.CodeInsufficientFunds},
		{"idempotency conflict", domain.ErrIdempotencyConflict(), http.StatusConflict, domain.CodeIdempotencyConflict},
		{"idempotency unavailable", domain.ErrIdempotencyUnavailable("busy"), http.StatusServiceUnavailable, domain.CodeIdempotencyUnavailable},
		{"dependency unavailable", domain.ErrDependencyUnavailable(), http.StatusServiceUnavailable, domain.CodeDependencyUnavailable},
		{"unknown error", errors.New("boom"), http.StatusServiceUnavailable, domain.CodeDependencyUnavailable},
	}

	h := testHandler()
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/v1/payments", nil)

			h.mapError(rec, req, tc.err)

			assert.Equal(t, tc.wantStatus, rec.Code)

			var body errorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tc.wantCode, body.ErrorCode)
			assert.NotEmpty(t, body.Message)
		})
	}
}

func TestCreatePaymentRejectsMalformedJSON(t *testing.T) {
	h := testHandler()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/payments", strings.NewReader("{not json"))

	h.createPayment(rec, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var body errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, domain.CodeInvalidPayment, body.ErrorCode)
}

func TestHealth(t *testing.T) {
	h := testHandler()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)

	h.health(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}
