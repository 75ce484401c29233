package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validRequest() CreatePaymentRequest {
	return CreatePaymentRequest{
		IdempotencyKey:       "key-0000001",
		SourceAccountID:      "acc-001",
		DestinationAccountID: "acc-002",
		AmountCents:          300,
		Method:               MethodPix,
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*CreatePaymentRequest)
		wantErr bool
	}{
		{"valid", func(r *CreatePaymentRequest) {}, false},
		{"valid ted", func(r *CreatePaymentRequest) { r.Method = MethodTed }, false},
		{"max amount", func(r *CreatePaymentRequest) { r.AmountCents = 50_000_000 }, false},
		{"short key", func(r *CreatePaymentRequest) { r.IdempotencyKey = "short" }, true},
		{"long key", func(r *CreatePaymentRequest) { r.IdempotencyKey = strings.Repeat("k", 129) }, true},
		{"short source", func(r *CreatePaymentRequest) { r.SourceAccountID = "ab" }, true},
		{"long destination", func(r *CreatePaymentRequest) { r.DestinationAccountID = strings.Repeat("a", 65) }, true},
		{"same accounts", func(r *CreatePaymentRequest) { r.DestinationAccountID = r.SourceAccountID }, true},
		{"zero amount", func(r *CreatePaymentRequest) { r.AmountCents = 0 }, true},
		{"negative amount", func(r *CreatePaymentRequest) { r.AmountCents = -10 }, true},
		{"amount above cap", func(r *CreatePaymentRequest) { r.AmountCents = 50_000_001 }, true},
		{"unknown method", func(r *CreatePaymentRequest) { r.Method = "doc" }, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := validRequest()
			tc.mutate(&req)
			err := req.Validate()
			if !tc.wantErr {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			var domainErr *Error
			require.ErrorAs(t, err, &domainErr)
			assert.Equal(t, CodeInvalidPayment, domainErr.Code)
			assert.Equal(t, 422, domainErr.HTTPStatus)
		})
	}
}

func TestHashIsStable(t *testing.T) {
	a, err := validRequest().Hash()
	require.NoError(t, err)
	b, err := validRequest().Hash()
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
}

func TestHashChangesWithBody(t *testing.T) {
	base, err := validRequest().Hash()
	require.NoError(t, err)

	changed := validRequest()
	changed.AmountCents = 301
	other, err := changed.Hash()
	require.NoError(t, err)

	assert.NotEqual(t, base, other)
}

func TestEventPayloadCanonicalForm(t *testing.T) {
	payload := NewEventPayload("pay-1", validRequest(), "")
	canon, err := payload.MarshalCanonical()
	require.NoError(t, err)

	// Sorted keys, no whitespace, explicit null traceparent.
	assert.Equal(t,
		`{"amount_cents":300,"destination_account_id":"acc-002","payment_id":"pay-1","source_account_id":"acc-001","traceparent":null}`,
		canon,
	)
}

func TestEventPayloadCarriesTraceparent(t *testing.T) {
	tp := "00-0af7651916cd43dd8448eb211c80319c-b7ad6b7169203331-01"
	payload := NewEventPayload("pay-1", validRequest(), tp)
	canon, err := payload.MarshalCanonical()
	require.NoError(t, err)

	parsed, err := ParseEventPayload(canon)
	require.NoError(t, err)
	require.NotNil(t, parsed.Traceparent)
	assert.Equal(t, tp, *parsed.Traceparent)
}

func TestParseEventPayloadRejectsBadInput(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"not json", "{"},
		{"missing payment id", `{"source_account_id":"a-1","destination_account_id":"a-2","amount_cents":10,"traceparent":null}`},
		{"missing source", `{"payment_id":"pay-1","destination_account_id":"a-2","amount_cents":10,"traceparent":null}`},
		{"missing destination", `{"payment_id":"pay-1","source_account_id":"a-1","amount_cents":10,"traceparent":null}`},
		{"zero amount", `{"payment_id":"pay-1","source_account_id":"a-1","destination_account_id":"a-2","amount_cents":0,"traceparent":null}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseEventPayload(tc.raw)
			assert.Error(t, err)
		})
	}
}

func TestPaymentStatusTerminal(t *testing.T) {
	assert.True(t, StatusCompleted.IsTerminal())
	assert.True(t, StatusRejected.IsTerminal())
	assert.False(t, StatusReceived.IsTerminal())
	assert.False(t, StatusReserved.IsTerminal())
}

func TestParseConsistencyMode(t *testing.T) {
	for _, valid := range []string{"strong", "hybrid", "eventual"} {
		mode, err := ParseConsistencyMode(valid)
		require.NoError(t, err)
		assert.Equal(t, ConsistencyMode(valid), mode)
	}

	_, err := ParseConsistencyMode("chaotic")
	assert.Error(t, err)
}

func TestIDPrefixes(t *testing.T) {
	assert.True(t, strings.HasPrefix(NewPaymentID(), "pay-"))
	assert.True(t, strings.HasPrefix(NewEventID(), "evt-"))
	assert.True(t, strings.HasPrefix(NewLedgerEntryID(), "led-"))
	assert.Len(t, NewPaymentID(), 4+32)
	assert.NotEqual(t, NewPaymentID(), NewPaymentID())
}
