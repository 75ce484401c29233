package domain

import (
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"
)

// EventPayload is the outbox event body. Traceparent carries the
// caller's W3C trace context verbatim; null when the caller sent none.
type EventPayload struct {
	PaymentID            string  `json:"payment_id"`
	SourceAccountID      string  `json:"source_account_id"`
	DestinationAccountID string  `json:"destination_account_id"`
	AmountCents          int64   `json:"amount_cents"`
	Traceparent          *string `json:"traceparent"`
}

func NewEventPayload(paymentID string, req CreatePaymentRequest, traceparent string) EventPayload {
	p := EventPayload{
		PaymentID:            paymentID,
		SourceAccountID:      req.SourceAccountID,
		DestinationAccountID: req.DestinationAccountID,
		AmountCents:          req.AmountCents,
	}
	if traceparent != "" {
		p.Traceparent = &traceparent
	}
	return p
}

// MarshalCanonical renders the payload as RFC 8785 canonical JSON so
// byte-identical payloads are produced for identical events.
func (p EventPayload) MarshalCanonical() (string, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("marshal event payload: %w", err)
	}
	canon, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("canonicalize event payload: %w", err)
	}
	return string(canon), nil
}

// ParseEventPayload decodes and validates an outbox payload. Any missing
// or malformed field is a permanent failure for the worker: a payload
// written by intake is never partially valid.
func ParseEventPayload(raw string) (EventPayload, error) {
	var p EventPayload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return EventPayload{}, fmt.Errorf("invalid payload json: %w", err)
	}
	switch {
	case p.PaymentID == "":
		return EventPayload{}, fmt.Errorf("invalid payload field: payment_id")
	case p.SourceAccountID == "":
		return EventPayload{}, fmt.Errorf("invalid payload field: source_account_id")
	case p.DestinationAccountID == "":
		return EventPayload{}, fmt.Errorf("invalid payload field: destination_account_id")
	case p.AmountCents <= 0:
		return EventPayload{}, fmt.Errorf("invalid payload field: amount_cents")
	}
	return p, nil
}
