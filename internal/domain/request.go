package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"
)

// CreatePaymentRequest is the validated intake request. Field names are
// the wire contract; the request hash is computed over the canonical
// JSON form so that semantically identical bodies hash identically.
type CreatePaymentRequest struct {
	IdempotencyKey       string        `json:"idempotency_key"`
	SourceAccountID      string        `json:"source_account_id"`
	DestinationAccountID string        `json:"destination_account_id"`
	AmountCents          int64         `json:"amount_cents"`
	Method               PaymentMethod `json:"method"`
}

const maxAmountCents = 50_000_000

func (r CreatePaymentRequest) Validate() error {
	if n := len(r.IdempotencyKey); n < 8 || n > 128 {
		return ErrInvalidPayment("idempotency_key must be 8..128 characters")
	}
	if n := len(r.SourceAccountID); n < 3 || n > 64 {
		return ErrInvalidPayment("source_account_id must be 3..64 characters")
	}
	if n := len(r.DestinationAccountID); n < 3 || n > 64 {
		return ErrInvalidPayment("destination_account_id must be 3..64 characters")
	}
	if r.SourceAccountID == r.DestinationAccountID {
		return ErrInvalidPayment(MsgSourceDestinationMustDiffer)
	}
	if r.AmountCents <= 0 || r.AmountCents > maxAmountCents {
		return ErrInvalidPayment(fmt.Sprintf("amount_cents must be in (0, %d]", maxAmountCents))
	}
	switch r.Method {
	case MethodPix, MethodTed:
	default:
		return ErrInvalidPayment(fmt.Sprintf("unsupported method %q", r.Method))
	}
	return nil
}

// Hash returns the stable SHA-256 of the request's RFC 8785 canonical
// JSON: sorted keys, no insignificant whitespace.
func (r CreatePaymentRequest) Hash() (string, error) {
	raw, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}
	canon, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("canonicalize request: %w", err)
	}
	sum := sha256.Sum256(canon)
	return hex.EncodeToString(sum[:]), nil
}
