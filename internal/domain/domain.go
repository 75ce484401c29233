package domain

import (
	"fmt"
	"time"
)

// ConsistencyMode selects how a payment moves funds: fully inside the
// intake transaction, via a reservation that a worker finalizes, or
// entirely asynchronously.
type ConsistencyMode string

const (
	ModeStrong   ConsistencyMode = "strong"
	ModeHybrid   ConsistencyMode = "hybrid"
	ModeEventual ConsistencyMode = "eventual"
)

func ParseConsistencyMode(s string) (ConsistencyMode, error) {
	switch ConsistencyMode(s) {
	case ModeStrong, ModeHybrid, ModeEventual:
		return ConsistencyMode(s), nil
	}
	return "", fmt.Errorf("invalid consistency mode: %q", s)
}

type PaymentStatus string

const (
	StatusReceived  PaymentStatus = "received"
	StatusReserved  PaymentStatus = "reserved"
	StatusCompleted PaymentStatus = "completed"
	StatusRejected  PaymentStatus = "rejected"
)

// IsTerminal reports whether the status is permanent. Terminal payments
// are never advanced again; a replayed outbox event short-circuits.
func (s PaymentStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusRejected
}

type PaymentMethod string

const (
	MethodPix PaymentMethod = "pix"
	MethodTed PaymentMethod = "ted"
)

type OutboxStatus string

const (
	OutboxPending    OutboxStatus = "pending"
	OutboxProcessing OutboxStatus = "processing"
	OutboxProcessed  OutboxStatus = "processed"
	OutboxDead       OutboxStatus = "dead"
)

type OutboxEventType string

const (
	EventPaymentReserved  OutboxEventType = "PAYMENT_RESERVED"
	EventPaymentRequested OutboxEventType = "PAYMENT_REQUESTED"
)

type LedgerDirection string

const (
	Debit  LedgerDirection = "DEBIT"
	Credit LedgerDirection = "CREDIT"
)

// MaxOutboxAttempts is the retry budget for a transiently failing
// outbox event; the seventh failed attempt dead-letters it.
const MaxOutboxAttempts = 7

type Account struct {
	ID             string
	AvailableCents int64
	ReservedCents  int64
	Version        int32
	CreatedAt      time.Time
}

type Payment struct {
	ID                   string
	IdempotencyKey       string
	RequestHash          string
	SourceAccountID      string
	DestinationAccountID string
	AmountCents          int64
	Method               PaymentMethod
	Status               PaymentStatus
	CreatedAt            time.Time
}

type IdempotencyRecord struct {
	Key          string
	RequestHash  string
	ResponseJSON string
	CreatedAt    time.Time
}

type OutboxEvent struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     OutboxEventType
	PayloadJSON   string
	Status        OutboxStatus
	Attempts      int32
	NextRetryAt   *time.Time
	CreatedAt     time.Time
}

type LedgerEntry struct {
	ID          string
	PaymentID   string
	AccountID   string
	Direction   LedgerDirection
	AmountCents int64
	CreatedAt   time.Time
}

// PaymentResponse is the wire response for an accepted payment and the
// payload stored against the idempotency key for replays.
type PaymentResponse struct {
	PaymentID string        `json:"payment_id"`
	Status    PaymentStatus `json:"status"`
}
