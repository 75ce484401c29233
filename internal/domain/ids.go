package domain

import (
	"encoding/hex"

	"github.com/google/uuid"
)

func newID(prefix string) string {
	u := uuid.New()
	return prefix + hex.EncodeToString(u[:])
}

func NewPaymentID() string     { return newID("pay-") }
func NewEventID() string       { return newID("evt-") }
func NewLedgerEntryID() string { return newID("led-") }
