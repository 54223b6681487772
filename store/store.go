// Package store provides replay-guard implementations: deduplication stores
// that consume a payment proof's transaction reference at most once.
package store

import (
	"time"

	"github.com/google/uuid"
)

// RedemptionRecord is the ledger entry for one consumed payment proof.
// Records are written once, never mutated, and removed only by the retention
// policy once the originating transaction could no longer plausibly be
// replayed.
type RedemptionRecord struct {
	// ID uniquely identifies the record.
	ID uuid.UUID `json:"id"`

	// Transaction is the settlement transaction reference.
	Transaction string `json:"transaction"`

	// Resource is the resource key the payment was spent on.
	Resource string `json:"resource"`

	// RedeemedAt is when the proof was consumed.
	RedeemedAt time.Time `json:"redeemedAt"`
}
