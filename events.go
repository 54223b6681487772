package x402

import (
	"time"

	"github.com/google/uuid"
)

// RedemptionEvent describes one consumed payment proof. It is emitted after
// the replay store grants a redemption, right before the protected handler
// runs, and is the audit-trail record for billing reconciliation.
type RedemptionEvent struct {
	// ID uniquely identifies this redemption record.
	ID uuid.UUID

	// Transaction is the settlement transaction reference that was consumed.
	Transaction string

	// Resource is the resource key the payment was spent on.
	Resource string

	// Payer is the address that made the payment, when the facilitator
	// reported it.
	Payer string

	// Amount is the settled amount in atomic units.
	Amount string

	// Asset is the token contract the payment used.
	Asset string

	// Network is the settlement chain in CAIP-2 format.
	Network string

	// RedeemedAt is when the proof was consumed.
	RedeemedAt time.Time
}

// RedemptionCallback is invoked synchronously for every granted redemption.
// Callbacks should be fast to avoid blocking the request; hand off to a
// goroutine for anything slow like database writes.
type RedemptionCallback func(RedemptionEvent)
