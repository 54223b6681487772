// Package facilitator defines the wire contract for talking to an x402
// settlement facilitator.
//
// The facilitator is an external service that confirms whether a blockchain
// transaction settled with given parameters. It is trusted for correctness
// but not for availability: its answers about a settlement are authoritative,
// while its unavailability must surface as an error, never as a positive
// verification.
package facilitator

import (
	x402 "github.com/Scottcjn/openclaw-x402"
)

// VerifyRequest is the request payload sent to POST /verify.
type VerifyRequest struct {
	// X402Version is the protocol version.
	X402Version int `json:"x402Version"`

	// PaymentProof is the client-supplied settlement evidence, including the
	// opaque payload forwarded verbatim.
	PaymentProof x402.PaymentProof `json:"paymentProof"`

	// PaymentRequirement is the challenge the proof claims to satisfy.
	PaymentRequirement x402.PaymentRequirement `json:"paymentRequirement"`
}

// Verification status values returned by the facilitator.
const (
	// StatusSettled means the transaction exists and is finalized.
	StatusSettled = "settled"

	// StatusPending means the transaction exists but is not yet finalized.
	StatusPending = "pending"

	// StatusNotFound means no matching transaction exists.
	StatusNotFound = "not_found"
)

// VerifyResponse is the facilitator's answer from POST /verify.
type VerifyResponse struct {
	// Status is one of the Status* constants.
	Status string `json:"status"`

	// Amount is the settled amount in atomic units. Settled only.
	Amount string `json:"amount,omitempty"`

	// PayTo is the observed recipient address. Settled only.
	PayTo string `json:"payTo,omitempty"`

	// Asset is the observed token contract. Settled only.
	Asset string `json:"asset,omitempty"`

	// Network is the observed settlement chain (CAIP-2). Settled only.
	Network string `json:"network,omitempty"`

	// Transaction echoes the verified transaction reference.
	Transaction string `json:"transaction,omitempty"`

	// Payer is the address that made the payment, when known.
	Payer string `json:"payer,omitempty"`

	// InvalidReason provides a short error code for rejected proofs.
	InvalidReason string `json:"invalidReason,omitempty"`
}

// Outcome converts a wire response into the internal verification outcome.
// An unrecognized status maps onto an empty-status outcome, which callers
// treat as a facilitator fault.
func (r *VerifyResponse) Outcome() *x402.VerificationOutcome {
	outcome := &x402.VerificationOutcome{
		Amount:  r.Amount,
		PayTo:   r.PayTo,
		Asset:   r.Asset,
		Network: r.Network,
		Payer:   r.Payer,
	}
	switch r.Status {
	case StatusSettled:
		outcome.Status = x402.OutcomeSettled
	case StatusPending:
		outcome.Status = x402.OutcomePending
	case StatusNotFound:
		outcome.Status = x402.OutcomeNotFound
	}
	return outcome
}
