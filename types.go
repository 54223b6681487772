// Package x402 implements server-side payment gating for the x402
// "HTTP 402 Payment Required" protocol.
//
// A protected endpoint answers unpaid requests with a machine-readable
// PaymentRequirement. An agent settles the payment on-chain, then resubmits
// the request with an X-PAYMENT header carrying a PaymentProof. The proof is
// checked against an external facilitator service and consumed exactly once
// through a replay store, so a single settled transaction grants a single
// access.
//
// The package is transport-agnostic: the Engine makes the allow/deny decision
// and the http subpackage adapts it to net/http and Gin.
package x402

import (
	"encoding/json"
	"math/big"
	"time"
)

// Protocol version constant.
const X402Version = 1

// PaymentHeader is the request header carrying a payment proof.
const PaymentHeader = "X-PAYMENT"

// PaymentRequirement is the 402 response body sent to unpaid clients.
// It is built fresh for every unpaid request and never stored server-side;
// the nonce is self-authenticating and carries its own expiry.
type PaymentRequirement struct {
	// X402Version is the protocol version.
	X402Version int `json:"x402Version"`

	// Resource is the URL of the protected resource.
	Resource string `json:"resource"`

	// Description is an optional human-readable label. Not security-relevant.
	Description string `json:"description,omitempty"`

	// Price is the required payment amount in atomic units of the asset
	// (e.g., "10000" is $0.01 for a 6-decimal stablecoin). "0" means free.
	Price string `json:"maxAmountRequired"`

	// Asset is the token contract address expected as payment.
	Asset string `json:"asset"`

	// Network is the settlement chain in CAIP-2 format (e.g., "eip155:8453").
	Network string `json:"network"`

	// PayTo is the treasury address that must receive the funds.
	PayTo string `json:"payTo"`

	// FacilitatorURL is the endpoint used to verify settlement.
	FacilitatorURL string `json:"facilitator"`

	// Nonce binds a later proof to this challenge. It embeds its own expiry
	// and an authentication tag, so the server keeps no challenge state.
	Nonce string `json:"nonce"`

	// ExpiresAt is when a proof referencing Nonce stops being acceptable.
	ExpiresAt time.Time `json:"expiresAt"`
}

// PaymentProof is the client-supplied evidence of an on-chain payment,
// decoded from the X-PAYMENT header.
type PaymentProof struct {
	// X402Version is the protocol version.
	X402Version int `json:"x402Version"`

	// Transaction is the settlement transaction reference (e.g., a chain
	// transaction hash). It is globally unique per successful payment and
	// serves as the replay-deduplication key.
	Transaction string `json:"transaction"`

	// Nonce is the challenge nonce this proof claims to satisfy.
	Nonce string `json:"nonce"`

	// Payload is opaque facilitator-specific data, forwarded verbatim.
	Payload json.RawMessage `json:"payload,omitempty"`
}

// OutcomeStatus is the facilitator's answer about a transaction.
type OutcomeStatus string

const (
	// OutcomeSettled means the transaction exists and is finalized.
	OutcomeSettled OutcomeStatus = "settled"

	// OutcomePending means the transaction exists but is not yet finalized.
	OutcomePending OutcomeStatus = "pending"

	// OutcomeNotFound means no matching transaction exists.
	OutcomeNotFound OutcomeStatus = "not_found"
)

// VerificationOutcome is the normalized facilitator answer for a proof.
// Facilitator unavailability is not an outcome; it surfaces as an error
// wrapping ErrFacilitatorUnavailable from Verifier.Verify.
type VerificationOutcome struct {
	// Status reports whether the transaction settled.
	Status OutcomeStatus

	// Amount is the settled amount in atomic units. Settled only.
	Amount string

	// PayTo is the observed recipient address. Settled only.
	PayTo string

	// Asset is the observed token contract. Settled only.
	Asset string

	// Network is the observed settlement chain. Settled only.
	Network string

	// Payer is the address that made the payment, when reported.
	Payer string
}

// DecisionKind enumerates the Engine's possible verdicts.
type DecisionKind int

const (
	// DecisionAllow grants access; the protected handler may run.
	DecisionAllow DecisionKind = iota

	// DecisionChallenge denies access and carries a PaymentRequirement the
	// client can satisfy. Maps to HTTP 402.
	DecisionChallenge

	// DecisionMalformed denies access because the payment header was present
	// but undecodable. A client bug, not a billing event. Maps to HTTP 400.
	DecisionMalformed

	// DecisionUnavailable denies access because the facilitator could not
	// answer. Not the agent's fault; maps to HTTP 503, never 402.
	DecisionUnavailable
)

// Decision is the Engine's verdict for one request.
type Decision struct {
	// Kind is the verdict.
	Kind DecisionKind

	// Requirement is the challenge to return to the client.
	// Set when Kind is DecisionChallenge.
	Requirement *PaymentRequirement

	// Reason is a short machine-readable denial code for logs and audits.
	// The wire response never distinguishes billing denials beyond the Kind.
	Reason string

	// Event describes the consumed redemption. Set when Kind is DecisionAllow
	// and a payment was actually redeemed (nil in free mode).
	Event *RedemptionEvent
}

// Allowed reports whether the decision grants access.
func (d Decision) Allowed() bool { return d.Kind == DecisionAllow }

// Denial reason codes. External responses stay uniform; these exist so
// operators can tell a replay from an underpayment in the logs.
const (
	ReasonNoPayment       = "no_payment"
	ReasonMalformed       = "malformed_payment"
	ReasonStaleChallenge  = "stale_challenge"
	ReasonNotSettled      = "not_settled"
	ReasonUnderpaid       = "underpaid"
	ReasonWrongRecipient  = "wrong_recipient"
	ReasonWrongAsset      = "wrong_asset"
	ReasonWrongNetwork    = "wrong_network"
	ReasonAlreadyRedeemed = "already_redeemed"
	ReasonFacilitatorDown = "facilitator_unavailable"
)

// IsFree reports whether a price string denotes free mode.
// Both "0" and the empty string disable payment gating.
func IsFree(price string) bool {
	return price == "" || price == "0"
}

// ParseAmount parses an atomic-unit amount string into a big.Int.
// Amounts are non-negative base-10 integers; anything else returns
// ErrInvalidAmount.
func ParseAmount(amount string) (*big.Int, error) {
	if amount == "" {
		return nil, ErrInvalidAmount
	}
	value, ok := new(big.Int).SetString(amount, 10)
	if !ok {
		return nil, ErrInvalidAmount
	}
	if value.Sign() < 0 {
		return nil, ErrInvalidAmount
	}
	return value, nil
}
