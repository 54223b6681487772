package x402

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Verifier checks a payment proof against the external settlement verifier.
// Implementations must be read-only: verification never mutates local state.
// Facilitator unavailability is reported as an error wrapping
// ErrFacilitatorUnavailable, never as a VerificationOutcome.
type Verifier interface {
	Verify(ctx context.Context, proof PaymentProof, requirement PaymentRequirement) (*VerificationOutcome, error)
}

// ReplayStore enforces at-most-once consumption of payment proofs.
//
// TryRedeem must be linearizable per transaction reference: under concurrent
// calls with the same reference exactly one caller observes granted=true and
// every other caller observes granted=false. A read-then-write implementation
// is a double-spend race, not an implementation of this interface.
type ReplayStore interface {
	// TryRedeem atomically records the transaction reference as consumed.
	// It returns true when this call performed the redemption.
	TryRedeem(ctx context.Context, transaction, resource string) (bool, error)

	// IsRedeemed reports whether a reference was already consumed.
	// Diagnostic only; never use it to gate a redemption.
	IsRedeemed(ctx context.Context, transaction string) (bool, error)
}

// ExtractProof decodes an X-PAYMENT header value into a PaymentProof.
// An empty value returns (nil, nil): no payment offered, which is the normal
// case and not an error. A present but undecodable value returns an error
// wrapping ErrMalformedHeader so callers can answer 400 instead of 402.
func ExtractProof(headerValue string) (*PaymentProof, error) {
	if headerValue == "" {
		return nil, nil
	}

	raw, err := base64.StdEncoding.DecodeString(headerValue)
	if err != nil {
		return nil, NewPaymentError(ErrCodeMalformedPayment, "payment header is not base64", ErrMalformedHeader)
	}

	var proof PaymentProof
	if err := json.Unmarshal(raw, &proof); err != nil {
		return nil, NewPaymentError(ErrCodeMalformedPayment, "payment header is not valid JSON", ErrMalformedHeader)
	}
	if proof.X402Version != X402Version {
		return nil, NewPaymentError(ErrCodeMalformedPayment, "unsupported x402 version", ErrUnsupportedVersion)
	}
	if proof.Transaction == "" {
		return nil, NewPaymentError(ErrCodeMalformedPayment, "payment proof missing transaction reference", ErrMalformedHeader)
	}
	return &proof, nil
}

// Engine orchestrates proof extraction, facilitator verification and replay
// guarding into a single allow/deny decision per request.
//
// All collaborators are injected so tests can substitute fakes; the Engine
// itself holds no mutable state.
type Engine struct {
	// Issuer builds and authenticates payment challenges.
	Issuer *Issuer

	// Verifier is the facilitator client.
	Verifier Verifier

	// Store is the replay guard.
	Store ReplayStore

	// OnRedemption, when set, is invoked for every granted redemption.
	OnRedemption RedemptionCallback

	// Logger receives structured audit logs. Defaults to slog.Default().
	Logger *slog.Logger

	// now is the clock source, overridable in tests.
	now func() time.Time
}

// NewEngine creates a verification engine with the given collaborators.
func NewEngine(issuer *Issuer, verifier Verifier, store ReplayStore) *Engine {
	return &Engine{
		Issuer:   issuer,
		Verifier: verifier,
		Store:    store,
		Logger:   slog.Default(),
		now:      time.Now,
	}
}

func (e *Engine) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

func (e *Engine) clock() time.Time {
	if e.now != nil {
		return e.now()
	}
	return time.Now()
}

// Evaluate decides whether one request may invoke the protected resource.
//
// The externally visible verdicts are deliberately coarse: every billing
// denial (no payment, stale challenge, underpayment, wrong destination,
// replayed proof) answers with a payment challenge, so the response never
// leaks whether a given transaction reference was redeemed elsewhere. The
// fine-grained reason lands in the audit log instead.
func (e *Engine) Evaluate(ctx context.Context, resource string, requirement *PaymentRequirement, headerValue string) Decision {
	log := e.logger()

	// Free mode bypasses everything: no extraction, no facilitator call,
	// no store write.
	if IsFree(requirement.Price) {
		return Decision{Kind: DecisionAllow}
	}

	proof, err := ExtractProof(headerValue)
	if err != nil {
		log.Warn("malformed payment header", "resource", resource, "error", err)
		return Decision{Kind: DecisionMalformed, Reason: ReasonMalformed}
	}
	if proof == nil {
		log.Info("no payment offered", "resource", resource)
		return Decision{Kind: DecisionChallenge, Requirement: requirement, Reason: ReasonNoPayment}
	}

	// An expired or foreign nonce must never become redeemable again, so the
	// client gets a freshly issued challenge rather than the stale one back.
	if _, err := e.Issuer.CheckNonce(proof.Nonce, resource); err != nil {
		log.Warn("stale or unknown challenge nonce", "resource", resource, "transaction", proof.Transaction)
		fresh, issueErr := e.Issuer.Issue(resource, requirement.Price, requirement.Description)
		if issueErr != nil {
			log.Error("failed to issue fresh challenge", "error", issueErr)
			return Decision{Kind: DecisionUnavailable, Reason: ReasonStaleChallenge}
		}
		return Decision{Kind: DecisionChallenge, Requirement: fresh, Reason: ReasonStaleChallenge}
	}

	outcome, err := e.Verifier.Verify(ctx, *proof, *requirement)
	if err != nil {
		// A rejection is the facilitator answering, not failing: the proof is
		// no good and the client must pay again. Only unavailability is 503.
		if errors.Is(err, ErrVerificationFailed) {
			log.Warn("facilitator rejected payment proof", "resource", resource, "transaction", proof.Transaction, "error", err)
			return Decision{Kind: DecisionChallenge, Requirement: requirement, Reason: ReasonNotSettled}
		}
		log.Error("facilitator unavailable", "resource", resource, "transaction", proof.Transaction, "error", err)
		return Decision{Kind: DecisionUnavailable, Reason: ReasonFacilitatorDown}
	}

	switch outcome.Status {
	case OutcomeSettled:
		// Fall through to value checks.
	case OutcomePending, OutcomeNotFound:
		// The client may just need to wait for settlement and retry; the
		// still-unexpired challenge can be reused as-is.
		log.Info("payment not settled", "resource", resource, "transaction", proof.Transaction, "status", outcome.Status)
		return Decision{Kind: DecisionChallenge, Requirement: requirement, Reason: ReasonNotSettled}
	default:
		log.Error("unrecognized facilitator outcome", "status", outcome.Status)
		return Decision{Kind: DecisionUnavailable, Reason: ReasonFacilitatorDown}
	}

	if reason := matchSettlement(outcome, requirement); reason != "" {
		log.Warn("settled payment does not satisfy requirement",
			"resource", resource, "transaction", proof.Transaction, "reason", reason)
		return Decision{Kind: DecisionChallenge, Requirement: requirement, Reason: reason}
	}

	granted, err := e.Store.TryRedeem(ctx, proof.Transaction, resource)
	if err != nil {
		// Fail closed: an unreachable store must not hand out free access.
		log.Error("replay store unavailable", "resource", resource, "transaction", proof.Transaction, "error", err)
		return Decision{Kind: DecisionUnavailable, Reason: ReasonFacilitatorDown}
	}
	if !granted {
		// A spent proof is treated exactly like no proof at all.
		log.Warn("replayed payment proof", "resource", resource, "transaction", proof.Transaction)
		return Decision{Kind: DecisionChallenge, Requirement: requirement, Reason: ReasonAlreadyRedeemed}
	}

	event := RedemptionEvent{
		ID:          uuid.New(),
		Transaction: proof.Transaction,
		Resource:    resource,
		Payer:       outcome.Payer,
		Amount:      outcome.Amount,
		Asset:       outcome.Asset,
		Network:     outcome.Network,
		RedeemedAt:  e.clock(),
	}
	log.Info("payment redeemed",
		"resource", resource, "transaction", proof.Transaction, "payer", outcome.Payer, "amount", outcome.Amount)
	if e.OnRedemption != nil {
		e.OnRedemption(event)
	}
	return Decision{Kind: DecisionAllow, Event: &event}
}

// matchSettlement checks a settled outcome against the requirement and
// returns a denial reason code, or "" when the settlement satisfies it.
func matchSettlement(outcome *VerificationOutcome, requirement *PaymentRequirement) string {
	price, err := ParseAmount(requirement.Price)
	if err != nil {
		return ReasonUnderpaid
	}
	paid, err := ParseAmount(outcome.Amount)
	if err != nil || paid.Cmp(price) < 0 {
		return ReasonUnderpaid
	}
	if outcome.PayTo != requirement.PayTo {
		return ReasonWrongRecipient
	}
	if outcome.Asset != requirement.Asset {
		return ReasonWrongAsset
	}
	if outcome.Network != requirement.Network {
		return ReasonWrongNetwork
	}
	return ""
}
