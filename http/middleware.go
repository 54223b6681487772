package http

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	x402 "github.com/Scottcjn/openclaw-x402"
	"github.com/Scottcjn/openclaw-x402/http/internal/helpers"
	"github.com/Scottcjn/openclaw-x402/store"
	"github.com/Scottcjn/openclaw-x402/validation"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

// RedemptionContextKey is the context key under which a granted redemption
// is stored for the protected handler.
const RedemptionContextKey = contextKey("x402_redemption")

// defaultMaxRetries bounds facilitator retries for the built-in client.
const defaultMaxRetries = 2

// Option customizes a Paywall.
type Option func(*Paywall)

// WithStore substitutes the replay guard. Use the redisstore package when the
// paywall runs behind multiple server instances.
func WithStore(s x402.ReplayStore) Option {
	return func(p *Paywall) { p.engine.Store = s }
}

// WithVerifier substitutes the facilitator client, e.g. with a fake in tests.
func WithVerifier(v x402.Verifier) Option {
	return func(p *Paywall) { p.engine.Verifier = v }
}

// WithLogger sets the structured logger for audit output.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Paywall) {
		p.logger = logger
		p.engine.Logger = logger
	}
}

// WithRedemptionCallback registers a callback invoked for every granted
// redemption, e.g. to persist an audit trail.
func WithRedemptionCallback(cb x402.RedemptionCallback) Option {
	return func(p *Paywall) { p.engine.OnRedemption = cb }
}

// Paywall gates HTTP handlers behind x402 payment verification. Build one
// per service and wrap each priced endpoint with Protect.
type Paywall struct {
	cfg    *x402.Config
	engine *x402.Engine
	logger *slog.Logger
}

// NewPaywall creates a paywall from the given configuration. By default it
// verifies against cfg.FacilitatorURL with bounded retries and deduplicates
// redemptions in process memory.
func NewPaywall(cfg *x402.Config, opts ...Option) (*Paywall, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := validation.ValidateAddress(cfg.Treasury, cfg.Network); err != nil {
		return nil, fmt.Errorf("%w: treasury: %v", x402.ErrInvalidConfig, err)
	}
	if err := validation.ValidateAddress(cfg.Asset, cfg.Network); err != nil {
		return nil, fmt.Errorf("%w: asset: %v", x402.ErrInvalidConfig, err)
	}

	issuer, err := x402.NewIssuer(cfg)
	if err != nil {
		return nil, err
	}

	verifier := &FacilitatorClient{
		BaseURL:    cfg.FacilitatorURL,
		Client:     &http.Client{Timeout: cfg.Timeouts.RequestTimeout},
		Timeouts:   cfg.Timeouts,
		MaxRetries: defaultMaxRetries,
	}

	p := &Paywall{
		cfg:    cfg,
		engine: x402.NewEngine(issuer, verifier, store.NewMemoryStore(cfg.ReplayRetention)),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Decide runs the full verification flow for one request against a priced
// resource and returns the engine's verdict. Exposed so alternative HTTP
// frameworks (see the gin subpackage) can adapt the paywall without
// reimplementing any policy.
func (p *Paywall) Decide(r *http.Request, price, description string) x402.Decision {
	// Free mode skips challenge issuance entirely.
	if x402.IsFree(price) {
		return x402.Decision{Kind: x402.DecisionAllow}
	}

	resource := r.URL.Path
	// A price that cannot be parsed is a server misconfiguration; issuing an
	// unsatisfiable challenge would strand every client on this endpoint.
	if err := validation.ValidateAmount(price); err != nil {
		p.logger.Error("invalid price for protected resource", "resource", resource, "error", err)
		return x402.Decision{Kind: x402.DecisionUnavailable}
	}
	requirement, err := p.engine.Issuer.Issue(resource, price, description)
	if err != nil {
		p.logger.Error("failed to issue payment challenge", "resource", resource, "error", err)
		return x402.Decision{Kind: x402.DecisionUnavailable}
	}
	// The nonce is bound to the path; the advertised resource is the full URL.
	requirement.Resource = helpers.BuildResourceURL(r)

	return p.engine.Evaluate(r.Context(), resource, requirement, r.Header.Get(x402.PaymentHeader))
}

// Protect wraps a handler with payment gating at the given price (atomic
// units; "0" disables gating for this endpoint). The protected handler runs
// strictly after the proof has been redeemed; a handler failure or client
// disconnect afterwards does not refund the redemption.
func (p *Paywall) Protect(price, description string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			decision := p.Decide(r, price, description)

			switch decision.Kind {
			case x402.DecisionAllow:
				if decision.Event != nil {
					ctx := context.WithValue(r.Context(), RedemptionContextKey, decision.Event)
					r = r.WithContext(ctx)
				}
				next.ServeHTTP(w, r)

			case x402.DecisionChallenge:
				if err := helpers.SendPaymentRequired(w, decision.Requirement); err != nil {
					p.logger.Error("failed to send payment required response", "error", err)
				}

			case x402.DecisionMalformed:
				if err := helpers.SendError(w, http.StatusBadRequest, "Invalid payment header"); err != nil {
					p.logger.Error("failed to send error response", "error", err)
				}

			default:
				if err := helpers.SendError(w, http.StatusServiceUnavailable, "Payment verification unavailable"); err != nil {
					p.logger.Error("failed to send error response", "error", err)
				}
			}
		})
	}
}

// GetRedemptionFromContext extracts the redemption granted for this request.
// Returns nil for free-mode requests and unprotected handlers.
func GetRedemptionFromContext(ctx context.Context) *x402.RedemptionEvent {
	value := ctx.Value(RedemptionContextKey)
	if value == nil {
		return nil
	}
	event, ok := value.(*x402.RedemptionEvent)
	if !ok {
		return nil
	}
	return event
}
