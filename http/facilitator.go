// Package http provides the HTTP-facing pieces of the x402 paywall: the
// facilitator client and the payment-gating middleware.
package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	x402 "github.com/Scottcjn/openclaw-x402"
	"github.com/Scottcjn/openclaw-x402/facilitator"
	"github.com/Scottcjn/openclaw-x402/retry"
)

// AuthorizationProvider is a function that returns an Authorization header value.
// This is useful for dynamic tokens (e.g., JWT refresh) where the value may change.
//
// Thread-safety: the provider is called on each HTTP request, including retry
// attempts. If it accesses shared state or performs I/O, it must be safe for
// concurrent use; the FacilitatorClient does not serialize calls to it.
type AuthorizationProvider func(*http.Request) string

// FacilitatorClient talks to an x402 settlement facilitator over HTTP and
// normalizes its answers into VerificationOutcome values. It holds no mutable
// state; verification is a pure read-through to the external service.
type FacilitatorClient struct {
	// BaseURL is the facilitator service URL.
	BaseURL string

	// Client is the HTTP client to use for requests. If nil, http.DefaultClient is used.
	Client *http.Client

	// Timeouts contains timeout configuration for verification calls.
	Timeouts x402.TimeoutConfig

	// MaxRetries is the maximum number of retry attempts for transient
	// failures (default: 0). Only transport errors and 5xx responses are
	// retried.
	MaxRetries int

	// RetryDelay is the initial delay between retry attempts (default: 100ms).
	// Exponential backoff is applied with a multiplier of 2.0.
	RetryDelay time.Duration

	// Authorization is a static Authorization header value (e.g., "Bearer token").
	// If AuthorizationProvider is also set, the provider takes precedence.
	Authorization string

	// AuthorizationProvider returns an Authorization header value per request.
	// If set, this takes precedence over the static Authorization field.
	AuthorizationProvider AuthorizationProvider
}

// Verify that FacilitatorClient implements the engine's Verifier contract.
var _ x402.Verifier = (*FacilitatorClient)(nil)

// httpClient returns the HTTP client to use, defaulting to http.DefaultClient.
func (c *FacilitatorClient) httpClient() *http.Client {
	if c.Client != nil {
		return c.Client
	}
	return http.DefaultClient
}

// setAuthorizationHeader sets the Authorization header on the request if
// configured. Called per attempt.
func (c *FacilitatorClient) setAuthorizationHeader(req *http.Request) {
	var authValue string
	if c.AuthorizationProvider != nil {
		authValue = c.AuthorizationProvider(req)
	} else if c.Authorization != "" {
		authValue = c.Authorization
	}
	if authValue != "" {
		req.Header.Set("Authorization", authValue)
	}
}

// retryConfig returns the retry configuration based on client settings.
func (c *FacilitatorClient) retryConfig() retry.Config {
	retryDelay := c.RetryDelay
	if retryDelay <= 0 {
		retryDelay = 100 * time.Millisecond
	}

	maxRetries := c.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}

	return retry.Config{
		MaxAttempts:  maxRetries + 1, // +1 because MaxRetries is retry count, not attempt count
		InitialDelay: retryDelay,
		MaxDelay:     retryDelay * 4,
		Multiplier:   2.0,
	}
}

// Verify asks the facilitator whether the proof's transaction settled with
// the required parameters. Transient failures are retried with backoff; an
// exhausted budget surfaces as an error wrapping ErrFacilitatorUnavailable,
// never as a NotFound outcome, so callers can tell "retry later" apart from
// "pay again".
func (c *FacilitatorClient) Verify(ctx context.Context, proof x402.PaymentProof, requirement x402.PaymentRequirement) (*x402.VerificationOutcome, error) {
	wireReq := facilitator.VerifyRequest{
		X402Version:        x402.X402Version,
		PaymentProof:       proof,
		PaymentRequirement: requirement,
	}

	data, err := json.Marshal(wireReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal verify request: %w", err)
	}

	return retry.WithRetry(ctx, c.retryConfig(), isFacilitatorUnavailableError, func() (*x402.VerificationOutcome, error) {
		// Use the provided context, applying the per-attempt timeout only if
		// no deadline was already set.
		reqCtx := ctx
		if _, hasDeadline := ctx.Deadline(); !hasDeadline && c.Timeouts.VerifyTimeout > 0 {
			var cancel context.CancelFunc
			reqCtx, cancel = context.WithTimeout(ctx, c.Timeouts.VerifyTimeout)
			defer cancel()
		}

		httpReq, err := http.NewRequestWithContext(reqCtx, "POST", c.BaseURL+"/verify", bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		httpReq.Header.Set("Content-Type", "application/json")
		c.setAuthorizationHeader(httpReq)

		httpResp, err := c.httpClient().Do(httpReq)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", x402.ErrFacilitatorUnavailable, err)
		}
		defer httpResp.Body.Close()

		if httpResp.StatusCode >= 500 {
			return nil, parseErrorResponse(httpResp, x402.ErrFacilitatorUnavailable)
		}
		if httpResp.StatusCode != http.StatusOK {
			return nil, parseErrorResponse(httpResp, x402.ErrVerificationFailed)
		}

		var verifyResp facilitator.VerifyResponse
		if err := json.NewDecoder(httpResp.Body).Decode(&verifyResp); err != nil {
			return nil, fmt.Errorf("%w: decoding verify response: %v", x402.ErrFacilitatorUnavailable, err)
		}

		outcome := verifyResp.Outcome()
		if outcome.Status == "" {
			return nil, fmt.Errorf("%w: unrecognized verification status %q", x402.ErrFacilitatorUnavailable, verifyResp.Status)
		}
		return outcome, nil
	})
}

// parseErrorResponse extracts error details from a non-200 HTTP response.
func parseErrorResponse(resp *http.Response, baseErr error) error {
	bodyBytes, _ := io.ReadAll(resp.Body)

	var errBody map[string]interface{}
	if err := json.Unmarshal(bodyBytes, &errBody); err == nil {
		if reason, ok := errBody["invalidReason"].(string); ok && reason != "" {
			return fmt.Errorf("%w: status %d, reason: %s", baseErr, resp.StatusCode, reason)
		}
		if reason, ok := errBody["error"].(string); ok && reason != "" {
			return fmt.Errorf("%w: status %d, reason: %s", baseErr, resp.StatusCode, reason)
		}
	}

	// If we couldn't parse as JSON, include raw body (truncated)
	if len(bodyBytes) > 0 && len(bodyBytes) < 500 {
		return fmt.Errorf("%w: status %d, body: %s", baseErr, resp.StatusCode, string(bodyBytes))
	}

	return fmt.Errorf("%w: status %d", baseErr, resp.StatusCode)
}

// isFacilitatorUnavailableError checks if an error is a facilitator unavailable error.
// It uses errors.Is to properly detect wrapped errors.
func isFacilitatorUnavailableError(err error) bool {
	return errors.Is(err, x402.ErrFacilitatorUnavailable)
}
