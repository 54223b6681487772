// Package helpers provides internal HTTP utilities for x402 protocol handling.
package helpers

import (
	"encoding/json"
	"fmt"
	"net/http"

	x402 "github.com/Scottcjn/openclaw-x402"
)

// paymentRequiredBody is the 402 response payload. The requirement rides
// under "x402" next to a human-readable error, matching what agent-side
// clients parse.
type paymentRequiredBody struct {
	Error string                   `json:"error"`
	X402  *x402.PaymentRequirement `json:"x402"`
}

// errorBody is the payload for non-402 error responses.
type errorBody struct {
	X402Version int    `json:"x402Version"`
	Error       string `json:"error"`
}

// SendPaymentRequired writes a 402 Payment Required response carrying the
// given requirement. Returns an error if JSON encoding fails.
func SendPaymentRequired(w http.ResponseWriter, requirement *x402.PaymentRequirement) error {
	body := paymentRequiredBody{
		Error: "Payment Required",
		X402:  requirement,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusPaymentRequired)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		return fmt.Errorf("encoding payment required response: %w", err)
	}
	return nil
}

// SendError writes a JSON error response with the given status code.
func SendError(w http.ResponseWriter, status int, message string) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(errorBody{X402Version: x402.X402Version, Error: message}); err != nil {
		return fmt.Errorf("encoding error response: %w", err)
	}
	return nil
}

// BuildResourceURL constructs the full URL for the protected resource from
// the request.
func BuildResourceURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host + r.RequestURI
}
