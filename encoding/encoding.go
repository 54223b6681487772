// Package encoding provides utilities for encoding and decoding x402 payment
// data. It handles base64 and JSON marshaling for payment proofs and
// requirements carried in HTTP headers.
package encoding

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	x402 "github.com/Scottcjn/openclaw-x402"
)

// EncodeProof converts a PaymentProof to a base64-encoded JSON string.
// This is used to build X-PAYMENT header values.
//
// Returns an error if JSON marshaling fails.
func EncodeProof(proof x402.PaymentProof) (string, error) {
	proofJSON, err := json.Marshal(proof)
	if err != nil {
		return "", fmt.Errorf("failed to marshal proof: %w", err)
	}
	return base64.StdEncoding.EncodeToString(proofJSON), nil
}

// DecodeProof converts a base64-encoded JSON string to a PaymentProof.
//
// Returns an error if base64 decoding or JSON unmarshaling fails.
func DecodeProof(encoded string) (x402.PaymentProof, error) {
	var proof x402.PaymentProof

	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return proof, fmt.Errorf("failed to decode base64: %w", err)
	}

	if err := json.Unmarshal(decoded, &proof); err != nil {
		return proof, fmt.Errorf("failed to unmarshal proof: %w", err)
	}

	return proof, nil
}

// EncodeRequirement converts a PaymentRequirement to base64-encoded JSON.
// Useful for carrying a challenge out-of-band, e.g. in a response header.
//
// Returns an error if JSON marshaling fails.
func EncodeRequirement(requirement x402.PaymentRequirement) (string, error) {
	reqJSON, err := json.Marshal(requirement)
	if err != nil {
		return "", fmt.Errorf("failed to marshal requirement: %w", err)
	}
	return base64.StdEncoding.EncodeToString(reqJSON), nil
}

// DecodeRequirement converts base64-encoded JSON to a PaymentRequirement.
//
// Returns an error if base64 decoding or JSON unmarshaling fails.
func DecodeRequirement(encoded string) (x402.PaymentRequirement, error) {
	var requirement x402.PaymentRequirement

	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return requirement, fmt.Errorf("failed to decode base64: %w", err)
	}

	if err := json.Unmarshal(decoded, &requirement); err != nil {
		return requirement, fmt.Errorf("failed to unmarshal requirement: %w", err)
	}

	return requirement, nil
}
