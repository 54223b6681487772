// Package validation provides validation utilities for x402 payment data.
// It validates addresses, amounts and CAIP-2 network identifiers.
package validation

import (
	"fmt"
	"regexp"
	"strings"

	x402 "github.com/Scottcjn/openclaw-x402"
)

var (
	// evmAddressRegex matches Ethereum-style addresses (0x followed by 40 hex chars)
	evmAddressRegex = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)

	// solanaAddressRegex matches Solana base58 addresses (32-44 chars, base58 charset)
	solanaAddressRegex = regexp.MustCompile(`^[1-9A-HJ-NP-Za-km-z]{32,44}$`)

	// caip2Regex matches CAIP-2 network identifiers (namespace:reference)
	caip2Regex = regexp.MustCompile(`^[a-z0-9]+:[a-zA-Z0-9]+$`)
)

// ValidateAmount validates that an amount string is a non-negative base-10
// integer in atomic units. Zero is allowed: it denotes free mode.
func ValidateAmount(amount string) error {
	if amount == "" {
		return fmt.Errorf("amount cannot be empty")
	}
	if _, err := x402.ParseAmount(amount); err != nil {
		return fmt.Errorf("invalid amount %q: %w", amount, err)
	}
	return nil
}

// ValidateNetwork validates a CAIP-2 network identifier.
func ValidateNetwork(network string) error {
	if network == "" {
		return fmt.Errorf("network cannot be empty")
	}
	if !caip2Regex.MatchString(network) {
		return fmt.Errorf("invalid CAIP-2 network format: %s (expected namespace:reference)", network)
	}
	return nil
}

// ValidateAddress validates an address based on the network namespace.
// EVM networks (eip155:*) require 0x-prefixed hex addresses, Solana networks
// require base58; other namespaces only require a non-empty address.
func ValidateAddress(address string, network string) error {
	if address == "" {
		return fmt.Errorf("address cannot be empty")
	}
	if err := ValidateNetwork(network); err != nil {
		return fmt.Errorf("cannot validate address: %w", err)
	}

	switch {
	case strings.HasPrefix(network, "eip155:"):
		if !evmAddressRegex.MatchString(address) {
			return fmt.Errorf("invalid EVM address format: %s (expected 0x followed by 40 hex characters)", address)
		}
	case strings.HasPrefix(network, "solana:"):
		if !solanaAddressRegex.MatchString(address) {
			return fmt.Errorf("invalid Solana address format: %s (expected base58)", address)
		}
	}
	return nil
}

// ValidateRequirement checks that a PaymentRequirement is internally
// consistent before it is sent to a client.
func ValidateRequirement(requirement x402.PaymentRequirement) error {
	if err := ValidateAmount(requirement.Price); err != nil {
		return err
	}
	if err := ValidateNetwork(requirement.Network); err != nil {
		return err
	}
	if err := ValidateAddress(requirement.PayTo, requirement.Network); err != nil {
		return fmt.Errorf("payTo: %w", err)
	}
	if err := ValidateAddress(requirement.Asset, requirement.Network); err != nil {
		return fmt.Errorf("asset: %w", err)
	}
	if requirement.FacilitatorURL == "" {
		return fmt.Errorf("facilitator URL cannot be empty")
	}
	if requirement.Nonce == "" {
		return fmt.Errorf("nonce cannot be empty")
	}
	return nil
}
