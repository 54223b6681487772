package x402

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Config holds the paywall configuration. Zero-value fields fall back to
// the defaults applied by ApplyDefaults, so a library caller only has to
// set Treasury.
type Config struct {
	// Treasury is the address that must receive payments.
	Treasury string `env:"X402_TREASURY"`

	// FacilitatorURL is the settlement verification endpoint.
	FacilitatorURL string `env:"X402_FACILITATOR_URL"`

	// Asset is the token contract expected as payment.
	Asset string `env:"X402_ASSET"`

	// Network is the settlement chain in CAIP-2 format.
	Network string `env:"X402_NETWORK"`

	// ChallengeWindow is how long an issued challenge stays redeemable.
	ChallengeWindow time.Duration `env:"X402_CHALLENGE_WINDOW" envDefault:"5m"`

	// ReplayRetention is how long redeemed transaction references are kept.
	// It must comfortably exceed any chain-reorganization horizon plus the
	// client retry window.
	ReplayRetention time.Duration `env:"X402_REPLAY_RETENTION" envDefault:"24h"`

	// NonceSecret is the hex-encoded HMAC key that authenticates challenge
	// nonces. When empty a random key is generated at startup, which makes
	// outstanding challenges invalid across restarts and across replicas;
	// multi-instance deployments must set it explicitly.
	NonceSecret string `env:"X402_NONCE_SECRET"`

	// Timeouts bounds the facilitator calls.
	Timeouts TimeoutConfig
}

// LoadConfig reads configuration from the environment, loading a .env file
// first when one is present.
func LoadConfig() (*Config, error) {
	// A missing .env file is not an error; production sets variables directly.
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("x402: parsing environment: %w", err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills unset fields with Base mainnet USDC defaults.
func (c *Config) ApplyDefaults() {
	if c.FacilitatorURL == "" {
		c.FacilitatorURL = DefaultFacilitatorURL
	}
	if c.Network == "" {
		c.Network = NetworkBase
	}
	if c.Asset == "" {
		if chain, ok := LookupChain(c.Network); ok {
			c.Asset = chain.USDCAddress
		}
	}
	if c.ChallengeWindow <= 0 {
		c.ChallengeWindow = 5 * time.Minute
	}
	if c.ReplayRetention <= 0 {
		c.ReplayRetention = 24 * time.Hour
	}
	if c.Timeouts == (TimeoutConfig{}) {
		c.Timeouts = DefaultTimeouts
	}
}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if c.Treasury == "" {
		return fmt.Errorf("%w: treasury address is required", ErrInvalidConfig)
	}
	if c.FacilitatorURL == "" {
		return fmt.Errorf("%w: facilitator URL is required", ErrInvalidConfig)
	}
	if c.Asset == "" {
		return fmt.Errorf("%w: asset is required", ErrInvalidConfig)
	}
	if c.Network == "" {
		return fmt.Errorf("%w: network is required", ErrInvalidConfig)
	}
	if c.ChallengeWindow <= 0 {
		return fmt.Errorf("%w: challenge window must be positive, got %v", ErrInvalidConfig, c.ChallengeWindow)
	}
	if c.ReplayRetention < c.ChallengeWindow {
		return fmt.Errorf("%w: replay retention (%v) must be >= challenge window (%v)",
			ErrInvalidConfig, c.ReplayRetention, c.ChallengeWindow)
	}
	if c.NonceSecret != "" {
		if _, err := hex.DecodeString(c.NonceSecret); err != nil {
			return fmt.Errorf("%w: nonce secret must be hex: %v", ErrInvalidConfig, err)
		}
	}
	return c.Timeouts.Validate()
}

// TimeoutConfig holds timeout configuration for facilitator operations.
type TimeoutConfig struct {
	// VerifyTimeout is the maximum time to wait for one verification attempt.
	VerifyTimeout time.Duration

	// RequestTimeout is the overall timeout for facilitator HTTP requests,
	// retries included.
	RequestTimeout time.Duration
}

// DefaultTimeouts provides sensible defaults for facilitator operations.
var DefaultTimeouts = TimeoutConfig{
	VerifyTimeout:  5 * time.Second,
	RequestTimeout: 30 * time.Second,
}

// WithVerifyTimeout returns a new TimeoutConfig with updated verify timeout.
func (tc TimeoutConfig) WithVerifyTimeout(d time.Duration) TimeoutConfig {
	tc.VerifyTimeout = d
	return tc
}

// WithRequestTimeout returns a new TimeoutConfig with updated request timeout.
func (tc TimeoutConfig) WithRequestTimeout(d time.Duration) TimeoutConfig {
	tc.RequestTimeout = d
	return tc
}

// Validate ensures timeout values are reasonable.
func (tc TimeoutConfig) Validate() error {
	if tc.VerifyTimeout <= 0 {
		return fmt.Errorf("verify timeout must be positive, got %v", tc.VerifyTimeout)
	}
	if tc.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be positive, got %v", tc.RequestTimeout)
	}
	if tc.RequestTimeout < tc.VerifyTimeout {
		return fmt.Errorf("request timeout (%v) should be >= verify timeout (%v)",
			tc.RequestTimeout, tc.VerifyTimeout)
	}
	return nil
}
