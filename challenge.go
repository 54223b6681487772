package x402

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"time"
)

// Nonce wire layout: 8-byte big-endian unix expiry, 16 random bytes,
// 16-byte truncated HMAC-SHA256 tag over expiry || random || resource key.
// The tag binds the nonce to one resource and the embedded expiry makes the
// challenge self-expiring, so the server holds no per-challenge state.
const (
	nonceExpiryLen = 8
	nonceRandLen   = 16
	nonceTagLen    = 16
	nonceLen       = nonceExpiryLen + nonceRandLen + nonceTagLen
)

// Issuer builds payment challenges and authenticates the nonces they carry.
type Issuer struct {
	secret   []byte
	window   time.Duration
	treasury string
	asset    string
	network  string
	facility string

	// now is the clock source, overridable in tests.
	now func() time.Time
}

// NewIssuer creates a challenge issuer from the paywall configuration.
// When cfg.NonceSecret is empty a random per-process key is generated.
func NewIssuer(cfg *Config) (*Issuer, error) {
	var secret []byte
	if cfg.NonceSecret != "" {
		decoded, err := hex.DecodeString(cfg.NonceSecret)
		if err != nil {
			return nil, fmt.Errorf("%w: nonce secret must be hex: %v", ErrInvalidConfig, err)
		}
		secret = decoded
	} else {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return nil, fmt.Errorf("x402: generating nonce secret: %w", err)
		}
	}
	if len(secret) < 16 {
		return nil, fmt.Errorf("%w: nonce secret must be at least 16 bytes", ErrInvalidConfig)
	}

	return &Issuer{
		secret:   secret,
		window:   cfg.ChallengeWindow,
		treasury: cfg.Treasury,
		asset:    cfg.Asset,
		network:  cfg.Network,
		facility: cfg.FacilitatorURL,
		now:      time.Now,
	}, nil
}

// Issue builds a fresh PaymentRequirement for one invocation attempt of the
// given resource. Each call generates a new unpredictable nonce; nothing is
// written anywhere.
func (i *Issuer) Issue(resource, price, description string) (*PaymentRequirement, error) {
	expiresAt := i.now().Add(i.window).Truncate(time.Second)

	buf := make([]byte, nonceExpiryLen+nonceRandLen, nonceLen)
	binary.BigEndian.PutUint64(buf[:nonceExpiryLen], uint64(expiresAt.Unix()))
	if _, err := rand.Read(buf[nonceExpiryLen:]); err != nil {
		return nil, fmt.Errorf("x402: generating nonce: %w", err)
	}
	buf = append(buf, i.tag(buf, resource)...)

	return &PaymentRequirement{
		X402Version:    X402Version,
		Resource:       resource,
		Description:    description,
		Price:          price,
		Asset:          i.asset,
		Network:        i.network,
		PayTo:          i.treasury,
		FacilitatorURL: i.facility,
		Nonce:          base64.RawURLEncoding.EncodeToString(buf),
		ExpiresAt:      expiresAt,
	}, nil
}

// CheckNonce verifies that a claimed nonce was issued by this server for the
// given resource and has not expired. It returns the embedded expiry on
// success and ErrStaleChallenge otherwise. A forged, foreign-resource, and
// expired nonce are deliberately indistinguishable to the caller.
func (i *Issuer) CheckNonce(nonce, resource string) (time.Time, error) {
	raw, err := base64.RawURLEncoding.DecodeString(nonce)
	if err != nil || len(raw) != nonceLen {
		return time.Time{}, ErrStaleChallenge
	}

	body := raw[:nonceExpiryLen+nonceRandLen]
	if !hmac.Equal(raw[nonceExpiryLen+nonceRandLen:], i.tag(body, resource)) {
		return time.Time{}, ErrStaleChallenge
	}

	expiresAt := time.Unix(int64(binary.BigEndian.Uint64(raw[:nonceExpiryLen])), 0)
	if i.now().After(expiresAt) {
		return time.Time{}, ErrStaleChallenge
	}
	return expiresAt, nil
}

// tag computes the truncated authentication tag for a nonce body bound to a
// resource key.
func (i *Issuer) tag(body []byte, resource string) []byte {
	mac := hmac.New(sha256.New, i.secret)
	mac.Write(body)
	mac.Write([]byte(resource))
	return mac.Sum(nil)[:nonceTagLen]
}
