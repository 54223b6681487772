package x402

import "errors"

// Sentinel errors for payment gating operations.
var (
	// ErrInvalidAmount indicates an amount string is not a non-negative integer.
	ErrInvalidAmount = errors.New("x402: invalid amount")

	// ErrMalformedHeader indicates the X-PAYMENT header is present but undecodable.
	ErrMalformedHeader = errors.New("x402: malformed payment header")

	// ErrUnsupportedVersion indicates an unsupported x402 protocol version.
	ErrUnsupportedVersion = errors.New("x402: unsupported protocol version")

	// ErrStaleChallenge indicates a nonce that is expired, bound to a different
	// resource, or was never issued by this server. All three look identical
	// to the client: it gets a fresh challenge.
	ErrStaleChallenge = errors.New("x402: stale or unknown challenge nonce")

	// ErrFacilitatorUnavailable indicates the facilitator service could not
	// answer (network failure, timeout, or malformed response).
	ErrFacilitatorUnavailable = errors.New("x402: facilitator service unavailable")

	// ErrVerificationFailed indicates the facilitator rejected the verify request.
	ErrVerificationFailed = errors.New("x402: payment verification failed")

	// ErrInvalidConfig indicates the paywall configuration is unusable.
	ErrInvalidConfig = errors.New("x402: invalid configuration")
)

// ErrorCode represents payment error codes for programmatic handling.
type ErrorCode string

const (
	// ErrCodeMalformedPayment indicates an undecodable payment header.
	ErrCodeMalformedPayment ErrorCode = "MALFORMED_PAYMENT"

	// ErrCodeStaleChallenge indicates an expired or unknown challenge nonce.
	ErrCodeStaleChallenge ErrorCode = "STALE_CHALLENGE"

	// ErrCodeFacilitatorUnavailable indicates the facilitator could not answer.
	ErrCodeFacilitatorUnavailable ErrorCode = "FACILITATOR_UNAVAILABLE"

	// ErrCodeVerificationFailed indicates the facilitator rejected the proof.
	ErrCodeVerificationFailed ErrorCode = "VERIFICATION_FAILED"

	// ErrCodeInvalidConfig indicates unusable configuration.
	ErrCodeInvalidConfig ErrorCode = "INVALID_CONFIG"
)

// PaymentError provides structured error information.
type PaymentError struct {
	// Code is the error code for programmatic handling.
	Code ErrorCode

	// Message is the human-readable error message.
	Message string

	// Details contains additional error context.
	Details map[string]interface{}

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *PaymentError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *PaymentError) Unwrap() error {
	return e.Err
}

// NewPaymentError creates a new PaymentError with the given code and message.
func NewPaymentError(code ErrorCode, message string, err error) *PaymentError {
	return &PaymentError{
		Code:    code,
		Message: message,
		Err:     err,
		Details: make(map[string]interface{}),
	}
}

// WithDetails adds additional context to the error.
// Lazily initializes the Details map if nil.
func (e *PaymentError) WithDetails(key string, value interface{}) *PaymentError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}
