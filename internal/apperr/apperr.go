// Package apperr provides the structured error kinds of §7: a stable code,
// an HTTP status, and a details map, following the same shape as the
// teacher's infrastructure/errors but with families drawn from the
// activation/signature error taxonomy instead of the blockchain one.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Code is a stable, client-visible error code.
type Code string

const (
	// NOT_FOUND — activation or application unknown.
	CodeActivationNotFound Code = "ERR_ACTIVATION_NOT_FOUND"
	CodeApplicationNotFound Code = "ERR_APPLICATION_NOT_FOUND"

	// INVALID_STATE — operation not legal in current activation status.
	CodeInvalidActivationState Code = "ERR_ACTIVATION_INVALID_STATE"

	// EXPIRED — past timestampActivationExpire.
	CodeActivationExpired Code = "ERR_ACTIVATION_EXPIRED"

	// INVALID_INPUT — missing field, malformed Base64, etc.
	CodeInvalidInput Code = "ERR_INVALID_INPUT"

	// CRYPTO_FAILURE — invalid key material, MAC mismatch, ECDH failure.
	CodeCryptoFailure Code = "ERR_CRYPTO_FAILURE"

	// SIGNATURE_INVALID — signature verification negative. Distinct from
	// CRYPTO_FAILURE: the counter still advances (§4.2).
	CodeSignatureInvalid Code = "ERR_SIGNATURE_INVALID"

	// LIMIT_EXCEEDED — id generation retries exhausted (§4.6).
	CodeUnableToGenerateActivationID Code = "UNABLE_TO_GENERATE_ACTIVATION_ID"

	// RECOVERY — recovery PUK advanced; carries PowerAuthErrorRecovery payload.
	CodeRecovery Code = "ERR_RECOVERY"

	// CONFIG — server keypair or encryption key missing.
	CodeConfig Code = "ERR_CONFIG"

	// RATE_LIMIT — caller exceeded the configured request budget.
	CodeRateLimitExceeded Code = "ERR_RATE_LIMIT_EXCEEDED"

	// UNAUTHORIZED — admin caller failed the HTTP Basic check of §6.
	CodeUnauthorized Code = "ERR_UNAUTHORIZED"

	// REPLAY_DETECTED — a key-exchange envelope nonce/ephemeral key was
	// already seen for this activation (§4.1 replay window).
	CodeReplayDetected Code = "ERR_REPLAY_DETECTED"
)

// Error is a structured application error carrying a stable Code, an HTTP
// status for the thin transport layer, and optional details.
type Error struct {
	Code       Code
	Message    string
	HTTPStatus int
	Details    map[string]interface{}
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// WithDetails attaches a detail key/value and returns the receiver for chaining.
func (e *Error) WithDetails(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

func newErr(code Code, message string, status int) *Error {
	return &Error{Code: code, Message: message, HTTPStatus: status}
}

func wrapErr(code Code, message string, status int, err error) *Error {
	return &Error{Code: code, Message: message, HTTPStatus: status, Err: err}
}

// ActivationNotFound reports an unknown activationId.
func ActivationNotFound(activationID string) *Error {
	return newErr(CodeActivationNotFound, "activation not found", http.StatusNotFound).
		WithDetails("activationId", activationID)
}

// ApplicationNotFound reports an unknown applicationId/applicationKey.
func ApplicationNotFound(applicationKey string) *Error {
	return newErr(CodeApplicationNotFound, "application not found", http.StatusNotFound).
		WithDetails("applicationKey", applicationKey)
}

// InvalidState reports an operation illegal in the activation's current status.
func InvalidState(activationID, operation, status string) *Error {
	return newErr(CodeInvalidActivationState, "operation not legal in current activation state", http.StatusConflict).
		WithDetails("activationId", activationID).
		WithDetails("operation", operation).
		WithDetails("status", status)
}

// Expired reports an activation past its expiry.
func Expired(activationID string) *Error {
	return newErr(CodeActivationExpired, "activation expired", http.StatusGone).
		WithDetails("activationId", activationID)
}

// InvalidInput reports a malformed request field.
func InvalidInput(field, reason string) *Error {
	return newErr(CodeInvalidInput, "invalid input", http.StatusBadRequest).
		WithDetails("field", field).
		WithDetails("reason", reason)
}

// CryptoFailure wraps an underlying cryptographic error (invalid key
// material, MAC mismatch, ECDH failure).
func CryptoFailure(operation string, err error) *Error {
	return wrapErr(CodeCryptoFailure, "cryptographic operation failed", http.StatusInternalServerError, err).
		WithDetails("operation", operation)
}

// SignatureInvalid reports a negative signature verification outcome. This
// is not an exception: callers return it as 200 OK with signatureValid=false
// per §7, never translate its HTTPStatus onto the wire.
func SignatureInvalid(activationID string, remainingAttempts uint32) *Error {
	return newErr(CodeSignatureInvalid, "signature verification failed", http.StatusOK).
		WithDetails("activationId", activationID).
		WithDetails("remainingAttempts", remainingAttempts)
}

// LimitExceeded reports exhausted id-generation retries (§4.6).
func LimitExceeded(kind string, iterations int) *Error {
	return newErr(CodeUnableToGenerateActivationID, "unable to generate unique identifier", http.StatusInternalServerError).
		WithDetails("kind", kind).
		WithDetails("iterations", iterations)
}

// Recovery reports a recovery-PUK advance, carrying the extended payload's
// currentRecoveryPukIndex.
func Recovery(currentRecoveryPUKIndex int) *Error {
	return newErr(CodeRecovery, "recovery code advanced", http.StatusOK).
		WithDetails("currentRecoveryPukIndex", currentRecoveryPUKIndex)
}

// Config reports a missing server keypair or encryption key.
func Config(message string) *Error {
	return newErr(CodeConfig, message, http.StatusInternalServerError)
}

// Internal reports an unexpected failure with no more specific kind —
// a recovered panic or an unhandled persistence error (§7 "Persistence
// errors propagate to the transport layer which returns 500").
func Internal(err error) *Error {
	return wrapErr("ERR_INTERNAL", "internal server error", http.StatusInternalServerError, err)
}

// Unauthorized reports a failed admin HTTP Basic check (§6 "Authentication
// of admin callers").
func Unauthorized(reason string) *Error {
	return newErr(CodeUnauthorized, reason, http.StatusUnauthorized)
}

// ReplayDetected reports a key-exchange envelope nonce seen before for this
// activation.
func ReplayDetected(activationID string) *Error {
	return newErr(CodeReplayDetected, "key-exchange envelope already used", http.StatusConflict).
		WithDetails("activationId", activationID)
}

// RateLimitExceeded reports a caller exceeding limit requests per window.
func RateLimitExceeded(limit int, window string) *Error {
	return newErr(CodeRateLimitExceeded, "rate limit exceeded", http.StatusTooManyRequests).
		WithDetails("limit", limit).
		WithDetails("window", window)
}

// As extracts an *Error from an error chain.
func As(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return nil
}

// HTTPStatusOf returns the HTTP status for an error, defaulting to 500.
func HTTPStatusOf(err error) int {
	if e := As(err); e != nil {
		return e.HTTPStatus
	}
	return http.StatusInternalServerError
}
