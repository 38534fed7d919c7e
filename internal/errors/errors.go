// Package errors defines the error taxonomy for the shield subsystem.
//
// Errors carry full internal detail for logging, but each type knows how
// to render itself for callers across a trust boundary: secret material,
// key identifiers, and token diagnostics never cross that line.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// SecretNotFoundError indicates the external store has no secret by that name.
type SecretNotFoundError struct {
	Name string
}

func (e SecretNotFoundError) Error() string {
	return fmt.Sprintf("secret not found: %s", e.Name)
}

// SecretRetrievalError indicates a transient failure talking to the external
// secret store. Retryable.
type SecretRetrievalError struct {
	Name string
	Err  error
}

func (e SecretRetrievalError) Error() string {
	return fmt.Sprintf("failed to retrieve secret %s: %v", e.Name, e.Err)
}

func (e SecretRetrievalError) Unwrap() error {
	return e.Err
}

// ValidationError indicates user input failed schema validation.
// Non-retryable, safe to return across the boundary.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Message)
}

// RateLimitExceededError indicates the caller exhausted its request budget
// for the current window.
type RateLimitExceededError struct {
	Identifier string
	Limit      int
}

func (e RateLimitExceededError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s (limit %d)", e.Identifier, e.Limit)
}

// TokenInvalidError carries the internal diagnostic for a failed token
// verification. Callers across the trust boundary must only ever see
// ExternalMessage, never Reason — distinguishing malformed from expired
// from bad-signature gives an attacker an oracle.
type TokenInvalidError struct {
	Reason string
}

func (e TokenInvalidError) Error() string {
	return fmt.Sprintf("token invalid: %s", e.Reason)
}

// ExternalMessage is the only text permitted across the trust boundary.
func (e TokenInvalidError) ExternalMessage() string {
	return "Unauthorized"
}

// EncryptionError indicates an encryption operation failed.
type EncryptionError struct {
	Op  string
	Err error
}

func (e EncryptionError) Error() string {
	return fmt.Sprintf("encryption failed during %s: %v", e.Op, e.Err)
}

func (e EncryptionError) Unwrap() error {
	return e.Err
}

// DecryptionError indicates a decryption operation failed, including
// binding-context mismatches.
type DecryptionError struct {
	Op  string
	Err error
}

func (e DecryptionError) Error() string {
	return fmt.Sprintf("decryption failed during %s: %v", e.Op, e.Err)
}

func (e DecryptionError) Unwrap() error {
	return e.Err
}

// ModerationRejectedError indicates content failed moderation.
type ModerationRejectedError struct {
	Reasons []string
}

func (e ModerationRejectedError) Error() string {
	return fmt.Sprintf("content rejected by moderation: %s", strings.Join(e.Reasons, ", "))
}

// IsRetryable reports whether an error represents a transient condition
// worth retrying. Validation and authorization failures are never
// transient.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var ve ValidationError
	var te TokenInvalidError
	var re RateLimitExceededError
	if errors.As(err, &ve) || errors.As(err, &te) || errors.As(err, &re) {
		return false
	}

	var sre SecretRetrievalError
	if errors.As(err, &sre) {
		return true
	}

	errStr := strings.ToLower(err.Error())
	retryablePatterns := []string{
		"timeout",
		"temporary failure",
		"connection reset",
		"broken pipe",
		"throttling",
		"too many requests",
		"service unavailable",
	}
	for _, pattern := range retryablePatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}
