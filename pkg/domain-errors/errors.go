// Package domainerrors provides coded errors for the governance engine.
// Services classify failures with a Code; callers branch on HasCode instead
// of matching message strings.
package domainerrors

import "errors"

// Code classifies a domain error.
type Code string

const (
	CodeInvalidInput       Code = "INVALID_INPUT"
	CodeValidation         Code = "VALIDATION"
	CodeNotFound           Code = "NOT_FOUND"
	CodeConflict           Code = "CONFLICT"
	CodeTimeout            Code = "TIMEOUT"
	CodeInternal           Code = "INTERNAL"
	CodeInvariantViolation Code = "INVARIANT_VIOLATION"

	CodeDuplicateConsent Code = "DUPLICATE_CONSENT"
	CodeNoActiveConsent  Code = "NO_ACTIVE_CONSENT"
	CodeBreachNotFound   Code = "BREACH_NOT_FOUND"
	CodePolicyNotFound   Code = "POLICY_NOT_FOUND"
	CodeEncryption       Code = "ENCRYPTION"
	CodeDecryption       Code = "DECRYPTION"
)

// DomainError carries a classification code alongside the message. The cause,
// when present, stays reachable through errors.Unwrap.
type DomainError struct {
	Code    Code
	Message string
	cause   error
}

func (e *DomainError) Error() string {
	if e.cause != nil {
		return e.Message + ": " + e.cause.Error()
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.cause
}

// Is makes two domain errors equal when their codes match, so errors.Is can
// compare against a prototype error.
func (e *DomainError) Is(target error) bool {
	var de *DomainError
	if !errors.As(target, &de) {
		return false
	}
	return e.Code == de.Code
}

// New creates a coded error without a cause.
func New(code Code, message string) error {
	return &DomainError{Code: code, Message: message}
}

// Wrap attaches a code and message to an underlying error. A nil cause yields
// nil so call sites can wrap unconditionally.
func Wrap(cause error, code Code, message string) error {
	if cause == nil {
		return nil
	}
	return &DomainError{Code: code, Message: message, cause: cause}
}

// HasCode reports whether any error in the chain carries the code.
func HasCode(err error, code Code) bool {
	var de *DomainError
	for errors.As(err, &de) {
		if de.Code == code {
			return true
		}
		err = errors.Unwrap(de)
		if err == nil {
			return false
		}
	}
	return false
}
