// Package domain defines the core domain models for stablemem.
package domain

import (
	"errors"
	"fmt"
	"strings"
)

// DomainError represents a domain error with a structured error code.
//
// Codes have the form "SM-<KIND>-<NNNN>", where KIND identifies the
// failure family (ARG, ENC, RES, AUTH, SYS).
type DomainError struct {
	Code    string // Error code (e.g., "SM-ARG-4002")
	Message string // Human-readable message
	Details string // Optional additional details
	Cause   error  // Underlying error (if any)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap() support.
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is() support for error comparison.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewDomainError creates a new DomainError with the given code and message.
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *DomainError) WithDetails(details string) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Details: details,
		Cause:   e.Cause,
	}
}

// WithDetailsf is WithDetails with fmt.Sprintf formatting.
func (e *DomainError) WithDetailsf(format string, args ...any) *DomainError {
	return e.WithDetails(fmt.Sprintf(format, args...))
}

// WithCause returns a copy of the error wrapping the given cause.
func (e *DomainError) WithCause(cause error) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
		Cause:   cause,
	}
}

// Wrap wraps an error with this domain error as the cause.
func (e *DomainError) Wrap(cause error) *DomainError {
	return e.WithCause(cause)
}

// IsDomainError checks if an error is a DomainError with the given code.
// If code is empty, it only checks if the error is a DomainError.
func IsDomainError(err error, code string) bool {
	var de *DomainError
	if errors.As(err, &de) {
		if code == "" {
			return true
		}
		return de.Code == code
	}
	return false
}

// GetErrorCode extracts the error code from an error if it's a DomainError.
func GetErrorCode(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// Error kind prefixes.
const (
	KindValidation = "SM-ARG-"
	KindEncoding   = "SM-ENC-"
	KindResource   = "SM-RES-"
	KindAuth       = "SM-AUTH-"
	KindSystem     = "SM-SYS-"
)

func hasKind(err error, kind string) bool {
	return strings.HasPrefix(GetErrorCode(err), kind)
}

// IsValidationError reports whether err is an argument/range violation.
func IsValidationError(err error) bool { return hasKind(err, KindValidation) }

// IsEncodingError reports whether err means the snapshot envelope could not be decoded.
func IsEncodingError(err error) bool { return hasKind(err, KindEncoding) }

// IsResourceExhaustion reports whether err is a growth/allocation failure.
func IsResourceExhaustion(err error) bool { return hasKind(err, KindResource) }

// ============================================================================
// Validation Errors (ARG)
// ============================================================================

var (
	// ErrInvalidArgument indicates an invalid argument.
	ErrInvalidArgument = NewDomainError("SM-ARG-4001", "invalid argument")

	// ErrOutOfBounds indicates an offset/size range outside the stable allocation.
	ErrOutOfBounds = NewDomainError("SM-ARG-4002", "range exceeds stable memory allocation")

	// ErrPayloadTooLarge indicates a payload above the per-call limit.
	ErrPayloadTooLarge = NewDomainError("SM-ARG-4130", "payload exceeds per-call limit")
)

// ============================================================================
// Encoding Errors (ENC)
// ============================================================================

var (
	// ErrNoSnapshot indicates stable memory holds no snapshot envelope at all.
	ErrNoSnapshot = NewDomainError("SM-ENC-4040", "no snapshot in stable memory")

	// ErrInvalidEnvelope indicates foreign or truncated bytes.
	ErrInvalidEnvelope = NewDomainError("SM-ENC-4220", "invalid snapshot envelope")

	// ErrUnsupportedVersion indicates an envelope written by an incompatible format version.
	ErrUnsupportedVersion = NewDomainError("SM-ENC-4221", "unsupported snapshot version")

	// ErrChecksumMismatch indicates the envelope checksum does not match its content.
	ErrChecksumMismatch = NewDomainError("SM-ENC-4222", "snapshot checksum mismatch")

	// ErrKeyDensity indicates decoded keys are not exactly 0..n-1.
	ErrKeyDensity = NewDomainError("SM-ENC-4223", "snapshot keys are not dense")
)

// ============================================================================
// Resource Errors (RES)
// ============================================================================

var (
	// ErrResourceExhausted indicates stable memory cannot grow any further.
	ErrResourceExhausted = NewDomainError("SM-RES-5070", "stable memory exhausted")
)

// ============================================================================
// Authentication Errors (AUTH)
// ============================================================================

var (
	// ErrUnauthorized indicates missing or invalid credentials.
	ErrUnauthorized = NewDomainError("SM-AUTH-4010", "authentication required")

	// ErrForbidden indicates the caller may not use this route.
	ErrForbidden = NewDomainError("SM-AUTH-4030", "permission denied")
)

// ============================================================================
// System Errors (SYS)
// ============================================================================

var (
	// ErrInternalServer indicates an internal server error.
	ErrInternalServer = NewDomainError("SM-SYS-5000", "internal server error")

	// ErrStorageError indicates a storage backend failure.
	ErrStorageError = NewDomainError("SM-SYS-5001", "storage error")

	// ErrServiceUnavailable indicates the service is temporarily unavailable.
	ErrServiceUnavailable = NewDomainError("SM-SYS-5030", "service unavailable")

	// ErrBadRequest indicates a malformed request.
	ErrBadRequest = NewDomainError("SM-SYS-4000", "bad request")

	// ErrRateLimited indicates too many requests.
	ErrRateLimited = NewDomainError("SM-SYS-4290", "too many requests")
)
