package domain

import (
	"errors"
	"fmt"
)

// DomainError represents a request-handling error with a structured error code
// and the HTTP status it is answered with.
type DomainError struct {
	Code    string // Error code (e.g., "WS-HTTP-4040")
	Message string // Human-readable message
	Status  int    // HTTP status answered to the client
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

// NewDomainError creates a new DomainError with the given code, status and message.
func NewDomainError(code string, status int, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Status:  status,
		Message: message,
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *DomainError) WithDetails(details string) *DomainError {
	c := *e
	c.Details = details
	return &c
}

// WithCause returns a copy of the error wrapping the given cause.
func (e *DomainError) WithCause(cause error) *DomainError {
	c := *e
	c.Cause = cause
	return &c
}

// Wrap wraps an error with this domain error as the cause.
func (e *DomainError) Wrap(cause error) *DomainError {
	return e.WithCause(cause)
}

// Errorf returns a copy of the error whose details are built from a format string.
func (e *DomainError) Errorf(format string, args ...any) *DomainError {
	return e.WithDetails(fmt.Sprintf(format, args...))
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

// StatusOf maps an error to the HTTP status the client receives.
// Errors outside the taxonomy are internal faults.
func StatusOf(err error) int {
	if err == nil {
		return 200
	}
	var de *DomainError
	if errors.As(err, &de) && de.Status != 0 {
		return de.Status
	}
	return ErrInternalFault.Status
}

// ClosesConnection reports whether the connection must be closed after
// answering err. After these errors the byte stream is no longer at a
// message boundary. A malformed body that was read in full keeps it.
func ClosesConnection(err error) bool {
	switch {
	case errors.Is(err, ErrMalformedRequest),
		errors.Is(err, ErrHeaderTooLarge),
		errors.Is(err, ErrPayloadTooLarge),
		errors.Is(err, ErrLengthMismatch),
		errors.Is(err, ErrInternalFault):
		return true
	}
	return false
}

// ============================================================================
// Protocol Errors (HTTP)
// ============================================================================

var (
	// ErrMalformedRequest indicates a request line or header block that cannot be parsed.
	ErrMalformedRequest = NewDomainError("WS-HTTP-4000", 400, "malformed request")

	// ErrMalformedBody indicates a body that disagrees with its framing or multipart boundary.
	ErrMalformedBody = NewDomainError("WS-HTTP-4001", 400, "malformed body")

	// ErrHeaderTooLarge indicates a header block over the configured limit.
	ErrHeaderTooLarge = NewDomainError("WS-HTTP-4002", 400, "request header too large")

	// ErrEmptySubmission indicates a form submission without any field or file.
	ErrEmptySubmission = NewDomainError("WS-HTTP-4003", 400, "no form data received")

	// ErrForbiddenPath indicates path traversal or a resource the server refuses to expose.
	ErrForbiddenPath = NewDomainError("WS-HTTP-4030", 403, "forbidden")

	// ErrNotFound indicates the requested resource does not exist.
	ErrNotFound = NewDomainError("WS-HTTP-4040", 404, "not found")

	// ErrMethodNotAllowed indicates a method outside GET, HEAD, POST and OPTIONS.
	ErrMethodNotAllowed = NewDomainError("WS-HTTP-4050", 405, "method not allowed")

	// ErrPayloadTooLarge indicates a body over the configured request or upload size.
	ErrPayloadTooLarge = NewDomainError("WS-HTTP-4130", 413, "payload too large")
)

// ============================================================================
// System Errors (SYS)
// ============================================================================

var (
	// ErrInternalFault indicates an unexpected failure while handling a request.
	ErrInternalFault = NewDomainError("WS-SYS-5000", 500, "internal server error")

	// ErrLengthMismatch indicates a response whose declared Content-Length disagrees with its body.
	ErrLengthMismatch = NewDomainError("WS-SYS-5001", 500, "content length mismatch")

	// ErrRateLimited indicates a client over its request rate.
	ErrRateLimited = NewDomainError("WS-SYS-5030", 503, "too many requests")

	// ErrHandshakeFailure indicates a failed TLS negotiation. It is logged, never answered.
	ErrHandshakeFailure = NewDomainError("WS-SYS-5250", 0, "tls handshake failed")
)
