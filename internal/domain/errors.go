package domain

import (
	"errors"
	"fmt"
	"time"
)

// DomainError represents an engine-specific error with a stable code.
type DomainError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new DomainError
func NewDomainError(code, message string) *DomainError {
	return &DomainError{Code: code, Message: message}
}

// NewDomainErrorWithCause creates a new DomainError with an underlying cause
func NewDomainErrorWithCause(code, message string, err error) *DomainError {
	return &DomainError{Code: code, Message: message, Err: err}
}

// Error codes, one per failure class. Transient errors are retried with
// backoff; malformed-response errors degrade locally to an empty result;
// configuration errors are fatal at construction time; unsupported-backend
// errors mark a skipped operation rather than a crash.
const (
	ErrCodeTransient          = "TRANSIENT"
	ErrCodeMalformedResponse  = "MALFORMED_RESPONSE"
	ErrCodeConfiguration      = "CONFIGURATION"
	ErrCodeUnsupportedBackend = "UNSUPPORTED_BACKEND"
	ErrCodeValidation         = "VALIDATION_ERROR"
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeInternalError      = "INTERNAL_ERROR"
)

var (
	ErrEmptyQuery         = NewDomainError(ErrCodeValidation, "query text is empty")
	ErrNoEmbeddings       = NewDomainError(ErrCodeInternalError, "embedding service returned no vectors")
	ErrUnknownStrategy    = NewDomainError(ErrCodeConfiguration, "unknown chunking strategy")
	ErrUnknownBackend     = NewDomainError(ErrCodeConfiguration, "unknown vector store backend")
	ErrDocumentNotFound   = NewDomainError(ErrCodeNotFound, "document not found")
	ErrUnsupportedBackend = NewDomainError(ErrCodeUnsupportedBackend, "operation not supported by this backend")
)

// TransientError marks a recoverable failure from an external
// collaborator (rate limit, network). RetryAfter carries the server's
// retry hint when one was supplied; zero means the caller's own backoff
// schedule applies.
type TransientError struct {
	Err        error
	RetryAfter time.Duration
}

func (e *TransientError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("transient: %v (retry after %s)", e.Err, e.RetryAfter)
	}
	return fmt.Sprintf("transient: %v", e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// Transient wraps err as retryable.
func Transient(err error) error {
	return &TransientError{Err: err}
}

// TransientWithRetryAfter wraps err as retryable with a server-supplied hint.
func TransientWithRetryAfter(err error, retryAfter time.Duration) error {
	return &TransientError{Err: err, RetryAfter: retryAfter}
}

// IsTransient reports whether err should be retried.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// IsMalformed reports whether err marks unparsable collaborator output,
// which degrades locally rather than failing or retrying.
func IsMalformed(err error) bool {
	var de *DomainError
	return errors.As(err, &de) && de.Code == ErrCodeMalformedResponse
}

// RetryAfterHint extracts the server retry hint from err, if any.
func RetryAfterHint(err error) (time.Duration, bool) {
	var te *TransientError
	if errors.As(err, &te) && te.RetryAfter > 0 {
		return te.RetryAfter, true
	}
	return 0, false
}
