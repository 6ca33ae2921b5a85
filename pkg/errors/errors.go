// Package errors defines the error taxonomy of the ingestion pipeline and
// the helpers used to classify failures as retryable or permanent.
package errors

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrMalformedPayload  = errors.New("malformed payload")
	ErrFetch             = errors.New("document fetch failed")
	ErrNotFound          = errors.New("document not found")
	ErrEmbedding         = errors.New("embedding generation failed")
	ErrContentInvalid    = errors.New("content cannot be embedded")
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	ErrIndexWrite        = errors.New("vector index write failed")
	ErrIndexQuery        = errors.New("vector index query failed")
	ErrUnknownEntry      = errors.New("no in-progress ledger entry")
	ErrLeaseLost         = errors.New("ledger entry owned by a newer attempt")
	ErrTimeout           = errors.New("operation timed out")
)

// AppError ties a taxonomy sentinel to a human-readable message and the
// underlying cause. Both the sentinel and the cause are reachable through
// errors.Is / errors.As.
type AppError struct {
	Err     error
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Err.Error(), e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Err}
	}
	return []error{e.Err, e.Cause}
}

func New(sentinel error, message string) *AppError {
	return &AppError{
		Err:     sentinel,
		Message: message,
	}
}

func Newf(sentinel error, format string, args ...any) *AppError {
	return &AppError{
		Err:     sentinel,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap attaches a sentinel to cause. A nil cause yields nil.
func Wrap(sentinel error, cause error, format string, args ...any) error {
	if cause == nil {
		return nil
	}
	return &AppError{
		Err:     sentinel,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// IsPermanent reports whether retrying the operation that produced err can
// never succeed. Everything not listed here is treated as transient.
func IsPermanent(err error) bool {
	if err == nil {
		return false
	}
	switch {
	case errors.Is(err, ErrMalformedPayload),
		errors.Is(err, ErrNotFound),
		errors.Is(err, ErrContentInvalid),
		errors.Is(err, ErrDimensionMismatch),
		errors.Is(err, ErrUnknownEntry):
		return true
	default:
		return false
	}
}

// IsTimeout reports whether err came from a deadline rather than a failure
// of the remote side.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded)
}
