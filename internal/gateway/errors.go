package gateway

import (
	"errors"
	"fmt"
)

// ErrorCode classifies a gateway failure for retry decisions.
type ErrorCode int

const (
	// ErrCodeNetwork is a transport-level failure; retryable.
	ErrCodeNetwork ErrorCode = iota
	// ErrCodeRateLimited means the venue asked us to back off; retryable.
	ErrCodeRateLimited
	// ErrCodeRejected means the venue refused the request; never retried.
	ErrCodeRejected
	// ErrCodeAuth means the credentials were refused; never retried.
	ErrCodeAuth
	// ErrCodeNotFound means the referenced order is unknown to the venue.
	// Benign on cancel: the order was already resolved.
	ErrCodeNotFound
)

func (c ErrorCode) String() string {
	switch c {
	case ErrCodeNetwork:
		return "NETWORK"
	case ErrCodeRateLimited:
		return "RATE_LIMITED"
	case ErrCodeRejected:
		return "REJECTED"
	case ErrCodeAuth:
		return "AUTH"
	case ErrCodeNotFound:
		return "NOT_FOUND"
	default:
		return "UNKNOWN"
	}
}

// Error is a coded gateway failure.
type Error struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("gateway %s: %s", e.Code, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("gateway %s: %v", e.Code, e.Err)
	}
	return fmt.Sprintf("gateway %s", e.Code)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a coded gateway error wrapping err.
func NewError(code ErrorCode, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// CodeOf returns the error code of a gateway error, or ErrCodeNetwork for
// uncoded errors (unknown failures are assumed transient).
func CodeOf(err error) ErrorCode {
	var gwErr *Error
	if errors.As(err, &gwErr) {
		return gwErr.Code
	}
	return ErrCodeNetwork
}

// IsRetryable reports whether the operation that produced err may be retried.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	switch CodeOf(err) {
	case ErrCodeNetwork, ErrCodeRateLimited:
		return true
	default:
		return false
	}
}

// IsNotFound reports whether err means the order is unknown to the venue.
func IsNotFound(err error) bool {
	return err != nil && CodeOf(err) == ErrCodeNotFound
}
