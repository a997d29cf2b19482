package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
)

// ErrorCode classifies a DomainError independently of the control
// plane that produced it.
type ErrorCode string

const (
	ErrorCodeUnknown            ErrorCode = "unknown"
	ErrorCodeNotFound           ErrorCode = "not_found"
	ErrorCodeAlreadyExists      ErrorCode = "already_exists"
	ErrorCodeInvalidArgument    ErrorCode = "invalid_argument"
	ErrorCodeFailedPrecondition ErrorCode = "failed_precondition"
	ErrorCodePermissionDenied   ErrorCode = "permission_denied"
	ErrorCodeUnauthenticated    ErrorCode = "unauthenticated"
	ErrorCodeUnavailable        ErrorCode = "unavailable"
	ErrorCodeDeadlineExceeded   ErrorCode = "deadline_exceeded"
	ErrorCodeResourceExhausted  ErrorCode = "resource_exhausted"
	ErrorCodeGone               ErrorCode = "gone"
	ErrorCodeUnimplemented      ErrorCode = "unimplemented"
	ErrorCodeInternal           ErrorCode = "internal"
)

// DomainError is the error type returned by infrastructure adapters.
// It keeps the core package free of apimachinery error types.
type DomainError struct {
	Code    ErrorCode
	Message string
	Cause   error
}

func (e *DomainError) Error() string {
	if e.Message == "" && e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Code, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *DomainError) Unwrap() error {
	return e.Cause
}

// CodeOf returns the code of the first DomainError in err's chain, or
// ErrorCodeUnknown.
func CodeOf(err error) ErrorCode {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ErrorCodeUnknown
}

func IsNotFound(err error) bool      { return CodeOf(err) == ErrorCodeNotFound }
func IsAlreadyExists(err error) bool { return CodeOf(err) == ErrorCodeAlreadyExists }
func IsGone(err error) bool          { return CodeOf(err) == ErrorCodeGone }

// ErrSchemaVanished indicates that a schema reported as existing could
// not be fetched afterwards.
var ErrSchemaVanished = errors.New("schema disappeared between create and get")

// ErrAlreadyRunning is returned by LifecycleManager.Start when the
// manager has not been stopped since the previous start.
var ErrAlreadyRunning = errors.New("lifecycle manager already running")

// errStreamClosed is reported when the peer closes a watch stream.
var errStreamClosed = errors.New("watch stream closed by peer")

// DecodeError indicates that a watch frame could not be turned into a
// Resource. It is never retried.
type DecodeError struct {
	Reason string
	Cause  error
}

func (e *DecodeError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("decode watch event: %s: %v", e.Reason, e.Cause)
	}
	return "decode watch event: " + e.Reason
}

func (e *DecodeError) Unwrap() error {
	return e.Cause
}

// IsTransient reports whether a watch-transport error should lead to a
// reconnect rather than stopping the loop.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var de *DecodeError
	if errors.As(err, &de) {
		return false
	}

	if errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, errStreamClosed) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	switch CodeOf(err) {
	case ErrorCodeUnavailable,
		ErrorCodeDeadlineExceeded,
		ErrorCodeResourceExhausted,
		ErrorCodeGone,
		ErrorCodeInternal:
		return true
	case ErrorCodeUnknown:
		// Connection resets and similar surface as plain *net.OpError.
		var opErr *net.OpError
		return errors.As(err, &opErr)
	}

	return false
}
