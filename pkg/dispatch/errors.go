package dispatch

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound reports that a recipient has no registered push address.
	ErrNotFound = errors.New("address not found")

	// ErrPermissionDenied reports a caller without the privilege required
	// for the operation.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrInvalidArgument reports a malformed request.
	ErrInvalidArgument = errors.New("invalid argument")
)

// ErrorKind classifies a delivery failure. Only KindInvalidAddress marks an
// address as dead; KindInvalidPayload is a content rejection and says nothing
// about the address.
type ErrorKind string

const (
	KindInvalidAddress     ErrorKind = "invalid_address"
	KindInvalidPayload     ErrorKind = "invalid_payload"
	KindThrottled          ErrorKind = "gateway_throttled"
	KindGatewayUnavailable ErrorKind = "gateway_unavailable"
	KindCancelled          ErrorKind = "cancelled"
	KindUnknown            ErrorKind = "unknown"
)

// SendError is returned by Gateway.SendOne when a message was not delivered.
type SendError struct {
	Kind ErrorKind
	Err  error
}

func (e *SendError) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

// NewSendError wraps err with kind.
func NewSendError(kind ErrorKind, err error) *SendError {
	return &SendError{Kind: kind, Err: err}
}

// KindOf extracts the failure kind of err. Errors that are not SendErrors
// are reported as KindUnknown; nil has no kind.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var se *SendError
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindUnknown
}
