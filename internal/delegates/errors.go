// File: internal/delegates/errors.go
package delegates

import "errors"

// ErrorCode is a structured failure classification reported on actions.
type ErrorCode string

const (
	// -- General Execution Errors --
	ErrCodeExecutionFailure  ErrorCode = "EXECUTION_FAILURE"
	ErrCodeInvalidParameters ErrorCode = "INVALID_PARAMETERS"
	ErrCodeUnknownDelegate   ErrorCode = "UNKNOWN_DELEGATE"
	ErrCodeTimeout           ErrorCode = "TIMEOUT_ERROR"

	// -- Capacity Errors --
	// ErrCodeNoCapacity means the delegate has nobody to hand the work to
	// right now. Worth retrying later.
	ErrCodeNoCapacity ErrorCode = "NO_CAPACITY"

	// -- Internal System Errors --
	ErrCodeDelegatePanic ErrorCode = "DELEGATE_PANIC"
)

// ErrUnknownDelegate is returned when no delegate is registered for a capability.
var ErrUnknownDelegate = errors.New("no delegate registered for capability")

// Error carries a code alongside the failure.
type Error struct {
	Code ErrorCode
	Err  error
}

func (e *Error) Error() string { return string(e.Code) + ": " + e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }

// CodeOf extracts the error code, defaulting to EXECUTION_FAILURE.
func CodeOf(err error) ErrorCode {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	if errors.Is(err, ErrUnknownDelegate) {
		return ErrCodeUnknownDelegate
	}
	return ErrCodeExecutionFailure
}
