// Package errors defines the shared error taxonomy used across the
// concurrent-aspects framework: invalid arguments, illegal state, timeouts,
// and the thread-framework/shutdown error pair that task execution surfaces.
package errors

import "errors"

var (
	// ErrInvalidArgument indicates a null/empty/range violation caught at a
	// boundary. Raised synchronously, never from inside a goroutine.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrIllegalState indicates an operation attempted in a state that does
	// not permit it: submission after shutdown, reset before shutdown,
	// latch mutation with no active group.
	ErrIllegalState = errors.New("illegal state")

	// ErrTimeout indicates a deadline was exceeded in the timeout
	// controller or a group wait.
	ErrTimeout = errors.New("timed out")
)

// ThreadFrameworkError wraps any failure surfaced out of a thread-managed
// task or a group wait. It preserves the original cause for inspection via
// errors.Unwrap.
type ThreadFrameworkError struct {
	Msg   string
	Cause error
}

func (e *ThreadFrameworkError) Error() string {
	if e.Cause == nil {
		return e.Msg
	}
	return e.Msg + ": " + e.Cause.Error()
}

func (e *ThreadFrameworkError) Unwrap() error {
	return e.Cause
}

// NewThreadFrameworkError wraps cause in a ThreadFrameworkError, unless
// cause is already one (or a ShutdownError), in which case it is returned
// unchanged so group-latch re-raise never double-wraps.
func NewThreadFrameworkError(msg string, cause error) error {
	var sd *ShutdownError
	if errors.As(cause, &sd) {
		return cause
	}
	var tf *ThreadFrameworkError
	if errors.As(cause, &tf) {
		return cause
	}
	return &ThreadFrameworkError{Msg: msg, Cause: cause}
}

// ShutdownError is the distinguished subtype raised by the cooperative
// shutdown check. The group latch re-raises it as-is instead of wrapping
// it into a ThreadFrameworkError.
type ShutdownError struct {
	ThreadFrameworkError
}

// NewShutdownError constructs a ShutdownError carrying msg.
func NewShutdownError(msg string) error {
	return &ShutdownError{ThreadFrameworkError{Msg: msg}}
}

// IsShutdown reports whether err is (or wraps) a ShutdownError.
func IsShutdown(err error) bool {
	var sd *ShutdownError
	return errors.As(err, &sd)
}

// IsTimeout reports whether err is (or wraps) ErrTimeout.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// IsIllegalState reports whether err is (or wraps) ErrIllegalState.
func IsIllegalState(err error) bool {
	return errors.Is(err, ErrIllegalState)
}

// IsInvalidArgument reports whether err is (or wraps) ErrInvalidArgument.
func IsInvalidArgument(err error) bool {
	return errors.Is(err, ErrInvalidArgument)
}
