package errors

import (
	sterrors "errors"
	"fmt"
	"time"
)

var (
	ErrConfigRequired      = sterrors.New("runtimeclient: configuration is required")
	ErrLoggerRequired      = sterrors.New("runtimeclient: logger is required")
	ErrClientRequired      = sterrors.New("runtimeclient: client is required")
	ErrClientStarted       = sterrors.New("runtimeclient: client is already started")
	ErrDuplicateProcessor  = sterrors.New("runtimeclient: processor is already registered")
	ErrHandlerRequired     = sterrors.New("runtimeclient: handler function is required")
	ErrProcessorIDRequired = sterrors.New("runtimeclient: processor id is required")
	ErrUnknownTransport    = sterrors.New("runtimeclient: unknown runtime transport")

	ErrContentTypeRequired  = sterrors.New("runtimeclient: content type must be a concrete type")
	ErrContentPointerNeeded = sterrors.New("runtimeclient: content type must be a pointer")

	ErrCallerRequired      = sterrors.New("runtimeclient: method caller is required")
	ErrProtocolRequired    = sterrors.New("runtimeclient: protocol is required")
	ErrInvalidPingInterval = sterrors.New("runtimeclient: ping interval must be positive")

	ErrAlreadyConnecting      = sterrors.New("runtimeclient: reverse call client is already connecting")
	ErrNotConnected           = sterrors.New("runtimeclient: reverse call client is not connected")
	ErrAlreadyHandling        = sterrors.New("runtimeclient: reverse call client is already handling requests")
	ErrNotHandling            = sterrors.New("runtimeclient: reverse call client is not handling requests")
	ErrClientClosed           = sterrors.New("runtimeclient: reverse call client is closed")
	ErrDisconnectNotSupported = sterrors.New("runtimeclient: protocol does not support disconnect")

	ErrPingTimedOut    = sterrors.New("runtimeclient: ping timed out")
	ErrCouldNotConnect = sterrors.New("runtimeclient: could not connect to the runtime")
	ErrConnectFailed   = sterrors.New("runtimeclient: connect did not receive a response")
	ErrProcessingEnded = sterrors.New("runtimeclient: processing ended")

	ErrCoordinatorSealed = sterrors.New("runtimeclient: processing coordinator does not accept new processors")
	ErrCoordinatorClosed = sterrors.New("runtimeclient: processing coordinator closed")
)

// IsMisuse reports whether err signals a programming error in how a reverse
// call client was driven. Such errors are never worth retrying.
func IsMisuse(err error) bool {
	switch {
	case sterrors.Is(err, ErrAlreadyConnecting),
		sterrors.Is(err, ErrNotConnected),
		sterrors.Is(err, ErrAlreadyHandling),
		sterrors.Is(err, ErrInvalidPingInterval),
		sterrors.Is(err, ErrCallerRequired),
		sterrors.Is(err, ErrProtocolRequired):
		return true
	default:
		return false
	}
}

// ConfigValidationError wraps the joined result of Config.Validate.
type ConfigValidationError struct {
	Err error
}

func (e ConfigValidationError) Error() string {
	return "runtimeclient: invalid configuration: " + e.Err.Error()
}

func (e ConfigValidationError) Unwrap() error { return e.Err }

// NewConfigValidationError returns nil when err is nil.
func NewConfigValidationError(err error) error {
	if err == nil {
		return nil
	}
	return ConfigValidationError{Err: err}
}

// PingTimedOutError is returned by Handle when no message arrived from the
// Runtime within the keepalive deadline.
type PingTimedOutError struct {
	PingInterval time.Duration
	Deadline     time.Duration
}

func (e *PingTimedOutError) Error() string {
	return fmt.Sprintf("runtimeclient: ping timed out, no message received within %s (ping interval %s)", e.Deadline, e.PingInterval)
}

func (e *PingTimedOutError) Is(target error) bool { return target == ErrPingTimedOut }

// CouldNotConnectError is returned by method callers when the Runtime is not
// reachable.
type CouldNotConnectError struct {
	Target string
	Err    error
}

func (e *CouldNotConnectError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("runtimeclient: could not connect to the runtime at %s", e.Target)
	}
	return fmt.Sprintf("runtimeclient: could not connect to the runtime at %s: %v", e.Target, e.Err)
}

func (e *CouldNotConnectError) Unwrap() error { return e.Err }

func (e *CouldNotConnectError) Is(target error) bool { return target == ErrCouldNotConnect }

// RegistrationFailedError carries the failure the Runtime returned in a
// connect response.
type RegistrationFailedError struct {
	Processor string
	FailureID string
	Reason    string
}

func (e *RegistrationFailedError) Error() string {
	return fmt.Sprintf("runtimeclient: registration of %s failed: %s (%s)", e.Processor, e.Reason, e.FailureID)
}

// ProcessingError reports which registered processing loop failed first.
type ProcessingError struct {
	Name string
	Err  error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("runtimeclient: processing %q failed: %v", e.Name, e.Err)
}

func (e *ProcessingError) Unwrap() error { return e.Err }
