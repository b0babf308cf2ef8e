package protocol

import (
	"errors"
	"fmt"
)

// TimeoutError reports that no reply arrived within the deadline. It carries
// the command name so callers can tell which exchange stalled.
type TimeoutError struct {
	Command string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("command %q timed out waiting for reply", e.Command)
}

// RemoteError is an explicit error string carried in a reply envelope. The
// message is propagated verbatim.
type RemoteError struct {
	Command string
	Message string
}

func (e *RemoteError) Error() string {
	return e.Message
}

// NotReadyError reports that readiness polling exhausted its deadline. Last is
// the final underlying probe failure.
type NotReadyError struct {
	Last error
}

func (e *NotReadyError) Error() string {
	if e.Last != nil {
		return fmt.Sprintf("remote context not ready: %v", e.Last)
	}
	return "remote context not ready"
}

func (e *NotReadyError) Unwrap() error { return e.Last }

// IsTimeout reports whether err is a command timeout.
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}

// IsNotReady reports whether err is a readiness deadline failure. Callers use
// this to trigger a one-time reload-and-retry instead of surfacing a hard error.
func IsNotReady(err error) bool {
	var ne *NotReadyError
	return errors.As(err, &ne)
}
