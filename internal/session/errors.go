package session

import (
	"errors"
	"fmt"
)

// ErrDriverClosed is returned by operations on a session after Cleanup.
var ErrDriverClosed = errors.New("session closed")

// FatalError is a failure the session cannot recover from by itself: the
// listings page never appeared, or the browser went away. The bot answers it
// by discarding the session and creating a new one.
type FatalError struct {
	Op      string
	Message string
	Cause   error
}

func (e *FatalError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("session %s: %s: %v", e.Op, e.Message, e.Cause)
	}
	return fmt.Sprintf("session %s: %s", e.Op, e.Message)
}

func (e *FatalError) Unwrap() error {
	return e.Cause
}

// IsFatal reports whether err is (or wraps) a *FatalError or ErrDriverClosed.
func IsFatal(err error) bool {
	var fatal *FatalError
	return errors.As(err, &fatal) || errors.Is(err, ErrDriverClosed)
}
