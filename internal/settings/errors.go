package settings

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUserNotFound is returned when the account does not exist.
var ErrUserNotFound = errors.New("user not found")

// ConfigError reports a stored filter or profile document that could not be
// used. The accompanying value is always a usable fallback.
type ConfigError struct {
	Document string
	Problems []string
	Cause    error
}

func (e *ConfigError) Error() string {
	msg := fmt.Sprintf("invalid %s", e.Document)
	if len(e.Problems) > 0 {
		msg += ": " + strings.Join(e.Problems, "; ")
	}
	if e.Cause != nil {
		msg += fmt.Sprintf(": %v", e.Cause)
	}
	return msg
}

func (e *ConfigError) Unwrap() error {
	return e.Cause
}
