// Package listings turns a rendered listings page into listing records and
// decides which of them match a user's filter.
package listings

import "fmt"

// ItemError reports a listing item that had to be skipped because it has no
// usable detail link.
type ItemError struct {
	Index   int
	Message string
	Cause   error
}

func (e *ItemError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("listing item %d: %s: %v", e.Index, e.Message, e.Cause)
	}
	return fmt.Sprintf("listing item %d: %s", e.Index, e.Message)
}

func (e *ItemError) Unwrap() error {
	return e.Cause
}

// ParseError represents a failure to parse the page itself.
type ParseError struct {
	Message string
	Cause   error
}

func (e *ParseError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("parse error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("parse error: %s", e.Message)
}

func (e *ParseError) Unwrap() error {
	return e.Cause
}
