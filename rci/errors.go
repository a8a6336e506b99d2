package rci

import (
	"errors"
	"fmt"
)

// ErrSessionExpired is matched by a TransportError whose reply was a
// redirect: the router bounced the request to its login page.
var ErrSessionExpired = errors.New("rci: session expired (redirected)")

// TransportError is returned when the request could not be completed or the
// router answered with a non-2xx status.
type TransportError struct {
	Command    string
	Status     int
	Redirected bool
	Location   string
	Err        error
}

func (e *TransportError) Error() string {
	switch {
	case e.Redirected:
		return fmt.Sprintf("rci: %q redirected (status %d, location %q)", e.Command, e.Status, e.Location)
	case e.Err != nil && e.Status != 0:
		return fmt.Sprintf("rci: %q status %d: %v", e.Command, e.Status, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("rci: %q: %v", e.Command, e.Err)
	}
	return fmt.Sprintf("rci: %q status %d", e.Command, e.Status)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrSessionExpired) match redirected replies.
func (e *TransportError) Is(target error) bool {
	return target == ErrSessionExpired && e.Redirected
}

// ParseError is returned when a reply does not have the expected shape.
type ParseError struct {
	Command string
	Reason  string
	Err     error
}

func (e *ParseError) Error() string {
	msg := "rci: " + e.Reason
	if e.Command != "" {
		msg = fmt.Sprintf("rci: %q: %s", e.Command, e.Reason)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ParseError) Unwrap() error { return e.Err }
