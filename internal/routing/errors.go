package routing

import (
	"errors"
	"fmt"
)

var (
	ErrNoRoute   = errors.New("no route returned")
	ErrMalformed = errors.New("malformed directions response")
)

// Error wraps every failure of a directions lookup. Callers treat it as
// transient.
type Error struct {
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("routing: upstream status %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("routing: %v", e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
