package relay

import (
	"errors"
	"fmt"
)

var ErrRelay = errors.New("relay error")

// Error describes a failed publish or retrieve. It matches ErrRelay.
type Error struct {
	Op         string
	URL        string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("relay %s %s: status %d", e.Op, e.URL, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("relay %s %s: %v", e.Op, e.URL, e.Err)
	default:
		return fmt.Sprintf("relay %s %s failed", e.Op, e.URL)
	}
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool { return target == ErrRelay }
