package store

import (
	"errors"
	"fmt"
)

// Order selects the timestamp order of FetchAll.
type Order int

const (
	Ascending Order = iota
	Descending
)

func (o Order) String() string {
	if o == Descending {
		return "desc"
	}
	return "asc"
}

// ErrInvalidEvent is returned by Append for events that may not be stored.
var ErrInvalidEvent = errors.New("invalid status event")

// Error reports a backend failure of a store operation.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Preference keys persisted by the client.
const (
	PrefUserCode         = "user_code"
	PrefAutoCheckEnabled = "auto_check_enabled"
)
