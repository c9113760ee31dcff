package presence

import (
	"fmt"
	"strings"
	"time"
)

// Status is the check-in state carried by an event.
type Status string

const (
	StatusIn  Status = "in"
	StatusOut Status = "out"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	return s == StatusIn || s == StatusOut
}

// Opposite returns the status a toggle from s would produce.
func (s Status) Opposite() Status {
	if s == StatusIn {
		return StatusOut
	}
	return StatusIn
}

// ParseStatus converts a raw string into a Status.
func ParseStatus(raw string) (Status, error) {
	s := Status(strings.ToLower(strings.TrimSpace(raw)))
	if !s.Valid() {
		return "", fmt.Errorf("unknown status %q", raw)
	}
	return s, nil
}

// Event is a single immutable status change in the log.
type Event struct {
	UserCode  string    `json:"user_code"`
	Status    Status    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// NormalizeCode turns user input into the identity key stored in events.
func NormalizeCode(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}
