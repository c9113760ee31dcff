package presence

import (
	"sort"
	"time"
)

// Session is the reduction of one user's events.
type Session struct {
	UserCode string
	// Accumulated is the sum of all closed in/out intervals.
	Accumulated time.Duration
	// OpenSince is set when the most recent check-in has no matching check-out.
	OpenSince *time.Time
}

// Total returns the accumulated time with any open session counted up to now.
func (s Session) Total(now time.Time) time.Duration {
	total := s.Accumulated
	if s.OpenSince != nil && now.After(*s.OpenSince) {
		total += now.Sub(*s.OpenSince)
	}
	return total
}

// Open reports whether the session has an unmatched check-in.
func (s Session) Open() bool {
	return s.OpenSince != nil
}

// sortAscending returns a copy of events ordered by timestamp, oldest first.
// Ties keep their input order.
func sortAscending(events []Event) []Event {
	sorted := make([]Event, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})
	return sorted
}

// Reduce folds a user's events into a Session. Events may be supplied in any
// order, but events sharing a timestamp must be in write order. A repeated
// check-in replaces the open one, and a check-out with nothing open is ignored.
func Reduce(userCode string, events []Event) Session {
	session := Session{UserCode: userCode}
	var lastCheckin *time.Time

	for _, ev := range sortAscending(events) {
		switch ev.Status {
		case StatusIn:
			ts := ev.Timestamp
			lastCheckin = &ts
		case StatusOut:
			if lastCheckin == nil {
				continue
			}
			if d := ev.Timestamp.Sub(*lastCheckin); d > 0 {
				session.Accumulated += d
			}
			lastCheckin = nil
		}
	}

	session.OpenSince = lastCheckin
	return session
}

// TotalDuration is Reduce followed by Total at now.
func TotalDuration(events []Event, now time.Time) time.Duration {
	return Reduce("", events).Total(now)
}

// groupByUser splits a mixed log into per-user slices, preserving order.
func groupByUser(events []Event) map[string][]Event {
	grouped := make(map[string][]Event)
	for _, ev := range events {
		grouped[ev.UserCode] = append(grouped[ev.UserCode], ev)
	}
	return grouped
}
