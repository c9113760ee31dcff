package presence

import (
	"sort"
	"time"
)

// OccupancyEntry is a user currently checked in.
type OccupancyEntry struct {
	UserCode string    `json:"user_code"`
	Since    time.Time `json:"since"`
}

// Elapsed is the raw time spent inside since the latest check-in.
func (e OccupancyEntry) Elapsed(now time.Time) time.Duration {
	if now.Before(e.Since) {
		return 0
	}
	return now.Sub(e.Since)
}

// Occupancy returns every user whose latest event is a check-in, earliest
// arrival first. The log may be in any order; events sharing a timestamp are
// taken in write order, the later one in the slice being the newer, as Reduce
// does.
func Occupancy(events []Event) []OccupancyEntry {
	latest := make(map[string]Event)
	for _, ev := range events {
		cur, seen := latest[ev.UserCode]
		if !seen || !ev.Timestamp.Before(cur.Timestamp) {
			latest[ev.UserCode] = ev
		}
	}

	entries := make([]OccupancyEntry, 0, len(latest))
	for code, ev := range latest {
		if ev.Status != StatusIn {
			continue
		}
		entries = append(entries, OccupancyEntry{UserCode: code, Since: ev.Timestamp})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Since.Equal(entries[j].Since) {
			return entries[i].UserCode < entries[j].UserCode
		}
		return entries[i].Since.Before(entries[j].Since)
	})
	return entries
}
