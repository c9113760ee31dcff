package presence

import (
	"sort"
	"time"
)

// DefaultLeaderboardSize is how many users a leaderboard keeps.
const DefaultLeaderboardSize = 10

// Medal marks the first three places.
type Medal string

const (
	MedalNone   Medal = ""
	MedalGold   Medal = "gold"
	MedalSilver Medal = "silver"
	MedalBronze Medal = "bronze"
)

// MedalFor returns the medal for a zero-based rank.
func MedalFor(rank int) Medal {
	switch rank {
	case 0:
		return MedalGold
	case 1:
		return MedalSilver
	case 2:
		return MedalBronze
	default:
		return MedalNone
	}
}

// LeaderboardEntry is one ranked user.
type LeaderboardEntry struct {
	Rank          int           `json:"rank"`
	UserCode      string        `json:"user_code"`
	Total         time.Duration `json:"total"`
	Medal         Medal         `json:"medal,omitempty"`
	IsCurrentUser bool          `json:"is_current_user"`
}

// Leaderboard ranks users by cumulative time, open sessions counted up to now.
// At most size entries are returned; size <= 0 uses DefaultLeaderboardSize.
// currentUser is flagged if it makes the cut, it is never added otherwise.
func Leaderboard(events []Event, now time.Time, size int, currentUser string) []LeaderboardEntry {
	if size <= 0 {
		size = DefaultLeaderboardSize
	}

	grouped := groupByUser(events)
	entries := make([]LeaderboardEntry, 0, len(grouped))
	for code, userEvents := range grouped {
		entries = append(entries, LeaderboardEntry{
			UserCode: code,
			Total:    Reduce(code, userEvents).Total(now),
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Total == entries[j].Total {
			return entries[i].UserCode < entries[j].UserCode
		}
		return entries[i].Total > entries[j].Total
	})

	if len(entries) > size {
		entries = entries[:size]
	}
	for i := range entries {
		entries[i].Rank = i
		entries[i].Medal = MedalFor(i)
		entries[i].IsCurrentUser = currentUser != "" && entries[i].UserCode == currentUser
	}
	return entries
}
