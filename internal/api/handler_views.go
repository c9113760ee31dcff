package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"library-presence-backend/internal/presence"
)

type occupancyItem struct {
	UserCode       string    `json:"user_code"`
	Since          time.Time `json:"since"`
	ElapsedSeconds int64     `json:"elapsed_seconds"`
	Elapsed        string    `json:"elapsed"`
}

type occupancyResponse struct {
	Count      int             `json:"count"`
	People     []occupancyItem `json:"people"`
	Message    string          `json:"message,omitempty"`
	ComputedAt time.Time       `json:"computed_at"`
}

// GetOccupancy handles GET /api/occupancy.
func (h *Handler) GetOccupancy(c *gin.Context) {
	snap := h.views.Snapshot()
	if snap.Err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Error loading data"})
		return
	}

	now := h.now()
	resp := occupancyResponse{
		Count:      len(snap.Occupancy),
		People:     make([]occupancyItem, 0, len(snap.Occupancy)),
		ComputedAt: snap.ComputedAt,
	}
	for _, e := range snap.Occupancy {
		elapsed := e.Elapsed(now)
		resp.People = append(resp.People, occupancyItem{
			UserCode:       e.UserCode,
			Since:          e.Since,
			ElapsedSeconds: int64(elapsed / time.Second),
			Elapsed:        presence.FormatDuration(elapsed),
		})
	}
	if resp.Count == 0 {
		resp.Message = "No one is currently in the library"
	}

	c.JSON(http.StatusOK, resp)
}

type leaderboardItem struct {
	Rank          int            `json:"rank"`
	UserCode      string         `json:"user_code"`
	TotalSeconds  int64          `json:"total_seconds"`
	Total         string         `json:"total"`
	Medal         presence.Medal `json:"medal,omitempty"`
	IsCurrentUser bool           `json:"is_current_user"`
}

// GetLeaderboard handles GET /api/leaderboard.
func (h *Handler) GetLeaderboard(c *gin.Context) {
	snap := h.views.Snapshot()
	if snap.Err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Error loading data"})
		return
	}

	items := make([]leaderboardItem, 0, len(snap.Leaderboard))
	for _, e := range snap.Leaderboard {
		items = append(items, leaderboardItem{
			Rank:          e.Rank,
			UserCode:      e.UserCode,
			TotalSeconds:  int64(e.Total / time.Second),
			Total:         presence.FormatDuration(e.Total),
			Medal:         e.Medal,
			IsCurrentUser: e.IsCurrentUser,
		})
	}

	c.JSON(http.StatusOK, gin.H{"entries": items, "computed_at": snap.ComputedAt})
}

// PostRefresh handles POST /api/refresh, asking for an immediate recompute.
func (h *Handler) PostRefresh(c *gin.Context) {
	h.views.Trigger()
	h.invalidate()
	c.Status(http.StatusAccepted)
}
