package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"library-presence-backend/internal/geofence"
	"library-presence-backend/internal/presence"
	"library-presence-backend/internal/session"
)

type meResponse struct {
	session.State
	StatusText string           `json:"status_text"`
	Action     string           `json:"action"`
	Message    *session.Message `json:"message,omitempty"`
}

func (h *Handler) meResponse() meResponse {
	state := h.session.State()
	resp := meResponse{State: state, StatusText: "Not in Library", Action: "Check In"}
	if state.Status == presence.StatusIn {
		resp.StatusText = "In Library"
		resp.Action = "Check Out"
	}
	if msg, ok := h.messages.Latest(); ok {
		resp.Message = &msg
	}
	return resp
}

// GetMe handles GET /api/me.
func (h *Handler) GetMe(c *gin.Context) {
	c.JSON(http.StatusOK, h.meResponse())
}

type putMeRequest struct {
	UserCode string `json:"user_code"`
}

// PutMe handles PUT /api/me, setting the user code.
func (h *Handler) PutMe(c *gin.Context) {
	var req putMeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	if _, err := h.session.SetUserCode(c.Request.Context(), req.UserCode); err != nil {
		if errors.Is(err, session.ErrEmptyUserCode) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Please enter a code"})
			return
		}
		h.logger.Error().Err(err).Msg("failed to set user code")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save user code"})
		return
	}

	h.invalidate()
	c.JSON(http.StatusOK, h.meResponse())
}

// PostToggle handles POST /api/toggle.
func (h *Handler) PostToggle(c *gin.Context) {
	_, err := h.session.Toggle(c.Request.Context())
	h.invalidate()
	switch {
	case errors.Is(err, session.ErrNoUserCode):
		c.JSON(http.StatusConflict, gin.H{"error": "Set a user code first"})
	case err != nil:
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":  "Error updating status. Please try again.",
			"status": h.session.State().Status,
		})
	default:
		c.JSON(http.StatusOK, h.meResponse())
	}
}

// PutAutoCheck handles PUT /api/autocheck.
func (h *Handler) PutAutoCheck(c *gin.Context) {
	err := h.session.EnableAutoCheck(c.Request.Context())
	var permErr *session.PermissionError
	switch {
	case errors.Is(err, session.ErrNoUserCode):
		c.JSON(http.StatusConflict, gin.H{"error": "Set a user code first"})
	case errors.As(err, &permErr):
		c.JSON(http.StatusForbidden, gin.H{"error": geofence.Message(permErr.Err), "auto_check": false})
	case err != nil:
		h.logger.Error().Err(err).Msg("failed to enable auto check")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to enable auto check-in"})
	default:
		c.JSON(http.StatusOK, h.meResponse())
	}
}

// DeleteAutoCheck handles DELETE /api/autocheck.
func (h *Handler) DeleteAutoCheck(c *gin.Context) {
	if err := h.session.DisableAutoCheck(c.Request.Context()); err != nil {
		h.logger.Error().Err(err).Msg("failed to persist auto check preference")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to disable auto check-in"})
		return
	}
	c.JSON(http.StatusOK, h.meResponse())
}
