package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"library-presence-backend/internal/geofence"
)

type locationRequest struct {
	Lat       *float64  `json:"lat" binding:"required"`
	Lon       *float64  `json:"lon" binding:"required"`
	Accuracy  float64   `json:"accuracy"`
	Timestamp time.Time `json:"timestamp"`
}

// PostLocation handles POST /api/location, feeding a device position to the
// tracker.
func (h *Handler) PostLocation(c *gin.Context) {
	if h.feed == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "location feed is not enabled"})
		return
	}

	var req locationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	if *req.Lat < -90 || *req.Lat > 90 || *req.Lon < -180 || *req.Lon > 180 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "coordinates out of range"})
		return
	}

	sample := geofence.Sample{
		Coordinate:     geofence.Coordinate{Lat: *req.Lat, Lon: *req.Lon},
		AccuracyMeters: req.Accuracy,
		Timestamp:      req.Timestamp,
	}
	if err := h.feed.Push(sample); err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": geofence.Message(err)})
		return
	}
	c.Status(http.StatusAccepted)
}

type locationErrorRequest struct {
	Code string `json:"code" binding:"required"`
}

// PostLocationError handles POST /api/location/error, forwarding a
// device-side failure.
func (h *Handler) PostLocationError(c *gin.Context) {
	if h.feed == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "location feed is not enabled"})
		return
	}

	var req locationErrorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	switch req.Code {
	case "denied":
		h.feed.PushError(geofence.ErrPermissionDenied)
	case "unavailable":
		h.feed.PushError(geofence.ErrPositionUnavailable)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown error code"})
		return
	}
	c.Status(http.StatusAccepted)
}
