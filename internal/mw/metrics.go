package mw

import (
	"time"

	"github.com/gin-gonic/gin"

	"library-presence-backend/internal/metrics"
)

// Metrics records request counts and latency per route template.
func Metrics(recorder metrics.Recorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		recorder.RequestServed(route, c.Writer.Status(), time.Since(start))
	}
}
