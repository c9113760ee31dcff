package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"library-presence-backend/internal/metrics"
	"library-presence-backend/internal/mw"
)

// RouterOptions configures the HTTP surface.
type RouterOptions struct {
	RateLimit rate.Limit
	Burst     int
	CacheTTL  time.Duration
	Recorder  metrics.Recorder
	// Gatherer serves /metrics when set.
	Gatherer prometheus.Gatherer
	Logger   zerolog.Logger
}

// NewCache returns the response cache shared by the router and writers that
// need to invalidate it.
func NewCache(ttl time.Duration) *cache.Cache {
	return cache.New(ttl, 2*ttl)
}

// NewRouter creates and configures a new Gin router. responses must be the
// same cache the handler flushes on writes.
func NewRouter(h *Handler, responses *cache.Cache, opts RouterOptions) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), mw.Logger(opts.Logger))

	if opts.Recorder != nil {
		r.Use(mw.Metrics(opts.Recorder))
	}
	if opts.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))
	}
	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	caching := mw.Cache(responses, opts.CacheTTL)

	api := r.Group("/api")
	api.Use(mw.RateLimiter(opts.RateLimit, opts.Burst))
	{
		api.GET("/me", h.GetMe)
		api.PUT("/me", h.PutMe)
		api.POST("/toggle", h.PostToggle)
		api.PUT("/autocheck", h.PutAutoCheck)
		api.DELETE("/autocheck", h.DeleteAutoCheck)

		api.POST("/location", h.PostLocation)
		api.POST("/location/error", h.PostLocationError)

		api.GET("/occupancy", caching, h.GetOccupancy)
		api.GET("/leaderboard", caching, h.GetLeaderboard)
		api.POST("/refresh", h.PostRefresh)
	}

	return r
}
