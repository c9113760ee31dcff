package api

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"

	"library-presence-backend/internal/geofence"
	"library-presence-backend/internal/presence"
	"library-presence-backend/internal/refresh"
	"library-presence-backend/internal/session"
)

// Session is the part of the session controller the API drives.
type Session interface {
	State() session.State
	SetUserCode(ctx context.Context, raw string) (session.State, error)
	Toggle(ctx context.Context) (presence.Status, error)
	EnableAutoCheck(ctx context.Context) error
	DisableAutoCheck(ctx context.Context) error
}

// Views serves the derived occupancy and leaderboard.
type Views interface {
	Snapshot() refresh.Snapshot
	Trigger()
}

// Messages exposes the current transient message.
type Messages interface {
	Latest() (session.Message, bool)
}

// LocationFeed accepts device-side location reports.
type LocationFeed interface {
	Push(s geofence.Sample) error
	PushError(err error)
}

// Handler holds shared dependencies for API handlers.
type Handler struct {
	session  Session
	views    Views
	messages Messages
	feed     LocationFeed
	cache    *cache.Cache
	logger   zerolog.Logger
	now      func() time.Time
}

// NewHandler creates a new API handler. feed may be nil when positions come
// from another source; responses may be nil to disable flushing on writes.
func NewHandler(s Session, views Views, messages Messages, feed LocationFeed, responses *cache.Cache, logger zerolog.Logger) *Handler {
	return &Handler{
		session:  s,
		views:    views,
		messages: messages,
		feed:     feed,
		cache:    responses,
		logger:   logger.With().Str("component", "api").Logger(),
		now:      time.Now,
	}
}

// invalidate drops cached views after a write.
func (h *Handler) invalidate() {
	if h.cache != nil {
		h.cache.Flush()
	}
}
