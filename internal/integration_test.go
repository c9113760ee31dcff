package internal

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"library-presence-backend/config"
	"library-presence-backend/internal/api"
	"library-presence-backend/internal/db"
	"library-presence-backend/internal/geofence"
	"library-presence-backend/internal/presence"
	"library-presence-backend/internal/refresh"
	"library-presence-backend/internal/session"
	"library-presence-backend/internal/store"
)

var library = geofence.Coordinate{Lat: 52.0116, Lon: 4.3571}

// outside is roughly 1.1 km north of the library.
var outside = geofence.Coordinate{Lat: 52.0216, Lon: 4.3571}

type stack struct {
	events     *store.GormStore
	feed       *geofence.FeedProvider
	tracker    *geofence.Tracker
	controller *session.Controller
	refresher  *refresh.Refresher
	router     *gin.Engine
}

func newStack(t *testing.T) *stack {
	t.Helper()
	gin.SetMode(gin.TestMode)

	gormDB, err := db.Init(&config.DatabaseConfig{
		Driver:       "sqlite",
		DSN:          filepath.Join(t.TempDir(), "presence.db"),
		MaxOpenConns: 1,
	}, zerolog.Nop())
	require.NoError(t, err)
	sqlDB, _ := gormDB.DB()
	t.Cleanup(func() { sqlDB.Close() })

	s := &stack{events: store.NewGormStore(gormDB), feed: geofence.NewFeedProvider(true)}
	s.tracker = geofence.NewTracker(geofence.Fence{Center: library, RadiusMeters: 50}, s.feed, geofence.Options{
		MaxSampleAge: time.Minute,
		Timeout:      time.Second,
	}, zerolog.Nop(), nil)
	t.Cleanup(s.tracker.Disable)

	responses := api.NewCache(time.Minute)
	board := session.NewMessageBoard(time.Minute)
	s.controller = session.NewController(session.Deps{
		Events:   s.events,
		Prefs:    s.events,
		Tracker:  s.tracker,
		Notifier: board,
		Logger:   zerolog.Nop(),
		OnChange: responses.Flush,
	})
	s.refresher = refresh.New(s.events, time.Hour, 10, s.controller.UserCode, nil, zerolog.Nop())
	s.refresher.OnRefresh(func(refresh.Snapshot) { responses.Flush() })

	h := api.NewHandler(s.controller, s.refresher, board, s.feed, responses, zerolog.Nop())
	s.router = api.NewRouter(h, responses, api.RouterOptions{
		RateLimit: rate.Inf,
		Burst:     1,
		CacheTTL:  time.Minute,
		Logger:    zerolog.Nop(),
	})
	return s
}

func (s *stack) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	s.router.ServeHTTP(w, req)
	return w
}

func (s *stack) latest(t *testing.T, code string) presence.Status {
	t.Helper()
	ev, err := s.events.FetchLatestFor(context.Background(), code)
	require.NoError(t, err)
	if ev == nil {
		return ""
	}
	return ev.Status
}

// TestManualLifecycle drives identity setup and manual toggles through the
// HTTP API against a real sqlite store.
func TestManualLifecycle(t *testing.T) {
	s := newStack(t)

	w := s.do(t, http.MethodPost, "/api/toggle", "")
	assert.Equal(t, http.StatusConflict, w.Code, "toggle needs an identity")

	w = s.do(t, http.MethodPut, "/api/me", `{"user_code":"  alice "}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"user_code":"ALICE"`)

	t.Run("check in", func(t *testing.T) {
		w := s.do(t, http.MethodPost, "/api/toggle", "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"status":"in"`)
		assert.Equal(t, presence.StatusIn, s.latest(t, "ALICE"))

		snap := s.refresher.RefreshOnce(context.Background())
		require.NoError(t, snap.Err)
		require.Len(t, snap.Occupancy, 1)
		assert.Equal(t, "ALICE", snap.Occupancy[0].UserCode)
		require.Len(t, snap.Leaderboard, 1)
		assert.True(t, snap.Leaderboard[0].IsCurrentUser)
		assert.Equal(t, presence.MedalGold, snap.Leaderboard[0].Medal)

		w = s.do(t, http.MethodGet, "/api/occupancy", "")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"count":1`)
	})

	t.Run("check out", func(t *testing.T) {
		w := s.do(t, http.MethodPost, "/api/toggle", "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"status":"out"`)

		s.refresher.RefreshOnce(context.Background())
		w = s.do(t, http.MethodGet, "/api/occupancy", "")
		assert.Contains(t, w.Body.String(), `"message":"No one is currently in the library"`)

		all, err := s.events.FetchAll(context.Background(), store.Ascending)
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.Equal(t, presence.StatusIn, all[0].Status)
		assert.Equal(t, presence.StatusOut, all[1].Status)
	})

	t.Run("identity survives restart", func(t *testing.T) {
		restarted := session.NewController(session.Deps{
			Events: s.events,
			Prefs:  s.events,
			Logger: zerolog.Nop(),
		})
		require.NoError(t, restarted.Restore(context.Background()))
		assert.Equal(t, "ALICE", restarted.UserCode())
		assert.Equal(t, presence.StatusOut, restarted.State().Status)
	})
}

// TestGeofenceLifecycle walks a device in and out of the fence via posted
// location samples.
func TestGeofenceLifecycle(t *testing.T) {
	s := newStack(t)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPut, "/api/me", `{"user_code":"bob"}`).Code)

	// The probe needs a fresh sample before tracking can start.
	require.Equal(t, http.StatusAccepted, s.do(t, http.MethodPost, "/api/location", `{"lat":52.0216,"lon":4.3571}`).Code)
	w := s.do(t, http.MethodPut, "/api/autocheck", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"tracking":true`)

	require.NoError(t, s.feed.Push(geofence.Sample{Coordinate: library}))
	assert.Eventually(t, func() bool { return s.latest(t, "BOB") == presence.StatusIn }, 2*time.Second, 10*time.Millisecond)

	// Staying inside does not write again.
	require.NoError(t, s.feed.Push(geofence.Sample{Coordinate: library}))

	require.NoError(t, s.feed.Push(geofence.Sample{Coordinate: outside}))
	assert.Eventually(t, func() bool { return s.latest(t, "BOB") == presence.StatusOut }, 2*time.Second, 10*time.Millisecond)

	require.Equal(t, http.StatusOK, s.do(t, http.MethodDelete, "/api/autocheck", "").Code)
	require.NoError(t, s.feed.Push(geofence.Sample{Coordinate: library}))
	time.Sleep(50 * time.Millisecond)

	all, err := s.events.FetchAll(context.Background(), store.Ascending)
	require.NoError(t, err)
	statuses := make([]presence.Status, 0, len(all))
	for _, ev := range all {
		statuses = append(statuses, ev.Status)
	}
	assert.Equal(t, []presence.Status{presence.StatusIn, presence.StatusOut}, statuses)
}

// TestRecomputeReplacesCachedView covers a view cached between a write and
// the recompute it triggers.
func TestRecomputeReplacesCachedView(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()

	s.refresher.RefreshOnce(ctx)
	w := s.do(t, http.MethodGet, "/api/occupancy", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"count":0`)

	require.NoError(t, s.events.Append(ctx, presence.Event{UserCode: "CAROL", Status: presence.StatusIn, Timestamp: time.Now().UTC()}))
	w = s.do(t, http.MethodGet, "/api/occupancy", "")
	assert.Equal(t, "HIT", w.Header().Get("X-Cache"))
	assert.Contains(t, w.Body.String(), `"count":0`)

	s.refresher.RefreshOnce(ctx)
	w = s.do(t, http.MethodGet, "/api/occupancy", "")
	assert.Equal(t, "MISS", w.Header().Get("X-Cache"))
	assert.Contains(t, w.Body.String(), `"count":1`)
}
