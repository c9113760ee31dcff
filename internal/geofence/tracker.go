package geofence

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"library-presence-backend/internal/presence"
)

// State is the lifecycle state of a Tracker.
type State int

const (
	StateDisabled State = iota
	StateTracking
)

func (s State) String() string {
	if s == StateTracking {
		return "tracking"
	}
	return "disabled"
}

// Recorder receives tracker observations, typically for metrics.
type Recorder interface {
	GeofenceSample(inside bool, distanceMeters float64)
	GeofenceTransition(to presence.Status)
}

type nopRecorder struct{}

func (nopRecorder) GeofenceSample(bool, float64)        {}
func (nopRecorder) GeofenceTransition(presence.Status) {}

// Decide applies the hysteresis rule: a transition happens only when the
// sample crosses the boundary relative to the last committed status.
func Decide(inside bool, last presence.Status) (presence.Status, bool) {
	switch {
	case inside && last == presence.StatusOut:
		return presence.StatusIn, true
	case !inside && last == presence.StatusIn:
		return presence.StatusOut, true
	default:
		return last, false
	}
}

// Handlers are the callbacks a Tracker drives while tracking.
type Handlers struct {
	// OnTransition is called after the tracker decides on a check-in or check-out.
	OnTransition func(to presence.Status)
	// OnError is called for location errors. Tracking continues.
	OnError func(err error)
}

// Tracker turns location samples into automatic check-in and check-out
// transitions for a single fence.
type Tracker struct {
	fence    Fence
	provider Provider
	opts     Options
	logger   zerolog.Logger
	recorder Recorder

	// lifecycle serialises Enable and Disable.
	lifecycle sync.Mutex

	mu       sync.Mutex
	state    State
	last     presence.Status
	sub      Subscription
	handlers Handlers
}

// NewTracker creates a disabled tracker.
func NewTracker(fence Fence, provider Provider, opts Options, logger zerolog.Logger, recorder Recorder) *Tracker {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Tracker{
		fence:    fence,
		provider: provider,
		opts:     opts,
		logger:   logger.With().Str("component", "geofence").Logger(),
		recorder: recorder,
		state:    StateDisabled,
		last:     presence.StatusOut,
	}
}

// Enable probes for location access and, if granted, starts the continuous
// subscription. last is the currently committed status. On any failure the
// tracker stays disabled and the error is returned.
func (t *Tracker) Enable(ctx context.Context, last presence.Status, h Handlers) error {
	t.lifecycle.Lock()
	defer t.lifecycle.Unlock()

	if t.State() == StateTracking {
		t.Sync(last)
		return nil
	}

	if _, err := t.provider.Probe(ctx, t.opts); err != nil {
		t.logger.Warn().Err(err).Msg("location probe failed, auto check stays disabled")
		return fmt.Errorf("probe location: %w", err)
	}

	t.mu.Lock()
	t.state = StateTracking
	t.last = last
	t.handlers = h
	t.mu.Unlock()

	sub, err := t.provider.Subscribe(t.handleSample, t.handleError, t.opts)
	if err != nil {
		t.mu.Lock()
		t.state = StateDisabled
		t.handlers = Handlers{}
		t.mu.Unlock()
		return fmt.Errorf("subscribe to location: %w", err)
	}

	t.mu.Lock()
	t.sub = sub
	t.mu.Unlock()

	t.logger.Info().
		Float64("lat", t.fence.Center.Lat).
		Float64("lon", t.fence.Center.Lon).
		Float64("radius_m", t.fence.RadiusMeters).
		Msg("geofence tracking enabled")
	return nil
}

// Disable stops tracking. When it returns no further samples are processed.
func (t *Tracker) Disable() {
	t.lifecycle.Lock()
	defer t.lifecycle.Unlock()

	t.mu.Lock()
	if t.state == StateDisabled {
		t.mu.Unlock()
		return
	}
	t.state = StateDisabled
	sub := t.sub
	t.sub = nil
	t.handlers = Handlers{}
	t.mu.Unlock()

	if sub != nil {
		t.provider.Unsubscribe(sub)
	}
	t.logger.Info().Msg("geofence tracking disabled")
}

// State returns the current lifecycle state.
func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Last returns the status the tracker currently believes is committed.
func (t *Tracker) Last() presence.Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last
}

// Sync overwrites the last known status, e.g. after a manual toggle or a
// reconciliation with the store.
func (t *Tracker) Sync(status presence.Status) {
	t.mu.Lock()
	t.last = status
	t.mu.Unlock()
}

// Observe evaluates one position. It returns the new status and true when a
// boundary crossing happened. The last known status is updated immediately,
// before any write of the transition is confirmed.
func (t *Tracker) Observe(c Coordinate) (presence.Status, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != StateTracking {
		return t.last, false
	}

	distance := Distance(t.fence.Center, c)
	inside := distance <= t.fence.RadiusMeters
	t.recorder.GeofenceSample(inside, distance)

	next, changed := Decide(inside, t.last)
	if changed {
		t.last = next
		t.recorder.GeofenceTransition(next)
	}
	return next, changed
}

func (t *Tracker) handleSample(s Sample) {
	next, changed := t.Observe(s.Coordinate)
	if !changed {
		return
	}

	t.mu.Lock()
	onTransition := t.handlers.OnTransition
	t.mu.Unlock()

	t.logger.Info().Str("status", string(next)).Float64("lat", s.Lat).Float64("lon", s.Lon).Msg("geofence boundary crossed")
	if onTransition != nil {
		onTransition(next)
	}
}

func (t *Tracker) handleError(err error) {
	t.mu.Lock()
	tracking := t.state == StateTracking
	onError := t.handlers.OnError
	t.mu.Unlock()

	if !tracking {
		return
	}
	t.logger.Warn().Err(err).Msg("location error while tracking")
	if onError != nil {
		onError(err)
	}
}
