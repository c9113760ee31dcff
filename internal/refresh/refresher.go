package refresh

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"library-presence-backend/internal/metrics"
	"library-presence-backend/internal/presence"
	"library-presence-backend/internal/store"
)

// Snapshot is the result of one refresh cycle. When Err is set the views
// are empty and the caller should show an error state.
type Snapshot struct {
	Occupancy   []presence.OccupancyEntry
	Leaderboard []presence.LeaderboardEntry
	ComputedAt  time.Time
	Err         error
}

// ErrNotReady is the Err of the snapshot served before the first cycle.
var ErrNotReady = errors.New("no refresh has completed yet")

// Refresher periodically re-reads the whole event log and recomputes the
// occupancy view and the leaderboard.
type Refresher struct {
	events          store.EventStore
	interval        time.Duration
	leaderboardSize int
	currentUser     func() string
	recorder        metrics.Recorder
	logger          zerolog.Logger
	now             func() time.Time
	onRefresh       func(Snapshot)

	trigger  chan struct{}
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
	started  atomic.Bool

	mu       sync.RWMutex
	snapshot Snapshot
}

// New creates a refresher. currentUser supplies the code flagged on the
// leaderboard and may return an empty string.
func New(events store.EventStore, interval time.Duration, leaderboardSize int, currentUser func() string, recorder metrics.Recorder, logger zerolog.Logger) *Refresher {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if currentUser == nil {
		currentUser = func() string { return "" }
	}
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	return &Refresher{
		events:          events,
		interval:        interval,
		leaderboardSize: leaderboardSize,
		currentUser:     currentUser,
		recorder:        recorder,
		logger:          logger.With().Str("component", "refresh").Logger(),
		now:             time.Now,
		trigger:         make(chan struct{}, 1),
		stop:            make(chan struct{}),
		done:            make(chan struct{}),
		snapshot:        Snapshot{Err: ErrNotReady},
	}
}

// OnRefresh registers fn to run after each cycle has published its snapshot,
// e.g. to drop cached responses built from the previous one. Call it before
// Run.
func (r *Refresher) OnRefresh(fn func(Snapshot)) {
	r.onRefresh = fn
}

// Run refreshes once immediately and then on every tick or trigger until ctx
// is cancelled or Stop is called.
func (r *Refresher) Run(ctx context.Context) {
	if !r.started.CompareAndSwap(false, true) {
		return
	}
	defer close(r.done)
	r.logger.Info().Dur("interval", r.interval).Msg("starting refresh loop")

	r.RefreshOnce(ctx)

	timer := time.NewTimer(r.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info().Msg("refresh loop shutting down")
			return
		case <-r.stop:
			r.logger.Info().Msg("refresh loop stopped")
			return
		case <-r.trigger:
			r.RefreshOnce(ctx)
		case <-timer.C:
			r.RefreshOnce(ctx)
			timer.Reset(r.interval)
		}
	}
}

// Trigger asks for an out-of-cycle refresh. It never blocks.
func (r *Refresher) Trigger() {
	select {
	case r.trigger <- struct{}{}:
	default:
	}
}

// Stop ends the loop started by Run and waits for it to exit. A later Run
// returns immediately.
func (r *Refresher) Stop() {
	r.stopOnce.Do(func() { close(r.stop) })
	if r.started.CompareAndSwap(false, true) {
		close(r.done)
		return
	}
	<-r.done
}

// Snapshot returns the most recent result.
func (r *Refresher) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshot
}

// RefreshOnce recomputes both views. A store failure produces an error
// snapshot and leaves the loop running.
func (r *Refresher) RefreshOnce(ctx context.Context) Snapshot {
	start := time.Now()
	snap := r.compute(ctx)
	r.recorder.RefreshCompleted(time.Since(start), len(snap.Occupancy), snap.Err)

	if snap.Err != nil {
		r.logger.Error().Err(snap.Err).Msg("error loading people")
	} else {
		r.logger.Debug().Int("occupancy", len(snap.Occupancy)).Int("leaderboard", len(snap.Leaderboard)).Msg("refresh complete")
	}

	r.mu.Lock()
	r.snapshot = snap
	r.mu.Unlock()

	if r.onRefresh != nil {
		r.onRefresh(snap)
	}
	return snap
}

func (r *Refresher) compute(ctx context.Context) Snapshot {
	now := r.now()

	// Ascending keeps same-timestamp events in write order for both views.
	events, err := r.events.FetchAll(ctx, store.Ascending)
	if err != nil {
		return Snapshot{ComputedAt: now, Err: err}
	}

	return Snapshot{
		Occupancy:   presence.Occupancy(events),
		Leaderboard: presence.Leaderboard(events, now, r.leaderboardSize, r.currentUser()),
		ComputedAt:  now,
	}
}
