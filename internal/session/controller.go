package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"library-presence-backend/internal/geofence"
	"library-presence-backend/internal/metrics"
	"library-presence-backend/internal/presence"
	"library-presence-backend/internal/store"
)

var (
	// ErrEmptyUserCode is returned when the supplied code is blank.
	ErrEmptyUserCode = errors.New("user code must not be empty")
	// ErrNoUserCode is returned by operations that need an identity first.
	ErrNoUserCode = errors.New("no user code set")
)

// PermissionError reports that auto check-in could not be enabled because
// location access failed. The preference has already been rolled back.
type PermissionError struct {
	Err error
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("auto check unavailable: %v", e.Err)
}

func (e *PermissionError) Unwrap() error {
	return e.Err
}

// Write sources recorded with each event.
const (
	SourceManual   = "manual"
	SourceGeofence = "geofence"
)

const autoWriteTimeout = 10 * time.Second

// Deps are the collaborators of a Controller.
type Deps struct {
	Events   store.EventStore
	Prefs    store.PreferenceStore
	Tracker  *geofence.Tracker
	Notifier Notifier
	Recorder metrics.Recorder
	Logger   zerolog.Logger
	// OnChange is called after every write attempt, e.g. to trigger a refresh.
	OnChange func()
}

// State is a point-in-time view of the session.
type State struct {
	UserCode  string          `json:"user_code"`
	Status    presence.Status `json:"status"`
	AutoCheck bool            `json:"auto_check"`
	Tracking  bool            `json:"tracking"`
}

// Controller owns the client session: the identity, the cached current
// status and the geofence tracker. Writes are serialised so a manual toggle
// and an automatic transition never act on the same prior status.
type Controller struct {
	events   store.EventStore
	prefs    store.PreferenceStore
	tracker  *geofence.Tracker
	notifier Notifier
	recorder metrics.Recorder
	logger   zerolog.Logger
	onChange func()
	now      func() time.Time

	// writeMu is held for the whole append and reconcile of one write.
	writeMu sync.Mutex

	mu        sync.RWMutex
	userCode  string
	status    presence.Status
	autoCheck bool
}

// NewController creates a controller with no identity and status out.
func NewController(d Deps) *Controller {
	c := &Controller{
		events:   d.Events,
		prefs:    d.Prefs,
		tracker:  d.Tracker,
		notifier: d.Notifier,
		recorder: d.Recorder,
		logger:   d.Logger.With().Str("component", "session").Logger(),
		onChange: d.OnChange,
		now:      time.Now,
		status:   presence.StatusOut,
	}
	if c.notifier == nil {
		c.notifier = nopNotifier{}
	}
	if c.recorder == nil {
		c.recorder = metrics.Nop{}
	}
	if c.onChange == nil {
		c.onChange = func() {}
	}
	return c
}

// State returns the current session view.
func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return State{
		UserCode:  c.userCode,
		Status:    c.status,
		AutoCheck: c.autoCheck,
		Tracking:  c.tracker != nil && c.tracker.State() == geofence.StateTracking,
	}
}

// UserCode returns the current identity, empty when none is set.
func (c *Controller) UserCode() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userCode
}

// Restore loads the persisted identity and auto check preference.
func (c *Controller) Restore(ctx context.Context) error {
	code, ok, err := c.prefs.Get(ctx, store.PrefUserCode)
	if err != nil {
		return fmt.Errorf("load user code: %w", err)
	}
	if !ok || code == "" {
		c.logger.Info().Msg("no stored user code, waiting for setup")
		return nil
	}

	c.mu.Lock()
	c.userCode = code
	c.mu.Unlock()
	c.logger.Info().Str("user_code", code).Msg("restored user code")

	c.LoadCurrentStatus(ctx)

	raw, ok, err := c.prefs.Get(ctx, store.PrefAutoCheckEnabled)
	if err != nil {
		return fmt.Errorf("load auto check preference: %w", err)
	}
	if enabled, _ := strconv.ParseBool(raw); ok && enabled {
		if err := c.EnableAutoCheck(ctx); err != nil {
			c.logger.Warn().Err(err).Msg("could not restore auto check")
		}
	}
	return nil
}

// SetUserCode sets and persists the identity and loads its current status.
func (c *Controller) SetUserCode(ctx context.Context, raw string) (State, error) {
	code := presence.NormalizeCode(raw)
	if code == "" {
		c.notifier.Notify(MessageError, "Please enter a code")
		return c.State(), ErrEmptyUserCode
	}

	if err := c.prefs.Set(ctx, store.PrefUserCode, code); err != nil {
		c.logger.Error().Err(err).Msg("failed to persist user code")
		return c.State(), err
	}

	c.mu.Lock()
	c.userCode = code
	c.mu.Unlock()
	c.logger.Info().Str("user_code", code).Msg("user code set")

	c.LoadCurrentStatus(ctx)
	// The leaderboard highlights the current user.
	c.onChange()
	return c.State(), nil
}

// LoadCurrentStatus refreshes the cached status from the store. A user with
// no events is out. On a store error the status falls back to out and the
// error is returned.
func (c *Controller) LoadCurrentStatus(ctx context.Context) (presence.Status, error) {
	code := c.UserCode()
	if code == "" {
		return presence.StatusOut, ErrNoUserCode
	}

	status := presence.StatusOut
	latest, err := c.events.FetchLatestFor(ctx, code)
	if err != nil {
		c.logger.Error().Err(err).Str("user_code", code).Msg("error loading status")
		c.notifier.Notify(MessageError, "Error loading status")
	} else if latest != nil {
		status = latest.Status
	}

	c.mu.Lock()
	c.status = status
	c.mu.Unlock()
	if c.tracker != nil {
		c.tracker.Sync(status)
	}
	return status, err
}

// Toggle flips the current status and records it.
func (c *Controller) Toggle(ctx context.Context) (presence.Status, error) {
	if c.UserCode() == "" {
		return presence.StatusOut, ErrNoUserCode
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.mu.RLock()
	target := c.status.Opposite()
	c.mu.RUnlock()

	return c.write(ctx, target, SourceManual)
}

// autoTransition records a geofence transition unless the cached status
// already equals it, which happens when a manual toggle won the race.
func (c *Controller) autoTransition(to presence.Status) {
	if c.UserCode() == "" {
		return
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.mu.RLock()
	current := c.status
	c.mu.RUnlock()
	if current == to {
		c.tracker.Sync(current)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), autoWriteTimeout)
	defer cancel()
	c.write(ctx, to, SourceGeofence)
}

// write appends one event and then reconciles the cache with the store's
// latest record. Callers hold writeMu.
func (c *Controller) write(ctx context.Context, target presence.Status, source string) (presence.Status, error) {
	c.mu.RLock()
	code := c.userCode
	prev := c.status
	c.mu.RUnlock()

	log := c.logger.With().Str("user_code", code).Str("status", string(target)).Str("source", source).Logger()

	ev := presence.Event{UserCode: code, Status: target, Timestamp: c.now().UTC()}
	writeErr := c.events.Append(ctx, ev)

	confirmed := prev
	if writeErr != nil {
		log.Error().Err(writeErr).Msg("error updating status")
		c.recorder.WriteFailed(source)
		c.notifier.Notify(MessageError, "Error updating status. Please try again.")
	} else {
		confirmed = target
		c.recorder.EventAppended(target, source)
		c.notifier.Notify(MessageSuccess, successText(target, source))
		log.Info().Msg("status recorded")
	}

	latest, err := c.events.FetchLatestFor(ctx, code)
	switch {
	case err != nil:
		log.Warn().Err(err).Msg("could not reconcile status with store, keeping confirmed value")
	case latest == nil:
		confirmed = presence.StatusOut
	default:
		if latest.Status != confirmed {
			log.Warn().Str("store_status", string(latest.Status)).Msg("cached status diverged from store, using store")
		}
		confirmed = latest.Status
	}

	c.mu.Lock()
	c.status = confirmed
	c.mu.Unlock()
	if c.tracker != nil {
		c.tracker.Sync(confirmed)
	}

	c.onChange()
	return confirmed, writeErr
}

func successText(status presence.Status, source string) string {
	action := "checked out"
	if status == presence.StatusIn {
		action = "checked in"
	}
	if source == SourceGeofence {
		return fmt.Sprintf("Automatically %s!", action)
	}
	return fmt.Sprintf("Successfully %s!", action)
}

// EnableAutoCheck turns on geofence tracking. The preference is persisted
// first and rolled back if location access fails.
func (c *Controller) EnableAutoCheck(ctx context.Context) error {
	if c.tracker == nil {
		return &PermissionError{Err: geofence.ErrPositionUnavailable}
	}
	if c.UserCode() == "" {
		return ErrNoUserCode
	}

	if err := c.prefs.Set(ctx, store.PrefAutoCheckEnabled, "true"); err != nil {
		return err
	}
	c.mu.Lock()
	c.autoCheck = true
	current := c.status
	c.mu.Unlock()

	err := c.tracker.Enable(ctx, current, geofence.Handlers{
		OnTransition: c.autoTransition,
		OnError:      c.locationError,
	})
	if err != nil {
		c.mu.Lock()
		c.autoCheck = false
		c.mu.Unlock()
		if perr := c.prefs.Set(context.WithoutCancel(ctx), store.PrefAutoCheckEnabled, "false"); perr != nil {
			c.logger.Error().Err(perr).Msg("failed to roll back auto check preference")
		}
		c.notifier.Notify(MessageError, geofence.Message(err))
		return &PermissionError{Err: err}
	}

	c.notifier.Notify(MessageInfo, "Auto check-in enabled")
	return nil
}

// DisableAutoCheck stops geofence tracking and persists the choice.
func (c *Controller) DisableAutoCheck(ctx context.Context) error {
	if c.tracker != nil {
		c.tracker.Disable()
	}
	c.mu.Lock()
	c.autoCheck = false
	c.mu.Unlock()

	if err := c.prefs.Set(ctx, store.PrefAutoCheckEnabled, "false"); err != nil {
		return err
	}
	c.notifier.Notify(MessageInfo, "Auto check-in disabled")
	return nil
}

func (c *Controller) locationError(err error) {
	c.notifier.Notify(MessageError, geofence.Message(err))
}
