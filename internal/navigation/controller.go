package navigation

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const DefaultPushInterval = time.Second

type State int

const (
	StateStopped State = iota
	StateStarting
	StateTracking
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateTracking:
		return "tracking"
	}
	return "stopped"
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(b []byte) error {
	switch string(b) {
	case "starting":
		*s = StateStarting
	case "tracking":
		*s = StateTracking
	default:
		*s = StateStopped
	}
	return nil
}

// Observer receives the user-visible effects of the controller.
// Calls are made from the controller's event loop, one at a time.
type Observer interface {
	StateChanged(state State, endpoints *RouteEndpoints)
	// LocationChanged reports the displayed location; nil clears it.
	LocationChanged(fix *GeoFix)
	NavigationError(err error)
}

type ControllerOptions struct {
	PushInterval time.Duration
	SettleDelay  time.Duration
	Style        TrackingStyle
	Push         PushOptions
}

// Controller is the navigation state machine. Every intent and every provider or
// plugin callback becomes an event; events are handled one at a time in arrival order.
type Controller struct {
	watcher  *Watcher
	session  *TrackingSession
	clock    Clock
	observer Observer
	logger   *slog.Logger
	opts     ControllerOptions

	mu       sync.Mutex
	queue    []event
	draining bool
	state    State

	// Owned by the event loop.
	attempt   uint64
	pending   RouteEndpoints
	endpoints *RouteEndpoints
	watch     *WatchHandle
	tracking  *TrackingHandle
	lastPush  time.Time
	pushed    bool
	closed    bool
}

func NewController(watcher *Watcher, session *TrackingSession, clock Clock, observer Observer, logger *slog.Logger, opts ControllerOptions) *Controller {
	if opts.PushInterval <= 0 {
		opts.PushInterval = DefaultPushInterval
	}
	return &Controller{
		watcher:  watcher,
		session:  session,
		clock:    clock,
		observer: observer,
		logger:   logger,
		opts:     opts,
	}
}

type eventKind int

const (
	evStart eventKind = iota
	evStop
	evTeardown
	evLocate
	evSettled
	evInitialFix
	evInitialError
	evFix
	evWatchError
	evTrackingReady
	evLocateFix
	evLocateError
)

type event struct {
	kind    eventKind
	attempt uint64
	route   *RouteResult
	fix     GeoFix
	err     error
}

// Start asks to start navigating along route, the most recent route calculation.
func (c *Controller) Start(route *RouteResult) { c.post(event{kind: evStart, route: route}) }

// Stop ends navigation. Stopping while stopped does nothing.
func (c *Controller) Stop() { c.post(event{kind: evStop}) }

// Teardown releases every resource unconditionally and closes the controller.
func (c *Controller) Teardown() { c.post(event{kind: evTeardown}) }

// Locate requests a single fix to refresh the displayed location while stopped.
func (c *Controller) Locate() { c.post(event{kind: evLocate}) }

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) post(ev event) {
	c.mu.Lock()
	c.queue = append(c.queue, ev)
	if c.draining {
		c.mu.Unlock()
		return
	}
	c.draining = true
	for len(c.queue) > 0 {
		next := c.queue[0]
		c.queue = c.queue[1:]
		c.mu.Unlock()
		c.handle(next)
		c.mu.Lock()
	}
	c.draining = false
	c.mu.Unlock()
}

// postFix and postErr return event posters bound to the current attempt.
func (c *Controller) postFix(kind eventKind) func(GeoFix) {
	attempt := c.attempt
	return func(fix GeoFix) { c.post(event{kind: kind, attempt: attempt, fix: fix}) }
}

func (c *Controller) postErr(kind eventKind) func(error) {
	attempt := c.attempt
	return func(err error) { c.post(event{kind: kind, attempt: attempt, err: err}) }
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	changed := c.state != s
	c.state = s
	c.mu.Unlock()
	if changed {
		c.observer.StateChanged(s, c.endpoints)
	}
}

func (c *Controller) handle(ev event) {
	if c.closed {
		if ev.kind == evStart || ev.kind == evLocate {
			c.observer.NavigationError(ErrClosed)
		}
		return
	}

	switch ev.kind {
	case evStart:
		c.handleStart(ev.route)
	case evStop:
		c.stop(false)
	case evTeardown:
		c.stop(true)
		c.closed = true
	case evLocate:
		c.handleLocate()
	case evSettled:
		if ev.attempt == c.attempt && c.State() == StateStarting {
			c.requestInitialFix()
		}
	case evInitialFix:
		if ev.attempt == c.attempt && c.State() == StateStarting {
			c.beginTracking(ev.fix)
		}
	case evInitialError:
		if ev.attempt == c.attempt && c.State() == StateStarting {
			c.logger.Warn("failed to get initial location", "error", ev.err)
			c.stop(false)
			c.observer.NavigationError(ev.err)
		}
	case evFix:
		if ev.attempt == c.attempt && c.State() == StateTracking {
			c.handleFix(ev.fix)
		}
	case evWatchError:
		if ev.attempt == c.attempt && c.State() == StateTracking {
			c.logger.Warn("location watch failed, stopping navigation", "error", ev.err)
			c.stop(false)
			c.observer.NavigationError(ev.err)
		}
	case evTrackingReady:
		if ev.attempt != c.attempt || c.tracking == nil {
			return
		}
		if ev.err != nil {
			c.logger.Warn("tracking plugin failed to initialize", "error", ev.err)
			c.stop(false)
			c.observer.NavigationError(wrapUnresolvable(ev.err))
			return
		}
		c.logger.Debug("tracking initialized", "start", c.tracking.Endpoints.Start, "end", c.tracking.Endpoints.End)
	case evLocateFix:
		if ev.attempt == c.attempt && c.State() == StateStopped {
			fix := ev.fix
			c.observer.LocationChanged(&fix)
		}
	case evLocateError:
		if ev.attempt == c.attempt {
			c.observer.NavigationError(ev.err)
		}
	}
}

func (c *Controller) handleStart(route *RouteResult) {
	if !c.session.Ready() {
		c.observer.NavigationError(ErrPluginNotReady)
		return
	}

	ep, err := Resolve(route)
	if err != nil {
		c.logger.Warn("could not resolve route endpoints", "error", err)
		c.observer.NavigationError(err)
		return
	}

	reentrant := c.State() != StateStopped || c.tracking != nil || c.watch != nil
	if reentrant {
		c.logger.Info("previous navigation detected, stopping it first")
		c.stop(false)
	}

	c.attempt++
	c.pending = ep
	c.setState(StateStarting)

	if reentrant && c.opts.SettleDelay > 0 {
		attempt := c.attempt
		c.clock.AfterFunc(c.opts.SettleDelay, func() { c.post(event{kind: evSettled, attempt: attempt}) })
		return
	}
	c.requestInitialFix()
}

func (c *Controller) requestInitialFix() {
	if err := c.watcher.Current(true, c.postFix(evInitialFix), c.postErr(evInitialError)); err != nil {
		c.stop(false)
		c.observer.NavigationError(err)
	}
}

func (c *Controller) beginTracking(fix GeoFix) {
	c.observer.LocationChanged(&fix)

	h, err := c.session.Begin(c.pending, fix, c.opts.Style, c.postErr(evTrackingReady))
	if err != nil {
		c.logger.Warn("failed to begin tracking session", "error", err)
		c.stop(false)
		c.observer.NavigationError(err)
		return
	}
	c.tracking = h
	c.endpoints = &h.Endpoints
	c.pushed = false
	c.setState(StateTracking)

	watch, err := c.watcher.Start(true, c.postFix(evFix), c.postErr(evWatchError))
	if err != nil {
		c.stop(false)
		c.observer.NavigationError(err)
		return
	}
	c.watch = watch
	c.logger.Info("navigation started", "start", h.Endpoints.Start, "end", h.Endpoints.End)
}

func (c *Controller) handleFix(fix GeoFix) {
	c.observer.LocationChanged(&fix)

	now := c.clock.Now()
	if c.pushed && now.Sub(c.lastPush) < c.opts.PushInterval {
		return
	}
	c.lastPush = now
	c.pushed = true
	c.session.PushFix(c.tracking, fix, c.opts.Push, func(err error) {
		if err != nil {
			c.logger.Debug("tracking update failed", "error", err)
		}
	})
}

func (c *Controller) handleLocate() {
	if c.State() != StateStopped {
		return
	}
	if err := c.watcher.Current(true, c.postFix(evLocateFix), c.postErr(evLocateError)); err != nil {
		c.observer.NavigationError(err)
	}
}

// stop tears down the watch and the tracking session. Unless force is set it
// does nothing when there is nothing to tear down.
func (c *Controller) stop(force bool) {
	idle := c.State() == StateStopped && c.watch == nil && c.tracking == nil
	if idle && !force {
		return
	}

	c.attempt++
	c.watcher.Stop(c.watch)
	c.watch = nil
	c.session.End(c.tracking)
	c.tracking = nil
	c.endpoints = nil
	c.pushed = false

	if !idle {
		c.observer.LocationChanged(nil)
		c.setState(StateStopped)
		c.logger.Info("navigation stopped")
	}
}

func wrapUnresolvable(err error) error {
	if errors.Is(err, ErrUnresolvable) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrUnresolvable, err)
}
