package navigation

import (
	"errors"
	"io"
	"log/slog"
	"slices"
	"sort"
	"sync"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	at      time.Time
	f       func()
	done    bool
	stopped bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	active := !t.done && !t.stopped
	t.stopped = true
	return active
}

// Advance moves the clock forward and runs every timer that became due.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.done && !t.stopped && !t.at.After(c.now) {
			t.done = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()

	sort.SliceStable(due, func(i, j int) bool { return due[i].at.Before(due[j].at) })
	for _, t := range due {
		t.f()
	}
}

type providerCall struct {
	id      int
	opts    PositionOptions
	onFix   func(GeoFix)
	onError func(error)
}

type fakeProvider struct {
	mu       sync.Mutex
	nextID   int
	watchErr error
	watches  []*providerCall
	currents []*providerCall
	cleared  []int
}

func (p *fakeProvider) CurrentPosition(opts PositionOptions, onFix func(GeoFix), onError func(error)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.currents = append(p.currents, &providerCall{opts: opts, onFix: onFix, onError: onError})
}

func (p *fakeProvider) Watch(opts PositionOptions, onFix func(GeoFix), onError func(error)) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.watchErr != nil {
		return 0, p.watchErr
	}
	p.nextID++
	p.watches = append(p.watches, &providerCall{id: p.nextID, opts: opts, onFix: onFix, onError: onError})
	return p.nextID, nil
}

func (p *fakeProvider) ClearWatch(id int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cleared = append(p.cleared, id)
}

func (p *fakeProvider) watch(i int) *providerCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.watches[i]
}

func (p *fakeProvider) current(i int) *providerCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.currents[i]
}

func (p *fakeProvider) watchCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.watches)
}

func (p *fakeProvider) currentCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.currents)
}

func (p *fakeProvider) wasCleared(id int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Contains(p.cleared, id)
}

var errNotFound = errors.New("not found")

type fakeEngine struct {
	layers    []string
	sources   []string
	failLayer map[string]bool
}

func (e *fakeEngine) HasLayer(id string) bool  { return slices.Contains(e.layers, id) }
func (e *fakeEngine) HasSource(id string) bool { return slices.Contains(e.sources, id) }
func (e *fakeEngine) LayerIDs() []string       { return slices.Clone(e.layers) }
func (e *fakeEngine) SourceIDs() []string      { return slices.Clone(e.sources) }

func (e *fakeEngine) RemoveLayer(id string) error {
	if e.failLayer[id] {
		return errors.New("layer is locked")
	}
	i := slices.Index(e.layers, id)
	if i < 0 {
		return errNotFound
	}
	e.layers = slices.Delete(e.layers, i, i+1)
	return nil
}

func (e *fakeEngine) RemoveSource(id string) error {
	i := slices.Index(e.sources, id)
	if i < 0 {
		return errNotFound
	}
	e.sources = slices.Delete(e.sources, i, i+1)
	return nil
}

type fakeInstance struct {
	plugin    *fakePlugin
	opts      TrackingOptions
	done      func(error)
	calls     []TrackCall
	removed   int
	removeErr error
}

func (i *fakeInstance) Track(call TrackCall, done func(error)) {
	i.calls = append(i.calls, call)
	if done != nil {
		done(nil)
	}
}

// Remove cleans up the route layer only, leaving the connector behind.
func (i *fakeInstance) Remove() error {
	i.removed++
	if i.removed > 1 {
		return errors.New("already removed")
	}
	_ = i.plugin.engine.RemoveLayer(TrackingRouteLayerID)
	_ = i.plugin.engine.RemoveSource(TrackingRouteSourceID)
	return i.removeErr
}

type fakePlugin struct {
	engine      *fakeEngine
	createErr   error
	instances   []*fakeInstance
	liveAtBegin []int
}

func (p *fakePlugin) Create(opts TrackingOptions, done func(error)) (TrackingInstance, error) {
	if p.createErr != nil {
		return nil, p.createErr
	}
	live := 0
	for _, inst := range p.instances {
		if inst.removed == 0 {
			live++
		}
	}
	p.liveAtBegin = append(p.liveAtBegin, live)

	inst := &fakeInstance{plugin: p, opts: opts, done: done}
	p.instances = append(p.instances, inst)
	p.engine.layers = append(p.engine.layers, TrackingRouteLayerID, "tracking-connector-layer")
	p.engine.sources = append(p.engine.sources, TrackingRouteSourceID, "tracking-connector-source")
	return inst, nil
}

func (p *fakePlugin) last() *fakeInstance {
	return p.instances[len(p.instances)-1]
}

type recordingObserver struct {
	states    []State
	locations []*GeoFix
	errs      []error
}

func (o *recordingObserver) StateChanged(s State, _ *RouteEndpoints) { o.states = append(o.states, s) }
func (o *recordingObserver) LocationChanged(fix *GeoFix)             { o.locations = append(o.locations, fix) }
func (o *recordingObserver) NavigationError(err error)               { o.errs = append(o.errs, err) }

func (o *recordingObserver) lastLocation() *GeoFix {
	if len(o.locations) == 0 {
		return nil
	}
	return o.locations[len(o.locations)-1]
}
