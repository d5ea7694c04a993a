package ws

import (
	"context"
	"sync"
	"time"

	"mappls-navigation/internal/navigation"
)

const persistTimeout = 2 * time.Second

// observer mirrors controller output to the browser and keeps the session
// snapshot in the cache up to date.
type observer struct {
	client *Client

	mu       sync.Mutex
	snapshot navigation.Snapshot
	closed   bool
}

var _ navigation.Observer = (*observer)(nil)

func newObserver(c *Client) *observer {
	return &observer{client: c, snapshot: navigation.Snapshot{ID: c.ID, State: navigation.StateStopped}}
}

func (o *observer) StateChanged(state navigation.State, endpoints *navigation.RouteEndpoints) {
	o.client.sendData(TypeState, StateData{State: state, Endpoints: endpoints})
	o.update(func(s *navigation.Snapshot) {
		s.State = state
		s.Endpoints = endpoints
	})
}

func (o *observer) LocationChanged(fix *navigation.GeoFix) {
	o.client.sendData(TypeLocation, LocationData{Location: fix})
	o.update(func(s *navigation.Snapshot) { s.LastFix = fix })
}

func (o *observer) NavigationError(err error) {
	o.client.Manager.logger.Info("navigation error", "clientID", o.client.ID, "kind", navigation.Kind(err), "error", err)
	o.client.sendData(TypeError, ErrorData{Kind: navigation.Kind(err), Message: navigation.UserMessage(err)})
}

func (o *observer) update(apply func(*navigation.Snapshot)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	apply(&o.snapshot)
	o.persistLocked()
}

func (o *observer) persistLocked() {
	cache := o.client.Manager.deps.Sessions
	if cache == nil {
		return
	}
	o.snapshot.UpdatedAt = time.Now()
	snapshot := o.snapshot

	ctx, cancel := context.WithTimeout(o.client.Manager.ctx, persistTimeout)
	defer cancel()
	if err := cache.SetSession(ctx, &snapshot); err != nil {
		o.client.Manager.logger.Warn("failed to cache session", "clientID", o.client.ID, "error", err)
	}
}

func (o *observer) persist() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.closed {
		o.persistLocked()
	}
}

// close stops persisting and removes the snapshot.
func (o *observer) close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed = true

	cache := o.client.Manager.deps.Sessions
	if cache == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(o.client.Manager.ctx), persistTimeout)
	defer cancel()
	if err := cache.DeleteSession(ctx, o.client.ID); err != nil {
		o.client.Manager.logger.Warn("failed to delete session", "clientID", o.client.ID, "error", err)
	}
}
