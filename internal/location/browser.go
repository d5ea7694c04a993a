package location

import (
	"fmt"
	"sync"
	"time"

	"mappls-navigation/internal/navigation"
)

const (
	CommandCurrent = "geolocation.current"
	CommandWatch   = "geolocation.watch"
	CommandClear   = "geolocation.clear"

	// responseGrace is added to the browser-side timeout before a one-shot
	// request is failed server-side.
	responseGrace = 2 * time.Second
)

// Request is the payload of the geolocation commands sent to the browser.
type Request struct {
	ID                 int   `json:"id"`
	EnableHighAccuracy bool  `json:"enableHighAccuracy,omitempty"`
	Timeout            int64 `json:"timeout,omitempty"`
	MaximumAge         int64 `json:"maximumAge"`
}

// Sender delivers a command to the browser.
type Sender func(command string, req Request) error

type subscription struct {
	onFix   func(navigation.GeoFix)
	onError func(error)
	once    bool
	timer   navigation.Timer
}

// Browser is a location provider backed by the geolocation API of the connected browser.
type Browser struct {
	send  Sender
	clock navigation.Clock

	mu     sync.Mutex
	nextID int
	subs   map[int]*subscription
	closed bool
}

var _ navigation.LocationProvider = (*Browser)(nil)

func NewBrowser(send Sender, clock navigation.Clock) *Browser {
	return &Browser{send: send, clock: clock, subs: make(map[int]*subscription)}
}

func toRequest(id int, opts navigation.PositionOptions) Request {
	return Request{
		ID:                 id,
		EnableHighAccuracy: opts.EnableHighAccuracy,
		Timeout:            opts.Timeout.Milliseconds(),
		MaximumAge:         opts.MaximumAge.Milliseconds(),
	}
}

func (b *Browser) register(sub *subscription) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return 0, navigation.ErrUnsupported
	}
	b.nextID++
	b.subs[b.nextID] = sub
	return b.nextID, nil
}

func (b *Browser) take(id int, keep bool) *subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	sub, ok := b.subs[id]
	if !ok {
		return nil
	}
	if !keep || sub.once {
		delete(b.subs, id)
		if sub.timer != nil {
			sub.timer.Stop()
		}
	}
	return sub
}

func (b *Browser) CurrentPosition(opts navigation.PositionOptions, onFix func(navigation.GeoFix), onError func(error)) {
	sub := &subscription{onFix: onFix, onError: onError, once: true}
	id, err := b.register(sub)
	if err != nil {
		onError(err)
		return
	}

	if opts.Timeout > 0 {
		timer := b.clock.AfterFunc(opts.Timeout+responseGrace, func() {
			if s := b.take(id, false); s != nil {
				s.onError(navigation.ErrTimeout)
			}
		})
		b.mu.Lock()
		sub.timer = timer
		b.mu.Unlock()
	}

	if err := b.send(CommandCurrent, toRequest(id, opts)); err != nil {
		if s := b.take(id, false); s != nil {
			s.onError(fmt.Errorf("%w: %w", navigation.ErrPositionUnavailable, err))
		}
	}
}

func (b *Browser) Watch(opts navigation.PositionOptions, onFix func(navigation.GeoFix), onError func(error)) (int, error) {
	id, err := b.register(&subscription{onFix: onFix, onError: onError})
	if err != nil {
		return 0, err
	}
	if err := b.send(CommandWatch, toRequest(id, opts)); err != nil {
		b.take(id, false)
		return 0, fmt.Errorf("%w: %w", navigation.ErrPositionUnavailable, err)
	}
	return id, nil
}

func (b *Browser) ClearWatch(id int) {
	if b.take(id, false) == nil {
		return
	}
	_ = b.send(CommandClear, Request{ID: id})
}

// DeliverFix routes a position reported by the browser to its subscription.
func (b *Browser) DeliverFix(id int, fix navigation.GeoFix) {
	if sub := b.take(id, true); sub != nil {
		sub.onFix(fix)
	}
}

// DeliverError routes a geolocation error reported by the browser. Code 0 means
// the browser has no geolocation support.
func (b *Browser) DeliverError(id, code int, message string) {
	sub := b.take(id, true)
	if sub == nil {
		return
	}
	if code == 0 {
		sub.onError(navigation.ErrUnsupported)
		return
	}
	sub.onError(navigation.ErrorFromCode(code, message))
}

// Close drops every subscription without notifying it.
func (b *Browser) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for id, sub := range b.subs {
		if sub.timer != nil {
			sub.timer.Stop()
		}
		delete(b.subs, id)
	}
}
