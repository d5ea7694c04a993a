package navigation

import (
	"log/slog"
	"sync"
	"time"
)

const (
	DefaultRetryDelay      = time.Second
	DefaultLocationTimeout = 10 * time.Second
)

// WatchHandle identifies one continuous-location subscription started by a Watcher.
type WatchHandle struct {
	highAccuracy bool
	// sub counts provider subscriptions made for this handle; callbacks from older
	// subscriptions are ignored.
	sub     int
	watchID int
	hasID   bool
	retry   Timer
	stopped bool
	onFix   func(GeoFix)
	onError func(error)
}

// HighAccuracy reports the accuracy mode of the current subscription.
func (h *WatchHandle) HighAccuracy() bool { return h.highAccuracy }

// Watcher owns at most one live location subscription. A failure in high-accuracy
// mode restarts the subscription once in low-accuracy mode after RetryDelay.
type Watcher struct {
	provider   LocationProvider
	clock      Clock
	logger     *slog.Logger
	retryDelay time.Duration
	timeout    time.Duration

	mu     sync.Mutex
	active *WatchHandle
}

type WatcherOptions struct {
	RetryDelay time.Duration
	Timeout    time.Duration
}

// NewWatcher returns a Watcher on top of provider. A nil provider makes every
// request fail with ErrUnsupported.
func NewWatcher(provider LocationProvider, clock Clock, logger *slog.Logger, opts WatcherOptions) *Watcher {
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = DefaultRetryDelay
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultLocationTimeout
	}
	return &Watcher{
		provider:   provider,
		clock:      clock,
		logger:     logger,
		retryDelay: opts.RetryDelay,
		timeout:    opts.Timeout,
	}
}

func (w *Watcher) options(highAccuracy bool) PositionOptions {
	return PositionOptions{EnableHighAccuracy: highAccuracy, Timeout: w.timeout}
}

// Current requests a single fix. There is no accuracy fallback for one-shot requests.
func (w *Watcher) Current(highAccuracy bool, onFix func(GeoFix), onError func(error)) error {
	if w.provider == nil {
		return ErrUnsupported
	}
	w.provider.CurrentPosition(w.options(highAccuracy), onFix, onError)
	return nil
}

// Start begins a continuous watch, cancelling the previous one first.
func (w *Watcher) Start(highAccuracy bool, onFix func(GeoFix), onError func(error)) (*WatchHandle, error) {
	if w.provider == nil {
		return nil, ErrUnsupported
	}

	w.mu.Lock()
	prev := w.active
	w.active = nil
	clearID, hasClear := w.cancelLocked(prev)
	h := &WatchHandle{highAccuracy: highAccuracy, onFix: onFix, onError: onError}
	w.active = h
	w.mu.Unlock()

	if hasClear {
		w.provider.ClearWatch(clearID)
	}
	if err := w.subscribe(h); err != nil {
		w.Stop(h)
		return nil, err
	}
	return h, nil
}

// Stop cancels h. Stopping a stopped or unknown handle does nothing.
func (w *Watcher) Stop(h *WatchHandle) {
	if h == nil {
		return
	}
	w.mu.Lock()
	if w.active == h {
		w.active = nil
	}
	id, ok := w.cancelLocked(h)
	w.mu.Unlock()

	if ok {
		w.provider.ClearWatch(id)
	}
}

// Active returns the live handle, if any.
func (w *Watcher) Active() *WatchHandle {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.active
}

// cancelLocked marks h stopped and returns the provider watch id to clear.
func (w *Watcher) cancelLocked(h *WatchHandle) (int, bool) {
	if h == nil || h.stopped {
		return 0, false
	}
	h.stopped = true
	if h.retry != nil {
		h.retry.Stop()
		h.retry = nil
	}
	id, ok := h.watchID, h.hasID
	h.hasID = false
	return id, ok
}

func (w *Watcher) subscribe(h *WatchHandle) error {
	w.mu.Lock()
	if h.stopped {
		w.mu.Unlock()
		return nil
	}
	h.sub++
	sub, high := h.sub, h.highAccuracy
	w.mu.Unlock()

	id, err := w.provider.Watch(w.options(high),
		func(fix GeoFix) { w.deliverFix(h, sub, fix) },
		func(err error) { w.deliverError(h, sub, err) },
	)
	if err != nil {
		return err
	}

	w.mu.Lock()
	// The subscription may have been cancelled from a callback while Watch was running.
	if h.stopped || h.sub != sub {
		w.mu.Unlock()
		w.provider.ClearWatch(id)
		return nil
	}
	h.watchID, h.hasID = id, true
	w.mu.Unlock()
	return nil
}

func (w *Watcher) current(h *WatchHandle, sub int) bool {
	return w.active == h && !h.stopped && h.sub == sub
}

func (w *Watcher) deliverFix(h *WatchHandle, sub int, fix GeoFix) {
	w.mu.Lock()
	ok := w.current(h, sub)
	w.mu.Unlock()
	if ok {
		h.onFix(fix)
	}
}

func (w *Watcher) deliverError(h *WatchHandle, sub int, err error) {
	w.mu.Lock()
	if !w.current(h, sub) {
		w.mu.Unlock()
		return
	}

	if h.highAccuracy {
		h.highAccuracy = false
		// Bumping sub drops anything else the failed subscription reports.
		h.sub++
		id, ok := h.watchID, h.hasID
		h.hasID = false
		h.retry = w.clock.AfterFunc(w.retryDelay, func() { w.retryLowAccuracy(h) })
		w.mu.Unlock()

		w.logger.Warn("high accuracy location failed, retrying with low accuracy", "error", err, "delay", w.retryDelay)
		if ok {
			w.provider.ClearWatch(id)
		}
		return
	}

	if w.active == h {
		w.active = nil
	}
	id, ok := w.cancelLocked(h)
	w.mu.Unlock()

	if ok {
		w.provider.ClearWatch(id)
	}
	h.onError(err)
}

func (w *Watcher) retryLowAccuracy(h *WatchHandle) {
	w.mu.Lock()
	h.retry = nil
	live := w.active == h && !h.stopped
	w.mu.Unlock()
	if !live {
		return
	}
	if err := w.subscribe(h); err != nil {
		w.Stop(h)
		h.onError(err)
	}
}
