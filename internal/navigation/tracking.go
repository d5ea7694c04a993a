package navigation

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

const (
	TrackingRouteLayerID  = "tracking-route-layer"
	TrackingRouteSourceID = "tracking-route-source"
	// TrackingToken is contained in the id of every layer and source a tracking session may leave on the map.
	TrackingToken = "tracking"
)

// MapEngine is the map state the tracking cleanup operates on.
type MapEngine interface {
	HasLayer(id string) bool
	RemoveLayer(id string) error
	HasSource(id string) bool
	RemoveSource(id string) error
	LayerIDs() []string
	SourceIDs() []string
}

// TrackingStyle holds the rendering options passed on tracking creation.
type TrackingStyle struct {
	FitBounds    bool   `yaml:"fit_bounds" json:"fitBounds"`
	StrokeWidth  int    `yaml:"stroke_width" json:"strokeWidth"`
	RouteColor   string `yaml:"route_color" json:"routeColor"`
	CCPIconWidth int    `yaml:"ccp_icon_width" json:"ccpIconWidth"`
	Connector    bool   `yaml:"connector" json:"connector"`
	Popup        string `yaml:"popup" json:"cPopup"`
}

func DefaultTrackingStyle() TrackingStyle {
	return TrackingStyle{
		FitBounds:    true,
		StrokeWidth:  7,
		RouteColor:   "#3b82f6",
		CCPIconWidth: 70,
		Connector:    true,
		Popup:        `<div class="p-2"><strong>Your Location</strong></div>`,
	}
}

type TrackingOptions struct {
	Start    string
	End      string
	Position GeoFix
	Style    TrackingStyle
}

// PushOptions controls how the tracking plugin reacts to a new fix.
type PushOptions struct {
	ReRoute    bool    `yaml:"re_route" json:"reRoute"`
	MapCenter  bool    `yaml:"map_center" json:"mapCenter"`
	Buffer     float64 `yaml:"buffer" json:"buffer"`
	ETARefresh bool    `yaml:"eta_refresh" json:"etaRefresh"`
	FitBounds  bool    `yaml:"fit_bounds" json:"fitBounds"`
}

func DefaultPushOptions() PushOptions {
	return PushOptions{ReRoute: true, MapCenter: true, Buffer: 30, ETARefresh: true}
}

// TrackCall is a single position update for the tracking plugin.
type TrackCall struct {
	// Location is [longitude, latitude].
	Location [2]float64
	// Heading is the device heading; nil lets the plugin derive it.
	Heading *float64
	PushOptions
}

// TrackingPlugin creates tracking instances. Create returns an error when the
// plugin rejects the options; done reports the outcome of the asynchronous setup.
type TrackingPlugin interface {
	Create(opts TrackingOptions, done func(error)) (TrackingInstance, error)
}

type TrackingInstance interface {
	Track(call TrackCall, done func(error))
	Remove() error
}

// TrackingHandle is one live tracking instance and the endpoints it follows.
type TrackingHandle struct {
	Endpoints RouteEndpoints
	instance  TrackingInstance
}

// TrackingSession owns at most one tracking instance and scrubs the map on teardown.
type TrackingSession struct {
	plugin TrackingPlugin
	engine MapEngine
	logger *slog.Logger

	mu     sync.Mutex
	active *TrackingHandle
}

func NewTrackingSession(plugin TrackingPlugin, engine MapEngine, logger *slog.Logger) *TrackingSession {
	return &TrackingSession{plugin: plugin, engine: engine, logger: logger}
}

// Ready reports whether both the map and the tracking plugin are available.
func (s *TrackingSession) Ready() bool {
	return s.plugin != nil && s.engine != nil
}

func (s *TrackingSession) Active() *TrackingHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Begin creates the tracking instance. It fails with ErrSessionActive if a handle is live.
func (s *TrackingSession) Begin(ep RouteEndpoints, fix GeoFix, style TrackingStyle, done func(error)) (*TrackingHandle, error) {
	if !s.Ready() {
		return nil, ErrPluginNotReady
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active != nil {
		return nil, ErrSessionActive
	}

	if !ep.Verified() {
		s.logger.Warn("route endpoints are not coordinates", "start", ep.Start, "end", ep.End)
	}

	inst, err := s.plugin.Create(TrackingOptions{Start: ep.Start, End: ep.End, Position: fix, Style: style}, done)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnresolvable, err)
	}
	s.active = &TrackingHandle{Endpoints: ep, instance: inst}
	return s.active, nil
}

// PushFix forwards fix to the instance behind h unconditionally.
func (s *TrackingSession) PushFix(h *TrackingHandle, fix GeoFix, opts PushOptions, done func(error)) {
	s.mu.Lock()
	live := h != nil && s.active == h
	s.mu.Unlock()
	if !live {
		return
	}
	h.instance.Track(TrackCall{Location: fix.LngLat(), Heading: fix.Heading, PushOptions: opts}, done)
}

// End removes the instance behind h, then deletes every map layer and source in
// the tracking namespace. A nil h only scrubs the map. Failures are logged and skipped.
func (s *TrackingSession) End(h *TrackingHandle) {
	s.mu.Lock()
	if h != nil && s.active == h {
		s.active = nil
	}
	s.mu.Unlock()

	if h != nil && h.instance != nil {
		if err := h.instance.Remove(); err != nil {
			s.logger.Warn("failed to remove tracking instance", "error", err)
		}
	}
	if s.engine == nil {
		return
	}

	if s.engine.HasLayer(TrackingRouteLayerID) {
		s.removeLayer(TrackingRouteLayerID)
	}
	if s.engine.HasSource(TrackingRouteSourceID) {
		s.removeSource(TrackingRouteSourceID)
	}

	for _, id := range s.engine.LayerIDs() {
		if strings.Contains(id, TrackingToken) {
			s.removeLayer(id)
		}
	}
	for _, id := range s.engine.SourceIDs() {
		if strings.Contains(id, TrackingToken) {
			s.removeSource(id)
		}
	}
}

func (s *TrackingSession) removeLayer(id string) {
	if err := s.engine.RemoveLayer(id); err != nil {
		s.logger.Debug("failed to remove tracking layer", "layer", id, "error", err)
	}
}

func (s *TrackingSession) removeSource(id string) {
	if err := s.engine.RemoveSource(id); err != nil {
		s.logger.Debug("failed to remove tracking source", "source", id, "error", err)
	}
}
