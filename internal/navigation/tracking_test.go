package navigation

import (
	"errors"
	"strings"
	"testing"
)

var testEndpoints = RouteEndpoints{Start: "28.61,77.23", End: "28.7,77.1", Form: FormWaypoint}

func newTestSession() (*TrackingSession, *fakePlugin, *fakeEngine) {
	engine := &fakeEngine{
		layers:  []string{"background", "roads"},
		sources: []string{"basemap"},
	}
	plugin := &fakePlugin{engine: engine}
	return NewTrackingSession(plugin, engine, discardLogger()), plugin, engine
}

func assertNoTrackingArtifacts(t *testing.T, e *fakeEngine) {
	t.Helper()
	for _, id := range e.layers {
		if strings.Contains(id, TrackingToken) {
			t.Errorf("layer %q left on the map", id)
		}
	}
	for _, id := range e.sources {
		if strings.Contains(id, TrackingToken) {
			t.Errorf("source %q left on the map", id)
		}
	}
}

func TestTrackingSessionEndRemovesDanglingLayers(t *testing.T) {
	s, plugin, engine := newTestSession()

	h, err := s.Begin(testEndpoints, GeoFix{Latitude: 28.61, Longitude: 77.23}, DefaultTrackingStyle(), nil)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	engine.layers = append(engine.layers, "tracking-position-marker")

	s.End(h)

	if plugin.last().removed != 1 {
		t.Errorf("instance removed %d times, want 1", plugin.last().removed)
	}
	assertNoTrackingArtifacts(t, engine)
	if !engine.HasLayer("roads") || !engine.HasSource("basemap") {
		t.Error("non-tracking map content was removed")
	}
	if s.Active() != nil {
		t.Error("session still active after End")
	}
}

func TestTrackingSessionEndToleratesFailures(t *testing.T) {
	s, plugin, engine := newTestSession()

	h, err := s.Begin(testEndpoints, GeoFix{}, DefaultTrackingStyle(), nil)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	plugin.last().removeErr = errors.New("instance already gone")
	engine.layers = append(engine.layers, "tracking-locked", "tracking-marker")
	engine.failLayer = map[string]bool{"tracking-locked": true}

	s.End(h)

	if engine.HasLayer("tracking-marker") || engine.HasLayer("tracking-connector-layer") {
		t.Errorf("scan stopped at a failing layer: %v", engine.layers)
	}
	if engine.HasSource("tracking-connector-source") {
		t.Errorf("tracking source left behind: %v", engine.sources)
	}
}

func TestTrackingSessionEndWithoutHandleScrubsMap(t *testing.T) {
	s, _, engine := newTestSession()
	engine.layers = append(engine.layers, TrackingRouteLayerID, "tracking-old")
	engine.sources = append(engine.sources, TrackingRouteSourceID)

	s.End(nil)

	assertNoTrackingArtifacts(t, engine)
}

func TestTrackingSessionBeginWhileActive(t *testing.T) {
	s, plugin, _ := newTestSession()

	if _, err := s.Begin(testEndpoints, GeoFix{}, DefaultTrackingStyle(), nil); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if _, err := s.Begin(testEndpoints, GeoFix{}, DefaultTrackingStyle(), nil); !errors.Is(err, ErrSessionActive) {
		t.Fatalf("second Begin error = %v, want ErrSessionActive", err)
	}
	if len(plugin.instances) != 1 {
		t.Errorf("created %d instances, want 1", len(plugin.instances))
	}
}

func TestTrackingSessionBeginErrors(t *testing.T) {
	t.Run("plugin missing", func(t *testing.T) {
		s := NewTrackingSession(nil, &fakeEngine{}, discardLogger())
		if _, err := s.Begin(testEndpoints, GeoFix{}, DefaultTrackingStyle(), nil); !errors.Is(err, ErrPluginNotReady) {
			t.Errorf("error = %v, want ErrPluginNotReady", err)
		}
	})

	t.Run("endpoints rejected", func(t *testing.T) {
		s, plugin, _ := newTestSession()
		plugin.createErr = errors.New("invalid LngLat")
		_, err := s.Begin(RouteEndpoints{Start: "Delhi", End: "Gurgaon", Form: FormRequest}, GeoFix{}, DefaultTrackingStyle(), nil)
		if !errors.Is(err, ErrUnresolvable) {
			t.Errorf("error = %v, want ErrUnresolvable", err)
		}
		if s.Active() != nil {
			t.Error("rejected Begin left an active handle")
		}
	})
}

func TestTrackingSessionPushFix(t *testing.T) {
	s, plugin, _ := newTestSession()
	h, _ := s.Begin(testEndpoints, GeoFix{}, DefaultTrackingStyle(), nil)

	heading := 90.0
	s.PushFix(h, GeoFix{Latitude: 28.62, Longitude: 77.24, Heading: &heading}, DefaultPushOptions(), nil)

	calls := plugin.last().calls
	if len(calls) != 1 {
		t.Fatalf("got %d calls, want 1", len(calls))
	}
	if calls[0].Location != [2]float64{77.24, 28.62} {
		t.Errorf("location = %v, want [lng lat]", calls[0].Location)
	}
	if calls[0].Heading == nil || *calls[0].Heading != 90 {
		t.Errorf("heading not forwarded")
	}
	if !calls[0].ReRoute || calls[0].Buffer != 30 {
		t.Errorf("push options = %+v", calls[0].PushOptions)
	}

	s.End(h)
	s.PushFix(h, GeoFix{Latitude: 1}, DefaultPushOptions(), nil)
	if len(plugin.last().calls) != 1 {
		t.Error("fix pushed to an ended session")
	}
}
