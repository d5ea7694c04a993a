package tracker

import (
	"context"
	"fmt"
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"mappls-navigation/internal/gis"
	"mappls-navigation/internal/mapstyle"
	"mappls-navigation/internal/navigation"
	"mappls-navigation/internal/routing"
)

// Instance follows one device along a route. Updates are processed in order
// by a single goroutine.
type Instance struct {
	id       string
	plugin   *Plugin
	dest     gis.Point
	style    navigation.TrackingStyle
	markerID string

	jobs   chan func()
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	removed  bool
	ready    bool
	position gis.Point
	heading  float64
	route    []gis.Point
	summary  routing.Summary
}

var _ navigation.TrackingInstance = (*Instance)(nil)

func (i *Instance) ID() string { return i.id }

func (i *Instance) run() {
	for {
		select {
		case job := <-i.jobs:
			job()
		case <-i.ctx.Done():
			return
		}
	}
}

func (i *Instance) calculate(from gis.Point) (*routing.Route, []gis.Point, error) {
	ctx, cancel := context.WithTimeout(i.ctx, i.plugin.opts.Timeout)
	defer cancel()

	route, err := i.plugin.router.CalculateRoute(ctx, routing.RouteRequest{
		Locations: []routing.LocationRequest{
			{Lat: from.Lat, Lon: from.Lon},
			{Lat: i.dest.Lat, Lon: i.dest.Lon},
		},
		Costing: i.plugin.opts.Costing,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("calculating route: %w", err)
	}
	shape := route.Shape()
	points := make([]gis.Point, len(shape))
	for k, p := range shape {
		points[k] = gis.Point{Lat: p.Lat, Lon: p.Lon}
	}
	return route, points, nil
}

func (i *Instance) init(start gis.Point) error {
	route, points, err := i.calculate(start)
	if err != nil {
		return err
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	if i.removed {
		return ErrRemoved
	}

	style := i.plugin.style
	if err := style.AddSource(navigation.TrackingRouteSourceID, lineFeature(points)); err != nil {
		return err
	}
	if err := style.AddLayer(mapstyle.Layer{
		ID:     navigation.TrackingRouteLayerID,
		Type:   "line",
		Source: navigation.TrackingRouteSourceID,
		Paint:  map[string]any{"line-color": i.style.RouteColor, "line-width": i.style.StrokeWidth},
	}); err != nil {
		return err
	}
	if err := style.AddSource(i.markerID, pointFeature(i.position, i.style.Popup)); err != nil {
		return err
	}
	if err := style.AddLayer(mapstyle.Layer{
		ID:     i.markerID,
		Type:   "symbol",
		Source: i.markerID,
		Layout: map[string]any{"icon-size": i.style.CCPIconWidth, "icon-rotate": i.heading},
	}); err != nil {
		return err
	}
	if i.style.Connector && len(points) > 0 {
		connector := connectorPrefix + i.id
		if err := style.AddSource(connector, lineFeature([]gis.Point{i.position, points[0]})); err != nil {
			return err
		}
		if err := style.AddLayer(mapstyle.Layer{
			ID:     connector,
			Type:   "line",
			Source: connector,
			Paint:  map[string]any{"line-color": i.style.RouteColor, "line-dasharray": []int{2, 2}},
		}); err != nil {
			return err
		}
	}

	i.route = points
	i.summary = route.Summary
	i.ready = true
	return nil
}

// Track queues a position update. done is not called if the instance is removed
// before the update runs.
func (i *Instance) Track(call navigation.TrackCall, done func(error)) {
	i.mu.Lock()
	removed := i.removed
	i.mu.Unlock()
	if removed {
		finish(done, ErrRemoved)
		return
	}

	select {
	case i.jobs <- func() { finish(done, i.track(call)) }:
	default:
		finish(done, ErrBusy)
	}
}

func (i *Instance) track(call navigation.TrackCall) error {
	pos := gis.Point{Lat: call.Location[1], Lon: call.Location[0]}

	i.mu.Lock()
	if i.removed {
		i.mu.Unlock()
		return ErrRemoved
	}
	if !i.ready {
		i.mu.Unlock()
		return ErrNotReady
	}
	heading := i.heading
	if call.Heading != nil {
		heading = *call.Heading
	} else if pos != i.position {
		heading = gis.Bearing(i.position, pos)
	}
	offRoute := call.ReRoute && !gis.IsPointInPolyline(pos, i.route, call.Buffer)
	i.mu.Unlock()

	var (
		route  *routing.Route
		points []gis.Point
	)
	if offRoute {
		var err error
		route, points, err = i.calculate(pos)
		if err != nil {
			return fmt.Errorf("rerouting: %w", err)
		}
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	if i.removed {
		return ErrRemoved
	}

	i.position, i.heading = pos, heading
	if err := i.plugin.style.SetSourceData(i.markerID, pointFeature(pos, i.style.Popup)); err != nil {
		return err
	}
	if route != nil {
		i.route, i.summary = points, route.Summary
		if err := i.plugin.style.SetSourceData(navigation.TrackingRouteSourceID, lineFeature(points)); err != nil {
			return err
		}
	}

	progress := Progress{
		InstanceID: i.id,
		Location:   call.Location,
		Heading:    heading,
		MapCenter:  call.MapCenter,
		Rerouted:   route != nil,
	}
	if call.ETARefresh {
		progress.RemainingDistance = gis.RemainingLength(pos, i.route)
		if total := i.summary.Length * 1000; total > 0 {
			progress.RemainingTime = i.summary.Time * min(progress.RemainingDistance/total, 1)
		}
	}
	if i.plugin.opts.OnProgress != nil {
		i.plugin.opts.OnProgress(progress)
	}
	return nil
}

// Remove deletes the route and the position marker from the map.
func (i *Instance) Remove() error {
	i.cancel()

	i.mu.Lock()
	defer i.mu.Unlock()
	if i.removed {
		return ErrRemoved
	}
	i.removed = true
	if !i.ready {
		return nil
	}

	style := i.plugin.style
	for _, id := range []string{navigation.TrackingRouteLayerID, i.markerID} {
		if err := style.RemoveLayer(id); err != nil {
			i.plugin.logger.Debug("failed to remove layer", "instance", i.id, "layer", id, "error", err)
		}
	}
	for _, id := range []string{navigation.TrackingRouteSourceID, i.markerID} {
		if err := style.RemoveSource(id); err != nil {
			i.plugin.logger.Debug("failed to remove source", "instance", i.id, "source", id, "error", err)
		}
	}
	return nil
}

func lineFeature(points []gis.Point) *geojson.FeatureCollection {
	ls := make(orb.LineString, len(points))
	for k, p := range points {
		ls[k] = orb.Point{p.Lon, p.Lat}
	}
	fc := geojson.NewFeatureCollection()
	fc.Append(geojson.NewFeature(ls))
	return fc
}

func pointFeature(p gis.Point, popup string) *geojson.FeatureCollection {
	f := geojson.NewFeature(orb.Point{p.Lon, p.Lat})
	if popup != "" {
		f.Properties["popup"] = popup
	}
	fc := geojson.NewFeatureCollection()
	fc.Append(f)
	return fc
}
