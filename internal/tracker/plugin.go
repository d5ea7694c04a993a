package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"mappls-navigation/internal/gis"
	"mappls-navigation/internal/mapstyle"
	"mappls-navigation/internal/navigation"
	"mappls-navigation/internal/routing"
)

const (
	// jobQueueSize bounds the updates waiting for one instance.
	jobQueueSize    = 16
	defaultTimeout  = 10 * time.Second
	positionPrefix  = "tracking-position-"
	connectorPrefix = "tracking-connector-"
)

var (
	ErrInvalidGeoposition = errors.New("invalid LngLat geoposition")
	ErrRemoved            = errors.New("tracking instance removed")
	ErrBusy               = errors.New("tracking instance busy")
	ErrNotReady           = errors.New("tracking instance not initialized")
)

// Progress is reported after every processed tracking update.
type Progress struct {
	InstanceID string     `json:"instance_id"`
	Location   [2]float64 `json:"location"`
	Heading    float64    `json:"heading"`
	MapCenter  bool       `json:"map_center"`
	Rerouted   bool       `json:"rerouted"`
	// RemainingTime in seconds.
	RemainingTime float64 `json:"remaining_time"`
	// RemainingDistance in metres.
	RemainingDistance float64 `json:"remaining_distance"`
}

type Options struct {
	Costing routing.Costing
	Timeout time.Duration
	// OnProgress may be nil.
	OnProgress func(Progress)
}

// Plugin renders routes followed by a moving position marker onto a map style.
type Plugin struct {
	router routing.Router
	style  *mapstyle.Style
	logger *slog.Logger
	opts   Options
}

var _ navigation.TrackingPlugin = (*Plugin)(nil)

func New(router routing.Router, style *mapstyle.Style, logger *slog.Logger, opts Options) *Plugin {
	if opts.Costing == "" {
		opts.Costing = routing.CostingAuto
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	return &Plugin{router: router, style: style, logger: logger, opts: opts}
}

// ParseGeoposition parses a strict "lat,lng" string.
func ParseGeoposition(s string) (gis.Point, error) {
	if !navigation.IsCoordinate(s) {
		return gis.Point{}, fmt.Errorf("%w: %q", ErrInvalidGeoposition, s)
	}
	latStr, lonStr, _ := strings.Cut(s, ",")
	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil {
		return gis.Point{}, fmt.Errorf("%w: %q", ErrInvalidGeoposition, s)
	}
	lon, err := strconv.ParseFloat(lonStr, 64)
	if err != nil {
		return gis.Point{}, fmt.Errorf("%w: %q", ErrInvalidGeoposition, s)
	}
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return gis.Point{}, fmt.Errorf("%w: %q out of range", ErrInvalidGeoposition, s)
	}
	return gis.Point{Lat: lat, Lon: lon}, nil
}

// Create validates the endpoints synchronously and builds the route in the
// background; done is called once the layers are on the map.
func (p *Plugin) Create(opts navigation.TrackingOptions, done func(error)) (navigation.TrackingInstance, error) {
	start, err := ParseGeoposition(opts.Start)
	if err != nil {
		return nil, err
	}
	end, err := ParseGeoposition(opts.End)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	id := uuid.NewString()
	inst := &Instance{
		id:       id,
		plugin:   p,
		dest:     end,
		style:    opts.Style,
		markerID: positionPrefix + id,
		position: gis.Point{Lat: opts.Position.Latitude, Lon: opts.Position.Longitude},
		jobs:     make(chan func(), jobQueueSize),
		ctx:      ctx,
		cancel:   cancel,
	}
	inst.jobs <- func() { finish(done, inst.init(start)) }
	go inst.run()

	p.logger.Debug("tracking instance created", "instance", id, "start", opts.Start, "end", opts.End)
	return inst, nil
}

func finish(done func(error), err error) {
	if done != nil {
		done(err)
	}
}
