package navigation

import (
	"time"
)

// GeoFix is one reported device location sample.
type GeoFix struct {
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	Heading   *float64 `json:"heading,omitempty"`
}

// LngLat returns the fix as a [longitude, latitude] pair.
func (f GeoFix) LngLat() [2]float64 {
	return [2]float64{f.Longitude, f.Latitude}
}

type PositionOptions struct {
	EnableHighAccuracy bool          `json:"enableHighAccuracy"`
	Timeout            time.Duration `json:"timeout"`
	MaximumAge         time.Duration `json:"maximumAge"`
}

// LocationProvider is the device geolocation capability.
// Callbacks may run on any goroutine, possibly before the call that registered them returns.
type LocationProvider interface {
	// CurrentPosition requests a single fix.
	CurrentPosition(opts PositionOptions, onFix func(GeoFix), onError func(error))
	// Watch starts a continuous subscription and returns its id.
	Watch(opts PositionOptions, onFix func(GeoFix), onError func(error)) (int, error)
	// ClearWatch cancels a subscription. Unknown ids are ignored.
	ClearWatch(id int)
}

// Timer is a cancellable pending callback.
type Timer interface {
	Stop() bool
}

// Clock abstracts time so throttling and retries can be driven by tests.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type systemClock struct{}

// SystemClock uses the time package. Now carries a monotonic reading.
func SystemClock() Clock { return systemClock{} }

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
