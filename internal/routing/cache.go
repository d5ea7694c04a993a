package routing

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mmcloughlin/geohash"
)

// geohashPrecision 7 is a cell of roughly 150m, below the reroute buffer scale
// but coarse enough for repeated requests from a slowly moving device to hit.
const geohashPrecision = 7

// CacheStore persists computed routes. GetRoute returns (nil, nil) on a miss.
type CacheStore interface {
	GetRoute(ctx context.Context, key string) (*Route, error)
	SetRoute(ctx context.Context, key string, route *Route) error
}

// CachedRouter wraps another Router and caches its results by the geohashes of
// the first and last location.
type CachedRouter struct {
	inner  Router
	store  CacheStore
	logger *slog.Logger
}

func NewCachedRouter(inner Router, store CacheStore, logger *slog.Logger) *CachedRouter {
	return &CachedRouter{inner: inner, store: store, logger: logger}
}

// CacheKey builds the cache key for req.
func CacheKey(req RouteRequest) string {
	if len(req.Locations) < 2 {
		return ""
	}
	from := req.Locations[0]
	to := req.Locations[len(req.Locations)-1]
	return fmt.Sprintf("%s:%s:%s",
		req.Costing,
		geohash.EncodeWithPrecision(from.Lat, from.Lon, geohashPrecision),
		geohash.EncodeWithPrecision(to.Lat, to.Lon, geohashPrecision),
	)
}

func (r *CachedRouter) CalculateRoute(ctx context.Context, req RouteRequest) (*Route, error) {
	key := CacheKey(req)
	if key == "" || len(req.Locations) > 2 {
		return r.inner.CalculateRoute(ctx, req)
	}

	cached, err := r.store.GetRoute(ctx, key)
	if err != nil {
		r.logger.Warn("failed to read route cache", "key", key, "error", err)
	} else if cached != nil {
		r.logger.Debug("route cache hit", "key", key)
		return cached, nil
	}

	route, err := r.inner.CalculateRoute(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := r.store.SetRoute(ctx, key, route); err != nil {
		r.logger.Warn("failed to store route in cache", "key", key, "error", err)
	}
	return route, nil
}
