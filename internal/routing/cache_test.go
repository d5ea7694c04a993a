package routing

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
)

type countingRouter struct {
	calls int
	err   error
}

func (r *countingRouter) CalculateRoute(_ context.Context, _ RouteRequest) (*Route, error) {
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	return &Route{Summary: Summary{Time: float64(r.calls)}}, nil
}

type memoryStore struct {
	routes map[string]*Route
	getErr error
}

func (s *memoryStore) GetRoute(_ context.Context, key string) (*Route, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	return s.routes[key], nil
}

func (s *memoryStore) SetRoute(_ context.Context, key string, route *Route) error {
	s.routes[key] = route
	return nil
}

func newCached(inner Router, store CacheStore) *CachedRouter {
	return NewCachedRouter(inner, store, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestCachedRouterHitsNearbyOrigin(t *testing.T) {
	inner := &countingRouter{}
	store := &memoryStore{routes: map[string]*Route{}}
	r := newCached(inner, store)

	if _, err := r.CalculateRoute(context.Background(), testRequest()); err != nil {
		t.Fatalf("first call: %v", err)
	}

	// A few metres away falls in the same geohash cell.
	req := testRequest()
	req.Locations[0].Lat += 0.00001
	route, err := r.CalculateRoute(context.Background(), req)
	if err != nil {
		t.Fatalf("second call: %v", err)
	}
	if inner.calls != 1 || route.Summary.Time != 1 {
		t.Errorf("inner called %d times, want 1", inner.calls)
	}

	req.Costing = CostingPedestrian
	if _, err := r.CalculateRoute(context.Background(), req); err != nil {
		t.Fatalf("third call: %v", err)
	}
	if inner.calls != 2 {
		t.Errorf("different costing served from cache")
	}
}

func TestCachedRouterFallsThroughOnStoreError(t *testing.T) {
	inner := &countingRouter{}
	r := newCached(inner, &memoryStore{routes: map[string]*Route{}, getErr: errors.New("redis down")})

	if _, err := r.CalculateRoute(context.Background(), testRequest()); err != nil {
		t.Fatalf("CalculateRoute: %v", err)
	}
	if inner.calls != 1 {
		t.Errorf("inner called %d times, want 1", inner.calls)
	}
}

func TestCachedRouterDoesNotCacheErrors(t *testing.T) {
	inner := &countingRouter{err: ErrNoRoute}
	store := &memoryStore{routes: map[string]*Route{}}
	r := newCached(inner, store)

	if _, err := r.CalculateRoute(context.Background(), testRequest()); !errors.Is(err, ErrNoRoute) {
		t.Fatalf("error = %v, want ErrNoRoute", err)
	}
	if len(store.routes) != 0 {
		t.Error("failed route was cached")
	}
}
