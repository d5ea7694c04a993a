package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"mappls-navigation/internal/navigation"
	"mappls-navigation/internal/routing"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisSessionCache(t *testing.T) {
	mr, client := newTestRedis(t)
	c := NewRedisSessionCache(client, 30*time.Minute)
	ctx := context.Background()

	got, err := c.GetSession(ctx, "abc")
	if err != nil || got != nil {
		t.Fatalf("GetSession on miss = %v, %v; want nil, nil", got, err)
	}

	snapshot := &navigation.Snapshot{
		ID:        "abc",
		State:     navigation.StateTracking,
		Endpoints: &navigation.RouteEndpoints{Start: "28.61,77.23", End: "28.7,77.1", Form: navigation.FormWaypoint},
		LastFix:   &navigation.GeoFix{Latitude: 28.61, Longitude: 77.23},
		UpdatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	if err := c.SetSession(ctx, snapshot); err != nil {
		t.Fatalf("SetSession: %v", err)
	}
	if !mr.Exists("navigation:session:abc") {
		t.Fatal("snapshot not stored under navigation:session:abc")
	}
	if ttl := mr.TTL("navigation:session:abc"); ttl != 30*time.Minute {
		t.Errorf("ttl = %v, want 30m", ttl)
	}

	got, err = c.GetSession(ctx, "abc")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.State != navigation.StateTracking || got.Endpoints.End != "28.7,77.1" || got.LastFix.Latitude != 28.61 {
		t.Errorf("snapshot = %+v", got)
	}

	if err := c.DeleteSession(ctx, "abc"); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}
	if mr.Exists("navigation:session:abc") {
		t.Error("snapshot still stored after DeleteSession")
	}
}

func TestRedisRouteStore(t *testing.T) {
	mr, client := newTestRedis(t)
	s := NewRedisRouteStore(client, time.Hour)
	ctx := context.Background()

	if got, err := s.LastRoute(ctx, "abc"); err != nil || got != nil {
		t.Fatalf("LastRoute on miss = %v, %v; want nil, nil", got, err)
	}

	result := &navigation.RouteResult{
		Waypoints: []navigation.Waypoint{{Location: []float64{77.23, 28.61}}, {Location: []float64{77.1, 28.7}}},
	}
	if err := s.SetLastRoute(ctx, "abc", result); err != nil {
		t.Fatalf("SetLastRoute: %v", err)
	}

	got, err := s.LastRoute(ctx, "abc")
	if err != nil {
		t.Fatalf("LastRoute: %v", err)
	}
	ep, err := navigation.Resolve(got)
	if err != nil {
		t.Fatalf("stored route does not resolve: %v", err)
	}
	if ep.Start != "28.61,77.23" || ep.End != "28.7,77.1" {
		t.Errorf("endpoints = %+v", ep)
	}

	if err := s.ClearLastRoute(ctx, "abc"); err != nil {
		t.Fatalf("ClearLastRoute: %v", err)
	}
	if mr.Exists("navigation:route:abc") {
		t.Error("route still stored after ClearLastRoute")
	}
}

func TestRedisRouteCacheExpires(t *testing.T) {
	mr, client := newTestRedis(t)
	c := NewRedisRouteCache(client, 2*time.Minute)
	ctx := context.Background()

	route := &routing.Route{Summary: routing.Summary{Time: 600, Length: 2.2}}
	if err := c.SetRoute(ctx, "auto:ttnfv2u:ttng3mz", route); err != nil {
		t.Fatalf("SetRoute: %v", err)
	}

	got, err := c.GetRoute(ctx, "auto:ttnfv2u:ttng3mz")
	if err != nil || got == nil {
		t.Fatalf("GetRoute = %v, %v", got, err)
	}
	if got.Summary.Time != 600 {
		t.Errorf("summary = %+v", got.Summary)
	}

	mr.FastForward(3 * time.Minute)
	if got, err := c.GetRoute(ctx, "auto:ttnfv2u:ttng3mz"); err != nil || got != nil {
		t.Errorf("GetRoute after ttl = %v, %v; want nil, nil", got, err)
	}
}
