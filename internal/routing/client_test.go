package routing

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func testRequest() RouteRequest {
	return RouteRequest{
		Locations: []LocationRequest{{Lat: 28.61, Lon: 77.23}, {Lat: 28.7, Lon: 77.1}},
		Costing:   CostingAuto,
	}
}

func TestClientCalculateRoute(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/route" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var req RouteRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		if len(req.Locations) != 2 || req.Costing != CostingAuto {
			t.Errorf("request = %+v", req)
		}
		_ = json.NewEncoder(w).Encode(RouteResponse{Data: []Route{{
			Legs:    []Leg{{Shape: []Point{{Lat: 28.61, Lon: 77.23}, {Lat: 28.7, Lon: 77.1}}}},
			Summary: Summary{Time: 900, Length: 14.2},
		}}})
	}))
	defer srv.Close()

	route, err := NewClient(srv.URL).CalculateRoute(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("CalculateRoute: %v", err)
	}
	if route.Summary.Time != 900 || len(route.Shape()) != 2 {
		t.Errorf("route = %+v", route)
	}
}

func TestClientCalculateRouteErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{name: "empty data", status: http.StatusOK, body: `{"data":[]}`, wantErr: ErrNoRoute},
		{name: "not found", status: http.StatusNotFound, wantErr: ErrNoRoute},
		{name: "server error", status: http.StatusInternalServerError},
		{name: "bad json", status: http.StatusOK, body: `{`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewClient(srv.URL).CalculateRoute(context.Background(), testRequest())
			if err == nil {
				t.Fatal("expected an error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestRouteRequestValidate(t *testing.T) {
	req := testRequest()
	req.Locations = req.Locations[:1]
	if err := req.Validate(); err == nil {
		t.Error("single location accepted")
	}
	req = testRequest()
	req.Costing = "hovercraft"
	if err := req.Validate(); err == nil {
		t.Error("invalid costing accepted")
	}
}
