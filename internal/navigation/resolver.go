package navigation

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
)

var coordinatePattern = regexp.MustCompile(`^-?\d+(\.\d+)?,-?\d+(\.\d+)?$`)

// IsCoordinate reports whether s has the strict "lat,lng" shape.
func IsCoordinate(s string) bool {
	return coordinatePattern.MatchString(s)
}

// RouteForm tags the shape a route result was resolved from.
type RouteForm int

const (
	FormInvalid RouteForm = iota
	FormWaypoint
	FormRequest
)

func (f RouteForm) String() string {
	switch f {
	case FormWaypoint:
		return "waypoint"
	case FormRequest:
		return "request"
	}
	return "invalid"
}

type Waypoint struct {
	// Location is [longitude, latitude].
	Location []float64 `json:"location"`
	Name     string    `json:"name,omitempty"`
}

type RequestInput struct {
	Geoposition string `json:"geoposition"`
}

// RouteResult is the untrusted output of the external route-calculation plugin.
type RouteResult struct {
	Waypoints []Waypoint     `json:"waypoints,omitempty"`
	Request   []RequestInput `json:"Request,omitempty"`
}

// UnmarshalJSON tolerates the loose shapes the direction plugin emits:
// malformed waypoints and a non-array Request decode as absent.
func (r *RouteResult) UnmarshalJSON(data []byte) error {
	var raw struct {
		Waypoints json.RawMessage `json:"waypoints"`
		Request   json.RawMessage `json:"Request"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decoding route result: %w", err)
	}

	var rawWaypoints []json.RawMessage
	if json.Unmarshal(raw.Waypoints, &rawWaypoints) == nil {
		r.Waypoints = make([]Waypoint, 0, len(rawWaypoints))
		for _, rw := range rawWaypoints {
			var wp Waypoint
			if json.Unmarshal(rw, &wp) != nil {
				wp = Waypoint{}
			}
			r.Waypoints = append(r.Waypoints, wp)
		}
	}

	var rawInputs []json.RawMessage
	if json.Unmarshal(raw.Request, &rawInputs) == nil {
		r.Request = make([]RequestInput, 0, len(rawInputs))
		for _, ri := range rawInputs {
			var in RequestInput
			if json.Unmarshal(ri, &in) != nil {
				in = RequestInput{}
			}
			r.Request = append(r.Request, in)
		}
	}
	return nil
}

// RouteEndpoints is the normalized start/end pair handed to the tracking plugin.
type RouteEndpoints struct {
	Start string    `json:"start"`
	End   string    `json:"end"`
	Form  RouteForm `json:"form"`
}

// Verified reports whether both endpoints are strict coordinates. Request-form
// endpoints may be place names, which the tracking plugin is free to reject.
func (e RouteEndpoints) Verified() bool {
	return IsCoordinate(e.Start) && IsCoordinate(e.End)
}

// Resolve extracts the route endpoints from result. Waypoint coordinates win over
// request inputs; request inputs only fill the endpoints the waypoints left empty.
func Resolve(result *RouteResult) (RouteEndpoints, error) {
	if result == nil {
		return RouteEndpoints{}, ErrNoRoute
	}

	var ep RouteEndpoints
	if n := len(result.Waypoints); n >= 2 {
		ep.Start = formatLngLat(result.Waypoints[0].Location)
		ep.End = formatLngLat(result.Waypoints[n-1].Location)
		if ep.Start != "" && ep.End != "" {
			ep.Form = FormWaypoint
			return ep, nil
		}
	}

	if len(result.Request) >= 2 {
		if ep.Start == "" {
			ep.Start = result.Request[0].Geoposition
		}
		if ep.End == "" {
			ep.End = result.Request[1].Geoposition
		}
	}

	if ep.Start == "" || ep.End == "" {
		return RouteEndpoints{}, fmt.Errorf("%w: no usable waypoints or request inputs", ErrNoRoute)
	}
	ep.Form = FormRequest
	return ep, nil
}

func formatLngLat(loc []float64) string {
	if len(loc) < 2 {
		return ""
	}
	return strconv.FormatFloat(loc[1], 'f', -1, 64) + "," + strconv.FormatFloat(loc[0], 'f', -1, 64)
}
