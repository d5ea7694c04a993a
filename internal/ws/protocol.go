package ws

import (
	"encoding/json"
	"fmt"

	"mappls-navigation/internal/navigation"
)

// Inbound message types.
const (
	TypeRoute         = "route"
	TypeRouteClear    = "route_clear"
	TypeStart         = "start"
	TypeStop          = "stop"
	TypeLocate        = "locate"
	TypePosition      = "position"
	TypePositionError = "position_error"
)

// Outbound message types. Geolocation commands use the location.Command* names.
const (
	TypeState    = "state"
	TypeLocation = "location"
	TypeError    = "error"
	TypeMap      = "map"
	TypeTracking = "tracking"
)

// KindBadRequest is the error kind of a malformed client message.
const KindBadRequest = "bad_request"

type Message struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

func newMessage(msgType string, data any) (Message, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Message{}, fmt.Errorf("marshalling %s message: %w", msgType, err)
	}
	return Message{Type: msgType, Data: raw}, nil
}

type StartData struct {
	// Result, when set, takes priority over the stored route of the session.
	Result *navigation.RouteResult `json:"result"`
}

type PositionData struct {
	ID        int      `json:"id" validate:"gt=0"`
	Latitude  float64  `json:"latitude" validate:"latitude"`
	Longitude float64  `json:"longitude" validate:"longitude"`
	Heading   *float64 `json:"heading" validate:"omitempty,gte=0,lt=360"`
}

type PositionErrorData struct {
	ID      int    `json:"id" validate:"gt=0"`
	Code    int    `json:"code" validate:"gte=0,lte=3"`
	Message string `json:"message"`
}

type StateData struct {
	State     navigation.State           `json:"state"`
	Endpoints *navigation.RouteEndpoints `json:"endpoints,omitempty"`
}

type LocationData struct {
	// Location is null when the displayed location is cleared.
	Location *navigation.GeoFix `json:"location"`
}

type ErrorData struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

type RouteData struct {
	Available bool `json:"available"`
}
