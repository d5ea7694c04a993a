package routing

import (
	"errors"
	"fmt"
)

type RouteRequest struct {
	Locations      []LocationRequest `json:"locations"`
	Costing        Costing           `json:"costing"`
	CostingOptions *CostingOptions   `json:"costing_options,omitempty"`
	Language       *string           `json:"language,omitempty"`
}

func (r RouteRequest) Validate() error {
	if len(r.Locations) < 2 {
		return errors.New("at least 2 locations must be provided")
	}
	if !r.Costing.IsValid() {
		return fmt.Errorf("costing %q is invalid", r.Costing)
	}
	return nil
}

type LocationRequest struct {
	Lat  float64       `json:"lat"`
	Lon  float64       `json:"lon"`
	Type *LocationType `json:"type,omitempty"`
	Name *string       `json:"name,omitempty"`
}

type LocationType string

const (
	LocationTypeBreak   LocationType = "break"
	LocationTypeThrough LocationType = "through"
	LocationTypeVia     LocationType = "via"
)

type Costing string

const (
	CostingAuto       Costing = "auto"
	CostingBicycle    Costing = "bicycle"
	CostingTruck      Costing = "truck"
	CostingPedestrian Costing = "pedestrian"
)

func (c Costing) IsValid() bool {
	switch c {
	case CostingAuto, CostingBicycle, CostingTruck, CostingPedestrian:
		return true
	default:
		return false
	}
}

// Ratio represents a float between 0 and 1.
type Ratio float64

type CostingOptions struct {
	UseHighways *Ratio `json:"use_highways,omitempty"`
	UseTolls    *Ratio `json:"use_tolls,omitempty"`
}

// Response specific

type RouteResponse struct {
	Data    []Route `json:"data"`
	Message string  `json:"message"`
}

type Route struct {
	Locations []LocationResponse `json:"locations"`
	Legs      []Leg              `json:"legs"`
	Summary   Summary            `json:"summary"`
}

// Shape returns the concatenated geometry of every leg.
func (r *Route) Shape() []Point {
	var shape []Point
	for _, leg := range r.Legs {
		shape = append(shape, leg.Shape...)
	}
	return shape
}

type Point struct {
	Lat float64 `json:"latitude"`
	Lon float64 `json:"longitude"`
}

type Maneuver struct {
	Type        uint8    `json:"type"`
	Instruction string   `json:"instruction"`
	StreetNames []string `json:"street_names"`
	Time        float64  `json:"time"`
	Length      float64  `json:"length"`
}

type Summary struct {
	// Time in seconds.
	Time float64 `json:"time"`
	// Length in kilometres.
	Length float64 `json:"length"`
}

type Leg struct {
	Maneuvers []Maneuver `json:"maneuvers"`
	Summary   Summary    `json:"summary"`
	Shape     []Point    `json:"shape"`
}

type LocationResponse struct {
	Lat           float64      `json:"lat"`
	Lon           float64      `json:"lon"`
	Type          LocationType `json:"type"`
	OriginalIndex int          `json:"original_index"`
}
