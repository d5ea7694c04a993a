package gis

import (
	"math"
)

// EarthRadius in meters
const EarthRadius = 6378137

const degToRad = math.Pi / 180

type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Haversine distance between two points in meters
func Haversine(a, b Point) float64 {
	dLat := (b.Lat - a.Lat) * degToRad
	dLon := (b.Lon - a.Lon) * degToRad

	lat1 := a.Lat * degToRad
	lat2 := b.Lat * degToRad

	sinDlat := math.Sin(dLat / 2)
	sinDlon := math.Sin(dLon / 2)

	aVal := sinDlat*sinDlat + sinDlon*sinDlon*math.Cos(lat1)*math.Cos(lat2)
	c := 2 * math.Atan2(math.Sqrt(aVal), math.Sqrt(1-aVal))
	return EarthRadius * c
}

// Bearing returns the initial bearing in degrees clockwise from north to travel from a to b.
func Bearing(a, b Point) float64 {
	lat1, lat2 := a.Lat*degToRad, b.Lat*degToRad
	dLon := (b.Lon - a.Lon) * degToRad
	y := math.Sin(dLon) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(dLon)
	return math.Mod(math.Atan2(y, x)/degToRad+360, 360)
}

// DistanceToPolyline returns the distance in metres from point to the closest
// segment of polyline, or +Inf for an empty polyline.
func DistanceToPolyline(point Point, polyline []Point) float64 {
	switch len(polyline) {
	case 0:
		return math.Inf(1)
	case 1:
		return Haversine(point, polyline[0])
	}

	best := math.Inf(1)
	for i := 0; i < len(polyline)-1; i++ {
		best = math.Min(best, distanceToSegment(point, polyline[i], polyline[i+1]))
	}
	return best
}

// IsPointInPolyline returns true if point is within tolerance metres of the polyline.
func IsPointInPolyline(point Point, polyline []Point, tolerance float64) bool {
	return DistanceToPolyline(point, polyline) <= tolerance
}

// RemainingLength returns the length in metres of polyline from the projection
// of point onto its closest segment to the last vertex.
func RemainingLength(point Point, polyline []Point) float64 {
	if len(polyline) < 2 {
		if len(polyline) == 1 {
			return Haversine(point, polyline[0])
		}
		return 0
	}

	closest, best := 0, math.Inf(1)
	for i := 0; i < len(polyline)-1; i++ {
		if d := distanceToSegment(point, polyline[i], polyline[i+1]); d < best {
			closest, best = i, d
		}
	}

	remaining := Haversine(point, polyline[closest+1])
	for i := closest + 1; i < len(polyline)-1; i++ {
		remaining += Haversine(polyline[i], polyline[i+1])
	}
	return remaining
}

// distanceToSegment calculates the minimum distance (in metres) from P to the segment [A, B]
// on a local equirectangular projection, which is accurate enough at street scale.
func distanceToSegment(P, A, B Point) float64 {
	lat1 := A.Lat * degToRad
	lon1 := A.Lon * degToRad
	lat2 := B.Lat * degToRad
	lon2 := B.Lon * degToRad
	latP := P.Lat * degToRad
	lonP := P.Lon * degToRad

	latRef := (lat1 + lat2) / 2
	cosLatRef := math.Cos(latRef)

	xA, yA := lon1*EarthRadius*cosLatRef, lat1*EarthRadius
	xB, yB := lon2*EarthRadius*cosLatRef, lat2*EarthRadius
	xP, yP := lonP*EarthRadius*cosLatRef, latP*EarthRadius

	dx, dy := xB-xA, yB-yA

	// A == B
	if dx == 0 && dy == 0 {
		return math.Hypot(xP-xA, yP-yA)
	}

	t := ((xP-xA)*dx + (yP-yA)*dy) / (dx*dx + dy*dy)
	t = math.Max(0, math.Min(1, t))
	xProj := xA + t*dx
	yProj := yA + t*dy

	return math.Hypot(xP-xProj, yP-yProj)
}
