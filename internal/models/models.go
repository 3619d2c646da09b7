package models

import "time"

// TransportMode identifies the transport category of a segment.
// Merging and fusion compare this value alone; descriptive fields such as
// Line or Operator never affect mode identity.
type TransportMode string

const (
	ModeFoot     TransportMode = "FOOT"
	ModeTransfer TransportMode = "TRANSFER"
	ModeBicycle  TransportMode = "BICYCLE"
	ModeCar      TransportMode = "CAR"
	ModeBus      TransportMode = "BUS"
	ModeTram     TransportMode = "TRAM"
	ModeMetro    TransportMode = "METRO"
	ModeRail     TransportMode = "RAIL"
	ModeFerry    TransportMode = "FERRY"
)

// Coordinate is a single geometry point
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Place is an opaque location reference. The merge pipeline copies places
// through without inspecting them.
type Place struct {
	ID   string  `json:"id,omitempty"`
	Name string  `json:"name,omitempty"`
	Lat  float64 `json:"lat,omitempty"`
	Lon  float64 `json:"lon,omitempty"`
}

// Segment is one continuous movement on a single mode of transport.
// Boarding and alighting seconds are contained within the duration;
// a zero value means the engine did not report them.
type Segment struct {
	Nr               int           `json:"nr"`
	Mode             TransportMode `json:"mode"`
	Line             string        `json:"line,omitempty"`
	Operator         string        `json:"operator,omitempty"`
	VehicleID        string        `json:"vehicle_id,omitempty"`
	From             Place         `json:"from"`
	To               Place         `json:"to"`
	DepartureTime    time.Time     `json:"departure_time"`
	ArrivalTime      time.Time     `json:"arrival_time"`
	DurationSeconds  int           `json:"duration_seconds"`
	BoardingSeconds  int           `json:"boarding_seconds,omitempty"`
	AlightingSeconds int           `json:"alighting_seconds,omitempty"`
	LengthMeters     int           `json:"length_meters"`
	Geometry         []Coordinate  `json:"geometry,omitempty"`
}

// Leg is a non-empty ordered sequence of segments produced by one routing
// engine. Legs are merged in the order they are given, never reordered.
type Leg []Segment

// Route is the envelope around a merged segment list, as stored and served.
type Route struct {
	ID              string    `json:"id,omitempty"`
	From            Place     `json:"from"`
	To              Place     `json:"to"`
	DepartureTime   time.Time `json:"departure_time"`
	ArrivalTime     time.Time `json:"arrival_time"`
	DurationSeconds int       `json:"duration_seconds"`
	LengthMeters    int       `json:"length_meters"`
	Segments        []Segment `json:"segments"`
	CreatedAt       time.Time `json:"created_at,omitempty"`
}

// NewRoute builds a Route around merged segments. Endpoints and times come
// from the first and last segment, length is summed. ID assignment is left
// to the store.
func NewRoute(segments []Segment) Route {
	route := Route{Segments: segments}
	if len(segments) == 0 {
		return route
	}

	first := segments[0]
	last := segments[len(segments)-1]

	route.From = first.From
	route.To = last.To
	route.DepartureTime = first.DepartureTime
	route.ArrivalTime = last.ArrivalTime
	route.DurationSeconds = int(last.ArrivalTime.Sub(first.DepartureTime) / time.Second)

	for _, s := range segments {
		route.LengthMeters += s.LengthMeters
	}

	return route
}
