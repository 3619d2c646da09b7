package itinerary

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/routeweave/routeweave_core/internal/models"
)

// Position is an estimated location along a merged route at a given
// moment, expressed as the active segment, a coordinate and how far
// through that segment the traveller is.
type Position struct {
	SegmentNr  int                  `json:"segment_nr"`
	Mode       models.TransportMode `json:"mode"`
	Coordinate models.Coordinate    `json:"coordinate"`
	Progress   float64              `json:"progress"`
}

// PositionAt estimates where a traveller is on the merged segments
// after the given time has elapsed since the first departure. Before
// the first departure the position is the start of the route, after
// the last arrival it is the end. Within a segment the coordinate is
// interpolated along its geometry, falling back to a straight line
// between its places when no geometry is present.
func PositionAt(segments []models.Segment, elapsed time.Duration) (Position, error) {
	if len(segments) == 0 {
		return Position{}, errors.New("no segments")
	}
	if elapsed < 0 {
		return Position{}, fmt.Errorf("elapsed time is negative: %s", elapsed)
	}

	first := segments[0]
	last := segments[len(segments)-1]
	at := first.DepartureTime.Add(elapsed)

	if !at.After(first.DepartureTime) {
		return Position{
			SegmentNr:  first.Nr,
			Mode:       first.Mode,
			Coordinate: startCoordinate(first),
		}, nil
	}
	if !at.Before(last.ArrivalTime) {
		return Position{
			SegmentNr:  last.Nr,
			Mode:       last.Mode,
			Coordinate: endCoordinate(last),
			Progress:   1,
		}, nil
	}

	for _, s := range segments {
		if !at.Before(s.ArrivalTime) {
			continue
		}
		if at.Before(s.DepartureTime) {
			// Between the previous arrival and this departure the
			// traveller is waiting at the start of this segment.
			return Position{
				SegmentNr:  s.Nr,
				Mode:       s.Mode,
				Coordinate: startCoordinate(s),
			}, nil
		}

		span := s.ArrivalTime.Sub(s.DepartureTime)
		progress := 0.0
		if span > 0 {
			progress = float64(at.Sub(s.DepartureTime)) / float64(span)
		}
		return Position{
			SegmentNr:  s.Nr,
			Mode:       s.Mode,
			Coordinate: interpolate(s, progress),
			Progress:   progress,
		}, nil
	}

	return Position{
		SegmentNr:  last.Nr,
		Mode:       last.Mode,
		Coordinate: endCoordinate(last),
		Progress:   1,
	}, nil
}

// interpolate returns the coordinate at the given fraction of a
// segment, walking its geometry by distance.
func interpolate(s models.Segment, progress float64) models.Coordinate {
	progress = math.Max(0, math.Min(1, progress))

	if len(s.Geometry) < 2 {
		start := startCoordinate(s)
		end := endCoordinate(s)
		return models.Coordinate{
			Lat: start.Lat + (end.Lat-start.Lat)*progress,
			Lon: start.Lon + (end.Lon-start.Lon)*progress,
		}
	}

	distances := make([]float64, len(s.Geometry))
	total := 0.0
	for i := 1; i < len(s.Geometry); i++ {
		total += haversineDistance(s.Geometry[i-1], s.Geometry[i])
		distances[i] = total
	}
	if total == 0 {
		return s.Geometry[0]
	}

	target := progress * total
	for i := 1; i < len(s.Geometry); i++ {
		if distances[i] < target {
			continue
		}
		prev := s.Geometry[i-1]
		next := s.Geometry[i]
		stretch := distances[i] - distances[i-1]
		fraction := 0.0
		if stretch > 0 {
			fraction = (target - distances[i-1]) / stretch
		}
		return models.Coordinate{
			Lat: prev.Lat + (next.Lat-prev.Lat)*fraction,
			Lon: prev.Lon + (next.Lon-prev.Lon)*fraction,
		}
	}

	return s.Geometry[len(s.Geometry)-1]
}

func startCoordinate(s models.Segment) models.Coordinate {
	if len(s.Geometry) > 0 {
		return s.Geometry[0]
	}
	return models.Coordinate{Lat: s.From.Lat, Lon: s.From.Lon}
}

func endCoordinate(s models.Segment) models.Coordinate {
	if len(s.Geometry) > 0 {
		return s.Geometry[len(s.Geometry)-1]
	}
	return models.Coordinate{Lat: s.To.Lat, Lon: s.To.Lon}
}

// haversineDistance returns the great-circle distance in meters
// between two coordinates.
func haversineDistance(a, b models.Coordinate) float64 {
	const earthRadius = 6371000.0

	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadius * c
}
