package itinerary

import "github.com/routeweave/routeweave_core/internal/models"

// fuseAdjacentSameMode collapses every run of adjacent segments that
// share a mode into a single segment. Folding is left to right, so the
// run keeps the first segment's attributes and origin and takes the
// last segment's destination and arrival time.
func fuseAdjacentSameMode(segments []models.Segment) []models.Segment {
	if len(segments) < 2 {
		return segments
	}

	fused := make([]models.Segment, 0, len(segments))
	current := segments[0]
	for _, next := range segments[1:] {
		if next.Mode == current.Mode {
			current = fuseTwo(current, next)
			continue
		}
		fused = append(fused, current)
		current = next
	}
	fused = append(fused, current)
	return fused
}

// fuseTwo merges b into a. Times, durations and lengths are combined;
// everything else stays as a had it.
func fuseTwo(a, b models.Segment) models.Segment {
	merged := a
	merged.To = b.To
	merged.ArrivalTime = b.ArrivalTime
	merged.DurationSeconds += b.DurationSeconds
	merged.BoardingSeconds += b.BoardingSeconds
	merged.AlightingSeconds += b.AlightingSeconds
	merged.LengthMeters += b.LengthMeters
	if len(a.Geometry) > 0 || len(b.Geometry) > 0 {
		geometry := make([]models.Coordinate, 0, len(a.Geometry)+len(b.Geometry))
		geometry = append(geometry, a.Geometry...)
		geometry = append(geometry, b.Geometry...)
		merged.Geometry = geometry
	}
	return merged
}

// renumber assigns sequential one-based numbers to the segments.
func renumber(segments []models.Segment) {
	for i := range segments {
		segments[i].Nr = i + 1
	}
}
