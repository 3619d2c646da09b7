package models

import (
	"errors"
	"fmt"
)

// Validation collects every violation instead of stopping at the first one,
// so API callers see the full list in a single round trip.

// ValidateSegment checks a single segment's internal invariants.
func ValidateSegment(s Segment) error {
	var errs []error

	if s.Mode == "" {
		errs = append(errs, errors.New("mode is required"))
	}
	if s.DepartureTime.IsZero() {
		errs = append(errs, errors.New("departure time is required"))
	}
	if s.ArrivalTime.IsZero() {
		errs = append(errs, errors.New("arrival time is required"))
	}
	if !s.DepartureTime.IsZero() && !s.ArrivalTime.IsZero() && s.ArrivalTime.Before(s.DepartureTime) {
		errs = append(errs, errors.New("arrival time is before departure time"))
	}
	if s.DurationSeconds < 0 {
		errs = append(errs, errors.New("duration is negative"))
	}
	if s.BoardingSeconds < 0 {
		errs = append(errs, errors.New("boarding seconds is negative"))
	}
	if s.AlightingSeconds < 0 {
		errs = append(errs, errors.New("alighting seconds is negative"))
	}
	if s.BoardingSeconds >= 0 && s.AlightingSeconds >= 0 &&
		s.BoardingSeconds+s.AlightingSeconds > s.DurationSeconds {
		errs = append(errs, errors.New("boarding and alighting seconds exceed duration"))
	}
	if s.LengthMeters < 0 {
		errs = append(errs, errors.New("length is negative"))
	}

	return errors.Join(errs...)
}

// ValidateLeg checks that a leg is non-empty, every segment is valid, and
// departure times never decrease along the leg.
func ValidateLeg(leg Leg) error {
	if len(leg) == 0 {
		return errors.New("leg has no segments")
	}

	var errs []error
	for i, s := range leg {
		if err := ValidateSegment(s); err != nil {
			errs = append(errs, fmt.Errorf("segment %d: %w", i+1, err))
		}
	}
	for i := 1; i < len(leg); i++ {
		if leg[i].DepartureTime.Before(leg[i-1].DepartureTime) {
			errs = append(errs, fmt.Errorf("segment %d departs before segment %d", i+1, i))
		}
	}

	return errors.Join(errs...)
}

// ValidateLegs checks a complete merge input.
func ValidateLegs(legs []Leg) error {
	if len(legs) == 0 {
		return errors.New("no legs")
	}

	var errs []error
	for i, leg := range legs {
		if err := ValidateLeg(leg); err != nil {
			errs = append(errs, fmt.Errorf("leg %d: %w", i+1, err))
		}
	}

	return errors.Join(errs...)
}
