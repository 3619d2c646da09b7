package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func validSegment() Segment {
	dep := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	return Segment{
		Nr:              1,
		Mode:            ModeBus,
		From:            Place{Name: "Central Station"},
		To:              Place{Name: "City Hall"},
		DepartureTime:   dep,
		ArrivalTime:     dep.Add(10 * time.Minute),
		DurationSeconds: 600,
		LengthMeters:    3200,
	}
}

func TestValidateSegment(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Segment)
		wantErr string
	}{
		{
			name:   "Valid segment",
			mutate: func(s *Segment) {},
		},
		{
			name:    "Missing mode",
			mutate:  func(s *Segment) { s.Mode = "" },
			wantErr: "mode is required",
		},
		{
			name:    "Missing departure time",
			mutate:  func(s *Segment) { s.DepartureTime = time.Time{} },
			wantErr: "departure time is required",
		},
		{
			name: "Arrival before departure",
			mutate: func(s *Segment) {
				s.ArrivalTime = s.DepartureTime.Add(-time.Minute)
			},
			wantErr: "arrival time is before departure time",
		},
		{
			name:    "Negative duration",
			mutate:  func(s *Segment) { s.DurationSeconds = -1 },
			wantErr: "duration is negative",
		},
		{
			name:    "Negative boarding",
			mutate:  func(s *Segment) { s.BoardingSeconds = -30 },
			wantErr: "boarding seconds is negative",
		},
		{
			name:    "Negative alighting",
			mutate:  func(s *Segment) { s.AlightingSeconds = -30 },
			wantErr: "alighting seconds is negative",
		},
		{
			name: "Boarding plus alighting exceeds duration",
			mutate: func(s *Segment) {
				s.BoardingSeconds = 400
				s.AlightingSeconds = 300
			},
			wantErr: "boarding and alighting seconds exceed duration",
		},
		{
			name:    "Negative length",
			mutate:  func(s *Segment) { s.LengthMeters = -5 },
			wantErr: "length is negative",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := validSegment()
			tt.mutate(&s)

			err := ValidateSegment(s)
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				assert.ErrorContains(t, err, tt.wantErr)
			}
		})
	}
}

func TestValidateSegmentCollectsAllViolations(t *testing.T) {
	s := validSegment()
	s.Mode = ""
	s.DurationSeconds = -1
	s.LengthMeters = -1

	err := ValidateSegment(s)
	assert.ErrorContains(t, err, "mode is required")
	assert.ErrorContains(t, err, "duration is negative")
	assert.ErrorContains(t, err, "length is negative")
}

func TestValidateLeg(t *testing.T) {
	first := validSegment()
	second := validSegment()
	second.DepartureTime = first.ArrivalTime
	second.ArrivalTime = second.DepartureTime.Add(5 * time.Minute)
	second.DurationSeconds = 300

	t.Run("Valid leg", func(t *testing.T) {
		assert.NoError(t, ValidateLeg(Leg{first, second}))
	})

	t.Run("Empty leg", func(t *testing.T) {
		assert.ErrorContains(t, ValidateLeg(Leg{}), "leg has no segments")
	})

	t.Run("Invalid segment is indexed", func(t *testing.T) {
		bad := second
		bad.Mode = ""
		err := ValidateLeg(Leg{first, bad})
		assert.ErrorContains(t, err, "segment 2")
		assert.ErrorContains(t, err, "mode is required")
	})

	t.Run("Decreasing departure times", func(t *testing.T) {
		early := second
		early.DepartureTime = first.DepartureTime.Add(-time.Hour)
		early.ArrivalTime = early.DepartureTime.Add(5 * time.Minute)
		err := ValidateLeg(Leg{first, early})
		assert.ErrorContains(t, err, "segment 2 departs before segment 1")
	})
}

func TestValidateLegs(t *testing.T) {
	t.Run("No legs", func(t *testing.T) {
		assert.ErrorContains(t, ValidateLegs(nil), "no legs")
	})

	t.Run("Bad leg is indexed", func(t *testing.T) {
		err := ValidateLegs([]Leg{{validSegment()}, {}})
		assert.ErrorContains(t, err, "leg 2")
	})

	t.Run("All valid", func(t *testing.T) {
		assert.NoError(t, ValidateLegs([]Leg{{validSegment()}, {validSegment()}}))
	})
}
