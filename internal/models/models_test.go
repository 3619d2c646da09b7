package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewRoute(t *testing.T) {
	dep := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	segments := []Segment{
		{
			Nr:              1,
			Mode:            ModeFoot,
			From:            Place{Name: "Home"},
			To:              Place{Name: "Central Station"},
			DepartureTime:   dep,
			ArrivalTime:     dep.Add(5 * time.Minute),
			DurationSeconds: 300,
			LengthMeters:    400,
		},
		{
			Nr:              2,
			Mode:            ModeRail,
			From:            Place{Name: "Central Station"},
			To:              Place{Name: "Airport"},
			DepartureTime:   dep.Add(10 * time.Minute),
			ArrivalTime:     dep.Add(40 * time.Minute),
			DurationSeconds: 1800,
			LengthMeters:    22000,
		},
	}

	route := NewRoute(segments)

	assert.Equal(t, "Home", route.From.Name)
	assert.Equal(t, "Airport", route.To.Name)
	assert.Equal(t, dep, route.DepartureTime)
	assert.Equal(t, dep.Add(40*time.Minute), route.ArrivalTime)
	assert.Equal(t, 2400, route.DurationSeconds)
	assert.Equal(t, 22400, route.LengthMeters)
	assert.Len(t, route.Segments, 2)
}

func TestNewRouteEmpty(t *testing.T) {
	route := NewRoute(nil)
	assert.Empty(t, route.Segments)
	assert.Zero(t, route.DurationSeconds)
}
