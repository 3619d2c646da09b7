package itinerary

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/routeweave/routeweave_core/internal/models"
)

func positionFixture() []models.Segment {
	walk := seg(models.ModeFoot, ts(10, 0), ts(10, 10))
	walk.Nr = 1
	walk.From = models.Place{Name: "Home", Lat: 55.70, Lon: 12.50}
	walk.To = models.Place{Name: "Central Station", Lat: 55.71, Lon: 12.52}

	train := seg(models.ModeRail, ts(10, 15), ts(10, 45))
	train.Nr = 2
	train.From = models.Place{Name: "Central Station", Lat: 55.71, Lon: 12.52}
	train.To = models.Place{Name: "Airport", Lat: 55.63, Lon: 12.65}

	return []models.Segment{walk, train}
}

func TestPositionAtBounds(t *testing.T) {
	segments := positionFixture()

	t.Run("At departure", func(t *testing.T) {
		pos, err := PositionAt(segments, 0)
		assert.NoError(t, err)
		assert.Equal(t, 1, pos.SegmentNr)
		assert.Equal(t, 0.0, pos.Progress)
		assert.InDelta(t, 55.70, pos.Coordinate.Lat, 1e-9)
	})

	t.Run("After arrival", func(t *testing.T) {
		pos, err := PositionAt(segments, 2*time.Hour)
		assert.NoError(t, err)
		assert.Equal(t, 2, pos.SegmentNr)
		assert.Equal(t, 1.0, pos.Progress)
		assert.InDelta(t, 55.63, pos.Coordinate.Lat, 1e-9)
		assert.InDelta(t, 12.65, pos.Coordinate.Lon, 1e-9)
	})
}

func TestPositionAtMidSegment(t *testing.T) {
	segments := positionFixture()

	pos, err := PositionAt(segments, 5*time.Minute)
	assert.NoError(t, err)

	assert.Equal(t, 1, pos.SegmentNr)
	assert.Equal(t, models.ModeFoot, pos.Mode)
	assert.InDelta(t, 0.5, pos.Progress, 1e-9)
	assert.InDelta(t, 55.705, pos.Coordinate.Lat, 1e-9)
	assert.InDelta(t, 12.51, pos.Coordinate.Lon, 1e-9)
}

func TestPositionAtWaitBetweenSegments(t *testing.T) {
	segments := positionFixture()

	// 10:12 falls between the walk arrival and the train departure.
	pos, err := PositionAt(segments, 12*time.Minute)
	assert.NoError(t, err)

	assert.Equal(t, 2, pos.SegmentNr)
	assert.Equal(t, models.ModeRail, pos.Mode)
	assert.Equal(t, 0.0, pos.Progress)
	assert.InDelta(t, 55.71, pos.Coordinate.Lat, 1e-9)
}

func TestPositionAtFollowsGeometry(t *testing.T) {
	s := seg(models.ModeFerry, ts(10, 0), ts(10, 10))
	s.Nr = 1
	s.Geometry = []models.Coordinate{
		{Lat: 0, Lon: 0},
		{Lat: 0, Lon: 0.001},
		{Lat: 0, Lon: 0.003},
	}

	// Halfway in time is halfway in distance, which lies a quarter of
	// the way into the longer second stretch.
	pos, err := PositionAt([]models.Segment{s}, 5*time.Minute)
	assert.NoError(t, err)

	assert.InDelta(t, 0.5, pos.Progress, 1e-9)
	assert.InDelta(t, 0.0015, pos.Coordinate.Lon, 1e-9)
	assert.InDelta(t, 0.0, pos.Coordinate.Lat, 1e-9)
}

func TestPositionAtInvalidInput(t *testing.T) {
	t.Run("No segments", func(t *testing.T) {
		_, err := PositionAt(nil, time.Minute)
		assert.Error(t, err)
	})

	t.Run("Negative elapsed", func(t *testing.T) {
		_, err := PositionAt(positionFixture(), -time.Second)
		assert.Error(t, err)
	})
}

func TestHaversineDistance(t *testing.T) {
	tests := []struct {
		name string
		a    models.Coordinate
		b    models.Coordinate
		want float64
	}{
		{
			name: "Same point",
			a:    models.Coordinate{Lat: 55.676, Lon: 12.568},
			b:    models.Coordinate{Lat: 55.676, Lon: 12.568},
			want: 0,
		},
		{
			name: "One degree along the equator",
			a:    models.Coordinate{Lat: 0, Lon: 0},
			b:    models.Coordinate{Lat: 0, Lon: 1},
			want: 111195,
		},
		{
			name: "Across central Copenhagen",
			a:    models.Coordinate{Lat: 55.676, Lon: 12.568},
			b:    models.Coordinate{Lat: 55.680, Lon: 12.575},
			want: 625,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := haversineDistance(tt.a, tt.b)
			assert.InDelta(t, tt.want, got, tt.want*0.01+1)
		})
	}
}
