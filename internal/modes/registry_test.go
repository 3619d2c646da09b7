package modes

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/routeweave/routeweave_core/internal/models"
)

func TestGetRegistryReturnsSameInstance(t *testing.T) {
	assert.Same(t, GetRegistry(), GetRegistry())
}

func TestBuiltinProfiles(t *testing.T) {
	r := GetRegistry()

	tests := []struct {
		mode          models.TransportMode
		waitAverse    bool
		fixedSchedule bool
	}{
		{mode: models.ModeFoot, waitAverse: true},
		{mode: models.ModeTransfer, waitAverse: true},
		{mode: models.ModeBicycle},
		{mode: models.ModeCar},
		{mode: models.ModeBus, fixedSchedule: true},
		{mode: models.ModeTram, fixedSchedule: true},
		{mode: models.ModeMetro, fixedSchedule: true},
		{mode: models.ModeRail, fixedSchedule: true},
		{mode: models.ModeFerry, fixedSchedule: true},
	}

	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			p, ok := r.Lookup(tt.mode)
			assert.True(t, ok)
			assert.Equal(t, tt.waitAverse, p.WaitAverse)
			assert.Equal(t, tt.fixedSchedule, p.FixedSchedule)
			assert.NotEmpty(t, p.Label)
		})
	}
}

func TestLookupUnknownMode(t *testing.T) {
	_, ok := GetRegistry().Lookup("HOVERCRAFT")
	assert.False(t, ok)
	assert.False(t, GetRegistry().Known("HOVERCRAFT"))
}

func TestWaitAverseModes(t *testing.T) {
	averse := GetRegistry().WaitAverseModes()
	assert.Equal(t, []models.TransportMode{models.ModeFoot, models.ModeTransfer}, averse)
}

func TestAllIsSorted(t *testing.T) {
	all := GetRegistry().All()
	assert.Len(t, all, 9)
	for i := 1; i < len(all); i++ {
		assert.Less(t, string(all[i-1].Mode), string(all[i].Mode))
	}
}
