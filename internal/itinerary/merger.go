// Package itinerary merges per-leg route fragments into a single
// continuous list of segments. Leg boundaries are reconciled by
// absorbing waiting time, shifting overlapping legs and fusing
// adjacent same-mode segments. The package is pure: it never touches
// the database, the cache or the clock, so results are reproducible
// for identical inputs.
package itinerary

import (
	"errors"
	"fmt"
	"time"

	"github.com/routeweave/routeweave_core/internal/models"
)

var (
	// ErrEmptyInput is returned when there are no legs or a leg has no segments.
	ErrEmptyInput = errors.New("empty input")

	// ErrInvalidConfiguration is returned when merger options do not fit the legs.
	ErrInvalidConfiguration = errors.New("invalid configuration")
)

// Warning reports a non-fatal adjustment made while merging, such as a
// scheduled segment that had to be moved to resolve an overlap.
type Warning struct {
	Message string               `json:"message"`
	Mode    models.TransportMode `json:"mode"`
}

// Result is the outcome of a merge: the continuous segment list and
// any warnings collected along the way.
type Result struct {
	Segments []models.Segment `json:"segments"`
	Warnings []Warning        `json:"warnings,omitempty"`
}

// Merger combines an ordered list of legs into one continuous segment
// list. Configure it with the setters, then call Merge. The input legs
// are copied on construction and never mutated.
type Merger struct {
	legs           []models.Leg
	extraAlighting []int
	waitAverse     map[models.TransportMode]bool
	fuseSameMode   bool
}

// DefaultWaitAverseModes lists the modes that should not absorb
// waiting time at a leg boundary. Walking and transfers can start
// whenever the traveller is ready, so waiting is pushed onto the
// first scheduled segment instead.
func DefaultWaitAverseModes() []models.TransportMode {
	return []models.TransportMode{models.ModeFoot, models.ModeTransfer}
}

// NewMerger copies the given legs into a new Merger. Returns
// ErrEmptyInput when there are no legs or any leg has no segments.
func NewMerger(legs []models.Leg) (*Merger, error) {
	if len(legs) == 0 {
		return nil, fmt.Errorf("%w: no legs", ErrEmptyInput)
	}

	copied := make([]models.Leg, len(legs))
	for i, leg := range legs {
		if len(leg) == 0 {
			return nil, fmt.Errorf("%w: leg %d has no segments", ErrEmptyInput, i+1)
		}
		copied[i] = append(models.Leg(nil), leg...)
	}

	m := &Merger{
		legs:         copied,
		fuseSameMode: true,
	}
	m.SetWaitAverseModes(DefaultWaitAverseModes()...)
	return m, nil
}

// SetExtraAlightingSeconds adds extra alighting time to the last
// segment of each leg except the final one. The slice must hold one
// non-negative value per leg boundary.
func (m *Merger) SetExtraAlightingSeconds(seconds []int) error {
	if len(seconds) != len(m.legs)-1 {
		return fmt.Errorf("%w: expected %d extra alighting values for %d legs, got %d",
			ErrInvalidConfiguration, len(m.legs)-1, len(m.legs), len(seconds))
	}
	for i, v := range seconds {
		if v < 0 {
			return fmt.Errorf("%w: extra alighting value %d at boundary %d is negative",
				ErrInvalidConfiguration, v, i+1)
		}
	}
	m.extraAlighting = append([]int(nil), seconds...)
	return nil
}

// SetWaitAverseModes replaces the set of modes that should not absorb
// waiting time at leg boundaries.
func (m *Merger) SetWaitAverseModes(modes ...models.TransportMode) {
	m.waitAverse = make(map[models.TransportMode]bool, len(modes))
	for _, mode := range modes {
		m.waitAverse[mode] = true
	}
}

// SetFuseSameMode controls whether adjacent segments with the same
// mode are fused into one after reconciliation. Enabled by default.
func (m *Merger) SetFuseSameMode(fuse bool) {
	m.fuseSameMode = fuse
}

// Merge runs the pipeline: extend alighting times, reconcile the gap
// at each leg boundary, optionally fuse same-mode neighbours and
// renumber. Calling Merge again produces the same result because the
// merger always works on a fresh copy of the legs it was built with.
func (m *Merger) Merge() Result {
	legs := make([]models.Leg, len(m.legs))
	for i, leg := range m.legs {
		legs[i] = append(models.Leg(nil), leg...)
	}

	for i, extra := range m.extraAlighting {
		if extra > 0 {
			extendAlighting(legs[i], extra)
		}
	}

	// Gaps are computed for every boundary before any of them is
	// resolved, so resolving one boundary does not feed into the next.
	gaps := make([]int, len(legs))
	for i := 0; i < len(legs)-1; i++ {
		last := legs[i][len(legs[i])-1]
		first := legs[i+1][0]
		gaps[i+1] = secondsBetween(last.ArrivalTime, first.DepartureTime)
	}

	var warnings []Warning
	merged := append([]models.Segment(nil), legs[0]...)
	for i := 1; i < len(legs); i++ {
		leg := legs[i]
		switch gap := gaps[i]; {
		case gap > 0:
			m.absorbWaiting(leg, gap)
		case gap < 0:
			shiftLater(leg, -gap, &warnings)
		}
		merged = append(merged, leg...)
	}

	if m.fuseSameMode {
		merged = fuseAdjacentSameMode(merged)
	}
	renumber(merged)

	return Result{Segments: merged, Warnings: warnings}
}

// secondsBetween returns the whole seconds from a to b, negative when
// b lies before a.
func secondsBetween(a, b time.Time) int {
	return int(b.Sub(a) / time.Second)
}

// extendAlighting adds extra seconds to the last segment of a leg,
// growing its alighting time, duration and arrival time together.
func extendAlighting(leg models.Leg, extra int) {
	last := &leg[len(leg)-1]
	last.AlightingSeconds += extra
	last.DurationSeconds += extra
	last.ArrivalTime = last.ArrivalTime.Add(time.Duration(extra) * time.Second)
}

// absorbWaiting folds a positive boundary gap into the first segment
// of the leg whose mode is willing to wait. That segment starts
// earlier and gains the gap as boarding time; segments before it move
// earlier by the gap so the leg still connects to the previous one.
// When every segment is wait averse the last segment takes the gap.
func (m *Merger) absorbWaiting(leg models.Leg, gap int) {
	chosen := len(leg) - 1
	for i := range leg {
		if !m.waitAverse[leg[i].Mode] {
			chosen = i
			break
		}
	}

	shift := time.Duration(gap) * time.Second
	for i := 0; i < chosen; i++ {
		leg[i].DepartureTime = leg[i].DepartureTime.Add(-shift)
		leg[i].ArrivalTime = leg[i].ArrivalTime.Add(-shift)
	}

	target := &leg[chosen]
	target.BoardingSeconds += gap
	target.DurationSeconds += gap
	target.DepartureTime = target.DepartureTime.Add(-shift)
}

// shiftLater moves every segment of a leg later by the given number of
// seconds to resolve an overlap with the previous leg. Durations are
// unchanged. A warning is recorded for every shifted segment with a
// fixed schedule, which is any mode other than walking.
func shiftLater(leg models.Leg, seconds int, warnings *[]Warning) {
	shift := time.Duration(seconds) * time.Second
	for i := range leg {
		leg[i].DepartureTime = leg[i].DepartureTime.Add(shift)
		leg[i].ArrivalTime = leg[i].ArrivalTime.Add(shift)
		if leg[i].Mode != models.ModeFoot {
			*warnings = append(*warnings, Warning{
				Message: fmt.Sprintf("shifted segment by %d seconds to resolve overlap", seconds),
				Mode:    leg[i].Mode,
			})
		}
	}
}
