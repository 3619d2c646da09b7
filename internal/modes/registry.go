// Package modes holds the transport mode profiles used across the
// API. Profiles are seeded with builtin defaults and can be overlaid
// with rows from the database at startup.
package modes

import (
	"context"
	"sort"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/routeweave/routeweave_core/internal/models"
)

// Profile describes how a transport mode behaves when routes are
// merged and how it is presented to clients.
type Profile struct {
	Mode          models.TransportMode `json:"mode"`
	Label         string               `json:"label"`
	WaitAverse    bool                 `json:"wait_averse"`
	FixedSchedule bool                 `json:"fixed_schedule"`
}

// Registry is a thread safe lookup of mode profiles.
type Registry struct {
	mu       sync.RWMutex
	profiles map[models.TransportMode]Profile
	loaded   bool
}

var (
	instance *Registry
	once     sync.Once
)

// GetRegistry returns the singleton registry, seeded with the builtin
// profiles.
func GetRegistry() *Registry {
	once.Do(func() {
		instance = &Registry{profiles: builtinProfiles()}
	})
	return instance
}

func builtinProfiles() map[models.TransportMode]Profile {
	profiles := []Profile{
		{Mode: models.ModeFoot, Label: "Walk", WaitAverse: true},
		{Mode: models.ModeTransfer, Label: "Transfer", WaitAverse: true},
		{Mode: models.ModeBicycle, Label: "Bicycle"},
		{Mode: models.ModeCar, Label: "Car"},
		{Mode: models.ModeBus, Label: "Bus", FixedSchedule: true},
		{Mode: models.ModeTram, Label: "Tram", FixedSchedule: true},
		{Mode: models.ModeMetro, Label: "Metro", FixedSchedule: true},
		{Mode: models.ModeRail, Label: "Train", FixedSchedule: true},
		{Mode: models.ModeFerry, Label: "Ferry", FixedSchedule: true},
	}

	m := make(map[models.TransportMode]Profile, len(profiles))
	for _, p := range profiles {
		m[p.Mode] = p
	}
	return m
}

// LoadFromDB overlays the builtin profiles with rows from the
// transport_mode_profile table. Bad rows are skipped with a warning.
func (r *Registry) LoadFromDB(ctx context.Context, db *pgxpool.Pool) error {
	rows, err := db.Query(ctx, `
		SELECT mode, label, wait_averse, fixed_schedule
		FROM transport_mode_profile
	`)
	if err != nil {
		return err
	}
	defer rows.Close()

	profiles := builtinProfiles()
	count := 0
	for rows.Next() {
		var p Profile
		if err := rows.Scan(&p.Mode, &p.Label, &p.WaitAverse, &p.FixedSchedule); err != nil {
			log.Warn().Err(err).Msg("Skipping unreadable mode profile row")
			continue
		}
		profiles[p.Mode] = p
		count++
	}
	if err := rows.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	r.profiles = profiles
	r.loaded = true
	r.mu.Unlock()

	log.Info().Int("profiles", count).Msg("Loaded mode profiles from database")
	return nil
}

// Lookup returns the profile for a mode.
func (r *Registry) Lookup(mode models.TransportMode) (Profile, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.profiles[mode]
	return p, ok
}

// Known reports whether a profile exists for the mode.
func (r *Registry) Known(mode models.TransportMode) bool {
	_, ok := r.Lookup(mode)
	return ok
}

// All returns every profile ordered by mode name.
func (r *Registry) All() []Profile {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := make([]Profile, 0, len(r.profiles))
	for _, p := range r.profiles {
		all = append(all, p)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Mode < all[j].Mode })
	return all
}

// WaitAverseModes returns the modes flagged as wait averse, ordered by
// name. These are the merge defaults when a request does not override
// them.
func (r *Registry) WaitAverseModes() []models.TransportMode {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var averse []models.TransportMode
	for mode, p := range r.profiles {
		if p.WaitAverse {
			averse = append(averse, mode)
		}
	}
	sort.Slice(averse, func(i, j int) bool { return averse[i] < averse[j] })
	return averse
}

// Loaded reports whether database profiles have been applied.
func (r *Registry) Loaded() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.loaded
}
