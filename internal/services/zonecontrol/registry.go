package zonecontrol

import (
	"sort"
	"sync"
	"time"

	"github.com/plantio/irrigation-engine/internal/model/entities"
)

// Registry holds the zones and their live state. Valve state is written only
// by the Controller in this package; every read returns a copy, never a live
// reference.
type Registry struct {
	mu    sync.RWMutex
	zones map[string]*entities.Zone
}

// NewRegistry builds a registry from the configured zones. Zones without an
// explicit valve or health state start closed and active.
func NewRegistry(zones []entities.Zone) *Registry {
	r := &Registry{zones: make(map[string]*entities.Zone, len(zones))}
	for _, z := range zones {
		cp := z
		if cp.Valve == "" {
			cp.Valve = entities.ValveClosed
		}
		if cp.Health == "" {
			cp.Health = entities.HealthActive
		}
		r.zones[cp.ID] = &cp
	}
	return r
}

// Get returns a snapshot of the zone.
func (r *Registry) Get(id string) (entities.Zone, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	z, ok := r.zones[id]
	if !ok {
		return entities.Zone{}, false
	}
	return *z, true
}

// List returns snapshots of all zones, sorted by id.
func (r *Registry) List() []entities.Zone {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]entities.Zone, 0, len(r.zones))
	for _, z := range r.zones {
		out = append(out, *z)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// UpdateReading stores the latest sensor sample for a zone. The sensor feed
// is the only caller.
func (r *Registry) UpdateReading(id string, reading entities.Reading) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	z, ok := r.zones[id]
	if !ok {
		return false
	}
	z.Reading = reading
	return true
}

func (r *Registry) setValve(id string, state entities.ValveState, openedAt time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	z, ok := r.zones[id]
	if !ok {
		return
	}
	z.Valve = state
	if state == entities.ValveOpen && !openedAt.IsZero() {
		z.LastOpened = openedAt
	}
}

func (r *Registry) setHealth(id string, health entities.ZoneHealth) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	z, ok := r.zones[id]
	if !ok {
		return false
	}
	z.Health = health
	return true
}
