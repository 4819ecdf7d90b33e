package entities

import "time"

// ValveState indicates whether the zone valve is open or closed.
type ValveState string

const (
	ValveClosed ValveState = "closed"
	ValveOpen   ValveState = "open"
)

// ZoneHealth describes whether a zone can be actuated.
type ZoneHealth string

const (
	HealthActive   ZoneHealth = "active"
	HealthInactive ZoneHealth = "inactive"
	HealthError    ZoneHealth = "error"
)

// Reading is the most recent sensor sample for a zone. It is supplied by the
// external sensor feed and read-only to the engine.
type Reading struct {
	Moisture    float64   `json:"moisture"`     // %
	Temperature float64   `json:"temperature"`  // °C
	Timestamp   time.Time `json:"timestamp"`
}

// Zone represents a single controllable valve/area with its own sensors.
// Valve state changes only through the zone controller.
type Zone struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Valve      ValveState `json:"valve"`
	Health     ZoneHealth `json:"health"`
	LastOpened time.Time  `json:"last_opened,omitempty"`
	Reading    Reading    `json:"reading"`
}
