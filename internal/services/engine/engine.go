// Package engine hosts the wired scheduling engine: the registry, controller,
// schedule service, dispatcher and event log, plus the HTTP surface the
// dashboard talks to.
package engine

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/plantio/irrigation-engine/internal/model/entities"
	"github.com/plantio/irrigation-engine/internal/services/dispatcher"
	"github.com/plantio/irrigation-engine/internal/services/eventlog"
	"github.com/plantio/irrigation-engine/internal/services/schedules"
	"github.com/plantio/irrigation-engine/internal/services/zonecontrol"
)

// Engine bundles the wired components for the HTTP layer.
type Engine struct {
	Registry   *zonecontrol.Registry
	Controller *zonecontrol.Controller
	Schedules  *schedules.Service
	Dispatcher *dispatcher.Dispatcher
	Manual     *dispatcher.Manual
	Events     *eventlog.Log
	History    *eventlog.HistoryQuerier // nil when Influx is not configured

	// Healthy reports readiness of the external collaborators (bus, sink).
	Healthy func() error
}

// LoadZones reads the zone inventory from a JSON config file.
func LoadZones(path string) ([]entities.Zone, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read zones config: %w", err)
	}
	var zones []entities.Zone
	if err := json.Unmarshal(b, &zones); err != nil {
		return nil, fmt.Errorf("parse zones config %s: %w", path, err)
	}
	if len(zones) == 0 {
		return nil, fmt.Errorf("zones config %s: no zones defined", path)
	}
	for i, z := range zones {
		if z.ID == "" {
			return nil, fmt.Errorf("zones config %s: zone %d has no id", path, i)
		}
	}
	return zones, nil
}
