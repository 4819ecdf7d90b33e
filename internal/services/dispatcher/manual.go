package dispatcher

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/plantio/irrigation-engine/internal/model/messages"
	"github.com/plantio/irrigation-engine/internal/services/zonecontrol"
)

// AllZones is the wildcard zone id accepted by the manual operations.
const AllZones = "all"

// Manual is the control surface behind the dashboard's manual buttons and the
// command topic. It bypasses the scheduling loop but goes through the same
// zone controller, so mutual exclusion and auto-close hold.
type Manual struct {
	registry   *zonecontrol.Registry
	controller *zonecontrol.Controller
}

func NewManual(registry *zonecontrol.Registry, controller *zonecontrol.Controller) *Manual {
	return &Manual{registry: registry, controller: controller}
}

// RequestOpen opens one zone, or every registered zone when zoneID is "all",
// for the given number of minutes. Zones refused as unavailable are skipped
// on "all"; any other error aborts.
func (m *Manual) RequestOpen(zoneID string, minutes int) error {
	if minutes <= 0 {
		return fmt.Errorf("manual open: minutes must be positive, got %d", minutes)
	}
	d := time.Duration(minutes) * time.Minute
	if zoneID != AllZones {
		return m.controller.Open(zoneID, d, messages.ModeManual)
	}
	var errs []error
	for _, z := range m.registry.List() {
		err := m.controller.Open(z.ID, d, messages.ModeManual)
		if err != nil && !errors.Is(err, zonecontrol.ErrZoneUnavailable) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RequestClose closes one zone, or triggers an emergency stop when zoneID is
// "all".
func (m *Manual) RequestClose(zoneID string) error {
	if zoneID == AllZones {
		m.controller.StopAll()
		return nil
	}
	return m.controller.Close(zoneID)
}

type manualCommand struct {
	Action  string `json:"action"` // "open" or "close"
	Zone    string `json:"zone"`   // zone id or "all"
	Minutes int    `json:"minutes,omitempty"`
}

// HandleCommand adapts the manual API to the command topic. Malformed or
// failing commands are logged and dropped; the bus handler never errors out.
func (m *Manual) HandleCommand(_ string, msg mqtt.Message) error {
	var cmd manualCommand
	if err := json.Unmarshal(msg.Payload(), &cmd); err != nil {
		log.Printf("dispatcher: bad manual command: %v", err)
		return nil
	}
	var err error
	switch cmd.Action {
	case "open":
		err = m.RequestOpen(cmd.Zone, cmd.Minutes)
	case "close":
		err = m.RequestClose(cmd.Zone)
	default:
		log.Printf("dispatcher: unknown manual action %q", cmd.Action)
		return nil
	}
	if err != nil {
		log.Printf("dispatcher: manual %s %s: %v", cmd.Action, cmd.Zone, err)
	}
	return nil
}
