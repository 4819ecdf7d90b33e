package messages

import (
	"time"

	"github.com/plantio/irrigation-engine/internal/model/entities"
)

// StateChangeEvent is published toward the valve hardware when a zone needs a
// new valve state.
type StateChangeEvent struct {
	ZoneID    string              `json:"zone_id"`
	NewState  entities.ValveState `json:"new_state"`
	Duration  time.Duration       `json:"duration"`
	Timestamp time.Time           `json:"timestamp"`
}
