// Package conditions implements the smart/weather condition gate. Evaluation
// is pure: the same (mode, conditions, snapshot) always yields the same
// decision and reason.
package conditions

import (
	"fmt"

	"github.com/plantio/irrigation-engine/internal/model/entities"
)

// Snapshot is the sensor state visible to the gate at evaluation time. Nil
// fields mean the reading is missing or stale; a configured clause without
// data fails rather than watering blindly.
type Snapshot struct {
	Moisture    *float64 // %
	Temperature *float64 // °C
	Raining     *bool
}

// Decision is the outcome of one evaluation.
type Decision struct {
	Proceed bool
	Reason  string // set when Proceed is false, names the first failing clause
}

func skip(reason string) Decision { return Decision{Reason: reason} }

// Evaluate applies the condition gate. Fixed mode always proceeds. For smart
// and weather modes the clauses are checked in order: moisture, temperature,
// rain; the first failing clause determines the reason.
func Evaluate(mode entities.ScheduleMode, c *entities.Conditions, snap Snapshot) Decision {
	if mode == entities.ModeFixed || c == nil {
		return Decision{Proceed: true}
	}
	if c.MinMoisture != nil {
		if snap.Moisture == nil {
			return skip("moisture reading unavailable")
		}
		if *snap.Moisture < *c.MinMoisture {
			return skip(fmt.Sprintf("moisture %.0f%% below minimum %.0f%%", *snap.Moisture, *c.MinMoisture))
		}
	}
	if c.MaxTemperature != nil {
		if snap.Temperature == nil {
			return skip("temperature reading unavailable")
		}
		if *snap.Temperature > *c.MaxTemperature {
			return skip(fmt.Sprintf("temperature %.1f°C above maximum %.1f°C", *snap.Temperature, *c.MaxTemperature))
		}
	}
	if c.SkipIfRaining {
		if snap.Raining == nil {
			return skip("rain state unavailable")
		}
		if *snap.Raining {
			return skip("currently raining")
		}
	}
	return Decision{Proceed: true}
}
