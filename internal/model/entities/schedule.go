package entities

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ScheduleMode selects how the condition gate treats a schedule.
type ScheduleMode string

const (
	ModeFixed   ScheduleMode = "fixed"
	ModeSmart   ScheduleMode = "smart"
	ModeWeather ScheduleMode = "weather"
)

// Conditions gate a smart/weather schedule against current sensor readings.
// Nil thresholds are unset and not checked.
type Conditions struct {
	MinMoisture    *float64 `json:"min_moisture,omitempty"`    // %
	MaxTemperature *float64 `json:"max_temperature,omitempty"` // °C
	SkipIfRaining  bool     `json:"skip_if_raining,omitempty"`
}

// Schedule is a recurring watering rule. Days uses the canonical time.Weekday
// enumeration (Sunday=0). TimeOfDay is "HH:MM" in the engine's configured
// location.
type Schedule struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	TimeOfDay   string         `json:"time"`
	DurationMin int            `json:"duration_min"`
	Days        []time.Weekday `json:"days"`
	Zones       []string       `json:"zones"`
	Enabled     bool           `json:"enabled"`
	Mode        ScheduleMode   `json:"mode"`
	Conditions  *Conditions    `json:"conditions,omitempty"`
	Created     time.Time      `json:"created"`
}

var (
	ErrEmptyDays    = errors.New("schedule has no days of week")
	ErrEmptyZones   = errors.New("schedule has no target zones")
	ErrBadDuration  = errors.New("schedule duration must be positive")
	ErrNoConditions = errors.New("smart/weather schedule requires conditions")
	ErrBadTimeOfDay = errors.New("invalid time of day")
)

// Validate rejects configuration errors before a schedule can reach the
// dispatcher.
func (s *Schedule) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return errors.New("schedule name is empty")
	}
	if _, _, err := ParseTimeOfDay(s.TimeOfDay); err != nil {
		return err
	}
	if s.DurationMin <= 0 {
		return ErrBadDuration
	}
	if len(s.Days) == 0 {
		return ErrEmptyDays
	}
	for _, d := range s.Days {
		if d < time.Sunday || d > time.Saturday {
			return fmt.Errorf("invalid weekday %d", int(d))
		}
	}
	if len(s.Zones) == 0 {
		return ErrEmptyZones
	}
	switch s.Mode {
	case ModeFixed:
	case ModeSmart, ModeWeather:
		if s.Conditions == nil {
			return ErrNoConditions
		}
	default:
		return fmt.Errorf("invalid mode %q", s.Mode)
	}
	return nil
}

// ParseTimeOfDay parses "HH:MM" into hour and minute.
func ParseTimeOfDay(s string) (hour, minute int, err error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("%w: %q", ErrBadTimeOfDay, s)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("%w: %q", ErrBadTimeOfDay, s)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("%w: %q", ErrBadTimeOfDay, s)
	}
	return hour, minute, nil
}
