// Package recurrence computes the next execution instant of a schedule.
// All functions are pure: the result depends only on the arguments.
package recurrence

import (
	"time"

	"github.com/plantio/irrigation-engine/internal/model/entities"
)

// Next returns the first instant at or after now that falls on one of the
// allowed weekdays at the given time of day, evaluated in loc. ok is false
// when days is empty or timeOfDay does not parse: such a schedule has no next
// execution and must be excluded from dispatch.
func Next(timeOfDay string, days []time.Weekday, now time.Time, loc *time.Location) (next time.Time, ok bool) {
	if len(days) == 0 {
		return time.Time{}, false
	}
	hour, minute, err := entities.ParseTimeOfDay(timeOfDay)
	if err != nil {
		return time.Time{}, false
	}

	allowed := make(map[time.Weekday]bool, len(days))
	for _, d := range days {
		allowed[d] = true
	}

	local := now.In(loc)
	today := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, loc)

	if allowed[local.Weekday()] && !today.Before(local) {
		return today, true
	}
	for i := 1; i <= 7; i++ {
		candidate := today.AddDate(0, 0, i)
		if allowed[candidate.Weekday()] {
			return candidate, true
		}
	}
	return time.Time{}, false
}

// NextForSchedule applies Next to a schedule definition.
func NextForSchedule(s *entities.Schedule, now time.Time, loc *time.Location) (time.Time, bool) {
	return Next(s.TimeOfDay, s.Days, now, loc)
}

// After returns the next execution strictly after the just-fired slot, so the
// dispatcher never re-fires the same minute.
func After(s *entities.Schedule, fired time.Time, loc *time.Location) (time.Time, bool) {
	return Next(s.TimeOfDay, s.Days, fired.Add(time.Minute), loc)
}
