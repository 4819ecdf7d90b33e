package recurrence

import (
	"testing"
	"time"

	"github.com/plantio/irrigation-engine/internal/model/entities"
)

// 2026-03-02 is a Monday.
var monday = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

func at(base time.Time, hour, minute int) time.Time {
	return time.Date(base.Year(), base.Month(), base.Day(), hour, minute, 0, 0, time.UTC)
}

func TestNext_TodayWhenTimeNotPassed(t *testing.T) {
	now := at(monday, 5, 0)
	next, ok := Next("06:00", []time.Weekday{time.Monday}, now, time.UTC)
	if !ok {
		t.Fatal("expected a next execution")
	}
	if want := at(monday, 6, 0); !next.Equal(want) {
		t.Fatalf("next = %v, want %v", next, want)
	}
}

func TestNext_ExactMinuteStillToday(t *testing.T) {
	now := at(monday, 6, 0)
	next, ok := Next("06:00", []time.Weekday{time.Monday}, now, time.UTC)
	if !ok || !next.Equal(now) {
		t.Fatalf("next = %v ok=%t, want %v", next, ok, now)
	}
}

func TestNext_RollsToNextAllowedDay(t *testing.T) {
	now := at(monday, 7, 0)
	next, ok := Next("06:00", []time.Weekday{time.Monday}, now, time.UTC)
	if !ok {
		t.Fatal("expected a next execution")
	}
	if want := at(monday.AddDate(0, 0, 7), 6, 0); !next.Equal(want) {
		t.Fatalf("next = %v, want next Monday %v", next, want)
	}
}

func TestNext_PicksNearestOfSeveralDays(t *testing.T) {
	now := at(monday, 7, 0)
	next, ok := Next("06:00", []time.Weekday{time.Monday, time.Thursday}, now, time.UTC)
	if !ok {
		t.Fatal("expected a next execution")
	}
	if want := at(monday.AddDate(0, 0, 3), 6, 0); !next.Equal(want) {
		t.Fatalf("next = %v, want Thursday %v", next, want)
	}
}

func TestNext_EmptyDaysHasNoExecution(t *testing.T) {
	if _, ok := Next("06:00", nil, at(monday, 5, 0), time.UTC); ok {
		t.Fatal("empty day set must yield no next execution")
	}
}

func TestNext_BadTimeOfDayHasNoExecution(t *testing.T) {
	if _, ok := Next("25:00", []time.Weekday{time.Monday}, at(monday, 5, 0), time.UTC); ok {
		t.Fatal("unparseable time must yield no next execution")
	}
}

func TestNext_EvaluatesInLocation(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*3600)
	// 05:00 UTC is 07:00 local, so 06:00 local has already passed today.
	now := at(monday, 5, 0)
	next, ok := Next("06:00", []time.Weekday{time.Monday, time.Tuesday}, now, loc)
	if !ok {
		t.Fatal("expected a next execution")
	}
	if got := next.In(loc); got.Weekday() != time.Tuesday || got.Hour() != 6 {
		t.Fatalf("next = %v, want Tuesday 06:00 local", got)
	}
}

func TestAfter_NeverRefiresSameMinute(t *testing.T) {
	sch := &entities.Schedule{TimeOfDay: "06:00", Days: []time.Weekday{time.Monday}}
	fired := at(monday, 6, 0)
	next, ok := After(sch, fired, time.UTC)
	if !ok {
		t.Fatal("expected a next execution")
	}
	if !next.After(fired) {
		t.Fatalf("next = %v must be strictly after fired slot %v", next, fired)
	}
	if want := at(monday.AddDate(0, 0, 7), 6, 0); !next.Equal(want) {
		t.Fatalf("next = %v, want %v", next, want)
	}
}
