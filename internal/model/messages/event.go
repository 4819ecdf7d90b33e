package messages

import "time"

// EventStatus describes the lifecycle state of one execution attempt.
type EventStatus string

const (
	StatusPending   EventStatus = "pending"
	StatusRunning   EventStatus = "running"
	StatusCompleted EventStatus = "completed"
	StatusSkipped   EventStatus = "skipped"
	StatusFailed    EventStatus = "failed"
)

// Terminal reports whether no further transition is allowed from s.
func (s EventStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusSkipped, StatusFailed:
		return true
	}
	return false
}

// CanTransition reports whether moving from s to next is a legal lifecycle
// step: pending→running→{completed,failed}, or pending→skipped.
func (s EventStatus) CanTransition(next EventStatus) bool {
	switch s {
	case StatusPending:
		return next == StatusRunning || next == StatusSkipped
	case StatusRunning:
		return next == StatusCompleted || next == StatusFailed
	}
	return false
}

// ModeManual marks event entries produced by ad-hoc user operations that are
// not tied to any schedule.
const ModeManual = "manual"

// Event is one attempt to run a schedule, or a manual operation when
// ScheduleID is empty and Mode is "manual". Zones and DurationMin are a
// snapshot taken at dispatch time and never change afterwards.
type Event struct {
	ID          string      `json:"id"`
	ScheduleID  string      `json:"schedule_id,omitempty"`
	Mode        string      `json:"mode"`
	ScheduledAt time.Time   `json:"scheduled_at"`
	DurationMin int         `json:"duration_min"`
	Zones       []string    `json:"zones"`
	Status      EventStatus `json:"status"`
	Reason      string      `json:"reason,omitempty"`
	StartedAt   *time.Time  `json:"started_at,omitempty"`
	EndedAt     *time.Time  `json:"ended_at,omitempty"`
}
