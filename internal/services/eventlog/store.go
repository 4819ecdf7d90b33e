// Package eventlog records the lifecycle of every execution attempt. The log
// is append-only: past entries never change except for their status
// transition, and transitions are one-directional.
package eventlog

import (
	"context"
	"errors"
	"time"

	"github.com/plantio/irrigation-engine/internal/model/messages"
)

var (
	ErrNotFound      = errors.New("event not found")
	ErrBadTransition = errors.New("illegal event status transition")
)

// Filter narrows a List call. Zero values match everything.
type Filter struct {
	ScheduleID string
	ZoneID     string
	Status     messages.EventStatus
	From       time.Time
	To         time.Time
}

// Store persists execution records. The engine holds no event state of its
// own beyond recomputing next executions, so it must work against any
// injected implementation, including an eventually consistent one.
type Store interface {
	Append(ctx context.Context, evt messages.Event) error
	Get(ctx context.Context, id string) (messages.Event, error)
	// SetStatus applies one lifecycle transition. It records StartedAt when
	// entering running and EndedAt when entering a terminal status, and
	// rejects transitions not allowed by EventStatus.CanTransition.
	SetStatus(ctx context.Context, id string, status messages.EventStatus, reason string, at time.Time) error
	// List returns matching events, newest scheduled first.
	List(ctx context.Context, f Filter) ([]messages.Event, error)
	// DeletePending removes pending events owned by a schedule, used when the
	// schedule itself is deleted.
	DeletePending(ctx context.Context, scheduleID string) (int, error)
}

func (f Filter) matches(evt messages.Event) bool {
	if f.ScheduleID != "" && evt.ScheduleID != f.ScheduleID {
		return false
	}
	if f.Status != "" && evt.Status != f.Status {
		return false
	}
	if f.ZoneID != "" {
		found := false
		for _, z := range evt.Zones {
			if z == f.ZoneID {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if !f.From.IsZero() && evt.ScheduledAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && evt.ScheduledAt.After(f.To) {
		return false
	}
	return true
}
