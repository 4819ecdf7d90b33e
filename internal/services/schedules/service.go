// Package schedules manages the schedule lifecycle: creation, update,
// enable/disable, duplication and deletion. Every mutation notifies the
// dispatcher so due times are recomputed from fresh state.
package schedules

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/plantio/irrigation-engine/internal/model/entities"
	"github.com/plantio/irrigation-engine/internal/services/eventlog"
	"github.com/plantio/irrigation-engine/internal/services/recurrence"
)

// ChangedFunc is called after any schedule mutation with the affected id.
type ChangedFunc func(scheduleID string)

// Service wraps a Store with validation, id assignment and dispatcher
// notification.
type Service struct {
	store   Store
	events  *eventlog.Log
	loc     *time.Location
	changed ChangedFunc
}

func NewService(store Store, events *eventlog.Log, loc *time.Location) *Service {
	if loc == nil {
		loc = time.Local
	}
	return &Service{store: store, events: events, loc: loc}
}

// OnChanged registers the mutation callback. Set once during wiring.
func (s *Service) OnChanged(fn ChangedFunc) { s.changed = fn }

// Create validates and persists a new schedule, assigning id and creation
// time. Mode defaults to fixed, time of day to 06:00 and duration to 15
// minutes when unset, matching the dashboard's form defaults.
func (s *Service) Create(ctx context.Context, sch entities.Schedule) (entities.Schedule, error) {
	if sch.TimeOfDay == "" {
		sch.TimeOfDay = "06:00"
	}
	if sch.DurationMin == 0 {
		sch.DurationMin = 15
	}
	if sch.Mode == "" {
		sch.Mode = entities.ModeFixed
	}
	if err := sch.Validate(); err != nil {
		return entities.Schedule{}, fmt.Errorf("create schedule: %w", err)
	}
	if sch.ID == "" {
		sch.ID = uuid.New().String()
	}
	sch.Created = time.Now()
	if err := s.store.Put(ctx, sch); err != nil {
		return entities.Schedule{}, err
	}
	log.Printf("schedules: created %s (%s)", sch.ID, sch.Name)
	s.notifyChanged(sch.ID)
	return sch, nil
}

// Update replaces an existing schedule in full.
func (s *Service) Update(ctx context.Context, sch entities.Schedule) error {
	if err := sch.Validate(); err != nil {
		return fmt.Errorf("update schedule %s: %w", sch.ID, err)
	}
	prev, err := s.store.Get(ctx, sch.ID)
	if err != nil {
		return err
	}
	sch.Created = prev.Created
	if err := s.store.Put(ctx, sch); err != nil {
		return err
	}
	s.notifyChanged(sch.ID)
	return nil
}

// Toggle enables or disables a schedule without touching the rest of it.
func (s *Service) Toggle(ctx context.Context, id string, enabled bool) error {
	sch, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if sch.Enabled == enabled {
		return nil
	}
	sch.Enabled = enabled
	if err := s.store.Put(ctx, sch); err != nil {
		return err
	}
	log.Printf("schedules: %s enabled=%t", id, enabled)
	s.notifyChanged(id)
	return nil
}

// Duplicate clones a schedule under a new id with " (copy)" appended to the
// name. The copy starts disabled so it never fires before the user reviews it.
func (s *Service) Duplicate(ctx context.Context, id string) (entities.Schedule, error) {
	sch, err := s.store.Get(ctx, id)
	if err != nil {
		return entities.Schedule{}, err
	}
	sch.ID = uuid.New().String()
	sch.Name += " (copy)"
	sch.Enabled = false
	sch.Created = time.Now()
	if err := s.store.Put(ctx, sch); err != nil {
		return entities.Schedule{}, err
	}
	s.notifyChanged(sch.ID)
	return sch, nil
}

// Delete removes a schedule and any pending events it still owns. Events in
// other states stay as history.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	if s.events != nil {
		n, err := s.events.DeletePending(ctx, id)
		if err != nil {
			log.Printf("schedules: delete pending events of %s: %v", id, err)
		} else if n > 0 {
			log.Printf("schedules: removed %d pending event(s) of %s", n, id)
		}
	}
	s.notifyChanged(id)
	return nil
}

func (s *Service) Get(ctx context.Context, id string) (entities.Schedule, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]entities.Schedule, error) {
	return s.store.List(ctx)
}

// NextExecution derives the upcoming fire time of a schedule. It is a view
// for listings; the dispatcher keeps its own due-time map.
func (s *Service) NextExecution(sch entities.Schedule, now time.Time) (time.Time, bool) {
	if !sch.Enabled {
		return time.Time{}, false
	}
	return recurrence.NextForSchedule(&sch, now, s.loc)
}

func (s *Service) notifyChanged(id string) {
	if s.changed != nil {
		s.changed(id)
	}
}
