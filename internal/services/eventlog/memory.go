package eventlog

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/plantio/irrigation-engine/internal/model/messages"
)

// MemoryStore is the in-process Store implementation. All returned events are
// copies; callers never see the store's internal state.
type MemoryStore struct {
	mu     sync.RWMutex
	events map[string]*messages.Event
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{events: make(map[string]*messages.Event)}
}

func (s *MemoryStore) Append(_ context.Context, evt messages.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.events[evt.ID]; exists {
		return fmt.Errorf("event %s already appended", evt.ID)
	}
	cp := evt
	cp.Zones = append([]string(nil), evt.Zones...)
	s.events[evt.ID] = &cp
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (messages.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	evt, ok := s.events[id]
	if !ok {
		return messages.Event{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return copyEvent(evt), nil
}

func (s *MemoryStore) SetStatus(_ context.Context, id string, status messages.EventStatus, reason string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	evt, ok := s.events[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if !evt.Status.CanTransition(status) {
		return fmt.Errorf("%w: %s -> %s (event %s)", ErrBadTransition, evt.Status, status, id)
	}
	evt.Status = status
	if reason != "" {
		evt.Reason = reason
	}
	switch {
	case status == messages.StatusRunning:
		t := at
		evt.StartedAt = &t
	case status.Terminal():
		t := at
		evt.EndedAt = &t
	}
	return nil
}

func (s *MemoryStore) List(_ context.Context, f Filter) ([]messages.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]messages.Event, 0)
	for _, evt := range s.events {
		if f.matches(*evt) {
			out = append(out, copyEvent(evt))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledAt.After(out[j].ScheduledAt) })
	return out, nil
}

func (s *MemoryStore) DeletePending(_ context.Context, scheduleID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, evt := range s.events {
		if evt.ScheduleID == scheduleID && evt.Status == messages.StatusPending {
			delete(s.events, id)
			n++
		}
	}
	return n, nil
}

func copyEvent(evt *messages.Event) messages.Event {
	cp := *evt
	cp.Zones = append([]string(nil), evt.Zones...)
	return cp
}
