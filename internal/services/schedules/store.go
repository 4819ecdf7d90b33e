package schedules

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/plantio/irrigation-engine/internal/model/entities"
)

// ErrNotFound is returned for operations on a schedule id that does not exist.
var ErrNotFound = errors.New("schedule not found")

// Store is the schedule persistence boundary.
type Store interface {
	List(ctx context.Context) ([]entities.Schedule, error)
	Get(ctx context.Context, id string) (entities.Schedule, error)
	Put(ctx context.Context, s entities.Schedule) error
	Delete(ctx context.Context, id string) error
}

// MemoryStore keeps schedules in memory. Values are copied on the way in and
// out so callers can never mutate stored state through a shared slice.
type MemoryStore struct {
	mu        sync.RWMutex
	schedules map[string]entities.Schedule
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{schedules: make(map[string]entities.Schedule)}
}

func (m *MemoryStore) List(_ context.Context) ([]entities.Schedule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]entities.Schedule, 0, len(m.schedules))
	for _, s := range m.schedules {
		out = append(out, copySchedule(s))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Created.Equal(out[j].Created) {
			return out[i].Created.Before(out[j].Created)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (entities.Schedule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.schedules[id]
	if !ok {
		return entities.Schedule{}, ErrNotFound
	}
	return copySchedule(s), nil
}

func (m *MemoryStore) Put(_ context.Context, s entities.Schedule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.schedules[s.ID] = copySchedule(s)
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.schedules[id]; !ok {
		return ErrNotFound
	}
	delete(m.schedules, id)
	return nil
}

func copySchedule(s entities.Schedule) entities.Schedule {
	cp := s
	cp.Days = append([]time.Weekday(nil), s.Days...)
	cp.Zones = append([]string(nil), s.Zones...)
	if s.Conditions != nil {
		c := *s.Conditions
		cp.Conditions = &c
	}
	return cp
}
