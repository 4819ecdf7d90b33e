package eventlog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/plantio/irrigation-engine/internal/model/messages"
)

func pendingEvent(id, scheduleID string, at time.Time) messages.Event {
	return messages.Event{
		ID:          id,
		ScheduleID:  scheduleID,
		Mode:        "fixed",
		ScheduledAt: at,
		DurationMin: 10,
		Zones:       []string{"zone-1"},
		Status:      messages.StatusPending,
	}
}

func TestMemoryStore_Lifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	start := time.Now()

	if err := s.Append(ctx, pendingEvent("e1", "s1", start)); err != nil {
		t.Fatal(err)
	}
	if err := s.SetStatus(ctx, "e1", messages.StatusRunning, "", start); err != nil {
		t.Fatal(err)
	}
	end := start.Add(10 * time.Minute)
	if err := s.SetStatus(ctx, "e1", messages.StatusCompleted, "", end); err != nil {
		t.Fatal(err)
	}

	evt, err := s.Get(ctx, "e1")
	if err != nil {
		t.Fatal(err)
	}
	if evt.Status != messages.StatusCompleted {
		t.Fatalf("status = %s", evt.Status)
	}
	if evt.StartedAt == nil || !evt.StartedAt.Equal(start) {
		t.Fatalf("StartedAt = %v", evt.StartedAt)
	}
	if evt.EndedAt == nil || !evt.EndedAt.Equal(end) {
		t.Fatalf("EndedAt = %v", evt.EndedAt)
	}
}

func TestMemoryStore_RejectsIllegalTransitions(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	now := time.Now()
	if err := s.Append(ctx, pendingEvent("e1", "s1", now)); err != nil {
		t.Fatal(err)
	}

	// pending cannot complete directly.
	if err := s.SetStatus(ctx, "e1", messages.StatusCompleted, "", now); !errors.Is(err, ErrBadTransition) {
		t.Fatalf("got %v, want ErrBadTransition", err)
	}

	if err := s.SetStatus(ctx, "e1", messages.StatusSkipped, "raining", now); err != nil {
		t.Fatal(err)
	}
	// Terminal states never move again.
	if err := s.SetStatus(ctx, "e1", messages.StatusRunning, "", now); !errors.Is(err, ErrBadTransition) {
		t.Fatalf("got %v, want ErrBadTransition", err)
	}
}

func TestMemoryStore_RejectsDuplicateAppend(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	now := time.Now()
	if err := s.Append(ctx, pendingEvent("e1", "s1", now)); err != nil {
		t.Fatal(err)
	}
	if err := s.Append(ctx, pendingEvent("e1", "s1", now)); err == nil {
		t.Fatal("duplicate append must fail")
	}
}

func TestMemoryStore_ListFiltersAndOrders(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	base := time.Now()

	older := pendingEvent("e1", "s1", base.Add(-time.Hour))
	newer := pendingEvent("e2", "s1", base)
	other := pendingEvent("e3", "s2", base.Add(-30*time.Minute))
	other.Zones = []string{"zone-2"}
	for _, evt := range []messages.Event{older, newer, other} {
		if err := s.Append(ctx, evt); err != nil {
			t.Fatal(err)
		}
	}

	bySchedule, err := s.List(ctx, Filter{ScheduleID: "s1"})
	if err != nil {
		t.Fatal(err)
	}
	if len(bySchedule) != 2 || bySchedule[0].ID != "e2" || bySchedule[1].ID != "e1" {
		t.Fatalf("schedule filter got %+v, want e2 then e1", bySchedule)
	}

	byZone, err := s.List(ctx, Filter{ZoneID: "zone-2"})
	if err != nil {
		t.Fatal(err)
	}
	if len(byZone) != 1 || byZone[0].ID != "e3" {
		t.Fatalf("zone filter got %+v", byZone)
	}

	byWindow, err := s.List(ctx, Filter{From: base.Add(-45 * time.Minute)})
	if err != nil {
		t.Fatal(err)
	}
	if len(byWindow) != 2 {
		t.Fatalf("window filter got %d events, want 2", len(byWindow))
	}
}

func TestMemoryStore_DeletePendingLeavesHistory(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	now := time.Now()

	if err := s.Append(ctx, pendingEvent("e1", "s1", now)); err != nil {
		t.Fatal(err)
	}
	done := pendingEvent("e2", "s1", now.Add(-time.Hour))
	if err := s.Append(ctx, done); err != nil {
		t.Fatal(err)
	}
	if err := s.SetStatus(ctx, "e2", messages.StatusRunning, "", now); err != nil {
		t.Fatal(err)
	}
	if err := s.SetStatus(ctx, "e2", messages.StatusCompleted, "", now); err != nil {
		t.Fatal(err)
	}

	n, err := s.DeletePending(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("deleted %d, want 1", n)
	}
	if _, err := s.Get(ctx, "e1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("pending event should be gone, got %v", err)
	}
	if _, err := s.Get(ctx, "e2"); err != nil {
		t.Fatalf("completed event must survive: %v", err)
	}
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	if err := s.Append(ctx, pendingEvent("e1", "s1", time.Now())); err != nil {
		t.Fatal(err)
	}
	evt, _ := s.Get(ctx, "e1")
	evt.Zones[0] = "mutated"
	again, _ := s.Get(ctx, "e1")
	if again.Zones[0] != "zone-1" {
		t.Fatal("store leaked internal slice")
	}
}
