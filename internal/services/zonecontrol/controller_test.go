package zonecontrol

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/plantio/irrigation-engine/internal/model/entities"
	"github.com/plantio/irrigation-engine/internal/model/messages"
	"github.com/plantio/irrigation-engine/internal/services/eventlog"
)

type fakeDriver struct {
	mu        sync.Mutex
	opens     []string
	closes    []string
	openErr   error
	openDelay time.Duration
}

func (d *fakeDriver) Open(ctx context.Context, zoneID string, _ time.Duration) error {
	if d.openDelay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(d.openDelay):
		}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.openErr != nil {
		return d.openErr
	}
	d.opens = append(d.opens, zoneID)
	return nil
}

func (d *fakeDriver) Close(_ context.Context, zoneID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closes = append(d.closes, zoneID)
	return nil
}

func (d *fakeDriver) closeCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.closes)
}

type notifyRec struct {
	mu    sync.Mutex
	notes []messages.Notification
}

func (n *notifyRec) Notify(note messages.Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notes = append(n.notes, note)
}

func (n *notifyRec) byType(t messages.NotificationType) []messages.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []messages.Notification
	for _, note := range n.notes {
		if note.Type == t {
			out = append(out, note)
		}
	}
	return out
}

type closure struct {
	zone    string
	actor   string
	natural bool
	reason  string
}

func newTestController(t *testing.T, driver ValveDriver) (*Controller, *eventlog.Log, *notifyRec, chan closure) {
	t.Helper()
	reg := NewRegistry([]entities.Zone{{ID: "z1", Name: "front"}, {ID: "z2", Name: "back"}})
	events := eventlog.NewLog(eventlog.NewMemoryStore())
	notes := &notifyRec{}
	c := NewController(reg, driver, events, notes, 50*time.Millisecond)
	closed := make(chan closure, 16)
	c.OnZoneClosed(func(zone, actor string, natural bool, reason string) {
		closed <- closure{zone, actor, natural, reason}
	})
	return c, events, notes, closed
}

func waitClosure(t *testing.T, ch chan closure) closure {
	t.Helper()
	select {
	case c := <-ch:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for closure callback")
		return closure{}
	}
}

func TestOpenThenClose(t *testing.T) {
	driver := &fakeDriver{}
	c, _, _, closed := newTestController(t, driver)

	if err := c.Open("z1", time.Minute, "evt1"); err != nil {
		t.Fatal(err)
	}
	zone, _ := c.registry.Get("z1")
	if zone.Valve != entities.ValveOpen {
		t.Fatalf("valve = %s, want open", zone.Valve)
	}
	if zone.LastOpened.IsZero() {
		t.Fatal("LastOpened not recorded")
	}

	if err := c.Close("z1"); err != nil {
		t.Fatal(err)
	}
	cl := waitClosure(t, closed)
	if cl.zone != "z1" || cl.actor != "evt1" || cl.natural {
		t.Fatalf("closure = %+v, want z1/evt1/natural=false", cl)
	}
	zone, _ = c.registry.Get("z1")
	if zone.Valve != entities.ValveClosed {
		t.Fatalf("valve = %s, want closed", zone.Valve)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	driver := &fakeDriver{}
	c, _, _, closed := newTestController(t, driver)

	if err := c.Open("z1", time.Minute, "evt1"); err != nil {
		t.Fatal(err)
	}
	if err := c.Close("z1"); err != nil {
		t.Fatal(err)
	}
	waitClosure(t, closed)

	before := driver.closeCount()
	if err := c.Close("z1"); err != nil {
		t.Fatal(err)
	}
	if driver.closeCount() != before {
		t.Fatal("closing a closed zone must not touch the driver")
	}
	select {
	case cl := <-closed:
		t.Fatalf("unexpected closure callback %+v", cl)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestAutoCloseFiresOnce(t *testing.T) {
	driver := &fakeDriver{}
	c, _, _, closed := newTestController(t, driver)

	if err := c.Open("z1", 30*time.Millisecond, "evt1"); err != nil {
		t.Fatal(err)
	}
	cl := waitClosure(t, closed)
	if !cl.natural || cl.actor != "evt1" {
		t.Fatalf("closure = %+v, want natural auto-close for evt1", cl)
	}
	zone, _ := c.registry.Get("z1")
	if zone.Valve != entities.ValveClosed {
		t.Fatal("valve still open after auto-close")
	}
	select {
	case cl := <-closed:
		t.Fatalf("second closure %+v, timer fired twice", cl)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestReopenReplacesTimerAndActor(t *testing.T) {
	driver := &fakeDriver{}
	c, _, _, closed := newTestController(t, driver)

	if err := c.Open("z1", 50*time.Millisecond, "evt1"); err != nil {
		t.Fatal(err)
	}
	if err := c.Open("z1", 300*time.Millisecond, "evt2"); err != nil {
		t.Fatal(err)
	}

	// The previous owner is resolved immediately as fulfilled.
	cl := waitClosure(t, closed)
	if cl.actor != "evt1" || !cl.natural {
		t.Fatalf("handover closure = %+v, want evt1 natural=true", cl)
	}

	// The first timer must not close the zone.
	time.Sleep(120 * time.Millisecond)
	zone, _ := c.registry.Get("z1")
	if zone.Valve != entities.ValveOpen {
		t.Fatal("stale timer closed the zone")
	}

	cl = waitClosure(t, closed)
	if cl.actor != "evt2" || !cl.natural {
		t.Fatalf("final closure = %+v, want evt2 natural=true", cl)
	}
	driver.mu.Lock()
	opens := len(driver.opens)
	driver.mu.Unlock()
	if opens != 1 {
		t.Fatalf("driver opened %d times, want 1 (re-open is timer-only)", opens)
	}
}

func TestStopAllClosesEverythingAndCancelsTimers(t *testing.T) {
	driver := &fakeDriver{}
	c, _, notes, closed := newTestController(t, driver)

	if err := c.Open("z1", time.Minute, "evt1"); err != nil {
		t.Fatal(err)
	}
	if err := c.Open("z2", time.Minute, "evt2"); err != nil {
		t.Fatal(err)
	}

	c.StopAll()

	got := map[string]closure{}
	for i := 0; i < 2; i++ {
		cl := waitClosure(t, closed)
		got[cl.zone] = cl
	}
	for _, zone := range []string{"z1", "z2"} {
		cl, ok := got[zone]
		if !ok {
			t.Fatalf("no closure for %s", zone)
		}
		if cl.natural || cl.reason != "emergency stop" {
			t.Fatalf("closure %+v, want emergency stop", cl)
		}
		z, _ := c.registry.Get(zone)
		if z.Valve != entities.ValveClosed {
			t.Fatalf("%s still open after StopAll", zone)
		}
	}
	if len(notes.byType(messages.NotifyEmergencyStop)) != 1 {
		t.Fatal("expected one emergencyStop notification")
	}

	// No cancelled timer may fire later.
	select {
	case cl := <-closed:
		t.Fatalf("late closure %+v after StopAll", cl)
	case <-time.After(100 * time.Millisecond):
	}

	// StopAll with nothing open still succeeds.
	c.StopAll()
}

func TestOpenUnknownZone(t *testing.T) {
	c, _, _, _ := newTestController(t, &fakeDriver{})
	if err := c.Open("nope", time.Minute, "evt1"); !errors.Is(err, ErrUnknownZone) {
		t.Fatalf("got %v, want ErrUnknownZone", err)
	}
	if err := c.Close("nope"); !errors.Is(err, ErrUnknownZone) {
		t.Fatalf("got %v, want ErrUnknownZone", err)
	}
}

func TestOpenRefusedWhenHealthError(t *testing.T) {
	c, _, notes, _ := newTestController(t, &fakeDriver{})
	if err := c.SetHealth("z1", entities.HealthError); err != nil {
		t.Fatal(err)
	}
	if err := c.Open("z1", time.Minute, "evt1"); !errors.Is(err, ErrZoneUnavailable) {
		t.Fatalf("got %v, want ErrZoneUnavailable", err)
	}
	if len(notes.byType(messages.NotifyZoneError)) != 1 {
		t.Fatal("expected a zoneError notification")
	}
}

func TestOpenTimeoutMarksZoneError(t *testing.T) {
	driver := &fakeDriver{openDelay: 500 * time.Millisecond}
	c, _, notes, _ := newTestController(t, driver) // ioTimeout is 50ms

	err := c.Open("z1", time.Minute, "evt1")
	if !errors.Is(err, ErrZoneUnavailable) {
		t.Fatalf("got %v, want ErrZoneUnavailable", err)
	}
	zone, _ := c.registry.Get("z1")
	if zone.Health != entities.HealthError {
		t.Fatalf("health = %s, want error after timeout", zone.Health)
	}
	if len(notes.byType(messages.NotifyZoneError)) == 0 {
		t.Fatal("expected a zoneError notification")
	}

	// The errored zone refuses further opens until health is restored.
	driver.openDelay = 0
	if err := c.Open("z1", time.Minute, "evt2"); !errors.Is(err, ErrZoneUnavailable) {
		t.Fatalf("got %v, want refusal while health=error", err)
	}
	if err := c.SetHealth("z1", entities.HealthActive); err != nil {
		t.Fatal(err)
	}
	if err := c.Open("z1", time.Minute, "evt3"); err != nil {
		t.Fatalf("open after recovery: %v", err)
	}
}

func TestManualOpenRecordsEvent(t *testing.T) {
	driver := &fakeDriver{}
	c, events, _, closed := newTestController(t, driver)

	if err := c.Open("z1", 30*time.Millisecond, messages.ModeManual); err != nil {
		t.Fatal(err)
	}
	waitClosure(t, closed)

	list, err := events.List(context.Background(), eventlog.Filter{ZoneID: "z1"})
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 {
		t.Fatalf("got %d events, want 1", len(list))
	}
	evt := list[0]
	if evt.Mode != messages.ModeManual || evt.ScheduleID != "" {
		t.Fatalf("event = %+v, want manual with no schedule", evt)
	}
	if evt.Status != messages.StatusCompleted {
		t.Fatalf("status = %s, want completed after auto-close", evt.Status)
	}
}

func TestManualEventFailsOnEmergencyStop(t *testing.T) {
	driver := &fakeDriver{}
	c, events, _, _ := newTestController(t, driver)

	if err := c.Open("z1", time.Minute, messages.ModeManual); err != nil {
		t.Fatal(err)
	}
	c.StopAll()

	list, err := events.List(context.Background(), eventlog.Filter{Status: messages.StatusFailed})
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].Reason != "emergency stop" {
		t.Fatalf("got %+v, want one failed event with reason 'emergency stop'", list)
	}
}

func TestOpenRejectsNonPositiveDuration(t *testing.T) {
	c, _, _, _ := newTestController(t, &fakeDriver{})
	if err := c.Open("z1", 0, "evt1"); err == nil {
		t.Fatal("zero duration must be rejected")
	}
}
