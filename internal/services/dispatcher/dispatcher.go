// Package dispatcher runs the scheduling loop: it keeps the per-schedule
// next-execution map, sleeps until the earliest due time, and on wake-up
// evaluates conditions and drives the zone controller. A single goroutine
// owns all dispatch state; collaborators talk to it through the command
// channel.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/plantio/irrigation-engine/internal/metrics"
	"github.com/plantio/irrigation-engine/internal/model/entities"
	"github.com/plantio/irrigation-engine/internal/model/messages"
	"github.com/plantio/irrigation-engine/internal/services/conditions"
	"github.com/plantio/irrigation-engine/internal/services/eventlog"
	"github.com/plantio/irrigation-engine/internal/services/recurrence"
	"github.com/plantio/irrigation-engine/internal/services/schedules"
	"github.com/plantio/irrigation-engine/internal/services/zonecontrol"
)

// SnapshotProvider supplies the sensor view the condition gate evaluates.
type SnapshotProvider interface {
	SnapshotForZones(zoneIDs []string) conditions.Snapshot
}

// idleWait caps the sleep when no schedule is due, so a wall-clock jump is
// picked up within the hour even without a change notification.
const idleWait = time.Hour

type command interface{}

type cmdRecompute struct{ scheduleID string }

type cmdRunNow struct {
	scheduleID string
	resp       chan error
}

type cmdClosed struct {
	zoneID  string
	actor   string
	natural bool
	reason  string
}

// run tracks one running scheduled event until all its zones have closed.
type run struct {
	scheduleID string
	remaining  map[string]struct{}
}

type Dispatcher struct {
	store      schedules.Store
	events     *eventlog.Log
	controller *zonecontrol.Controller
	feed       SnapshotProvider
	notify     notifierSink
	loc        *time.Location
	now        func() time.Time

	cmds chan command

	// Owned by the Run goroutine, untouched elsewhere.
	next     map[string]time.Time
	inflight map[string]*run
}

type notifierSink interface {
	Notify(n messages.Notification)
}

func New(store schedules.Store, events *eventlog.Log, controller *zonecontrol.Controller, feed SnapshotProvider, notify notifierSink, loc *time.Location) *Dispatcher {
	if loc == nil {
		loc = time.Local
	}
	return &Dispatcher{
		store:      store,
		events:     events,
		controller: controller,
		feed:       feed,
		notify:     notify,
		loc:        loc,
		now:        time.Now,
		cmds:       make(chan command, 128),
		next:       make(map[string]time.Time),
		inflight:   make(map[string]*run),
	}
}

// ScheduleChanged wakes the loop to recompute the due time of one schedule.
func (d *Dispatcher) ScheduleChanged(scheduleID string) {
	d.cmds <- cmdRecompute{scheduleID: scheduleID}
}

// ZoneClosed is wired as the controller's closure callback.
func (d *Dispatcher) ZoneClosed(zoneID, actor string, natural bool, reason string) {
	d.cmds <- cmdClosed{zoneID: zoneID, actor: actor, natural: natural, reason: reason}
}

// RunNow executes a schedule immediately, on the dispatch goroutine. The
// condition gate still applies; the regular next execution is left untouched.
func (d *Dispatcher) RunNow(ctx context.Context, scheduleID string) error {
	resp := make(chan error, 1)
	select {
	case d.cmds <- cmdRunNow{scheduleID: scheduleID, resp: resp}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-resp:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run is the dispatch loop. It returns when ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	d.recomputeAll(ctx)
	timer := time.NewTimer(d.wait())
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-d.cmds:
			d.handle(ctx, cmd)
		case <-timer.C:
			metrics.DispatchTicks.Inc()
			d.dispatchDue(ctx, d.now())
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(d.wait())
	}
}

func (d *Dispatcher) handle(ctx context.Context, cmd command) {
	switch c := cmd.(type) {
	case cmdRecompute:
		d.recomputeOne(ctx, c.scheduleID)
	case cmdRunNow:
		c.resp <- d.runNow(ctx, c.scheduleID)
	case cmdClosed:
		d.handleZoneClosed(ctx, c)
	}
}

// wait returns how long to sleep until the earliest due time.
func (d *Dispatcher) wait() time.Duration {
	var earliest time.Time
	for _, t := range d.next {
		if earliest.IsZero() || t.Before(earliest) {
			earliest = t
		}
	}
	if earliest.IsZero() {
		return idleWait
	}
	w := earliest.Sub(d.now())
	if w < 0 {
		return 0
	}
	if w > idleWait {
		return idleWait
	}
	return w
}

func (d *Dispatcher) recomputeAll(ctx context.Context) {
	list, err := d.store.List(ctx)
	if err != nil {
		log.Printf("dispatcher: list schedules: %v", err)
		return
	}
	d.next = make(map[string]time.Time, len(list))
	for i := range list {
		d.setNext(&list[i], d.now())
	}
}

func (d *Dispatcher) recomputeOne(ctx context.Context, scheduleID string) {
	sch, err := d.store.Get(ctx, scheduleID)
	if err != nil {
		if errors.Is(err, schedules.ErrNotFound) {
			delete(d.next, scheduleID)
			return
		}
		log.Printf("dispatcher: get schedule %s: %v", scheduleID, err)
		return
	}
	d.setNext(&sch, d.now())
}

func (d *Dispatcher) setNext(sch *entities.Schedule, from time.Time) {
	if !sch.Enabled {
		delete(d.next, sch.ID)
		return
	}
	next, ok := recurrence.NextForSchedule(sch, from, d.loc)
	if !ok {
		delete(d.next, sch.ID)
		return
	}
	d.next[sch.ID] = next
}

// dispatchDue fires every schedule whose due time has arrived, then advances
// its due time past the fired slot.
func (d *Dispatcher) dispatchDue(ctx context.Context, now time.Time) {
	for id, due := range d.next {
		if due.After(now) {
			continue
		}
		sch, err := d.store.Get(ctx, id)
		if err != nil {
			delete(d.next, id)
			continue
		}
		if !sch.Enabled {
			delete(d.next, id)
			continue
		}
		d.dispatchOne(ctx, &sch, due)
		if next, ok := recurrence.After(&sch, due, d.loc); ok {
			d.next[id] = next
		} else {
			delete(d.next, id)
		}
	}
}

// dispatchOne runs one execution attempt: append a pending event, evaluate
// the gate, then either skip or open every target zone under the event's
// ownership.
func (d *Dispatcher) dispatchOne(ctx context.Context, sch *entities.Schedule, scheduledAt time.Time) {
	evt := messages.Event{
		ID:          uuid.New().String(),
		ScheduleID:  sch.ID,
		Mode:        string(sch.Mode),
		ScheduledAt: scheduledAt,
		DurationMin: sch.DurationMin,
		Zones:       append([]string(nil), sch.Zones...),
		Status:      messages.StatusPending,
	}
	if err := d.events.Append(ctx, evt); err != nil {
		log.Printf("dispatcher: append event for %s: %v", sch.ID, err)
		return
	}

	dec := conditions.Evaluate(sch.Mode, sch.Conditions, d.feed.SnapshotForZones(sch.Zones))
	if !dec.Proceed {
		if err := d.events.SetStatus(ctx, evt.ID, messages.StatusSkipped, dec.Reason, d.now()); err != nil {
			log.Printf("dispatcher: event %s: %v", evt.ID, err)
		}
		d.notifyEvent(messages.NotifyScheduleSkipped, sch.ID, evt.ID, dec.Reason)
		log.Printf("dispatcher: schedule %s skipped: %s", sch.ID, dec.Reason)
		return
	}

	if err := d.events.SetStatus(ctx, evt.ID, messages.StatusRunning, "", d.now()); err != nil {
		log.Printf("dispatcher: event %s: %v", evt.ID, err)
		return
	}
	d.notifyEvent(messages.NotifyScheduleFired, sch.ID, evt.ID, "")

	dur := time.Duration(sch.DurationMin) * time.Minute
	remaining := make(map[string]struct{}, len(sch.Zones))
	var failed []string
	for _, zone := range sch.Zones {
		if err := d.controller.Open(zone, dur, evt.ID); err != nil {
			log.Printf("dispatcher: open zone %s for event %s: %v", zone, evt.ID, err)
			failed = append(failed, zone)
			continue
		}
		remaining[zone] = struct{}{}
	}

	switch {
	case len(remaining) == 0:
		// Nothing opened: the attempt itself failed.
		if err := d.events.SetStatus(ctx, evt.ID, messages.StatusFailed, "zone unavailable", d.now()); err != nil {
			log.Printf("dispatcher: event %s: %v", evt.ID, err)
		}
	default:
		// Partial success: the main event keeps running on the opened zones,
		// each refused zone gets its own failed record.
		for _, zone := range failed {
			d.recordZoneFailure(ctx, sch, scheduledAt, zone)
		}
		d.inflight[evt.ID] = &run{scheduleID: sch.ID, remaining: remaining}
	}
}

// recordZoneFailure logs a per-zone failed event so a refused zone is visible
// in history even when the rest of the schedule ran.
func (d *Dispatcher) recordZoneFailure(ctx context.Context, sch *entities.Schedule, scheduledAt time.Time, zoneID string) {
	evt := messages.Event{
		ID:          uuid.New().String(),
		ScheduleID:  sch.ID,
		Mode:        string(sch.Mode),
		ScheduledAt: scheduledAt,
		DurationMin: sch.DurationMin,
		Zones:       []string{zoneID},
		Status:      messages.StatusPending,
	}
	if err := d.events.Append(ctx, evt); err != nil {
		log.Printf("dispatcher: append zone failure event: %v", err)
		return
	}
	now := d.now()
	if err := d.events.SetStatus(ctx, evt.ID, messages.StatusRunning, "", now); err != nil {
		log.Printf("dispatcher: event %s: %v", evt.ID, err)
		return
	}
	if err := d.events.SetStatus(ctx, evt.ID, messages.StatusFailed, "zone unavailable", now); err != nil {
		log.Printf("dispatcher: event %s: %v", evt.ID, err)
	}
}

// handleZoneClosed resolves inflight bookkeeping when the controller reports
// a zone closure. Closures owned by manual operations carry the manual actor
// and are ignored here.
func (d *Dispatcher) handleZoneClosed(ctx context.Context, c cmdClosed) {
	r, ok := d.inflight[c.actor]
	if !ok {
		return
	}
	delete(r.remaining, c.zoneID)

	if !c.natural {
		reason := c.reason
		if reason == "" {
			reason = "closed before completion"
		}
		if err := d.events.SetStatus(ctx, c.actor, messages.StatusFailed, reason, d.now()); err != nil {
			log.Printf("dispatcher: event %s: %v", c.actor, err)
		}
		delete(d.inflight, c.actor)
		return
	}
	if len(r.remaining) == 0 {
		if err := d.events.SetStatus(ctx, c.actor, messages.StatusCompleted, "", d.now()); err != nil {
			log.Printf("dispatcher: event %s: %v", c.actor, err)
		}
		delete(d.inflight, c.actor)
	}
}

func (d *Dispatcher) runNow(ctx context.Context, scheduleID string) error {
	sch, err := d.store.Get(ctx, scheduleID)
	if err != nil {
		return fmt.Errorf("run now: %w", err)
	}
	d.dispatchOne(ctx, &sch, d.now())
	return nil
}

func (d *Dispatcher) notifyEvent(typ messages.NotificationType, scheduleID, eventID, reason string) {
	if d.notify == nil {
		return
	}
	d.notify.Notify(messages.Notification{
		Type:       typ,
		ScheduleID: scheduleID,
		EventID:    eventID,
		Reason:     reason,
		Timestamp:  d.now(),
	})
}
