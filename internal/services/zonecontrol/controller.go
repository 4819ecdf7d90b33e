// Package zonecontrol owns all valve state transitions. The Controller is
// the single writer of zone valve state; the dispatcher and manual-control
// surface both command zones exclusively through it, so mutual exclusion,
// auto-close and emergency-stop invariants hold regardless of trigger source.
package zonecontrol

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/plantio/irrigation-engine/internal/metrics"
	"github.com/plantio/irrigation-engine/internal/model/entities"
	"github.com/plantio/irrigation-engine/internal/model/messages"
	"github.com/plantio/irrigation-engine/internal/services/eventlog"
)

var (
	// ErrUnknownZone marks a caller defect: commanding a zone that was never
	// registered. The call is aborted, the process is not.
	ErrUnknownZone = errors.New("unknown zone")
	// ErrZoneUnavailable is the recoverable refusal for a zone in health=error.
	ErrZoneUnavailable = errors.New("zone unavailable")
)

// ValveDriver performs the physical valve I/O. Implementations must honour
// the context deadline.
type ValveDriver interface {
	Open(ctx context.Context, zoneID string, d time.Duration) error
	Close(ctx context.Context, zoneID string) error
}

// Notifier receives the engine's domain events.
type Notifier interface {
	Notify(n messages.Notification)
}

// ClosedFunc is invoked after a zone has been closed and its timer resolved.
// natural is true when the auto-close timer expired on its own (or the open
// was handed over to a longer one) rather than being cancelled; reason is
// non-empty for emergency stop.
type ClosedFunc func(zoneID, actor string, natural bool, reason string)

const defaultIOTimeout = 5 * time.Second

type zoneGuard struct {
	mu    sync.Mutex
	open  bool
	actor string
	timer *time.Timer
	gen   uint64 // bumped on every open/cancel; stale auto-close callbacks bail out
}

// Controller enforces the valve invariants: per-zone mutual exclusion, a
// single auto-close timer per zone, cancel-then-close ordering, and bounded
// driver I/O.
type Controller struct {
	registry  *Registry
	driver    ValveDriver
	events    *eventlog.Log
	notify    Notifier
	ioTimeout time.Duration
	onClosed  ClosedFunc

	mu           sync.Mutex
	guards       map[string]*zoneGuard
	manualEvents map[string]string // zoneID -> in-flight manual event id
}

func NewController(registry *Registry, driver ValveDriver, events *eventlog.Log, notify Notifier, ioTimeout time.Duration) *Controller {
	if ioTimeout <= 0 {
		ioTimeout = defaultIOTimeout
	}
	return &Controller{
		registry:     registry,
		driver:       driver,
		events:       events,
		notify:       notify,
		ioTimeout:    ioTimeout,
		guards:       make(map[string]*zoneGuard),
		manualEvents: make(map[string]string),
	}
}

// OnZoneClosed registers the closure callback. Set once during wiring, before
// any zone is commanded.
func (c *Controller) OnZoneClosed(fn ClosedFunc) { c.onClosed = fn }

func (c *Controller) guard(zoneID string) *zoneGuard {
	c.mu.Lock()
	defer c.mu.Unlock()
	g, ok := c.guards[zoneID]
	if !ok {
		g = &zoneGuard{}
		c.guards[zoneID] = g
	}
	return g
}

// Open opens a zone for the given duration on behalf of actor (an event id,
// or "manual"). Re-opening an already-open zone replaces the active timer
// with the new duration and never creates a second one. A zone in
// health=error is refused with ErrZoneUnavailable.
func (c *Controller) Open(zoneID string, d time.Duration, actor string) error {
	if d <= 0 {
		return fmt.Errorf("open zone %s: duration must be positive", zoneID)
	}
	if _, ok := c.registry.Get(zoneID); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownZone, zoneID)
	}

	g := c.guard(zoneID)
	g.mu.Lock()

	zone, _ := c.registry.Get(zoneID)
	if zone.Health == entities.HealthError {
		g.mu.Unlock()
		return fmt.Errorf("%w: %s health=error", ErrZoneUnavailable, zoneID)
	}

	if g.open {
		// Idempotent re-open: replace the timer, no driver round trip. A
		// different actor takes over the zone; the previous owner's share is
		// treated as fulfilled.
		prevActor := g.actor
		g.actor = actor
		g.gen++
		gen := g.gen
		if g.timer != nil {
			g.timer.Stop()
		}
		g.timer = time.AfterFunc(d, func() { c.autoClose(zoneID, gen) })
		g.mu.Unlock()
		if prevActor != actor {
			c.resolveClosed(zoneID, prevActor, true, "")
		}
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.ioTimeout)
	err := c.driver.Open(ctx, zoneID, d)
	cancel()
	if err != nil {
		metrics.ValveCommandErrors.Inc()
		g.mu.Unlock()
		if errors.Is(err, context.DeadlineExceeded) {
			c.failZoneHealth(zoneID, "valve timeout")
			return fmt.Errorf("%w: %s valve timeout", ErrZoneUnavailable, zoneID)
		}
		return fmt.Errorf("open zone %s: %w", zoneID, err)
	}

	now := time.Now()
	c.registry.setValve(zoneID, entities.ValveOpen, now)
	metrics.OpenValves.Inc()
	g.open = true
	g.actor = actor
	g.gen++
	gen := g.gen
	g.timer = time.AfterFunc(d, func() { c.autoClose(zoneID, gen) })
	g.mu.Unlock()

	if actor == messages.ModeManual {
		c.appendManualEvent(zoneID, d, now)
	}
	log.Printf("zonecontrol: zone %s open for %s (actor=%s)", zoneID, d, actor)
	return nil
}

// Close closes a zone. Closing an already-closed zone is a no-op success.
// The pending auto-close timer is cancelled before the valve is driven
// closed.
func (c *Controller) Close(zoneID string) error {
	if _, ok := c.registry.Get(zoneID); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownZone, zoneID)
	}
	g := c.guard(zoneID)
	g.mu.Lock()
	if !g.open {
		g.mu.Unlock()
		return nil
	}
	actor := c.closeLocked(g, zoneID)
	g.mu.Unlock()

	c.resolveClosed(zoneID, actor, false, "")
	log.Printf("zonecontrol: zone %s closed (actor=%s)", zoneID, actor)
	return nil
}

// StopAll closes every zone regardless of state. It always succeeds: driver
// errors are logged, the registry is forced closed, and after return no zone
// is open and no auto-close timer remains scheduled. Safe to call while any
// number of Open calls are in flight.
func (c *Controller) StopAll() {
	metrics.EmergencyStops.Inc()
	type closedZone struct{ zone, actor string }
	var resolved []closedZone
	for _, z := range c.registry.List() {
		g := c.guard(z.ID)
		g.mu.Lock()
		if !g.open {
			g.mu.Unlock()
			continue
		}
		actor := c.closeLocked(g, z.ID)
		g.mu.Unlock()
		resolved = append(resolved, closedZone{z.ID, actor})
	}
	for _, r := range resolved {
		c.resolveClosed(r.zone, r.actor, false, "emergency stop")
	}
	if c.notify != nil {
		c.notify.Notify(messages.Notification{
			Type:      messages.NotifyEmergencyStop,
			Timestamp: time.Now(),
		})
	}
	log.Printf("zonecontrol: stop-all closed %d open zone(s)", len(resolved))
}

// SetHealth records the externally observed health of a zone. A zone in
// health=error refuses Open until its health is restored.
func (c *Controller) SetHealth(zoneID string, health entities.ZoneHealth) error {
	if !c.registry.setHealth(zoneID, health) {
		return fmt.Errorf("%w: %s", ErrUnknownZone, zoneID)
	}
	if health == entities.HealthError && c.notify != nil {
		c.notify.Notify(messages.Notification{
			Type:      messages.NotifyZoneError,
			ZoneID:    zoneID,
			Timestamp: time.Now(),
		})
	}
	return nil
}

// closeLocked cancels the timer, drives the valve closed and updates the
// registry. Cancel before close, so a timer can never fire after we believed
// it cancelled. Caller holds g.mu and has checked g.open.
func (c *Controller) closeLocked(g *zoneGuard, zoneID string) (actor string) {
	g.gen++
	if g.timer != nil {
		g.timer.Stop()
		g.timer = nil
	}
	actor = g.actor
	g.open = false
	g.actor = ""

	ctx, cancel := context.WithTimeout(context.Background(), c.ioTimeout)
	if err := c.driver.Close(ctx, zoneID); err != nil {
		metrics.ValveCommandErrors.Inc()
		log.Printf("zonecontrol: driver close %s: %v", zoneID, err)
	}
	cancel()
	c.registry.setValve(zoneID, entities.ValveClosed, time.Time{})
	metrics.OpenValves.Dec()
	return actor
}

func (c *Controller) autoClose(zoneID string, gen uint64) {
	g := c.guard(zoneID)
	g.mu.Lock()
	if g.gen != gen || !g.open {
		// Superseded by a re-open or already cancelled.
		g.mu.Unlock()
		return
	}
	g.timer = nil
	actor := c.closeLocked(g, zoneID)
	g.mu.Unlock()

	c.resolveClosed(zoneID, actor, true, "")
	log.Printf("zonecontrol: zone %s auto-closed (actor=%s)", zoneID, actor)
}

// resolveClosed completes the bookkeeping after a zone closed: finish the
// manual event if the zone was manually owned, then inform the dispatcher.
func (c *Controller) resolveClosed(zoneID, actor string, natural bool, reason string) {
	if actor == messages.ModeManual {
		c.mu.Lock()
		evtID := c.manualEvents[zoneID]
		delete(c.manualEvents, zoneID)
		c.mu.Unlock()
		if evtID != "" && c.events != nil {
			now := time.Now()
			if reason != "" {
				if err := c.events.SetStatus(context.Background(), evtID, messages.StatusFailed, reason, now); err != nil {
					log.Printf("zonecontrol: event %s: %v", evtID, err)
				}
			} else if err := c.events.SetStatus(context.Background(), evtID, messages.StatusCompleted, "", now); err != nil {
				log.Printf("zonecontrol: event %s: %v", evtID, err)
			}
		}
	}
	if c.onClosed != nil {
		c.onClosed(zoneID, actor, natural, reason)
	}
}

func (c *Controller) appendManualEvent(zoneID string, d time.Duration, at time.Time) {
	if c.events == nil {
		return
	}
	minutes := int((d + time.Minute - 1) / time.Minute)
	evt := messages.Event{
		ID:          uuid.New().String(),
		Mode:        messages.ModeManual,
		ScheduledAt: at,
		DurationMin: minutes,
		Zones:       []string{zoneID},
		Status:      messages.StatusPending,
	}
	ctx := context.Background()
	if err := c.events.Append(ctx, evt); err != nil {
		log.Printf("zonecontrol: append manual event: %v", err)
		return
	}
	if err := c.events.SetStatus(ctx, evt.ID, messages.StatusRunning, "", at); err != nil {
		log.Printf("zonecontrol: manual event %s: %v", evt.ID, err)
		return
	}
	c.mu.Lock()
	c.manualEvents[zoneID] = evt.ID
	c.mu.Unlock()
}

func (c *Controller) failZoneHealth(zoneID, reason string) {
	c.registry.setHealth(zoneID, entities.HealthError)
	if c.notify != nil {
		c.notify.Notify(messages.Notification{
			Type:      messages.NotifyZoneError,
			ZoneID:    zoneID,
			Reason:    reason,
			Timestamp: time.Now(),
		})
	}
}
