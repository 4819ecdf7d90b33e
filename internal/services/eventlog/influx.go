package eventlog

import (
	"log"
	"strings"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/plantio/irrigation-engine/internal/model/messages"
)

// Sink forwards events and notifications to InfluxDB for the dashboard's
// history views. Writes are asynchronous; the age of the last write error is
// exposed for the daemon's health endpoint.
type Sink struct {
	api     api.WriteAPI
	mu      sync.RWMutex
	lastErr time.Time
}

func NewSink(client influxdb2.Client, org, bucket string) *Sink {
	w := client.WriteAPI(org, bucket)
	s := &Sink{api: w}
	go func() {
		for err := range w.Errors() {
			log.Printf("eventlog: influx write error: %v", err)
			s.mu.Lock()
			s.lastErr = time.Now()
			s.mu.Unlock()
		}
	}()
	return s
}

// Observe implements Observer for NewLog.
func (s *Sink) Observe(evt messages.Event) {
	s.api.WritePoint(eventToPoint(evt))
}

// WriteNotification records a domain event alongside the execution records.
func (s *Sink) WriteNotification(n messages.Notification) {
	tags := map[string]string{
		"notification_type": string(n.Type),
	}
	if n.ScheduleID != "" {
		tags["schedule_id"] = n.ScheduleID
	}
	if n.ZoneID != "" {
		tags["zone_id"] = n.ZoneID
	}
	fields := map[string]interface{}{"count": int64(1)}
	if n.Reason != "" {
		fields["reason"] = n.Reason
	}
	s.api.WritePoint(influxdb2.NewPoint("irrigation_notification", tags, fields, n.Timestamp))
}

// LastErrorAge returns the time since the last asynchronous write error, or a
// very large duration when no error has occurred yet.
func (s *Sink) LastErrorAge() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.lastErr.IsZero() {
		return time.Duration(1<<62 - 1)
	}
	return time.Since(s.lastErr)
}

// Flush blocks until buffered points are written.
func (s *Sink) Flush() { s.api.Flush() }

func eventToPoint(evt messages.Event) *write.Point {
	tags := map[string]string{
		"status": string(evt.Status),
		"mode":   evt.Mode,
	}
	if evt.ScheduleID != "" {
		tags["schedule_id"] = evt.ScheduleID
	}
	fields := map[string]interface{}{
		"event_id":     evt.ID,
		"duration_min": int64(evt.DurationMin),
		"zones":        strings.Join(evt.Zones, ","),
	}
	if evt.Reason != "" {
		fields["reason"] = evt.Reason
	}
	ts := evt.ScheduledAt
	if evt.EndedAt != nil {
		ts = *evt.EndedAt
	}
	return influxdb2.NewPoint("irrigation_event", tags, fields, ts)
}
