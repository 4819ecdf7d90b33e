package eventlog

import (
	"context"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
)

// HistoryEntry is one row of the Influx-backed history view.
type HistoryEntry struct {
	EventID    string `json:"event_id,omitempty"`
	ScheduleID string `json:"schedule_id,omitempty"`
	Status     string `json:"status"`
	Mode       string `json:"mode,omitempty"`
	Time       string `json:"time"` // RFC3339
}

// HistoryQuerier reads back the event history written by Sink. It serves the
// dashboard's history page; the in-process store stays authoritative for the
// dispatcher itself.
type HistoryQuerier struct {
	client influxdb2.Client
	org    string
	bucket string
}

func NewHistoryQuerier(client influxdb2.Client, org, bucket string) *HistoryQuerier {
	return &HistoryQuerier{client: client, org: org, bucket: bucket}
}

func buildFlux(bucket string, minutes, limit int) string {
	return fmt.Sprintf(`
from(bucket: %q)
  |> range(start: -%dm)
  |> filter(fn: (r) => r._measurement == "irrigation_event")
  |> filter(fn: (r) => r._field == "event_id")
  |> keep(columns: ["_time","_value","schedule_id","status","mode"])
  |> sort(columns: ["_time"], desc: true)
  |> limit(n:%d)
`, bucket, minutes, limit)
}

// Recent returns the latest event records inside the window, newest first.
func (h *HistoryQuerier) Recent(ctx context.Context, window time.Duration, limit int) ([]HistoryEntry, error) {
	minutes := int(window / time.Minute)
	if minutes < 1 {
		minutes = 1
	}
	if limit < 1 {
		limit = 20
	}

	api := h.client.QueryAPI(h.org)
	res, err := api.Query(ctx, buildFlux(h.bucket, minutes, limit))
	if err != nil {
		return nil, fmt.Errorf("influx query: %w", err)
	}
	defer res.Close()

	out := make([]HistoryEntry, 0, limit)
	for res.Next() {
		rec := res.Record()
		entry := HistoryEntry{Time: rec.Time().UTC().Format(time.RFC3339)}
		if s, ok := rec.Value().(string); ok {
			entry.EventID = s
		}
		entry.ScheduleID = stringKey(rec.ValueByKey("schedule_id"))
		entry.Status = stringKey(rec.ValueByKey("status"))
		entry.Mode = stringKey(rec.ValueByKey("mode"))
		out = append(out, entry)
	}
	if res.Err() != nil {
		return out, fmt.Errorf("influx iterate: %w", res.Err())
	}
	return out, nil
}

func stringKey(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}
