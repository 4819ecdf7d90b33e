package sensorfeed

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/plantio/irrigation-engine/internal/model/entities"
	"github.com/plantio/irrigation-engine/internal/model/messages"
	"github.com/plantio/irrigation-engine/internal/services/zonecontrol"
)

func newFeed(t *testing.T) (*Feed, *zonecontrol.Registry) {
	t.Helper()
	reg := zonecontrol.NewRegistry([]entities.Zone{{ID: "z1"}, {ID: "z2"}})
	return New(reg, 15*time.Minute), reg
}

func sensorPayload(t *testing.T, zone string, moisture, temp float64, ts time.Time) []byte {
	t.Helper()
	b, err := json.Marshal(messages.SensorData{ZoneID: zone, Moisture: moisture, Temperature: temp, Timestamp: ts})
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestApplySensorData_UpdatesRegistry(t *testing.T) {
	f, reg := newFeed(t)
	ts := time.Now()
	if err := f.applySensorData(sensorPayload(t, "z1", 42, 21.5, ts)); err != nil {
		t.Fatal(err)
	}
	zone, _ := reg.Get("z1")
	if zone.Reading.Moisture != 42 || zone.Reading.Temperature != 21.5 {
		t.Fatalf("reading = %+v", zone.Reading)
	}
}

func TestApplySensorData_UnknownZoneIgnored(t *testing.T) {
	f, _ := newFeed(t)
	if err := f.applySensorData(sensorPayload(t, "nope", 42, 20, time.Now())); err != nil {
		t.Fatalf("unknown zone must be dropped, not errored: %v", err)
	}
}

func TestApplySensorData_MalformedPayloadDropped(t *testing.T) {
	f, _ := newFeed(t)
	if err := f.applySensorData([]byte("{not json")); err != nil {
		t.Fatalf("malformed payload must be dropped, not errored: %v", err)
	}
}

func TestApplySensorData_NoOpWriteIgnored(t *testing.T) {
	f, reg := newFeed(t)
	ts := time.Now().Truncate(time.Second)
	payload := sensorPayload(t, "z1", 42, 20, ts)
	if err := f.applySensorData(payload); err != nil {
		t.Fatal(err)
	}
	before, _ := reg.Get("z1")
	if err := f.applySensorData(payload); err != nil {
		t.Fatal(err)
	}
	after, _ := reg.Get("z1")
	if after.Reading != before.Reading {
		t.Fatal("identical payload must not rewrite the reading")
	}
}

func TestSnapshot_ConservativeAcrossZones(t *testing.T) {
	f, _ := newFeed(t)
	now := time.Now()
	if err := f.applySensorData(sensorPayload(t, "z1", 40, 22, now)); err != nil {
		t.Fatal(err)
	}
	if err := f.applySensorData(sensorPayload(t, "z2", 25, 31, now)); err != nil {
		t.Fatal(err)
	}

	snap := f.SnapshotForZones([]string{"z1", "z2"})
	if snap.Moisture == nil || *snap.Moisture != 25 {
		t.Fatalf("moisture = %v, want the minimum 25", snap.Moisture)
	}
	if snap.Temperature == nil || *snap.Temperature != 31 {
		t.Fatalf("temperature = %v, want the maximum 31", snap.Temperature)
	}
}

func TestSnapshot_StaleOrMissingZoneUnavailable(t *testing.T) {
	f, _ := newFeed(t)
	now := time.Now()
	if err := f.applySensorData(sensorPayload(t, "z1", 40, 22, now)); err != nil {
		t.Fatal(err)
	}
	// z2 has a reading, but an old one.
	if err := f.applySensorData(sensorPayload(t, "z2", 25, 31, now.Add(-time.Hour))); err != nil {
		t.Fatal(err)
	}

	snap := f.SnapshotForZones([]string{"z1", "z2"})
	if snap.Moisture != nil || snap.Temperature != nil {
		t.Fatalf("snapshot = %+v, want unavailable when any zone is stale", snap)
	}

	// A single fresh zone still evaluates.
	snap = f.SnapshotForZones([]string{"z1"})
	if snap.Moisture == nil || *snap.Moisture != 40 {
		t.Fatalf("moisture = %v", snap.Moisture)
	}
}

func TestSnapshot_RainState(t *testing.T) {
	f, _ := newFeed(t)
	snap := f.SnapshotForZones([]string{"z1"})
	if snap.Raining != nil {
		t.Fatal("rain state must be unavailable before any report")
	}

	b, err := json.Marshal(messages.RainState{Raining: true, Timestamp: time.Now()})
	if err != nil {
		t.Fatal(err)
	}
	if err := f.applyRainState(b); err != nil {
		t.Fatal(err)
	}
	snap = f.SnapshotForZones([]string{"z1"})
	if snap.Raining == nil || !*snap.Raining {
		t.Fatalf("raining = %v, want true", snap.Raining)
	}

	// A stale rain report no longer counts.
	b, _ = json.Marshal(messages.RainState{Raining: true, Timestamp: time.Now().Add(-time.Hour)})
	if err := f.applyRainState(b); err != nil {
		t.Fatal(err)
	}
	if snap := f.SnapshotForZones([]string{"z1"}); snap.Raining != nil {
		t.Fatal("stale rain state must be unavailable")
	}
}
