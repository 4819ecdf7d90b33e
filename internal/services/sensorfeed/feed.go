// Package sensorfeed consumes the external sensor stream and exposes the
// snapshot view the condition gate evaluates against. Readings older than the
// configured max age count as unavailable, which makes the gate skip rather
// than water blindly.
package sensorfeed

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/plantio/irrigation-engine/internal/model/entities"
	"github.com/plantio/irrigation-engine/internal/model/messages"
	"github.com/plantio/irrigation-engine/internal/services/conditions"
	"github.com/plantio/irrigation-engine/internal/services/zonecontrol"
	"github.com/plantio/irrigation-engine/pkg/dedup"
)

const defaultMaxAge = 15 * time.Minute

// Feed holds the latest rain state and writes zone readings into the
// registry. QoS 1 redeliveries are dropped by payload hash, and writes that
// change nothing are ignored, mirroring the realtime store's
// dedup-on-unchanged-value behaviour.
type Feed struct {
	registry *zonecontrol.Registry
	maxAge   time.Duration
	deduper  *dedup.Deduper

	mu   sync.RWMutex
	rain *messages.RainState
}

func New(registry *zonecontrol.Registry, maxAge time.Duration) *Feed {
	if maxAge <= 0 {
		maxAge = defaultMaxAge
	}
	return &Feed{
		registry: registry,
		maxAge:   maxAge,
		deduper:  dedup.New(10*time.Minute, 20000),
	}
}

// HandleMessage routes bus messages by topic: sensor/data/... carries zone
// readings, sensor/rain the global rain flag.
func (f *Feed) HandleMessage(_ string, m mqtt.Message) error {
	h := sha256.Sum256(m.Payload())
	if !f.deduper.ShouldProcess(hex.EncodeToString(h[:])) {
		return nil
	}
	switch {
	case strings.HasPrefix(m.Topic(), "sensor/rain"):
		return f.applyRainState(m.Payload())
	case strings.HasPrefix(m.Topic(), "sensor/data"):
		return f.applySensorData(m.Payload())
	}
	return nil
}

func (f *Feed) applySensorData(payload []byte) error {
	var sd messages.SensorData
	if err := json.Unmarshal(payload, &sd); err != nil {
		log.Printf("sensorfeed: bad payload: %v", err)
		return nil
	}
	if sd.Timestamp.IsZero() {
		sd.Timestamp = time.Now()
	}
	zone, ok := f.registry.Get(sd.ZoneID)
	if !ok {
		log.Printf("sensorfeed: unknown zone %s", sd.ZoneID)
		return nil
	}
	reading := entities.Reading{
		Moisture:    sd.Moisture,
		Temperature: sd.Temperature,
		Timestamp:   sd.Timestamp,
	}
	if zone.Reading == reading {
		return nil // no-op write
	}
	f.registry.UpdateReading(sd.ZoneID, reading)
	return nil
}

func (f *Feed) applyRainState(payload []byte) error {
	var rs messages.RainState
	if err := json.Unmarshal(payload, &rs); err != nil {
		log.Printf("sensorfeed: bad rain payload: %v", err)
		return nil
	}
	if rs.Timestamp.IsZero() {
		rs.Timestamp = time.Now()
	}
	f.mu.Lock()
	f.rain = &rs
	f.mu.Unlock()
	return nil
}

// SnapshotForZones builds the gate's view over the target zones. Moisture is
// the minimum and temperature the maximum across the zones (the conservative
// pair); if any target zone has no fresh reading, both are unavailable.
func (f *Feed) SnapshotForZones(zoneIDs []string) conditions.Snapshot {
	now := time.Now()
	var snap conditions.Snapshot

	fresh := true
	var minMoist, maxTemp float64
	for i, id := range zoneIDs {
		zone, ok := f.registry.Get(id)
		if !ok || zone.Reading.Timestamp.IsZero() || now.Sub(zone.Reading.Timestamp) > f.maxAge {
			fresh = false
			break
		}
		if i == 0 || zone.Reading.Moisture < minMoist {
			minMoist = zone.Reading.Moisture
		}
		if i == 0 || zone.Reading.Temperature > maxTemp {
			maxTemp = zone.Reading.Temperature
		}
	}
	if fresh && len(zoneIDs) > 0 {
		snap.Moisture = &minMoist
		snap.Temperature = &maxTemp
	}

	f.mu.RLock()
	rain := f.rain
	f.mu.RUnlock()
	if rain != nil && now.Sub(rain.Timestamp) <= f.maxAge {
		r := rain.Raining
		snap.Raining = &r
	}
	return snap
}
