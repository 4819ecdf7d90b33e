// Package simulator feeds the engine with synthetic zone readings for local
// development: moisture responds to the valve commands the engine publishes,
// so a full schedule round trip can be observed without hardware.
package simulator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/plantio/irrigation-engine/internal/model/entities"
	"github.com/plantio/irrigation-engine/internal/model/messages"
	"github.com/plantio/irrigation-engine/pkg/dedup"
	"github.com/plantio/irrigation-engine/pkg/mqttbus"
)

// ZoneSimulator simulates the sensors and valve of a single zone. It consumes
// the engine's StateChange events and publishes SensorData at a fixed
// interval.
type ZoneSimulator struct {
	mu        sync.Mutex
	zoneID    string
	valveOpen bool
	timer     *time.Timer // single revert timer
	generator *DataGenerator
	publisher mqttbus.IPublisher
	consumer  mqttbus.IConsumer
	deduper   *dedup.Deduper
}

func NewZoneSimulator(zoneID string, consumer mqttbus.IConsumer, publisher mqttbus.IPublisher, gen *DataGenerator) *ZoneSimulator {
	return &ZoneSimulator{
		zoneID:    zoneID,
		generator: gen,
		publisher: publisher,
		consumer:  consumer,
		deduper:   dedup.New(2*time.Minute, 10000),
	}
}

// Start consumes valve commands and publishes readings until ctx is done.
func (s *ZoneSimulator) Start(ctx context.Context, interval time.Duration) {
	s.consumer.SetHandler(s.handleMessage)
	go s.consumer.ConsumeMessage(ctx)

	for {
		select {
		case <-ctx.Done():
			s.publisher.Close()
			return
		case <-time.After(interval):
			s.mu.Lock()
			open := s.valveOpen
			s.mu.Unlock()
			sd := s.generator.Next(s.zoneID, open)
			log.Printf("simulator: zone=%s moisture=%.0f%% temp=%.1f valve_open=%t",
				sd.ZoneID, sd.Moisture, sd.Temperature, open)
			payload, _ := json.Marshal(sd)
			if err := s.publisher.PublishMessage(string(payload)); err != nil {
				log.Printf("simulator: publish error: %v", err)
			}
		}
	}
}

func (s *ZoneSimulator) handleMessage(_ string, msg mqtt.Message) error {
	// QoS 1 redeliveries carry the same payload, so the hash dedups them.
	h := sha256.Sum256(msg.Payload())
	if !s.deduper.ShouldProcess(hex.EncodeToString(h[:])) {
		return nil
	}

	var evt messages.StateChangeEvent
	if err := json.Unmarshal(msg.Payload(), &evt); err != nil {
		return fmt.Errorf("invalid StateChangeEvent: %w", err)
	}
	if evt.ZoneID != s.zoneID {
		return nil
	}
	s.applyValveState(evt)
	return nil
}

func (s *ZoneSimulator) applyValveState(evt messages.StateChangeEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}

	s.valveOpen = evt.NewState == entities.ValveOpen
	log.Printf("simulator: zone %s valve -> %s for %s", s.zoneID, evt.NewState, evt.Duration)

	// The engine closes the valve itself, but revert anyway in case the close
	// command is lost.
	if s.valveOpen && evt.Duration > 0 {
		s.timer = time.AfterFunc(evt.Duration+time.Minute, func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.valveOpen = false
			s.timer = nil
			log.Printf("simulator: zone %s valve reverted to closed", s.zoneID)
		})
	}
}

// RainReporter periodically publishes a rain flag that flips at random, for
// exercising weather schedules.
type RainReporter struct {
	publisher mqttbus.IPublisher
	chance    float64 // probability per tick of flipping the state
	raining   bool
}

func NewRainReporter(publisher mqttbus.IPublisher, chance float64) *RainReporter {
	return &RainReporter{publisher: publisher, chance: chance}
}

func (r *RainReporter) Start(ctx context.Context, interval time.Duration) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
			if rand.Float64() < r.chance {
				r.raining = !r.raining
			}
			payload, _ := json.Marshal(messages.RainState{Raining: r.raining, Timestamp: time.Now().UTC()})
			if err := r.publisher.PublishMessage(string(payload)); err != nil {
				log.Printf("simulator: rain publish error: %v", err)
			}
		}
	}
}
