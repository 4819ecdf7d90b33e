package zonecontrol

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/plantio/irrigation-engine/internal/model/entities"
	"github.com/plantio/irrigation-engine/internal/model/messages"
	"github.com/plantio/irrigation-engine/pkg/mqttbus"
)

// MQTTDriver publishes valve state changes toward the hardware bridge as
// StateChangeEvent messages on a per-zone topic.
type MQTTDriver struct {
	makePublisher mqttbus.PublisherFactory
	topicTmpl     string // e.g. "event/stateChange/{zone}"
}

var _ ValveDriver = (*MQTTDriver)(nil)

func NewMQTTDriver(factory mqttbus.PublisherFactory, topicTmpl string) *MQTTDriver {
	if strings.TrimSpace(topicTmpl) == "" {
		topicTmpl = "event/stateChange/{zone}"
	}
	return &MQTTDriver{makePublisher: factory, topicTmpl: topicTmpl}
}

func (d *MQTTDriver) Open(_ context.Context, zoneID string, dur time.Duration) error {
	return d.publish(zoneID, entities.ValveOpen, dur)
}

func (d *MQTTDriver) Close(_ context.Context, zoneID string) error {
	return d.publish(zoneID, entities.ValveClosed, 0)
}

func (d *MQTTDriver) publish(zoneID string, state entities.ValveState, dur time.Duration) error {
	evt := messages.StateChangeEvent{
		ZoneID:    zoneID,
		NewState:  state,
		Duration:  dur,
		Timestamp: time.Now(),
	}
	b, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	topic := strings.NewReplacer("{zone}", zoneID).Replace(d.topicTmpl)
	return d.makePublisher(topic).PublishMessageQos(1, false, string(b))
}

// BreakerDriver wraps a ValveDriver with a circuit breaker so a flapping
// valve transport is short-circuited instead of hammered. Close is never
// gated: StopAll must always reach the hardware.
type BreakerDriver struct {
	inner ValveDriver
	cb    *gobreaker.CircuitBreaker
}

var _ ValveDriver = (*BreakerDriver)(nil)

func NewBreakerDriver(inner ValveDriver) *BreakerDriver {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "valve-io",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	})
	return &BreakerDriver{inner: inner, cb: cb}
}

func (b *BreakerDriver) Open(ctx context.Context, zoneID string, dur time.Duration) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, b.inner.Open(ctx, zoneID, dur)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("valve transport unavailable: %w", err)
	}
	return err
}

func (b *BreakerDriver) Close(ctx context.Context, zoneID string) error {
	return b.inner.Close(ctx, zoneID)
}
