// Package notifier publishes the engine's domain events. The engine only
// emits; rendering and delivery (mail, push, dashboard toast) belong to
// whatever consumes the topic.
package notifier

import (
	"encoding/json"
	"log"
	"strings"
	"time"

	"github.com/plantio/irrigation-engine/internal/model/messages"
	"github.com/plantio/irrigation-engine/pkg/mqttbus"
)

// Sink receives notifications.
type Sink interface {
	Notify(n messages.Notification)
}

// Func adapts a plain function to Sink.
type Func func(messages.Notification)

func (f Func) Notify(n messages.Notification) { f(n) }

// Multi fans a notification out to every sink.
type Multi []Sink

func (m Multi) Notify(n messages.Notification) {
	for _, s := range m {
		s.Notify(n)
	}
}

// MQTTNotifier publishes notifications as JSON on a per-type topic.
type MQTTNotifier struct {
	makePublisher mqttbus.PublisherFactory
	topicTmpl     string // e.g. "event/notification/{type}"
}

var _ Sink = (*MQTTNotifier)(nil)

func NewMQTTNotifier(factory mqttbus.PublisherFactory, topicTmpl string) *MQTTNotifier {
	if strings.TrimSpace(topicTmpl) == "" {
		topicTmpl = "event/notification/{type}"
	}
	return &MQTTNotifier{makePublisher: factory, topicTmpl: topicTmpl}
}

func (n *MQTTNotifier) Notify(evt messages.Notification) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	b, err := json.Marshal(evt)
	if err != nil {
		log.Printf("notifier: marshal %s: %v", evt.Type, err)
		return
	}
	topic := strings.NewReplacer("{type}", string(evt.Type)).Replace(n.topicTmpl)
	if err := n.makePublisher(topic).PublishMessageQos(1, false, string(b)); err != nil {
		log.Printf("notifier: publish %s: %v", topic, err)
	}
}
