package mqttbus

import (
	"context"
	"log"
	"strings"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Handler processes one message received on a subscribed topic.
type Handler func(topic string, message mqtt.Message) error

// IConsumer subscribes to one or more topics and dispatches messages to a
// handler until the context is cancelled.
type IConsumer interface {
	ConsumeMessage(ctx context.Context)
	SetHandler(handler Handler)
}

// State-changing and command topics are delivered at-least-once; plain sensor
// telemetry stays at QoS 0.
func qosFor(topic string) byte {
	t := strings.TrimSpace(topic)
	if strings.HasPrefix(t, "event/") || strings.HasPrefix(t, "command/") {
		return 1
	}
	return 0
}

// Consumer subscribes to a single topic filter.
type Consumer struct {
	client  mqtt.Client
	topic   string
	handler Handler
}

// NewConsumer creates a Consumer on the shared MQTT client.
func NewConsumer(client mqtt.Client, topic string, handler Handler) *Consumer {
	return &Consumer{client: client, topic: topic, handler: handler}
}

func (c *Consumer) SetHandler(handler Handler) { c.handler = handler }

// ConsumeMessage subscribes and blocks until ctx is done, then unsubscribes.
func (c *Consumer) ConsumeMessage(ctx context.Context) {
	token := c.client.Subscribe(c.topic, qosFor(c.topic), func(_ mqtt.Client, message mqtt.Message) {
		if c.handler == nil {
			log.Printf("mqttbus: no handler set for topic %s", c.topic)
			return
		}
		if err := c.handler(c.topic, message); err != nil {
			log.Printf("mqttbus: handler error on %s: %v", c.topic, err)
		}
	})
	if token.Wait() && token.Error() != nil {
		log.Printf("mqttbus: subscribe %s: %v", c.topic, token.Error())
		return
	}
	log.Printf("mqttbus: subscribed to %s", c.topic)

	<-ctx.Done()

	unsub := c.client.Unsubscribe(c.topic)
	unsub.Wait()
}

// MultiConsumer subscribes to several topic filters with one handler.
type MultiConsumer struct {
	client  mqtt.Client
	topics  []string
	handler Handler
}

func NewMultiConsumer(client mqtt.Client, topics []string, handler Handler) *MultiConsumer {
	return &MultiConsumer{client: client, topics: topics, handler: handler}
}

func (m *MultiConsumer) SetHandler(handler Handler) { m.handler = handler }

func (m *MultiConsumer) ConsumeMessage(ctx context.Context) {
	for _, topic := range m.topics {
		topic := topic
		token := m.client.Subscribe(topic, qosFor(topic), func(_ mqtt.Client, msg mqtt.Message) {
			if m.handler == nil {
				log.Printf("mqttbus: no handler set for topic %s", topic)
				return
			}
			if err := m.handler(topic, msg); err != nil {
				log.Printf("mqttbus: handler error on %s: %v", topic, err)
			}
		})
		token.Wait()
		if token.Error() != nil {
			log.Printf("mqttbus: subscribe %s: %v", topic, token.Error())
		} else {
			log.Printf("mqttbus: subscribed to %s", topic)
		}
	}

	<-ctx.Done()

	for _, topic := range m.topics {
		m.client.Unsubscribe(topic)
	}
}
