package mqttbus

import (
	"fmt"
	"log"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// IPublisher publishes messages on a fixed topic.
type IPublisher interface {
	PublishMessage(message string) error
	PublishMessageQos(qos byte, retained bool, message string) error
	Close()
}

// PublisherFactory builds a publisher bound to the given topic. Services that
// publish on per-zone or per-type topics take a factory instead of a single
// publisher.
type PublisherFactory func(topic string) IPublisher

// Publisher binds an MQTT client to one topic.
type Publisher struct {
	client mqtt.Client
	topic  string
}

// NewPublisher creates a Publisher on the shared MQTT client.
func NewPublisher(client mqtt.Client, topic string) *Publisher {
	return &Publisher{client: client, topic: topic}
}

// NewPublisherFactory returns a PublisherFactory over the shared client.
func NewPublisherFactory(client mqtt.Client) PublisherFactory {
	return func(topic string) IPublisher { return NewPublisher(client, topic) }
}

// PublishMessage publishes at QoS 0.
func (p *Publisher) PublishMessage(message string) error {
	return p.PublishMessageQos(0, false, message)
}

// PublishMessageQos publishes at the given QoS level.
func (p *Publisher) PublishMessageQos(qos byte, retained bool, message string) error {
	token := p.client.Publish(p.topic, qos, retained, message)
	token.Wait()
	if token.Error() != nil {
		return fmt.Errorf("failed to publish message: %w", token.Error())
	}
	return nil
}

// Close disconnects the underlying MQTT connection.
func (p *Publisher) Close() {
	if p.client.IsConnected() {
		p.client.Disconnect(250)
		log.Println("mqttbus: publisher disconnected")
	}
}
