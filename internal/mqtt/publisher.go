package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"

	"github.com/zwangde/pulsed-power-ml/internal/models"
)

// SensorIDPlaceholder is replaced by the sensor ID in topic patterns
const SensorIDPlaceholder = "{sensor_id}"

// Publisher handles MQTT publishing from channels
type Publisher struct {
	client mqtt.Client

	// Input channel (read by publisher, written by the NILM service)
	StateChan chan *models.PowerUsage

	stateTopic string // e.g., "nilm/{sensor_id}/state"
	retain     bool
}

// PublisherConfig holds configuration for MQTT publisher
type PublisherConfig struct {
	StateTopic string // e.g., "nilm/{sensor_id}/state"
	Retain     bool   // keep the last state on the broker for late subscribers
}

// NewPublisher creates a new MQTT publisher with channels
func NewPublisher(
	client mqtt.Client,
	config PublisherConfig,
	stateChan chan *models.PowerUsage,
) *Publisher {
	return &Publisher{
		client:     client,
		StateChan:  stateChan,
		stateTopic: config.StateTopic,
		retain:     config.Retain,
	}
}

// Start publishes state snapshots from the channel.
// Runs until context is cancelled or channel is closed
func (p *Publisher) Start(ctx context.Context) {
	log.Println("MQTT Publisher: Starting...")

	for {
		select {
		case <-ctx.Done():
			log.Println("MQTT Publisher: Context cancelled, shutting down...")
			return

		case usage, ok := <-p.StateChan:
			if !ok {
				log.Println("MQTT Publisher: State channel closed, shutting down...")
				return
			}

			if err := p.publishState(usage); err != nil {
				log.WithField("sensor", usage.SensorID).Errorf("Error publishing state: %v", err)
			}
		}
	}
}

func (p *Publisher) publishState(usage *models.PowerUsage) error {
	payload, err := json.Marshal(usage)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	topic := formatTopic(p.stateTopic, usage.SensorID)

	token := p.client.Publish(topic, 0, p.retain, payload)
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to publish state: %w", token.Error())
	}

	log.WithField("sensor", usage.SensorID).Debugf("Published state to topic: %s", topic)
	return nil
}

// formatTopic replaces the {sensor_id} placeholder with the sensor ID
func formatTopic(topicPattern, sensorID string) string {
	return strings.ReplaceAll(topicPattern, SensorIDPlaceholder, sensorID)
}
