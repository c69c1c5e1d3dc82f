package mqtt

import (
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"

	"github.com/zwangde/pulsed-power-ml/internal/models"
	"github.com/zwangde/pulsed-power-ml/internal/nilm"
)

// Subscriber handles MQTT subscriptions and writes data points to a channel
type Subscriber struct {
	client mqtt.Client

	// Output channel (written by subscriber, read by the NILM service)
	DataPointChan chan *models.DataPoint

	dataPointTopic string
	resetTopic     string
	sendTimeout    time.Duration
	dataPointSize  int
	now            func() time.Time
}

// SubscriberConfig holds configuration for MQTT subscriber
type SubscriberConfig struct {
	DataPointTopic string        // e.g., "nilm/+/datapoint"
	ResetTopic     string        // e.g., "nilm/+/reset"
	SendTimeout    time.Duration // how long to wait on a full channel before dropping
	DataPointSize  int           // expected values per data point, 0 accepts any length
}

// NewSubscriber creates a new MQTT subscriber writing to dataPointChan
func NewSubscriber(
	client mqtt.Client,
	config SubscriberConfig,
	dataPointChan chan *models.DataPoint,
) *Subscriber {
	if config.SendTimeout <= 0 {
		config.SendTimeout = time.Second
	}
	return &Subscriber{
		client:         client,
		DataPointChan:  dataPointChan,
		dataPointTopic: config.DataPointTopic,
		resetTopic:     config.ResetTopic,
		sendTimeout:    config.SendTimeout,
		dataPointSize:  config.DataPointSize,
		now:            time.Now,
	}
}

// SubscribeAll subscribes to all configured topics
func (s *Subscriber) SubscribeAll() error {
	if s.dataPointTopic != "" {
		if err := s.subscribeToTopic(s.dataPointTopic, s.handleDataPoint); err != nil {
			return fmt.Errorf("failed to subscribe to data point topic: %w", err)
		}
		log.Printf("Subscribed to data point topic: %s", s.dataPointTopic)
	}

	if s.resetTopic != "" {
		if err := s.subscribeToTopic(s.resetTopic, s.handleReset); err != nil {
			return fmt.Errorf("failed to subscribe to reset topic: %w", err)
		}
		log.Printf("Subscribed to reset topic: %s", s.resetTopic)
	}

	return nil
}

// Resubscribe restores the subscriptions after a reconnect. It matches the
// signature of Client.OnReconnect.
func (s *Subscriber) Resubscribe(client mqtt.Client) {
	if err := s.SubscribeAll(); err != nil {
		log.Errorf("Failed to resubscribe after reconnect: %v", err)
	}
}

func (s *Subscriber) subscribeToTopic(topic string, handler mqtt.MessageHandler) error {
	token := s.client.Subscribe(topic, 1, handler)
	if token.Wait() && token.Error() != nil {
		return token.Error()
	}
	return nil
}

// handleDataPoint decodes a data point (JSON or raw float32) and forwards it.
// A payload made only of -1 values is forwarded as a reset. Payloads of the
// wrong length are dropped, sentinels included.
func (s *Subscriber) handleDataPoint(client mqtt.Client, msg mqtt.Message) {
	sensorID := extractSensorID(msg.Topic())
	if sensorID == "" {
		log.Warnf("Could not extract sensor ID from topic: %s", msg.Topic())
		return
	}

	values, err := models.DecodeDataPoint(msg.Payload())
	if err != nil {
		log.WithField("sensor", sensorID).Warnf("Error decoding data point: %v", err)
		return
	}
	if s.dataPointSize > 0 && len(values) != s.dataPointSize {
		log.WithField("sensor", sensorID).Warnf("Dropping data point with %d values, expected %d",
			len(values), s.dataPointSize)
		return
	}

	point := &models.DataPoint{
		Timestamp: s.now(),
		SensorID:  sensorID,
		Values:    values,
	}
	if nilm.IsResetSentinel(values) {
		point.Values = nil
		point.Reset = true
		log.WithField("sensor", sensorID).Info("Received reset sentinel")
	}

	s.forward(point)
}

// handleReset forwards a reset for the sensor named in the topic; the payload is ignored
func (s *Subscriber) handleReset(client mqtt.Client, msg mqtt.Message) {
	sensorID := extractSensorID(msg.Topic())
	if sensorID == "" {
		log.Warnf("Could not extract sensor ID from topic: %s", msg.Topic())
		return
	}

	log.WithField("sensor", sensorID).Info("Received reset request")
	s.forward(&models.DataPoint{
		Timestamp: s.now(),
		SensorID:  sensorID,
		Reset:     true,
	})
}

// forward writes to the channel, dropping the data point if it stays full
func (s *Subscriber) forward(point *models.DataPoint) {
	timer := time.NewTimer(s.sendTimeout)
	defer timer.Stop()

	select {
	case s.DataPointChan <- point:
	case <-timer.C:
		log.WithField("sensor", point.SensorID).Warn("Data point channel full, dropping message")
	}
}

// extractSensorID extracts the sensor ID from an MQTT topic
// Example: "nilm/lab-1/datapoint" -> "lab-1"
func extractSensorID(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) >= 2 {
		return parts[1]
	}
	return ""
}
