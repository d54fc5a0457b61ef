// internal/events/mqtt.go
package events

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"pikoder-service/internal/config"
	"pikoder-service/internal/model"
)

const publishTimeout = 5 * time.Second

// publishClient is the part of mqtt.Client the publisher needs
type publishClient interface {
	Connect() mqtt.Token
	Disconnect(quiesce uint)
	IsConnected() bool
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// newClient is replaced in tests
var newClient = func(opts *mqtt.ClientOptions) publishClient {
	return mqtt.NewClient(opts)
}

// MQTTPublisher mirrors session events to an MQTT broker, one topic per
// event type below the configured root topic.
type MQTTPublisher struct {
	config *config.MQTTConfig
	client publishClient
	logger *zap.Logger
}

// NewMQTTPublisher creates a disconnected publisher
func NewMQTTPublisher(cfg *config.MQTTConfig, logger *zap.Logger) *MQTTPublisher {
	return &MQTTPublisher{
		config: cfg,
		logger: logger.With(zap.String("component", "mqtt"), zap.String("broker", cfg.Broker)),
	}
}

// Connect establishes the broker connection
func (mp *MQTTPublisher) Connect() error {
	if mp.client != nil && mp.client.IsConnected() {
		return nil
	}

	randomID := make([]byte, 4)
	_, _ = rand.Read(randomID)

	clientID := mp.config.ClientID
	if clientID == "" {
		clientID = "pikoder-service"
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(mp.config.Broker)
	opts.SetUsername(mp.config.Username)
	opts.SetPassword(mp.config.Password)
	opts.SetClientID(fmt.Sprintf("%s-%x", clientID, randomID))
	opts.SetAutoReconnect(true)
	opts.SetOrderMatters(false)

	mp.client = newClient(opts)

	token := mp.client.Connect()
	if !token.WaitTimeout(publishTimeout) {
		return errors.New("timed out connecting to MQTT broker")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to connect MQTT: %w", err)
	}

	mp.logger.Info("Connected to MQTT broker")
	return nil
}

// Topic returns the topic an event type is published on
func (mp *MQTTPublisher) Topic(eventType model.EventType) string {
	return strings.TrimSuffix(mp.config.Topic, "/") + "/" + strings.ToLower(string(eventType))
}

// Publish sends one event as JSON
func (mp *MQTTPublisher) Publish(event model.SessionEvent) error {
	if mp.client == nil || !mp.client.IsConnected() {
		return errors.New("connection is not established")
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshalling error: %w", err)
	}

	token := mp.client.Publish(mp.Topic(event.EventType), mp.config.QoS, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		return errors.New("timed out publishing event")
	}
	return token.Error()
}

// Forward publishes every event received on ch until it is closed
func (mp *MQTTPublisher) Forward(ch <-chan model.SessionEvent) {
	for event := range ch {
		if err := mp.Publish(event); err != nil {
			mp.logger.Warn("Failed to publish event",
				zap.String("event_type", string(event.EventType)),
				zap.Error(err),
			)
		}
	}
}

// Disconnect closes the broker connection
func (mp *MQTTPublisher) Disconnect() {
	if mp.client != nil && mp.client.IsConnected() {
		mp.client.Disconnect(1000)
		mp.logger.Info("Disconnected from MQTT broker")
	}
}
