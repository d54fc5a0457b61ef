package events

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"pikoder-service/internal/config"
	"pikoder-service/internal/model"
)

type doneToken struct {
	err error
}

func (t *doneToken) Wait() bool                     { return true }
func (t *doneToken) WaitTimeout(time.Duration) bool { return true }
func (t *doneToken) Error() error                   { return t.err }
func (t *doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type published struct {
	topic   string
	qos     byte
	payload []byte
}

type fakeBroker struct {
	mu         sync.Mutex
	opts       *mqtt.ClientOptions
	connected  bool
	connectErr error
	messages   []published
}

func (b *fakeBroker) Connect() mqtt.Token {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.connected = b.connectErr == nil
	return &doneToken{err: b.connectErr}
}

func (b *fakeBroker) Disconnect(uint) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.connected = false
}

func (b *fakeBroker) IsConnected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connected
}

func (b *fakeBroker) Publish(topic string, qos byte, _ bool, payload interface{}) mqtt.Token {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages = append(b.messages, published{topic: topic, qos: qos, payload: payload.([]byte)})
	return &doneToken{}
}

func withFakeBroker(t *testing.T, broker *fakeBroker) {
	t.Helper()
	orig := newClient
	newClient = func(opts *mqtt.ClientOptions) publishClient {
		broker.opts = opts
		return broker
	}
	t.Cleanup(func() { newClient = orig })
}

func testMQTTConfig() *config.MQTTConfig {
	return &config.MQTTConfig{
		Enabled:  true,
		Broker:   "tcp://127.0.0.1:1883",
		ClientID: "bench",
		Topic:    "pikoder/events/",
		QoS:      1,
	}
}

func TestMQTTPublishesEventAsJSON(t *testing.T) {
	broker := &fakeBroker{}
	withFakeBroker(t, broker)

	pub := NewMQTTPublisher(testMQTTConfig(), zap.NewNop())
	require.NoError(t, pub.Connect())
	require.Len(t, broker.opts.Servers, 1)
	require.Contains(t, broker.opts.ClientID, "bench-")

	event := model.NewSessionEvent(model.EventLinkConnected, uuid.New(), "INFO", map[string]interface{}{"target": "COM3"})
	require.NoError(t, pub.Publish(event))

	require.Len(t, broker.messages, 1)
	msg := broker.messages[0]
	require.Equal(t, "pikoder/events/link_connected", msg.topic)
	require.Equal(t, byte(1), msg.qos)

	var decoded model.SessionEvent
	require.NoError(t, json.Unmarshal(msg.payload, &decoded))
	require.Equal(t, event.ID, decoded.ID)
	require.Equal(t, "COM3", decoded.Data["target"])
}

func TestMQTTConnectFailure(t *testing.T) {
	broker := &fakeBroker{connectErr: errors.New("refused")}
	withFakeBroker(t, broker)

	pub := NewMQTTPublisher(testMQTTConfig(), zap.NewNop())
	err := pub.Connect()
	require.ErrorContains(t, err, "refused")
	require.Error(t, pub.Publish(model.NewSessionEvent(model.EventLinkLost, uuid.Nil, "WARNING", nil)))
}

func TestMQTTForwardDrainsChannel(t *testing.T) {
	broker := &fakeBroker{}
	withFakeBroker(t, broker)

	pub := NewMQTTPublisher(testMQTTConfig(), zap.NewNop())
	require.NoError(t, pub.Connect())

	ch := make(chan model.SessionEvent, 2)
	ch <- model.NewSessionEvent(model.EventLinkConnected, uuid.Nil, "INFO", nil)
	ch <- model.NewSessionEvent(model.EventLinkDisconnected, uuid.Nil, "INFO", nil)
	close(ch)
	pub.Forward(ch)

	require.Len(t, broker.messages, 2)
	require.Equal(t, "pikoder/events/link_disconnected", broker.messages[1].topic)

	pub.Disconnect()
	require.False(t, broker.IsConnected())
}
