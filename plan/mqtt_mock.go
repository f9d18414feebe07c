package plan

import (
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MockToken is an mqtt.Token that is already complete.
type MockToken struct {
	err error
}

// NewMockToken returns a completed token carrying err.
func NewMockToken(err error) *MockToken {
	return &MockToken{err: err}
}

func (t *MockToken) Wait() bool                     { return true }
func (t *MockToken) WaitTimeout(time.Duration) bool { return true }
func (t *MockToken) Error() error                   { return t.err }

func (t *MockToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

// MockMessage is a message recorded by MockClient.Publish.
type MockMessage struct {
	Topic   string
	Payload []byte
	QoS     byte
	Retain  bool
}

type mockSubscription struct {
	qos     byte
	handler mqtt.MessageHandler
}

// MockClient is an in-memory mqtt.Client. Publishes are recorded and
// SimulateMessage delivers to matching subscriptions, wildcards included.
type MockClient struct {
	mu        sync.RWMutex
	connected bool
	subs      map[string]mockSubscription
	published []MockMessage

	connectErr   error
	publishErr   error
	subscribeErr error
}

// NewMockClient returns a disconnected mock.
func NewMockClient() *MockClient {
	return &MockClient{subs: make(map[string]mockSubscription)}
}

func (c *MockClient) locked(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn()
}

// SetConnected forces the connection state.
func (c *MockClient) SetConnected(connected bool) { c.locked(func() { c.connected = connected }) }

// SetConnectError makes Connect fail with err.
func (c *MockClient) SetConnectError(err error) { c.locked(func() { c.connectErr = err }) }

// SetPublishError makes Publish fail with err.
func (c *MockClient) SetPublishError(err error) { c.locked(func() { c.publishErr = err }) }

// SetSubscribeError makes Subscribe fail with err.
func (c *MockClient) SetSubscribeError(err error) { c.locked(func() { c.subscribeErr = err }) }

// GetPublishedMessages returns a copy of everything published so far.
func (c *MockClient) GetPublishedMessages() []MockMessage {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]MockMessage(nil), c.published...)
}

// MessagesOn returns the messages published to one topic, oldest first.
func (c *MockClient) MessagesOn(topic string) []MockMessage {
	var out []MockMessage
	for _, m := range c.GetPublishedMessages() {
		if m.Topic == topic {
			out = append(out, m)
		}
	}
	return out
}

// Subscriptions returns the subscribed filters and their QoS.
func (c *MockClient) Subscriptions() map[string]byte {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]byte, len(c.subs))
	for filter, s := range c.subs {
		out[filter] = s.qos
	}
	return out
}

// SimulateMessage delivers payload synchronously to every subscription whose
// filter matches topic.
func (c *MockClient) SimulateMessage(topic string, payload []byte) {
	c.mu.RLock()
	var matched []mockSubscription
	for filter, s := range c.subs {
		if s.handler != nil && topicMatches(filter, topic) {
			matched = append(matched, s)
		}
	}
	c.mu.RUnlock()

	for _, s := range matched {
		s.handler(c, &mockMessage{topic: topic, payload: payload, qos: s.qos})
	}
}

// topicMatches reports whether an MQTT topic filter covers topic.
func topicMatches(filter, topic string) bool {
	fs := strings.Split(filter, "/")
	ts := strings.Split(topic, "/")
	for i, f := range fs {
		if f == "#" {
			return true
		}
		if i >= len(ts) || (f != "+" && f != ts[i]) {
			return false
		}
	}
	return len(fs) == len(ts)
}

func (c *MockClient) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

func (c *MockClient) IsConnectionOpen() bool { return c.IsConnected() }

func (c *MockClient) Connect() mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = c.connectErr == nil
	return NewMockToken(c.connectErr)
}

func (c *MockClient) Disconnect(uint) { c.SetConnected(false) }

func (c *MockClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case !c.connected:
		return NewMockToken(mqtt.ErrNotConnected)
	case c.publishErr != nil:
		return NewMockToken(c.publishErr)
	}

	msg := MockMessage{Topic: topic, QoS: qos, Retain: retained}
	switch v := payload.(type) {
	case []byte:
		msg.Payload = v
	case string:
		msg.Payload = []byte(v)
	}
	c.published = append(c.published, msg)
	return NewMockToken(nil)
}

func (c *MockClient) Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token {
	return c.SubscribeMultiple(map[string]byte{topic: qos}, callback)
}

// SubscribeMultiple registers every filter or none.
func (c *MockClient) SubscribeMultiple(filters map[string]byte, callback mqtt.MessageHandler) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case !c.connected:
		return NewMockToken(mqtt.ErrNotConnected)
	case c.subscribeErr != nil:
		return NewMockToken(c.subscribeErr)
	}
	for filter, qos := range filters {
		c.subs[filter] = mockSubscription{qos: qos, handler: callback}
	}
	return NewMockToken(nil)
}

func (c *MockClient) Unsubscribe(topics ...string) mqtt.Token {
	c.locked(func() {
		for _, topic := range topics {
			delete(c.subs, topic)
		}
	})
	return NewMockToken(nil)
}

func (c *MockClient) AddRoute(topic string, callback mqtt.MessageHandler) {
	c.locked(func() {
		s := c.subs[topic]
		s.handler = callback
		c.subs[topic] = s
	})
}

func (c *MockClient) OptionsReader() mqtt.ClientOptionsReader {
	return mqtt.ClientOptionsReader{}
}

type mockMessage struct {
	topic   string
	payload []byte
	qos     byte
}

func (m *mockMessage) Duplicate() bool   { return false }
func (m *mockMessage) Qos() byte         { return m.qos }
func (m *mockMessage) Retained() bool    { return false }
func (m *mockMessage) Topic() string     { return m.topic }
func (m *mockMessage) MessageID() uint16 { return 0 }
func (m *mockMessage) Payload() []byte   { return m.payload }
func (m *mockMessage) Ack()              {}
