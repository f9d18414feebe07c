package plan

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func mqttTestConfig() *Config {
	url := "http://scanner.local/rooms/office"
	return &Config{
		Sources: []SourceConfig{
			{ID: "kitchen", Topic: "scans/kitchen"},
			{ID: "office", ApiURL: &url},
			{ID: "bath", Topic: "scans/bath"},
		},
	}
}

type receivedSnapshot struct {
	source string
	room   *Room
	err    error
}

func collectingHandler() (MessageHandler, func() []receivedSnapshot) {
	var mu sync.Mutex
	var got []receivedSnapshot
	handler := func(sourceID string, room *Room, err error) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, receivedSnapshot{sourceID, room, err})
	}
	return handler, func() []receivedSnapshot {
		mu.Lock()
		defer mu.Unlock()
		return append([]receivedSnapshot(nil), got...)
	}
}

func TestMQTTClient_SubscribesToTopicSources(t *testing.T) {
	mock := NewMockClient()
	mock.SetConnected(true)
	c := NewMQTTClientWithMock(mock, mqttTestConfig(), nil)

	c.Subscribe()

	subs := mock.Subscriptions()
	if len(subs) != 2 {
		t.Fatalf("subscriptions = %v, want 2 topics", subs)
	}
	for _, topic := range []string{"scans/kitchen", "scans/bath"} {
		if qos, ok := subs[topic]; !ok || qos != 1 {
			t.Errorf("topic %s: subscribed=%v qos=%d", topic, ok, qos)
		}
	}
	if !c.IsConnected() {
		t.Error("client should be marked connected after subscribe")
	}
}

func TestMQTTClient_DeliversDecodedSnapshots(t *testing.T) {
	mock := NewMockClient()
	mock.SetConnected(true)
	handler, received := collectingHandler()
	c := NewMQTTClientWithMock(mock, mqttTestConfig(), handler)
	c.Subscribe()

	mock.SimulateMessage("scans/kitchen", []byte(sampleRoomJSON))
	mock.SimulateMessage("scans/bath", zlibBytes(t, []byte(sampleRoomJSON)))
	mock.SimulateMessage("scans/unknown", []byte(sampleRoomJSON))

	got := received()
	if len(got) != 2 {
		t.Fatalf("received %d snapshots, want 2", len(got))
	}
	if got[0].source != "kitchen" || got[0].err != nil || got[0].room.Name != "study" {
		t.Errorf("first snapshot = %+v", got[0])
	}
	if got[1].source != "bath" || got[1].err != nil || len(got[1].room.Walls) != 2 {
		t.Errorf("compressed snapshot = %+v", got[1])
	}
}

func TestMQTTClient_ReportsDecodeErrors(t *testing.T) {
	mock := NewMockClient()
	mock.SetConnected(true)
	handler, received := collectingHandler()
	c := NewMQTTClientWithMock(mock, mqttTestConfig(), handler)
	c.Subscribe()

	mock.SimulateMessage("scans/kitchen", []byte("{broken"))

	got := received()
	if len(got) != 1 {
		t.Fatalf("received %d callbacks, want 1", len(got))
	}
	if got[0].err == nil || got[0].room != nil {
		t.Errorf("expected decode error with nil room, got %+v", got[0])
	}
}

func TestMQTTClient_SubscribeErrorIsLogged(t *testing.T) {
	mock := NewMockClient()
	mock.SetConnected(true)
	mock.SetSubscribeError(errors.New("not authorized"))
	c := NewMQTTClientWithMock(mock, mqttTestConfig(), nil)

	c.Subscribe()

	if len(mock.Subscriptions()) != 0 {
		t.Error("failed subscriptions should not be recorded")
	}
}

func TestMQTTClient_GetSourceByTopic(t *testing.T) {
	c := NewMQTTClientWithMock(NewMockClient(), mqttTestConfig(), nil)

	if id, ok := c.GetSourceByTopic("scans/bath"); !ok || id != "bath" {
		t.Errorf("GetSourceByTopic(scans/bath) = %q, %v", id, ok)
	}
	if _, ok := c.GetSourceByTopic("scans/garage"); ok {
		t.Error("unknown topic should not resolve")
	}
}

func TestMQTTClient_Disconnect(t *testing.T) {
	mock := NewMockClient()
	mock.SetConnected(true)
	c := NewMQTTClientWithMock(mock, nil, nil)
	c.Subscribe()

	c.Disconnect()
	if c.IsConnected() || mock.IsConnected() {
		t.Error("Disconnect should close the connection")
	}
	if c.GetClient() != mock {
		t.Error("GetClient should return the wrapped client")
	}
}

func TestInitMQTT_DisabledWithoutBroker(t *testing.T) {
	t.Setenv("MQTT_BROKER", "")

	c, err := InitMQTT(&Config{}, nil)
	if err != nil {
		t.Fatalf("InitMQTT() error = %v", err)
	}
	if c != nil {
		t.Error("InitMQTT should return nil when no broker is configured")
	}

	c, err = InitMQTT(nil, nil)
	if err != nil || c != nil {
		t.Errorf("InitMQTT(nil) = %v, %v", c, err)
	}
}

func TestMQTTClient_DisconnectStopsConnectRetries(t *testing.T) {
	mock := NewMockClient()
	mock.SetConnectError(errors.New("connection refused"))
	c := NewMQTTClientWithMock(mock, mqttTestConfig(), nil)

	done := make(chan struct{})
	go func() {
		c.connectWithRetry()
		close(done)
	}()

	c.Disconnect()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("connectWithRetry kept running after Disconnect")
	}
	if c.IsConnected() {
		t.Error("client should not be connected")
	}
	c.Disconnect() // second call is a no-op
}
