package plan

import (
	"log"
	"os"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MQTTClient manages the broker connection, snapshot subscriptions and the
// client used for publishing plans.
type MQTTClient struct {
	client         mqtt.Client
	config         *Config
	messageHandler MessageHandler
	isConnected    bool
	mu             sync.RWMutex

	stop     chan struct{}
	stopOnce sync.Once
}

// MessageHandler is called when a room snapshot arrives on a source topic.
// room is nil when the payload could not be decoded.
type MessageHandler func(sourceID string, room *Room, err error)

// setting resolves one connection setting: the environment wins over the
// config file, which wins over fallback.
func setting(envKey, configured, fallback string) string {
	if v := os.Getenv(envKey); v != "" {
		return v
	}
	if configured != "" {
		return configured
	}
	return fallback
}

// InitMQTT creates the MQTT client and starts connecting in the background.
// The broker comes from MQTT_BROKER or the config; when neither is set MQTT
// is disabled and this returns nil, nil.
func InitMQTT(config *Config, handler MessageHandler) (*MQTTClient, error) {
	if config == nil {
		config = &Config{}
	}

	broker := setting("MQTT_BROKER", config.MQTT.Broker, "")
	if broker == "" {
		log.Println("MQTT disabled: MQTT_BROKER not set")
		return nil, nil
	}

	c := &MQTTClient{
		config:         config,
		messageHandler: handler,
		stop:           make(chan struct{}),
	}
	c.client = mqtt.NewClient(c.clientOptions(broker))

	go c.connectWithRetry()

	return c, nil
}

func (c *MQTTClient) clientOptions(broker string) *mqtt.ClientOptions {
	cfg := c.config.MQTT
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(setting("MQTT_CLIENT_ID", cfg.ClientID, "roomplan"))

	if username := setting("MQTT_USERNAME", cfg.Username, ""); username != "" {
		opts.SetUsername(username)
		opts.SetPassword(setting("MQTT_PASSWORD", cfg.Password, ""))
	}

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetCleanSession(false) // Preserve subscriptions on reconnect
	opts.SetOrderMatters(true)  // Snapshots for one room must apply in arrival order

	opts.SetOnConnectHandler(c.onConnect)
	opts.SetConnectionLostHandler(c.onConnectionLost)
	opts.SetReconnectingHandler(func(mqtt.Client, *mqtt.ClientOptions) {
		log.Println("MQTT reconnecting...")
	})
	return opts
}

// connectWithRetry connects with exponential backoff until it succeeds or
// Disconnect is called.
func (c *MQTTClient) connectWithRetry() {
	delay := time.Second
	const maxDelay = time.Minute

	for {
		log.Println("Connecting to MQTT broker...")
		token := c.client.Connect()
		switch {
		case !token.WaitTimeout(10 * time.Second):
			log.Println("MQTT connection timeout")
		case token.Error() != nil:
			log.Printf("MQTT connection failed: %v", token.Error())
		default:
			log.Println("Successfully connected to MQTT broker")
			c.setConnected(true)
			return
		}

		log.Printf("Retrying MQTT connection in %v...", delay)
		select {
		case <-c.stop:
			return
		case <-time.After(delay):
		}
		delay = min(delay*2, maxDelay)
	}
}

// onConnect subscribes to every source that publishes over MQTT. It runs
// again after each reconnect.
func (c *MQTTClient) onConnect(client mqtt.Client) {
	log.Println("MQTT connected, subscribing to room sources...")
	c.setConnected(true)

	filters := make(map[string]byte)
	for _, src := range c.config.Sources {
		if src.Topic != "" {
			filters[src.Topic] = 1
		}
	}
	if len(filters) == 0 {
		log.Println("Warning: no sources with an MQTT topic configured")
		return
	}

	token := client.SubscribeMultiple(filters, c.handleMessage)
	if token.WaitTimeout(5*time.Second) && token.Error() != nil {
		log.Printf("Error subscribing to room sources: %v", token.Error())
		return
	}
	log.Printf("Subscribed to %d source topic(s)", len(filters))
}

// onConnectionLost is called when the MQTT connection is lost
// Auto-reconnect is enabled, so this is typically a transient event
func (c *MQTTClient) onConnectionLost(client mqtt.Client, err error) {
	log.Printf("MQTT connection interrupted (%v), auto-reconnect will retry", err)
	c.setConnected(false)
}

// handleMessage decodes a snapshot and hands it to the message handler under
// the source ID that owns the topic.
func (c *MQTTClient) handleMessage(client mqtt.Client, msg mqtt.Message) {
	sourceID, ok := c.GetSourceByTopic(msg.Topic())
	if !ok {
		log.Printf("Warning: message on unconfigured topic %s", msg.Topic())
		return
	}

	payload := msg.Payload()
	log.Printf("Received room snapshot for %s (topic: %s, size: %d bytes)",
		sourceID, msg.Topic(), len(payload))

	room, err := DecodeRoomData(payload)
	if err != nil {
		log.Printf("Error decoding room snapshot for %s: %v", sourceID, err)
	}
	if c.messageHandler != nil {
		c.messageHandler(sourceID, room, err)
	}
}

// IsConnected returns true if the MQTT client is connected
func (c *MQTTClient) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.isConnected
}

func (c *MQTTClient) setConnected(connected bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.isConnected = connected
}

// Disconnect stops any pending connect retries and closes the connection.
func (c *MQTTClient) Disconnect() {
	c.stopOnce.Do(func() { close(c.stop) })
	if c.client != nil && c.client.IsConnected() {
		log.Println("Disconnecting from MQTT broker...")
		c.client.Disconnect(250)
	}
	c.setConnected(false)
}

// GetSourceByTopic returns the source ID subscribed to topic
func (c *MQTTClient) GetSourceByTopic(topic string) (string, bool) {
	for _, src := range c.config.Sources {
		if src.Topic == topic {
			return src.ID, true
		}
	}
	return "", false
}

// GetClient returns the underlying MQTT client for publishing
func (c *MQTTClient) GetClient() mqtt.Client {
	return c.client
}

// NewMQTTClientWithMock wraps an existing mqtt.Client, typically a
// MockClient, without starting a connection.
func NewMQTTClientWithMock(client mqtt.Client, config *Config, handler MessageHandler) *MQTTClient {
	if config == nil {
		config = &Config{}
	}
	return &MQTTClient{
		client:         client,
		config:         config,
		messageHandler: handler,
		stop:           make(chan struct{}),
	}
}

// Subscribe performs the on-connect subscriptions against the wrapped
// client. It is used with clients that were connected outside InitMQTT.
func (c *MQTTClient) Subscribe() {
	c.onConnect(c.client)
}
