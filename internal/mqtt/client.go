package mqtt

import (
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"
)

// Client manages the MQTT connection (low-level connection management only)
// For subscribing and publishing, use Subscriber and Publisher respectively
type Client struct {
	client mqtt.Client
	config ClientConfig

	mu          sync.Mutex
	connected   bool
	reconnectFn []func(mqtt.Client)
}

// ClientConfig holds MQTT client configuration
type ClientConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string
}

// NewClient creates a new MQTT client connection
func NewClient(config ClientConfig) (*Client, error) {
	c := &Client{config: config}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(config.Broker)
	opts.SetClientID(config.ClientID)
	opts.SetUsername(config.Username)
	opts.SetPassword(config.Password)
	opts.SetDefaultPublishHandler(messagePubHandler)
	opts.SetOnConnectHandler(c.handleConnect)
	opts.SetConnectionLostHandler(connectLostHandler)
	opts.SetAutoReconnect(true)
	// The detector window is stateful per sensor: data points must be
	// handled one at a time in arrival order.
	opts.SetOrderMatters(true)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	c.client = mqtt.NewClient(opts)

	if token := c.client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	log.Println("MQTT Client: Connected to broker:", config.Broker)

	return c, nil
}

// OnReconnect registers fn to run every time the connection is re-established
// after a loss. Subscriptions of a clean session are gone by then, so
// subscribers use this to subscribe again.
func (c *Client) OnReconnect(fn func(mqtt.Client)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reconnectFn = append(c.reconnectFn, fn)
}

// handleConnect runs in its own goroutine for every successful connect
func (c *Client) handleConnect(client mqtt.Client) {
	c.mu.Lock()
	first := !c.connected
	c.connected = true
	hooks := append([]func(mqtt.Client){}, c.reconnectFn...)
	c.mu.Unlock()

	if first {
		log.Println("MQTT: Connection established")
		return
	}

	log.Printf("MQTT: Reconnected, running %d hooks", len(hooks))
	for _, fn := range hooks {
		fn(client)
	}
}

// GetNativeClient returns the underlying paho MQTT client
// This is used by Subscriber and Publisher
func (c *Client) GetNativeClient() mqtt.Client {
	return c.client
}

// IsConnected returns whether the client is currently connected
func (c *Client) IsConnected() bool {
	return c.client.IsConnected()
}

// Close closes the MQTT client connection
func (c *Client) Close() {
	c.client.Disconnect(250)
	log.Println("MQTT Client: Disconnected")
}

var messagePubHandler mqtt.MessageHandler = func(client mqtt.Client, msg mqtt.Message) {
	log.Debugf("MQTT: Unrouted message on topic: %s", msg.Topic())
}

var connectLostHandler mqtt.ConnectionLostHandler = func(client mqtt.Client, err error) {
	log.Warnf("MQTT: Connection lost, data points are dropped until reconnect: %v", err)
}
