package mqtt

import (
	"log/slog"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

const opTimeout = 10 * time.Second

// Client wraps the Paho MQTT client. Subscriptions are restored after
// every reconnect.
type Client struct {
	client paho.Client
	broker string
	logger *slog.Logger
	mu     sync.Mutex

	subsMu sync.Mutex
	subs   map[string]paho.MessageHandler
}

// NewClient creates a new MQTT client but does not connect.
func NewClient(broker, clientID string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		broker: broker,
		logger: logger,
		subs:   make(map[string]paho.MessageHandler),
	}
	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetKeepAlive(30 * time.Second).
		SetOnConnectHandler(c.onConnect).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			logger.Warn("mqtt connection lost", "broker", broker, "err", err)
		})
	c.client = paho.NewClient(opts)
	return c
}

func (c *Client) onConnect(pc paho.Client) {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	c.logger.Info("mqtt connected", "broker", c.broker, "subscriptions", len(c.subs))
	for topic, h := range c.subs {
		// Called on paho's callback goroutine: do not wait on the token.
		pc.Subscribe(topic, 1, h)
	}
}

func (c *Client) Broker() string { return c.broker }

// Connect attempts to connect to the broker without blocking indefinitely.
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	token := c.client.Connect()
	if !token.WaitTimeout(opTimeout) {
		return &TimeoutError{Op: "connect"}
	}
	return token.Error()
}

// Subscribe delivers every message on topic to fn.
func (c *Client) Subscribe(topic string, fn func(topic string, payload []byte)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	h := func(_ paho.Client, msg paho.Message) {
		fn(msg.Topic(), msg.Payload())
	}
	c.subsMu.Lock()
	c.subs[topic] = h
	c.subsMu.Unlock()

	token := c.client.Subscribe(topic, 1, h)
	if !token.WaitTimeout(opTimeout) {
		return &TimeoutError{Op: "subscribe", Topic: topic}
	}
	return token.Error()
}

// Publish sends payload at QoS 1.
func (c *Client) Publish(topic string, retained bool, payload []byte) error {
	token := c.client.Publish(topic, 1, retained, payload)
	if !token.WaitTimeout(opTimeout) {
		return &TimeoutError{Op: "publish", Topic: topic}
	}
	return token.Error()
}

// Disconnect cleanly disconnects from the broker.
func (c *Client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.client.Disconnect(1000)
}

func (c *Client) IsConnected() bool {
	return c.client.IsConnected()
}

// TimeoutError is returned when the broker does not acknowledge in time.
type TimeoutError struct {
	Op    string
	Topic string
}

func (e *TimeoutError) Error() string {
	if e.Topic == "" {
		return "mqtt " + e.Op + " timeout"
	}
	return "mqtt " + e.Op + " timeout: " + e.Topic
}
