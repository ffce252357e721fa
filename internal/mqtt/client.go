// Package mqtt wraps the paho client used for sensor input, state publishing and
// remote commands.
package mqtt

import (
	"errors"
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/rewired-gh/postureguard/internal/logger"
)

const defaultTimeout = 5 * time.Second

// Config holds broker connection settings.
type Config struct {
	Broker   string
	ClientID string
	Username string
	Password string
	Timeout  time.Duration
}

// MessageHandler handles one message. Errors are logged, not propagated.
type MessageHandler func(topic string, payload []byte) error

// Client is a connected MQTT client.
type Client struct {
	client  paho.Client
	timeout time.Duration
}

// Options builds paho client options from cfg.
func Options(cfg Config) *paho.ClientOptions {
	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetCleanSession(true).
		SetConnectTimeout(timeoutOrDefault(cfg.Timeout))
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	return opts
}

// Connect dials the broker and waits for the connection to be acknowledged.
func Connect(cfg Config) (*Client, error) {
	if cfg.Broker == "" {
		return nil, errors.New("mqtt broker is required")
	}
	timeout := timeoutOrDefault(cfg.Timeout)
	client := paho.NewClient(Options(cfg))

	token := client.Connect()
	if !token.WaitTimeout(timeout) {
		return nil, fmt.Errorf("timed out connecting to MQTT broker %s", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", err)
	}
	return &Client{client: client, timeout: timeout}, nil
}

// Subscribe registers handler for topic.
func (c *Client) Subscribe(topic string, qos byte, handler MessageHandler) error {
	token := c.client.Subscribe(topic, qos, func(_ paho.Client, msg paho.Message) {
		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			logger.Warn("Error handling MQTT message on %s: %v", msg.Topic(), err)
		}
	})
	if err := c.wait(token); err != nil {
		return fmt.Errorf("failed to subscribe to topic %s: %w", topic, err)
	}
	return nil
}

// Publish sends payload to topic.
func (c *Client) Publish(topic string, qos byte, retained bool, payload []byte) error {
	if err := c.wait(c.client.Publish(topic, qos, retained, payload)); err != nil {
		return fmt.Errorf("failed to publish to topic %s: %w", topic, err)
	}
	return nil
}

func (c *Client) Unsubscribe(topics ...string) error {
	if err := c.wait(c.client.Unsubscribe(topics...)); err != nil {
		return fmt.Errorf("failed to unsubscribe: %w", err)
	}
	return nil
}

func (c *Client) Disconnect() {
	c.client.Disconnect(250)
}

func (c *Client) IsConnected() bool {
	return c.client.IsConnected()
}

func (c *Client) wait(token paho.Token) error {
	if !token.WaitTimeout(c.timeout) {
		return errors.New("timed out")
	}
	return token.Error()
}

func timeoutOrDefault(d time.Duration) time.Duration {
	if d <= 0 {
		return defaultTimeout
	}
	return d
}
