package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"cloudpico-bthome/internal/config"
	"cloudpico-bthome/internal/types"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	publishTimeout      = 5 * time.Second
	retryInterval       = 5 * time.Second
	maxRetryInterval    = time.Minute
	keepAlive           = 30 * time.Second
	pingTimeout         = 10 * time.Second
	disconnectQuiesceMs = 250
)

var (
	// ErrNotConnected is returned by publishes while the broker is unreachable.
	ErrNotConnected = errors.New("mqtt client not connected")
	// ErrStopped is returned by Connect after Disconnect.
	ErrStopped = errors.New("mqtt client stopped")
)

// Client publishes relay telemetry. paho reconnects on its own; Client
// tracks the connection state its handlers report.
type Client struct {
	client    mqtt.Client
	logger    *slog.Logger
	mu        sync.RWMutex
	connected bool

	stopCh   chan struct{}
	stopOnce sync.Once
}

func NewClient(cfg config.Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		logger: logger.With("broker", cfg.MQTTBroker, "port", cfg.MQTTPort),
		stopCh: make(chan struct{}),
	}
	c.client = mqtt.NewClient(c.options(cfg))
	return c
}

func (c *Client) options(cfg config.Config) *mqtt.ClientOptions {
	return mqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.MQTTBroker, cfg.MQTTPort)).
		SetClientID(cfg.MQTTClientID).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(retryInterval).
		SetMaxReconnectInterval(maxRetryInterval).
		SetKeepAlive(keepAlive).
		SetPingTimeout(pingTimeout).
		SetOnConnectHandler(func(mqtt.Client) {
			c.setConnected(true)
			c.logger.Info("mqtt connected")
		}).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			c.setConnected(false)
			c.logger.Warn("mqtt connection lost", "error", err)
		})
}

// Connect blocks until the first connection succeeds, ctx ends or the
// client is stopped. paho keeps retrying in the background meanwhile.
func (c *Client) Connect(ctx context.Context) error {
	select {
	case <-c.stopCh:
		return ErrStopped
	default:
	}
	if c.IsConnected() {
		return nil
	}

	token := c.client.Connect()
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("mqtt connect: %w", err)
		}
		c.setConnected(true)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.stopCh:
		return ErrStopped
	}
}

// TelemetryTopic is the topic telemetry for stationID is published on.
func TelemetryTopic(stationID string) string {
	return fmt.Sprintf("stations/%s/telemetry", stationID)
}

// HealthTopic is the retained last-seen topic for stationID.
func HealthTopic(stationID string) string {
	return fmt.Sprintf("stations/%s/health", stationID)
}

// PublishTelemetry sends t to TelemetryTopic(t.StationID) at QoS 1. A zero
// timestamp is replaced with the current time.
func (c *Client) PublishTelemetry(telemetry types.Telemetry) error {
	if telemetry.Timestamp.IsZero() {
		telemetry.Timestamp = time.Now()
	}
	return c.publish(TelemetryTopic(telemetry.StationID), false, telemetry)
}

// PublishStationHealth publishes station last-seen state as a retained message.
func (c *Client) PublishStationHealth(health types.StationHealth) error {
	return c.publish(HealthTopic(health.StationID), true, health)
}

func (c *Client) publish(topic string, retained bool, v any) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", topic, err)
	}

	token := c.client.Publish(topic, 1, retained, data)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish timeout for topic %s", topic)
	}
	if err := token.Error(); err != nil {
		c.logger.Error("failed to publish", "topic", topic, "error", err)
		return fmt.Errorf("publish %s: %w", topic, err)
	}

	c.logger.Debug("published", "topic", topic, "bytes", len(data))
	return nil
}

func (c *Client) IsConnected() bool {
	c.mu.RLock()
	connected := c.connected
	c.mu.RUnlock()
	return connected && c.client.IsConnected()
}

// Disconnect closes the connection and makes Connect return ErrStopped.
// It may be called more than once.
func (c *Client) Disconnect() {
	c.stopOnce.Do(func() { close(c.stopCh) })

	if c.client != nil {
		c.client.Disconnect(disconnectQuiesceMs)
	}

	c.setConnected(false)
	c.logger.Info("mqtt disconnected")
}

func (c *Client) setConnected(v bool) {
	c.mu.Lock()
	c.connected = v
	c.mu.Unlock()
}
