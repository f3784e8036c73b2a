package mqttbridge

import (
	"fmt"
	"strings"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/muurk/ucd/internal/logging"
	"go.uber.org/zap"
)

const (
	defaultConnectTimeout    = 10 * time.Second
	defaultPublishTimeout    = 5 * time.Second
	defaultDisconnectQuiesce = 1000 // milliseconds
	defaultKeepAlive         = 60 * time.Second
	defaultReconnectInterval = 2 * time.Second
	defaultMaxReconnect      = 30 * time.Second

	maxQoS = 2

	// Availability payloads on the status topic.
	PayloadOnline  = "online"
	PayloadOffline = "offline"
)

// Config holds the broker connection settings.
type Config struct {
	// Broker is a URL (tcp://host:1883, ssl://host:8883) or a bare host[:port].
	Broker   string
	ClientID string
	Username string
	Password string
	QoS      byte

	// StatusTopic receives "online" on connect and is the LWT topic.
	StatusTopic string
}

// MessageHandler receives one message. Errors are logged.
type MessageHandler func(topic string, payload []byte) error

type subscription struct {
	topic   string
	qos     byte
	handler MessageHandler
}

// Client wraps a paho client. Subscriptions are restored on reconnect and
// the status topic tracks availability.
type Client struct {
	client pahomqtt.Client
	cfg    Config

	subMu         sync.RWMutex
	subscriptions map[string]subscription

	connMu    sync.RWMutex
	connected bool
}

// BrokerURL normalizes a broker address to a URL paho accepts.
func BrokerURL(broker string) string {
	broker = strings.TrimSpace(broker)
	if strings.Contains(broker, "://") {
		return broker
	}
	if !strings.Contains(broker, ":") {
		broker += ":1883"
	}
	return "tcp://" + broker
}

// buildClientOptions creates paho options with auto-reconnect, clean
// sessions and a retained "offline" will on the status topic.
func buildClientOptions(cfg Config) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(BrokerURL(cfg.Broker))
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(defaultReconnectInterval)
	opts.SetMaxReconnectInterval(defaultMaxReconnect)
	opts.SetConnectTimeout(defaultConnectTimeout)
	opts.SetKeepAlive(defaultKeepAlive)
	// Handlers publish and wait for acks; ordered delivery would block the
	// router goroutine that processes those acks.
	opts.SetOrderMatters(false)

	if cfg.StatusTopic != "" {
		opts.SetWill(cfg.StatusTopic, PayloadOffline, cfg.QoS, true)
	}
	return opts
}

// Connect dials the broker and waits for the first connection.
func Connect(cfg Config) (*Client, error) {
	if cfg.QoS > maxQoS {
		return nil, ErrInvalidQoS
	}
	opts := buildClientOptions(cfg)

	c := &Client{
		cfg:           cfg,
		subscriptions: make(map[string]subscription),
	}
	opts.SetOnConnectHandler(func(_ pahomqtt.Client) { c.handleConnect() })
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) { c.handleDisconnect(err) })
	opts.SetReconnectingHandler(func(_ pahomqtt.Client, _ *pahomqtt.ClientOptions) {
		logging.Debug("Reconnecting to MQTT broker", zap.String("broker", BrokerURL(cfg.Broker)))
	})

	c.client = pahomqtt.NewClient(opts)
	token := c.client.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		return nil, fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, defaultConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	// The connect handler runs asynchronously.
	c.setConnected(true)
	logging.Info("Connected to MQTT broker", zap.String("broker", BrokerURL(cfg.Broker)))
	return c, nil
}

func (c *Client) handleConnect() {
	c.setConnected(true)

	c.subMu.RLock()
	for _, sub := range c.subscriptions {
		c.client.Subscribe(sub.topic, sub.qos, c.wrapHandler(sub.handler))
	}
	c.subMu.RUnlock()

	if c.cfg.StatusTopic != "" {
		c.client.Publish(c.cfg.StatusTopic, c.cfg.QoS, true, PayloadOnline)
	}
	logging.LogStateTransition("mqtt", "disconnected", "connected")
}

func (c *Client) handleDisconnect(err error) {
	c.setConnected(false)
	logging.Warn("MQTT connection lost", zap.Error(err))
}

func (c *Client) setConnected(v bool) {
	c.connMu.Lock()
	c.connected = v
	c.connMu.Unlock()
}

// IsConnected returns the last known connection state.
func (c *Client) IsConnected() bool {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.connected && c.client != nil && c.client.IsConnected()
}

// Publish sends payload to topic and waits for the acknowledgement.
func (c *Client) Publish(topic string, qos byte, retained bool, payload []byte) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	token := c.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrPublishFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	return nil
}

// Subscribe registers handler for topic, which may contain wildcards.
func (c *Client) Subscribe(topic string, qos byte, handler MessageHandler) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if handler == nil {
		return fmt.Errorf("%w: handler cannot be nil", ErrSubscribeFailed)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	c.subMu.Lock()
	c.subscriptions[topic] = subscription{topic: topic, qos: qos, handler: handler}
	c.subMu.Unlock()

	token := c.client.Subscribe(topic, qos, c.wrapHandler(handler))
	var err error
	if !token.WaitTimeout(defaultPublishTimeout) {
		err = fmt.Errorf("%w: timeout after %v", ErrSubscribeFailed, defaultPublishTimeout)
	} else if tokenErr := token.Error(); tokenErr != nil {
		err = fmt.Errorf("%w: %w", ErrSubscribeFailed, tokenErr)
	}
	if err != nil {
		c.subMu.Lock()
		delete(c.subscriptions, topic)
		c.subMu.Unlock()
	}
	return err
}

// Close publishes "offline" on the status topic and disconnects.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}
	if c.IsConnected() && c.cfg.StatusTopic != "" {
		token := c.client.Publish(c.cfg.StatusTopic, c.cfg.QoS, true, PayloadOffline)
		token.WaitTimeout(defaultPublishTimeout)
	}
	c.client.Disconnect(defaultDisconnectQuiesce)
	c.setConnected(false)
	return nil
}

// wrapHandler adds panic recovery and error logging to a handler.
func (c *Client) wrapHandler(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				logging.Error("MQTT handler panic recovered",
					zap.String("topic", msg.Topic()),
					zap.Any("panic", r),
				)
			}
		}()

		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			logging.Warn("MQTT handler returned error",
				zap.String("topic", msg.Topic()),
				zap.Error(err),
			)
		}
	}
}
