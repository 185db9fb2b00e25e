package mqtt

import (
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
)

// DefaultOutboxSize is how many system events are kept while disconnected.
const DefaultOutboxSize = 64

// Options configures a RealClient.
type Options struct {
	Broker   string
	ClientID string

	// OnCommand receives payloads from the command topic. Optional.
	OnCommand CommandHandler

	// OutboxSize bounds the messages kept while disconnected
	// (default DefaultOutboxSize).
	OutboxSize int

	Log zerolog.Logger
}

// RealClient talks to an actual MQTT broker. It connects in the background
// and keeps retrying; events published while offline are held in an outbox
// and sent once the connection is up.
type RealClient struct {
	client   paho.Client
	clientID string
	onCmd    CommandHandler
	log      zerolog.Logger

	mu        sync.Mutex
	outbox    *outbox
	connected bool
	everUp    bool
}

// NewRealClient creates a client and starts connecting to the broker. It
// does not wait for the connection.
func NewRealClient(opts Options) *RealClient {
	if opts.ClientID == "" {
		opts.ClientID = DefaultClientID
	}
	if opts.OutboxSize <= 0 {
		opts.OutboxSize = DefaultOutboxSize
	}

	c := &RealClient{
		clientID: opts.ClientID,
		onCmd:    opts.OnCommand,
		log:      opts.Log.With().Str("component", "mqtt").Logger(),
		outbox:   newOutbox(opts.OutboxSize),
	}

	po := paho.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetOrderMatters(false).
		SetBinaryWill(TopicSystem(opts.ClientID), willPayload(time.Now()), 1, true).
		SetOnConnectHandler(c.onConnect).
		SetConnectionLostHandler(c.onConnectionLost)

	c.client = paho.NewClient(po)
	c.client.Connect()
	return c
}

func (c *RealClient) onConnect(client paho.Client) {
	c.mu.Lock()
	c.connected = true
	reconnect := c.everUp
	c.everUp = true
	pending := c.outbox.drain()
	c.mu.Unlock()

	c.log.Info().Bool("reconnect", reconnect).Int("replay", len(pending)).Msg("connected to broker")

	if c.onCmd != nil {
		topic := TopicCommand(c.clientID)
		client.Subscribe(topic, 1, func(_ paho.Client, msg paho.Message) {
			c.onCmd(msg.Payload())
		})
		c.log.Info().Str("topic", topic).Msg("subscribed to commands")
	}

	if reconnect {
		// The broker may have published our will; replace the retained
		// message so subscribers see we are back.
		payload, _ := FormatSystemPayload(SystemEvent{Timestamp: time.Now(), Event: "RECONNECTED"})
		client.Publish(TopicSystem(c.clientID), 1, true, payload)
	}
	for _, m := range pending {
		client.Publish(m.topic, m.qos, m.retained, m.payload)
	}
}

func (c *RealClient) onConnectionLost(_ paho.Client, err error) {
	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()
	c.log.Warn().Err(err).Msg("connection to broker lost")
}

// PublishSystem sends a system lifecycle event to the MQTT broker. While
// disconnected the event is queued instead.
func (c *RealClient) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	msg := pendingMsg{topic: TopicSystem(c.clientID), payload: payload, qos: 1, retained: event.Retained}

	c.mu.Lock()
	if !c.connected {
		if c.outbox.push(msg) {
			c.log.Warn().Int("capacity", len(c.outbox.buf)).Msg("outbox full, dropping oldest event")
		}
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	// QoS 1 (at-least-once) - system events should be delivered
	token := c.client.Publish(msg.topic, msg.qos, msg.retained, msg.payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish system timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish system: %w", err)
	}
	return nil
}

// IsConnected reports whether the client currently has a broker connection.
func (c *RealClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Pending returns the number of events waiting in the outbox.
func (c *RealClient) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.outbox.len()
}

// Close disconnects from the broker.
func (c *RealClient) Close() error {
	c.client.Disconnect(1000) // 1 second quiesce
	return nil
}
