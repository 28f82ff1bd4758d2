// Package broker wraps the MQTT publish/subscribe transport that every
// listener and the reconciler use to talk to switchboards, guards, and
// plugs. It decouples the rest of the system from the concrete client
// library the same way pkg/miner decouples discovery from firmware clients:
// callers depend on Publisher/Subscriber, never on *mqtt.Client directly, so
// tests can substitute a fake.
package broker

import (
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Message is a single inbound publish: the topic it arrived on and its
// raw payload. Listeners parse the payload according to the topic shape.
type Message struct {
	Topic   string
	Payload []byte
}

// Publisher abstracts outbound publishes. Every reconciler command (guard
// resets, state-report requests, plug cut-off/enable) goes through this
// interface so a test can record commands without a live broker.
type Publisher interface {
	Publish(topic string, payload string) error
}

// Subscriber abstracts topic subscription with a per-message callback.
type Subscriber interface {
	Subscribe(topic string, handler func(Message)) error
	Unsubscribe(topic string) error
}

// Client is a Publisher and Subscriber backed by a real paho MQTT
// connection, plus lifecycle management (Connect/Disconnect).
type Client struct {
	inner mqtt.Client
}

// Options configures a broker connection: host/port/credentials and the
// client id used in the CONNECT packet, mirroring get_mqtt_options's use of
// a distinct client id per logical worker (announce loop, switchboard loop,
// guards loop, and so on) so the broker can tell workers apart.
type Options struct {
	Host     string
	Port     int
	User     string
	Password string
	ClientID string
	KeepAlive time.Duration
}

// NewClient opens a connection using the given options. The returned
// Client does not automatically reconnect topic subscriptions after a
// connection loss; paho's AutoReconnect resumes the TCP session but
// resubscription is the caller's responsibility, consistent with the
// original system's one-shot subscribe pass at start-up.
func NewClient(opts Options) (*Client, error) {
	broker := fmt.Sprintf("tcp://%s:%d", opts.Host, opts.Port)
	o := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(opts.ClientID).
		SetUsername(opts.User).
		SetPassword(opts.Password).
		SetAutoReconnect(true).
		SetCleanSession(true)

	if opts.KeepAlive > 0 {
		o.SetKeepAlive(opts.KeepAlive)
	} else {
		o.SetKeepAlive(60 * time.Second)
	}

	c := mqtt.NewClient(o)
	if token := c.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("broker: connect to %s as %q: %w", broker, opts.ClientID, token.Error())
	}
	return &Client{inner: c}, nil
}

// Publish sends payload to topic at QoS 2 (exactly-once), matching every
// publish call in the original guard/plug command protocol.
func (c *Client) Publish(topic string, payload string) error {
	token := c.inner.Publish(topic, 2, false, payload)
	token.Wait()
	return token.Error()
}

// Subscribe registers handler for every message on topic at QoS 2.
func (c *Client) Subscribe(topic string, handler func(Message)) error {
	token := c.inner.Subscribe(topic, 2, func(_ mqtt.Client, m mqtt.Message) {
		handler(Message{Topic: m.Topic(), Payload: m.Payload()})
	})
	token.Wait()
	return token.Error()
}

// Unsubscribe removes a prior subscription, used when a user Exclude
// command takes a miner and its plug out of service.
func (c *Client) Unsubscribe(topic string) error {
	token := c.inner.Unsubscribe(topic)
	token.Wait()
	return token.Error()
}

// Disconnect closes the connection gracefully, waiting up to quiesce for
// in-flight work to settle.
func (c *Client) Disconnect(quiesce uint) {
	c.inner.Disconnect(quiesce)
}
