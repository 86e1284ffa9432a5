// Package transport owns the MQTT connection: subscriptions for telemetry,
// command feedback and device heartbeats, plus QoS 1 command publishing.
// Delivery is at-least-once with no cross-topic ordering; downstream
// components compensate with idempotency checks.
package transport

import (
	"crypto/tls"
	"fmt"
	"log"
	"net/url"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

// Publisher is the outbound half of the transport. The command dispatcher
// depends on this one method so tests can substitute a fake.
type Publisher interface {
	PublishCommand(deviceID, target, value string) error
}

// Handlers receives inbound messages, already split by topic kind.
type Handlers struct {
	OnTelemetry func(deviceID string, payload []byte)
	OnFeedback  func(deviceID, target, status string)
	OnStatus    func(deviceID, status string)
}

// Config carries broker connection settings.
type Config struct {
	URL      string
	Username string
	Password string
}

// Client wraps the paho client. Subscriptions are (re)established on every
// connect so a broker restart does not silence the service.
type Client struct {
	m mqtt.Client
	h Handlers
}

// connectWait bounds how long Connect blocks on the initial attempt before
// leaving the retry loop to run in the background. Var so tests can shrink it.
var connectWait = time.Second

// New builds the client without touching the network, so the message handlers
// it will eventually feed can be constructed around it before anything flows.
func New(cfg Config) *Client {
	c := &Client{}

	clientID := "iot-server-" + uuid.NewString()[:8]
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.URL).
		SetClientID(clientID).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetKeepAlive(60 * time.Second).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(2 * time.Second).
		SetOrderMatters(false).
		SetOnConnectHandler(c.onConnect).
		SetConnectionAttemptHandler(func(broker *url.URL, tlsCfg *tls.Config) *tls.Config {
			log.Printf("mqtt: connecting to %s", broker.Redacted())
			return tlsCfg
		}).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			log.Printf("mqtt: connection lost: %v", err)
		})

	c.m = mqtt.NewClient(opts)
	return c
}

// Connect binds the inbound handlers and dials the broker. Handlers must be
// bound here, before the first dial: subscriptions go live the moment the
// broker accepts, on paho's own goroutines.
//
// Configuration errors (no usable broker URL) fail the returned token quickly
// and are fatal. The broker merely being down is not: after connectWait the
// retry loop is left running in the background and each attempt is logged.
func (c *Client) Connect(h Handlers) error {
	c.h = h

	token := c.m.Connect()
	if token.WaitTimeout(connectWait) {
		if err := token.Error(); err != nil {
			return fmt.Errorf("mqtt connect: %w", err)
		}
		return nil
	}
	log.Printf("mqtt: broker not reachable yet, retrying in background")
	return nil
}

func (c *Client) onConnect(m mqtt.Client) {
	log.Printf("mqtt: connected, subscribing")

	subs := []struct {
		filter  string
		handler mqtt.MessageHandler
	}{
		{telemetryFilter, c.handleTelemetry},
		{feedbackFilter, c.handleFeedback},
		{statusFilter, c.handleStatus},
	}
	for _, s := range subs {
		if token := m.Subscribe(s.filter, 1, s.handler); token.Wait() && token.Error() != nil {
			log.Printf("mqtt: subscribe %s failed: %v", s.filter, token.Error())
		}
	}
}

func (c *Client) handleTelemetry(_ mqtt.Client, msg mqtt.Message) {
	deviceID := deviceFromTopic(msg.Topic())
	if deviceID == "" || c.h.OnTelemetry == nil {
		return
	}
	c.h.OnTelemetry(deviceID, msg.Payload())
}

func (c *Client) handleFeedback(_ mqtt.Client, msg mqtt.Message) {
	deviceID, target, ok := feedbackFromTopic(msg.Topic())
	if !ok || c.h.OnFeedback == nil {
		return
	}
	c.h.OnFeedback(deviceID, target, string(msg.Payload()))
}

func (c *Client) handleStatus(_ mqtt.Client, msg mqtt.Message) {
	deviceID := deviceFromTopic(msg.Topic())
	if deviceID == "" || c.h.OnStatus == nil {
		return
	}
	c.h.OnStatus(deviceID, string(msg.Payload()))
}

// PublishCommand publishes the literal value to the device's command topic at
// QoS 1 and waits for the broker handoff. An error here is a TransportError:
// surfaced to the caller, never retried.
func (c *Client) PublishCommand(deviceID, target, value string) error {
	topic := CommandTopic(deviceID, target)
	token := c.m.Publish(topic, 1, false, []byte(value))
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	log.Printf("mqtt: published [%s] %s", topic, value)
	return nil
}

// Connected reports broker connectivity for the health endpoint.
func (c *Client) Connected() bool {
	return c.m.IsConnected()
}

// Close disconnects after letting in-flight work drain.
func (c *Client) Close() {
	c.m.Disconnect(250)
}
