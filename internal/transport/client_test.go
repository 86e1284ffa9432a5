package transport

import (
	"bytes"
	"log"
	"os"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 1 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 0 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

var _ mqtt.Message = fakeMessage{}

func TestNewDoesNotConnect(t *testing.T) {
	c := New(Config{URL: "tcp://localhost:1883"})
	assert.False(t, c.Connected(),
		"no network activity until Connect, so consumers can be wired first")
}

func TestHandlersBoundBeforeDispatch(t *testing.T) {
	c := New(Config{URL: "tcp://localhost:1883"})
	msg := fakeMessage{topic: "iot/esp32_01/fan/status", payload: []byte("ON")}

	// Unbound handlers make every inbound message a no-op, not a panic.
	c.handleFeedback(nil, msg)
	c.handleTelemetry(nil, fakeMessage{topic: "iot/esp32_01/telemetry", payload: []byte("{}")})
	c.handleStatus(nil, fakeMessage{topic: "iot/esp32_01/status", payload: []byte("online")})

	var device, target, status string
	c.h = Handlers{
		OnFeedback: func(d, tg, s string) { device, target, status = d, tg, s },
	}
	c.handleFeedback(nil, msg)
	assert.Equal(t, "esp32_01", device)
	assert.Equal(t, "fan", target)
	assert.Equal(t, "ON", status)
}

func TestConnectUnreachableBrokerDoesNotBlock(t *testing.T) {
	var buf bytes.Buffer
	log.SetOutput(&buf)
	defer log.SetOutput(os.Stderr)

	oldWait := connectWait
	connectWait = 50 * time.Millisecond
	defer func() { connectWait = oldWait }()

	// A scheme paho cannot dial fails every attempt without touching the
	// network, which keeps the retry loop spinning like a down broker does.
	c := New(Config{URL: "bogus://broker"})
	start := time.Now()
	err := c.Connect(Handlers{})
	c.Close()

	require.NoError(t, err, "an unreachable broker is retried, not fatal")
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Contains(t, buf.String(), "mqtt: connecting to",
		"each attempt leaves a log line instead of retrying silently")
	assert.Contains(t, buf.String(), "retrying in background")
}
