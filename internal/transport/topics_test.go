package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCommandTopic(t *testing.T) {
	assert.Equal(t, "iot/esp32_01/fan/command", CommandTopic("esp32_01", "fan"))
}

func TestFeedbackFromTopic(t *testing.T) {
	device, target, ok := feedbackFromTopic("iot/esp32_01/led/status")
	assert.True(t, ok)
	assert.Equal(t, "esp32_01", device)
	assert.Equal(t, "led", target)

	// Heartbeat topic is one level short of a feedback topic.
	_, _, ok = feedbackFromTopic("iot/esp32_01/status")
	assert.False(t, ok)

	_, _, ok = feedbackFromTopic("other/esp32_01/led/status")
	assert.False(t, ok)

	_, _, ok = feedbackFromTopic("iot/esp32_01/led/command")
	assert.False(t, ok)
}

func TestDeviceFromTopic(t *testing.T) {
	assert.Equal(t, "esp32_01", deviceFromTopic("iot/esp32_01/telemetry"))
	assert.Equal(t, "esp32_01", deviceFromTopic("iot/esp32_01/status"))
	assert.Equal(t, "", deviceFromTopic("iot"))
}
