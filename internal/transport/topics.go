package transport

import "strings"

// Topic grammar, per device:
//
//	iot/<device>/telemetry        inbound sensor payloads (JSON)
//	iot/<device>/<target>/command outbound actuator commands (ON/OFF literal)
//	iot/<device>/<target>/status  inbound command feedback (ON/OFF literal)
//	iot/<device>/status           inbound heartbeat text, logged only
const topicPrefix = "iot"

// Subscription filters.
const (
	telemetryFilter = topicPrefix + "/+/telemetry"
	feedbackFilter  = topicPrefix + "/+/+/status"
	statusFilter    = topicPrefix + "/+/status"
)

// CommandTopic builds the outbound command topic for a device target.
func CommandTopic(deviceID, target string) string {
	return topicPrefix + "/" + deviceID + "/" + target + "/command"
}

// deviceFromTopic extracts the device id (second level) from any per-device
// topic, or "" when the topic is too shallow.
func deviceFromTopic(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) < 2 {
		return ""
	}
	return parts[1]
}

// feedbackFromTopic extracts (device, target) from iot/<device>/<target>/status.
func feedbackFromTopic(topic string) (deviceID, target string, ok bool) {
	parts := strings.Split(topic, "/")
	if len(parts) != 4 || parts[0] != topicPrefix || parts[3] != "status" {
		return "", "", false
	}
	return parts[1], parts[2], true
}
