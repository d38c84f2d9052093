// Package mqtt provides MQTT publishing with abstraction for testing.
package mqtt

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/sweeney/holdclick/internal/device"
	"github.com/sweeney/holdclick/internal/emulate"
)

// TimestampFormat is used for every timestamp in a payload. Button events
// need sub-second resolution.
const TimestampFormat = "2006-01-02T15:04:05.000Z07:00"

// ButtonTopic returns the topic button events of a device are published to.
func ButtonTopic(prefix, deviceName string) string {
	return strings.TrimSuffix(prefix, "/") + "/" + deviceName + "/button"
}

// SystemTopic returns the topic for system lifecycle events.
func SystemTopic(prefix string) string {
	return strings.TrimSuffix(prefix, "/") + "/system"
}

// Publisher publishes events to MQTT.
type Publisher interface {
	// Publish sends a button event to the broker.
	// Returns error if publishing fails (should not crash the process).
	Publish(event device.Event) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Payload represents the MQTT message payload structure.
type Payload struct {
	Button ButtonPayload `json:"button"`
}

// ButtonPayload contains the button event details.
type ButtonPayload struct {
	Timestamp string `json:"timestamp"`
	Device    string `json:"device"`
	Button    int    `json:"button"`
	Action    string `json:"action"`
	Synthetic bool   `json:"synthetic"`
	Mode      string `json:"mode"`
	X         *int   `json:"x,omitempty"`
	Y         *int   `json:"y,omitempty"`
}

// Action returns "PRESS" or "RELEASE".
func Action(pressed bool) string {
	if pressed {
		return "PRESS"
	}
	return "RELEASE"
}

// FormatPayload creates the JSON payload for a button event.
func FormatPayload(event device.Event) ([]byte, error) {
	payload := Payload{
		Button: ButtonPayload{
			Timestamp: event.Time.UTC().Format(TimestampFormat),
			Device:    event.Device,
			Button:    int(event.Button),
			Action:    Action(event.Pressed),
			Synthetic: event.Synthetic,
			Mode:      string(event.Mode),
		},
	}
	if event.Mode == emulate.ModeAbsolute {
		x, y := event.Position.X, event.Position.Y
		payload.Button.X = &x
		payload.Button.Y = &y
	}
	return json.Marshal(payload)
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}
