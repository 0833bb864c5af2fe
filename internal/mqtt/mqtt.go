// Package mqtt mirrors feeding events and daemon lifecycle events to an MQTT
// broker, with an abstraction for testing.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/sweeney/feeding-monitor/internal/logic"
)

// Topic is the MQTT topic for feeding events.
const Topic = "pets/feeder/monitor/events"

// TopicSystem is the MQTT topic for system lifecycle events.
const TopicSystem = "pets/feeder/monitor/system"

// Publisher publishes events to MQTT.
type Publisher interface {
	// Publish sends a feeding event to the broker.
	// Returns error if publishing fails (should not crash the process).
	Publish(event logic.Event) error

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
	Activity ActivityPayload `json:"activity"`
}

// ActivityPayload contains the feeding event details.
type ActivityPayload struct {
	Timestamp       string   `json:"timestamp"`
	Event           string   `json:"event"`
	EntityID        int      `json:"entity_id"`
	Landmark        string   `json:"landmark"`
	Type            string   `json:"type"`
	StartedAt       string   `json:"started_at"`
	DurationSeconds *float64 `json:"duration_seconds,omitempty"`
}

// FormatPayload creates the JSON payload for a feeding event.
// Start events carry no duration.
func FormatPayload(event logic.Event) ([]byte, error) {
	p := ActivityPayload{
		Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
		Event:     string(event.Type),
		EntityID:  event.EntityID,
		Landmark:  event.Landmark,
		Type:      event.ActivityType,
		StartedAt: event.StartedAt.UTC().Format(time.RFC3339),
	}
	if event.Type != logic.EventStart {
		d := event.Duration.Seconds()
		p.DurationSeconds = &d
	}
	return json.Marshal(Payload{Activity: p})
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT) that don't carry a full status snapshot.
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
