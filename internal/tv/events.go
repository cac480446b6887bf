package tv

import "time"

// EventType identifies the kind of session event.
type EventType string

// Event types emitted on the session's event channel.
const (
	EventStateChanged    EventType = "state_changed"
	EventConnected       EventType = "connected"
	EventDisconnected    EventType = "disconnected"
	EventConnectionError EventType = "connection_error"
)

// Origin values identify which signal produced a power-state change.
// They match the source values the history store records.
const (
	OriginSocket  = "socket"
	OriginProbe   = "probe"
	OriginCloud   = "cloud"
	OriginCommand = "command"
)

// Event is a typed notification delivered on the session's event
// channel. Consumers receive events in emission order per device; the
// channel is buffered and events are dropped (with a warning) rather
// than blocking the engine when the consumer falls behind.
type Event struct {
	Type     EventType `json:"type"`
	DeviceID string    `json:"device_id"`

	// PowerState and Origin are set for power state_changed events.
	PowerState PowerState `json:"power_state,omitempty"`
	Origin     string     `json:"origin,omitempty"`

	// SourceList and ActiveSource are set when known; SourceList always
	// includes the fixed physical-input baseline.
	SourceList   []string `json:"source_list,omitempty"`
	ActiveSource string   `json:"active_source,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}
