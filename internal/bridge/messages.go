package bridge

import (
	"time"
)

// Command actions accepted on the device command topics.
const (
	ActionPowerOn     = "power_on"
	ActionPowerOff    = "power_off"
	ActionPowerToggle = "power_toggle"
	ActionSendKey     = "send_key"
	ActionLaunchApp   = "launch_app"
	ActionRefresh     = "refresh"
)

// CommandMessage is the inbound command payload.
// Topic: tvbridge/command/{device_id}
type CommandMessage struct {
	// ID correlates the command with its result message. Generated when
	// the publisher omits it.
	ID string `json:"id,omitempty"`

	// Timestamp is when the command was issued (UTC, ISO8601).
	Timestamp time.Time `json:"timestamp,omitempty"`

	// Action is one of the Action constants.
	Action string `json:"action"`

	// Key is the remote key code for send_key (e.g., "KEY_VOLUP").
	Key string `json:"key,omitempty"`

	// HoldMs turns a send_key into a press-and-hold of that duration.
	HoldMs int `json:"hold_ms,omitempty"`

	// App is the app name or source for launch_app (e.g., "Netflix", "HDMI2").
	App string `json:"app,omitempty"`

	// Source indicates where the command originated ("api", "automation", "ui").
	Source string `json:"source,omitempty"`
}

// ResultMessage reports the outcome of a dispatched command.
// Topic: tvbridge/result/{device_id}
type ResultMessage struct {
	// CommandID is the ID from the original command.
	CommandID string `json:"command_id"`

	// Timestamp is when the result was produced (UTC, ISO8601).
	Timestamp time.Time `json:"timestamp"`

	// DeviceID is the target device identifier.
	DeviceID string `json:"device_id"`

	// Action echoes the command action.
	Action string `json:"action"`

	// Result is "delivered", "not_delivered", or "unsupported".
	Result string `json:"result"`

	// Error holds a human-readable description for rejected commands.
	Error string `json:"error,omitempty"`
}

// StateMessage mirrors a device's current state.
// Topic: tvbridge/state/{device_id}
// QoS: 1, Retained: Yes
type StateMessage struct {
	// DeviceID is the device identifier.
	DeviceID string `json:"device_id"`

	// Timestamp is when the state was observed (UTC, ISO8601).
	Timestamp time.Time `json:"timestamp"`

	// PowerState is "OFF", "STANDBY", or "ON".
	PowerState string `json:"power_state"`

	// Origin identifies the signal behind the last power change
	// ("socket", "probe", "cloud", "command").
	Origin string `json:"origin,omitempty"`

	// SourceList is the full selectable source list, physical inputs
	// included.
	SourceList []string `json:"source_list,omitempty"`

	// ActiveSource is the last observed input or app, when known.
	ActiveSource string `json:"active_source,omitempty"`
}

// Availability payloads published to tvbridge/availability/{device_id}.
const (
	AvailabilityOnline  = "online"
	AvailabilityOffline = "offline"
)
