package mqtt

import "fmt"

// Topic prefixes for the TV Bridge MQTT surface.
//
// All topics use the flat scheme: tvbridge/{category}/{device_id}.
// State topics are retained so subscribers see the current state on
// connect; command and result topics are not.
const (
	// TopicPrefix is the base for all TV Bridge topics.
	TopicPrefix = "tvbridge"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "tvbridge/system"
)

// Topics provides builders for TV Bridge MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	stateTopic := topics.DeviceState("tv-living")
//	// Returns: "tvbridge/state/tv-living"
type Topics struct{}

// DeviceState returns the retained topic carrying a device's current
// power state and source list.
//
// Example: tvbridge/state/tv-living
func (Topics) DeviceState(deviceID string) string {
	return fmt.Sprintf("%s/state/%s", TopicPrefix, deviceID)
}

// DeviceCommand returns the topic on which inbound commands for a
// device arrive.
//
// Example: tvbridge/command/tv-living
func (Topics) DeviceCommand(deviceID string) string {
	return fmt.Sprintf("%s/command/%s", TopicPrefix, deviceID)
}

// DeviceResult returns the topic for command dispatch results.
//
// Example: tvbridge/result/tv-living
func (Topics) DeviceResult(deviceID string) string {
	return fmt.Sprintf("%s/result/%s", TopicPrefix, deviceID)
}

// DeviceAvailability returns the retained topic reflecting whether the
// bridge holds a live connection to the device.
//
// Example: tvbridge/availability/tv-living
func (Topics) DeviceAvailability(deviceID string) string {
	return fmt.Sprintf("%s/availability/%s", TopicPrefix, deviceID)
}

// AllCommands returns the wildcard subscription covering every
// device's command topic.
func (Topics) AllCommands() string {
	return TopicPrefix + "/command/+"
}

// SystemStatus returns the topic for the bridge's own online/offline
// status, also used as the Last Will topic.
func (Topics) SystemStatus() string {
	return TopicPrefixSystem + "/status"
}

// DeviceFromTopic extracts the device id from a command topic. The
// second return is false when the topic does not match the command
// scheme.
func (Topics) DeviceFromTopic(topic string) (string, bool) {
	const prefix = TopicPrefix + "/command/"
	if len(topic) <= len(prefix) || topic[:len(prefix)] != prefix {
		return "", false
	}
	id := topic[len(prefix):]
	for i := 0; i < len(id); i++ {
		if id[i] == '/' {
			return "", false
		}
	}
	return id, true
}
