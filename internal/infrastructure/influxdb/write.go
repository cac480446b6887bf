package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Power state values as stored in the field map. Keeping them numeric
// makes Flux aggregation (time-in-state, transition counts) trivial.
const (
	powerValueOff     = 0.0
	powerValueStandby = 1.0
	powerValueOn      = 2.0
)

// WritePowerState records a power-state transition for a television.
//
// The write is non-blocking; data is batched and sent asynchronously.
//
// Parameters:
//   - deviceID: Device identifier (e.g., "tv-living")
//   - state: One of "OFF", "STANDBY", "ON"
//   - source: What produced the observation ("socket", "probe", "cloud", "command")
func (c *Client) WritePowerState(deviceID string, state string, source string) {
	if !c.IsConnected() {
		return
	}

	var value float64
	switch state {
	case "ON":
		value = powerValueOn
	case "STANDBY":
		value = powerValueStandby
	default:
		value = powerValueOff
	}

	point := write.NewPoint(
		"power_state",
		map[string]string{
			"device_id": deviceID,
			"source":    source,
		},
		map[string]interface{}{
			"state": state,
			"value": value,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteSourceChange records a source or app switch on a television.
func (c *Client) WriteSourceChange(deviceID string, sourceName string) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"active_source",
		map[string]string{
			"device_id": deviceID,
		},
		map[string]interface{}{
			"source": sourceName,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for measurements that don't fit the helper methods.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}
