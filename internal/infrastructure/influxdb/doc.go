// Package influxdb provides InfluxDB connectivity for TV Bridge.
//
// It wraps the official influxdb-client-go v2 library with TV Bridge-specific
// patterns for connection management, metric writing, and health monitoring.
//
// # Purpose
//
// This package handles time-series data storage for:
//   - Power-state transitions (off/standby/on with observation source)
//   - Active source and app changes
//
// SQLite remains the authoritative short-term history; InfluxDB carries
// the long-horizon series used for usage dashboards.
//
// # Usage
//
//	cfg := config.InfluxDBConfig{
//	    URL:    "http://localhost:8086",
//	    Token:  "your-token",
//	    Org:    "slatehome",
//	    Bucket: "tvbridge",
//	}
//
//	client, err := influxdb.Connect(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	client.WritePowerState("tv-living", "on", "probe")
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// The underlying write API uses non-blocking batched writes.
//
// # Error Handling
//
// Write operations are non-blocking and batch errors are logged via a callback.
// Connection and health check errors are returned directly.
package influxdb
