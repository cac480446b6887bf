// Package bridge connects the per-device TV sessions to the MQTT bus.
//
// It has two responsibilities:
//
//  1. Outbound: consume each session's event channel and mirror it to
//     retained MQTT state topics, the SQLite history store, and the
//     optional InfluxDB time series.
//  2. Inbound: subscribe to the device command topics, dispatch parsed
//     commands to the matching session, and publish the dispatch result.
//
//	Session events ──▶ tvbridge/state/{device}        (retained)
//	                   tvbridge/availability/{device} (retained)
//	MQTT commands ──▶ Session ──▶ tvbridge/result/{device}
//
// Command dispatch never fails loudly: an unreachable television is a
// normal condition and is reported as "not_delivered" in the result
// message rather than as a bridge error.
package bridge
