// Package tv implements the power-state engine and session manager for
// a single television endpoint.
//
// The hard problem here is not the vendor protocol but state
// reconciliation: deciding, from noisy and partially contradictory
// signals (socket liveness, REST-reported power state, in-flight
// commands, grace periods for slow hardware), what the device's true
// power state is, and driving the correct recovery action — wake-on-LAN,
// cloud wake, key-press wake, reconnect — without racing itself or
// flapping the externally visible state.
//
// # Architecture
//
//	┌───────────────────────────────────────────────────────────────┐
//	│                           Session                             │
//	│                                                               │
//	│  ┌───────────────┐   ┌────────────────┐   ┌───────────────┐  │
//	│  │ Power engine  │   │ Wake sequence  │   │ Command       │  │
//	│  │ (power.go)    │──▶│ (wake.go)      │   │ dispatch      │  │
//	│  │               │   │                │   │ (session.go)  │  │
//	│  │ • state fusion│   │ • WOL packets  │   │ • reconnect   │  │
//	│  │ • guard       │   │ • cloud wake   │   │   guard       │  │
//	│  │   windows     │   │ • cancelable   │   │ • key/app     │  │
//	│  └───────────────┘   └────────────────┘   └───────────────┘  │
//	│          │                                                    │
//	└──────────│────────────────────────────────────────────────────┘
//	           ▼
//	   typed Event channel (events.go) → bridge / API consumers
//
// # Guard windows
//
// Two timestamp guards prevent flapping from protocol latency. After a
// power-off command, liveness-based "still ON" conclusions are
// suppressed — briefly for art-mode sets whose REST reporting is
// immediate, for over a minute on legacy sets whose sockets linger.
// After a power-on command, duplicate wake attempts are suppressed
// while the wake sequence runs. Guards are plain "now before deadline"
// checks; they never block, they only change how ambiguous signals are
// interpreted.
//
// # Concurrency
//
// One Session per device; the Session exclusively owns its transport
// handle. Background work (wake sequence, poll loop, app-list refresh)
// runs as tracked cancelable tasks that are always joined on teardown.
// Sessions are independent: latency or failure on one device's network
// calls never affects another.
//
// # Error philosophy
//
// A quiet TV is a normal condition, not a fault. Handshake failures,
// probe timeouts, and closed sockets all resolve to the OFF state plus
// a state-change event; nothing reaches the caller except a dispatch
// Result.
package tv
