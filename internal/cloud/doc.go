// Package cloud implements the remote fallback path for televisions
// that are registered with the vendor's cloud service.
//
// The client is strictly best-effort. The local WebSocket channel and
// REST probe remain the primary control paths; the cloud is consulted
// only to wake a set whose network interface powers down completely,
// and to read coarse status while the set is unreachable locally.
// Every failure degrades the session to local-only behaviour rather
// than surfacing an error to the caller.
//
// Authentication uses per-device OAuth tokens stored on the device
// configuration. A 401 triggers a single refresh-and-retry; the
// renewed tokens are written through to the configuration store so a
// restart never resumes with stale credentials.
package cloud
