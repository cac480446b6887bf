// Package samsung implements the vendor protocol adapters for
// Samsung-style smart TVs: the persistent WebSocket remote-control
// transport on port 8002 and the unauthenticated REST status endpoint
// on port 8001.
//
// The transport speaks the ms.remote/ms.channel message family: the
// handshake completes when the set emits ms.channel.connect (carrying
// the pairing token, renewed on every authorised connection), key
// events go out as SendRemoteKey commands, and the installed-app list
// arrives as an ed.installedApp.get event. App launches use the REST
// applications endpoint, which works without the persistent channel.
//
// The status probe is independent of the transport and deliberately
// cheap: one short GET against /api/v2/ returning the device
// descriptor, from which power state, art-mode support, and the
// wireless MAC are read.
//
// Everything here is plumbing; state reconciliation lives in the tv
// package, which consumes these adapters through its Transport,
// Dialer, and Prober contracts.
package samsung
