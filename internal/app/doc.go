// Package app wires the licensing engine together: configuration, logging,
// telemetry, the hardware-bound credential store, the license manager and the
// loopback HTTP surface the projection shell talks to.
//
// The package owns process lifecycle. Run acquires the machine-wide instance
// lock, restores any persisted session, serves until interrupted and shuts
// the server, the heartbeat and the telemetry pipeline down in order.
package app
