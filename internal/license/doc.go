// Package license implements the licensing and authentication engine that
// gates the projection feature.
//
// The engine works online and offline and is designed to resist casual
// tampering rather than a determined reverse engineer: the credential store
// is HMAC-signed with a key bound to the device fingerprint and the store
// file's own absolute path, a monotonically increasing file version (tracked
// in a machine-scoped side channel) defeats snapshot rollback, elapsed time
// is estimated from a monotonic tick anchored to the last confirmed server
// time so clock rollback buys nothing, and the authenticated flag is guarded
// by redundant integrity tokens re-verified on every feature check.
//
// The Manager is the single source of truth for session state. It is
// constructed explicitly at the composition root and injected into the HTTP
// surface; the heartbeat goroutine and the feature-check callers synchronize
// through the Manager's one mutex. The rest of the application consumes the
// engine through two narrow contracts: CanUseProjection and Status.
package license
