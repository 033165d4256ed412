package config

import "time"

// Trust-boundary constants. These are deliberately compiled in rather than
// configurable: the license server URL, the lock name and the version-counter
// location are part of what the engine defends, so exposing them through the
// environment would hand an attacker a knob.
const (
	// AppName is used for per-user and machine-scoped directory names.
	AppName = "c-canvas"

	// LicenseServerBaseURL is the authoritative remote license service.
	LicenseServerBaseURL = "https://license.c-canvas.app/api/v1"

	// InstanceLockName is the machine-scoped lock preventing two processes
	// from each claiming a device slot.
	InstanceLockName = "c-canvas-projector.lock"

	// CredentialFileName is the signed credential blob inside the per-user
	// profile directory.
	CredentialFileName = "credential.dat"

	// VersionCounterFileName is the anti-rollback side channel. It lives in a
	// machine-scoped directory, outside the credential file itself.
	VersionCounterFileName = "version.dat"
)

// Heartbeat and offline policy.
const (
	// HeartbeatInitialDelay is how long after session start the first
	// heartbeat fires.
	HeartbeatInitialDelay = 30 * time.Second

	// HeartbeatInterval is the recurring re-validation period.
	HeartbeatInterval = 10 * time.Minute

	// HeartbeatTimeout bounds a single heartbeat request. Kept short so a
	// dead network degrades to offline policy quickly.
	HeartbeatTimeout = 10 * time.Second

	// InteractiveTimeout bounds login, registration and device-reset calls.
	InteractiveTimeout = 30 * time.Second

	// MaxOfflineDuration is the longest a session may survive without a
	// successful heartbeat before it is forcibly cleared.
	MaxOfflineDuration = 7 * 24 * time.Hour
)

// Trial policy. The duration is randomized per activation and clamped to the
// hard maximum before use.
const (
	TrialMinDuration = 30 * time.Minute
	TrialMaxDuration = 45 * time.Minute
	TrialHardClamp   = 60 * time.Minute
)
