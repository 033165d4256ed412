package license

import "time"

// DeviceBindingInfo is the server's snapshot of the account's device slots.
// Replaced wholesale on every successful verify or heartbeat.
type DeviceBindingInfo struct {
	BoundDevices   int  `json:"bound_devices"`
	MaxDevices     int  `json:"max_devices"`
	RemainingSlots int  `json:"remaining_slots"`
	IsNewDevice    bool `json:"is_new_device"`
}

// Session is the in-memory authenticated state. It is owned exclusively by
// the Manager; the heartbeat and the remote client only return results that
// the Manager applies under its lock.
type Session struct {
	Username         string
	Token            string
	ExpiresAt        time.Time
	RemainingDays    int
	DeviceInfo       DeviceBindingInfo
	ResetDeviceCount int

	// Time-estimation anchor captured at the last confirmed server response.
	LastServerTime time.Time
	AnchorTick     int64

	// LastHeartbeat is the wall-clock time of the last successful heartbeat;
	// the offline-duration policy measures against it.
	LastHeartbeat time.Time
}

// persistedCredential is the on-disk record: the session fields plus
// anti-replay metadata. Timestamps serialize as RFC 3339.
type persistedCredential struct {
	Username         string            `json:"username"`
	Token            string            `json:"token"`
	ExpiresAt        time.Time         `json:"expires_at"`
	RemainingDays    int               `json:"remaining_days"`
	LastServerTime   time.Time         `json:"last_server_time"`
	LastLocalTime    time.Time         `json:"last_local_time"`
	LastTickCount    int64             `json:"last_tick_count"`
	ResetDeviceCount int               `json:"reset_device_count"`
	LastHeartbeat    time.Time         `json:"last_successful_heartbeat"`
	Nonce            string            `json:"nonce"`
	SaveTime         time.Time         `json:"save_time"`
	FileVersion      int64             `json:"file_version"`
	DeviceInfo       DeviceBindingInfo `json:"device_info"`
}

// StatusInfo is the display-only summary of the current license state. It is
// never used as an authorization source; authorization goes through
// CanUseProjection.
type StatusInfo struct {
	Authenticated         bool              `json:"authenticated"`
	Username              string            `json:"username,omitempty"`
	ExpiresAt             time.Time         `json:"expires_at,omitempty"`
	RemainingDays         int               `json:"remaining_days,omitempty"`
	DeviceInfo            DeviceBindingInfo `json:"device_info"`
	ResetDeviceCount      int               `json:"reset_device_count"`
	LastHeartbeat         time.Time         `json:"last_successful_heartbeat,omitempty"`
	TrialActive           bool              `json:"trial_active"`
	TrialRemainingSeconds int64             `json:"trial_remaining_seconds"`
	Message               string            `json:"message,omitempty"`
}
