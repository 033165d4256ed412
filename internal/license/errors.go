package license

import (
	"errors"
	"fmt"
)

// Credential store failure kinds. Load failures collapse to "no cached
// session" at the orchestrator, but the kinds are distinguished so corruption
// and rollback can be logged and counted separately.
var (
	// ErrNotFound means no credential file exists.
	ErrNotFound = errors.New("credential file not found")
	// ErrCorrupted means the file failed decoding or signature verification.
	ErrCorrupted = errors.New("credential file corrupted")
	// ErrRolledBack means the file carries an older version than the recorded
	// maximum, indicating a restored snapshot.
	ErrRolledBack = errors.New("credential file rolled back")
)

// Server reason codes that force an immediate logout. Any other or absent
// reason on a failure response is a transient condition.
const (
	ReasonDeviceUnbound  = "device_unbound"
	ReasonDeviceReset    = "device_reset"
	ReasonDeviceMismatch = "device_mismatch"
	ReasonDisabled       = "disabled"
	ReasonExpired        = "expired"
	ReasonSessionExpired = "session_expired"
	ReasonUserNotFound   = "user_not_found"
)

var forcedLogoutReasons = map[string]string{
	ReasonDeviceUnbound:  "This device has been unbound from your account.",
	ReasonDeviceReset:    "Your devices were reset. Please sign in again.",
	ReasonDeviceMismatch: "This device does not match the registered binding.",
	ReasonDisabled:       "Your account has been disabled.",
	ReasonExpired:        "Your license has expired.",
	ReasonSessionExpired: "Your session has expired. Please sign in again.",
	ReasonUserNotFound:   "Account not found. Please sign in again.",
}

// IsForcedLogoutReason reports whether a server reason code mandates clearing
// the session, and the user-facing message for it.
func IsForcedLogoutReason(reason string) (string, bool) {
	msg, ok := forcedLogoutReasons[reason]
	return msg, ok
}

// AuthErrorKind classifies orchestrator-level failures.
type AuthErrorKind int

const (
	// ErrKindNetwork covers transport failures and malformed responses.
	ErrKindNetwork AuthErrorKind = iota
	// ErrKindRejected covers well-formed negative server responses.
	ErrKindRejected
	// ErrKindNotAuthenticated covers operations requiring a session.
	ErrKindNotAuthenticated
)

// AuthError is the structured error returned by Manager operations. Ordinary
// degraded-mode outcomes (offline, rejected login) are values of this type,
// not panics or sentinel strings.
type AuthError struct {
	Kind    AuthErrorKind
	Reason  string
	Message string
}

func (e *AuthError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s (%s)", e.Message, e.Reason)
	}
	return e.Message
}

func authErr(kind AuthErrorKind, reason, message string) *AuthError {
	return &AuthError{Kind: kind, Reason: reason, Message: message}
}
