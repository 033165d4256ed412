package license

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/paramita1949/C-Canvas-sub005/internal/security"
)

// ManagerConfig assembles the engine's collaborators. Everything is injected
// explicitly; there is no package-level instance.
type ManagerConfig struct {
	Store       *CredentialStore
	Client      *Client
	Fingerprint *security.FingerprintManager
	Clock       Clock
	Trial       TrialConfig
	Metrics     *AuthMetrics

	// MaxOffline is the longest a session survives without a successful
	// heartbeat.
	MaxOffline time.Duration

	HeartbeatInitialDelay time.Duration
	HeartbeatInterval     time.Duration
}

// Manager owns the session state and orchestrates the store, the remote
// client, the time estimator, the integrity tokens and the trial gate. One
// mutex guards all session fields: the heartbeat goroutine and the UI-thread
// feature checks both go through it. CanUseProjection never touches the
// network.
type Manager struct {
	mu sync.Mutex

	store       *CredentialStore
	client      *Client
	fingerprint *security.FingerprintManager
	clock       Clock
	timeEst     *TimeEstimator
	trial       *TrialGate
	heartbeat   *Heartbeat
	metrics     *AuthMetrics
	maxOffline  time.Duration

	session     *Session
	tokens      IntegrityTokens
	lastMessage string
}

// NewManager builds the orchestrator. The heartbeat scheduler is created but
// not started; it starts when a session appears via Login or RestoreFromDisk.
func NewManager(cfg ManagerConfig) *Manager {
	clock := cfg.Clock
	if clock == nil {
		clock = NewSystemClock()
	}

	m := &Manager{
		store:       cfg.Store,
		client:      cfg.Client,
		fingerprint: cfg.Fingerprint,
		clock:       clock,
		timeEst:     NewTimeEstimator(clock),
		metrics:     cfg.Metrics,
		maxOffline:  cfg.MaxOffline,
	}
	m.trial = NewTrialGate(clock, cfg.Fingerprint.Fingerprint(), cfg.Trial)
	m.heartbeat = NewHeartbeat(m, cfg.HeartbeatInitialDelay, cfg.HeartbeatInterval)
	return m
}

// RestoreFromDisk attempts to resume a cached session. Corruption and
// rollback discard the cached state entirely; an exceeded offline window or
// an expired license clears it with a user-facing message. All failures
// collapse to "no cached session": the caller proceeds unauthenticated.
func (m *Manager) RestoreFromDisk(ctx context.Context) bool {
	cred, err := m.store.LoadRaw(ctx)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			logDebug(ctx, "session_restore", "No cached session")
		case errors.Is(err, ErrRolledBack):
			m.metrics.recordStoreOp(ctx, "load", "rolled_back")
			logWarn(ctx, "session_restore", "Cached session rolled back, discarding")
			m.store.Delete(ctx)
			m.setMessage("Saved session was rejected. Please sign in again.")
		case errors.Is(err, ErrCorrupted):
			m.metrics.recordStoreOp(ctx, "load", "corrupted")
			logWarn(ctx, "session_restore", "Cached session corrupted, discarding",
				slog.String("error", err.Error()),
			)
			m.store.Delete(ctx)
			m.setMessage("Saved session was unreadable. Please sign in again.")
		default:
			logWarn(ctx, "session_restore", "Cached session unavailable",
				slog.String("error", err.Error()),
			)
		}
		return false
	}
	m.metrics.recordStoreOp(ctx, "load", "ok")

	m.mu.Lock()
	defer m.mu.Unlock()

	// Re-establish the time anchor from the persisted snapshot. The old
	// process's tick counter is dead, so the estimator falls back to the
	// clamped wall-clock delta since the save.
	m.timeEst.Restore(cred.LastServerTime, cred.LastTickCount, cred.LastLocalTime)

	now := m.clock.Now()
	estimated := m.timeEst.EstimateNow()

	if !cred.LastHeartbeat.IsZero() && now.Sub(cred.LastHeartbeat) > m.maxOffline {
		logWarn(ctx, "session_restore", "Offline window exceeded, session cleared",
			slog.Time("last_heartbeat", cred.LastHeartbeat),
			slog.Duration("max_offline", m.maxOffline),
		)
		m.store.Delete(ctx)
		m.lastMessage = "You have been offline too long. Please sign in again."
		return false
	}

	if !estimated.Before(cred.ExpiresAt) {
		logWarn(ctx, "session_restore", "Cached session expired",
			slog.Time("expires_at", cred.ExpiresAt),
			slog.Time("estimated_now", estimated),
		)
		m.store.Delete(ctx)
		m.lastMessage = "Your license has expired."
		return false
	}

	m.session = &Session{
		Username:         cred.Username,
		Token:            cred.Token,
		ExpiresAt:        cred.ExpiresAt,
		RemainingDays:    cred.RemainingDays,
		DeviceInfo:       cred.DeviceInfo,
		ResetDeviceCount: cred.ResetDeviceCount,
		LastServerTime:   cred.LastServerTime,
		AnchorTick:       cred.LastTickCount,
		LastHeartbeat:    cred.LastHeartbeat,
	}
	m.tokens = DeriveTokens(cred.Username, cred.Token, cred.ExpiresAt, cred.RemainingDays)
	m.lastMessage = ""

	logInfo(ctx, "session_restore", "Cached session restored",
		slog.String("username", maskUsername(cred.Username)),
		slog.Time("expires_at", cred.ExpiresAt),
	)

	m.heartbeat.Start()
	return true
}

// Login verifies the credentials against the license server and, on success,
// populates the session, derives the integrity tokens, persists the
// credential and starts the heartbeat.
func (m *Manager) Login(ctx context.Context, username, password string) (*StatusInfo, error) {
	hostname, _ := os.Hostname()
	result := m.client.Verify(ctx, username, password, m.fingerprint.Fingerprint(), hostname)

	if result.Transport {
		m.metrics.recordLogin(ctx, "transport_error")
		return nil, authErr(ErrKindNetwork, "", result.Message)
	}

	if !result.Success || !result.Valid {
		m.metrics.recordLogin(ctx, "rejected")
		logWarn(ctx, "login", "Login rejected",
			slog.String("username", maskUsername(username)),
			slog.String("reason", result.Reason),
		)
		msg := result.Message
		if msg == "" {
			msg = "Login failed."
		}
		return nil, authErr(ErrKindRejected, result.Reason, msg)
	}

	m.metrics.recordLogin(ctx, "ok")

	if result.Username == "" {
		result.Username = username
	}

	m.mu.Lock()
	m.applyAuthResultLocked(ctx, &result)
	m.lastMessage = ""
	status := m.statusLocked()
	m.mu.Unlock()

	m.persist(ctx)
	m.heartbeat.Start()

	logInfo(ctx, "login", "Login successful",
		slog.String("username", maskUsername(username)),
		slog.String("token", maskToken(result.Token)),
		slog.Time("expires_at", result.ExpiresAt),
		slog.Int("remaining_days", result.RemainingDays),
	)
	return status, nil
}

// Register creates an account bound to this device's hardware profile.
func (m *Manager) Register(ctx context.Context, username, password, email string) (*RegisterResult, error) {
	hostname, _ := os.Hostname()
	result := m.client.Register(ctx, RegisterProfile{
		Username:   username,
		Password:   password,
		Email:      email,
		Hardware:   m.fingerprint.Identifiers(),
		DeviceName: hostname,
	})

	if result.Transport {
		return nil, authErr(ErrKindNetwork, "", result.Message)
	}
	if !result.Success {
		msg := result.Message
		if msg == "" {
			msg = "Registration failed."
		}
		return nil, authErr(ErrKindRejected, "", msg)
	}

	logInfo(ctx, "register", "Registration successful",
		slog.String("username", maskUsername(username)),
		slog.Int("trial_days", result.TrialDays),
	)
	return &result, nil
}

// Logout stops the heartbeat, clears the session and removes the persisted
// credential.
func (m *Manager) Logout(ctx context.Context) {
	m.heartbeat.Stop()

	m.mu.Lock()
	m.session = nil
	m.tokens = IntegrityTokens{}
	m.lastMessage = ""
	m.mu.Unlock()

	m.store.Delete(ctx)
	logInfo(ctx, "logout", "Session cleared by user")
}

// CanUseProjection is the authorization gate for the protected feature. It
// never blocks on network I/O. An authenticated session must pass the
// integrity-token re-verification and the estimated-time expiry check; an
// unauthenticated caller defers to the trial gate, which is activated lazily
// on first use.
func (m *Manager) CanUseProjection() bool {
	ctx := context.Background()

	m.mu.Lock()
	if m.session != nil {
		session := m.session
		if !m.tokens.Verify(session.Username, session.Token, session.ExpiresAt, session.RemainingDays) {
			// A token mismatch means session fields were mutated behind the
			// engine's back. Treated as corruption: discard everything.
			m.session = nil
			m.tokens = IntegrityTokens{}
			m.lastMessage = "License state integrity check failed. Please sign in again."
			m.mu.Unlock()

			m.heartbeat.Stop()
			m.store.Delete(ctx)
			m.metrics.recordProjectionCheck(ctx, "integrity_failure")
			logError(ctx, "projection_check", "Integrity tokens mismatch, state discarded")
			return false
		}

		allowed := m.timeEst.EstimateNow().Before(session.ExpiresAt)
		m.mu.Unlock()

		if allowed {
			m.metrics.recordProjectionCheck(ctx, "granted")
		} else {
			m.metrics.recordProjectionCheck(ctx, "expired")
		}
		return allowed
	}
	m.mu.Unlock()

	// Unauthenticated: trial path.
	if !m.trial.Started() {
		if err := m.trial.Start(ctx); err == nil {
			m.metrics.recordTrialStart(ctx)
		}
	}

	status := m.trial.Status()
	if status == TrialValid {
		m.metrics.recordProjectionCheck(ctx, "trial")
		return true
	}
	m.metrics.recordProjectionCheck(ctx, "trial_"+status.String())
	return false
}

// Status returns the display-only summary. Never an authorization source.
func (m *Manager) Status() *StatusInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statusLocked()
}

// StatusSummary renders a short human-readable license status line.
func (m *Manager) StatusSummary() string {
	status := m.Status()
	if status.Authenticated {
		return fmt.Sprintf("Signed in as %s, %d day(s) remaining (expires %s)",
			status.Username, status.RemainingDays, status.ExpiresAt.Format("2006-01-02"))
	}
	if status.TrialActive {
		return fmt.Sprintf("Trial mode, %d second(s) remaining", status.TrialRemainingSeconds)
	}
	if status.Message != "" {
		return status.Message
	}
	return "Not signed in"
}

// DeviceBindingSummary renders the device slot usage for display.
func (m *Manager) DeviceBindingSummary() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return "No device binding (not signed in)"
	}
	info := m.session.DeviceInfo
	return fmt.Sprintf("%d of %d device slots used (%d free)",
		info.BoundDevices, info.MaxDevices, info.RemainingSlots)
}

// ResetDevices unbinds all devices on the account. Requires a live session;
// the password is re-confirmed server-side.
func (m *Manager) ResetDevices(ctx context.Context, password string) (int, error) {
	m.mu.Lock()
	if m.session == nil {
		m.mu.Unlock()
		return 0, authErr(ErrKindNotAuthenticated, "", "Sign in before resetting devices.")
	}
	username := m.session.Username
	m.mu.Unlock()

	result := m.client.ResetDevices(ctx, username, password, m.fingerprint.Fingerprint())
	if result.Transport {
		return 0, authErr(ErrKindNetwork, "", result.Message)
	}
	if !result.Success {
		msg := result.Message
		if msg == "" {
			msg = "Device reset failed."
		}
		return 0, authErr(ErrKindRejected, "", msg)
	}

	m.mu.Lock()
	if m.session != nil {
		m.session.ResetDeviceCount = result.ResetCount
	}
	m.mu.Unlock()
	m.persist(ctx)

	logInfo(ctx, "reset_devices", "Devices reset",
		slog.String("username", maskUsername(username)),
		slog.Int("reset_count", result.ResetCount),
		slog.Int("reset_remaining", result.ResetRemaining),
	)
	return result.ResetRemaining, nil
}

// LastMessage returns the most recent user-facing message (forced logout,
// offline expiry, integrity failure), if any.
func (m *Manager) LastMessage() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastMessage
}

// Close stops the heartbeat. The manager is not usable afterwards.
func (m *Manager) Close() {
	m.heartbeat.Stop()
}

// runHeartbeat executes one heartbeat cycle. Returns false when the session
// was cleared and the scheduler should stop.
func (m *Manager) runHeartbeat(ctx context.Context) bool {
	m.mu.Lock()
	if m.session == nil {
		m.mu.Unlock()
		return false
	}
	token := m.session.Token
	m.mu.Unlock()

	result := m.client.Heartbeat(ctx, token, m.fingerprint.Fingerprint())

	if result.Success && result.Valid {
		m.metrics.recordHeartbeat(ctx, "ok")

		m.mu.Lock()
		if m.session == nil {
			m.mu.Unlock()
			return false
		}
		m.applyAuthResultLocked(ctx, &result)
		m.session.LastHeartbeat = m.clock.Now()
		m.mu.Unlock()

		m.persist(ctx)
		logDebug(ctx, "heartbeat", "Heartbeat successful",
			slog.Int("remaining_days", result.RemainingDays),
		)
		return true
	}

	// Negative result. Only a well-formed response with a known reason may
	// force logout; everything else degrades to the offline policy.
	if !result.Transport {
		if msg, forced := IsForcedLogoutReason(result.Reason); forced {
			m.metrics.recordHeartbeat(ctx, "forced_logout")
			m.metrics.recordForcedLogout(ctx, result.Reason)
			logWarn(ctx, "heartbeat", "Forced logout from server",
				slog.String("reason", result.Reason),
			)

			m.mu.Lock()
			m.session = nil
			m.tokens = IntegrityTokens{}
			m.lastMessage = msg
			m.mu.Unlock()

			m.store.Delete(ctx)
			return false
		}
		m.metrics.recordHeartbeat(ctx, "rejected_transient")
	} else {
		m.metrics.recordHeartbeat(ctx, "transport_error")
	}

	// Offline policy: usable while the license has not expired by estimated
	// time and the offline window has not been exceeded.
	m.mu.Lock()
	if m.session == nil {
		m.mu.Unlock()
		return false
	}
	now := m.clock.Now()
	withinExpiry := m.timeEst.EstimateNow().Before(m.session.ExpiresAt)
	lastBeat := m.session.LastHeartbeat
	withinOffline := lastBeat.IsZero() || now.Sub(lastBeat) <= m.maxOffline

	if withinExpiry && withinOffline {
		m.mu.Unlock()
		logDebug(ctx, "heartbeat", "Heartbeat degraded to offline policy",
			slog.Bool("transport_error", result.Transport),
		)
		return true
	}

	m.session = nil
	m.tokens = IntegrityTokens{}
	if !withinOffline {
		m.lastMessage = "You have been offline too long. Please sign in again."
	} else {
		m.lastMessage = "Your license has expired."
	}
	m.mu.Unlock()

	m.metrics.recordHeartbeat(ctx, "offline_expired")
	logWarn(ctx, "heartbeat", "Session cleared by offline policy",
		slog.Bool("within_expiry", withinExpiry),
		slog.Bool("within_offline_window", withinOffline),
	)
	m.store.Delete(ctx)
	return false
}

// applyAuthResultLocked replaces the session from a successful server result
// and re-derives the integrity tokens. Caller holds m.mu.
func (m *Manager) applyAuthResultLocked(ctx context.Context, result *AuthResult) {
	if m.session == nil {
		m.session = &Session{}
	}

	if result.Token != "" {
		m.session.Token = result.Token
	}
	if result.Username != "" {
		m.session.Username = result.Username
	}
	m.session.ExpiresAt = result.ExpiresAt
	m.session.RemainingDays = result.RemainingDays
	m.session.DeviceInfo = result.DeviceInfo
	m.session.ResetDeviceCount = result.ResetDeviceCount

	if !result.ServerTime.IsZero() {
		m.timeEst.Anchor(result.ServerTime)
		serverTime, tick, _ := m.timeEst.Snapshot()
		m.session.LastServerTime = serverTime
		m.session.AnchorTick = tick
	}
	if m.session.LastHeartbeat.IsZero() {
		m.session.LastHeartbeat = m.clock.Now()
	}

	m.tokens = DeriveTokens(m.session.Username, m.session.Token,
		m.session.ExpiresAt, m.session.RemainingDays)
}

// persist writes the session snapshot. Save failures are logged, never
// propagated to the foreground operation.
func (m *Manager) persist(ctx context.Context) {
	m.mu.Lock()
	if m.session == nil {
		m.mu.Unlock()
		return
	}
	snapshot := *m.session
	m.mu.Unlock()

	if err := m.store.Save(ctx, &snapshot); err != nil {
		m.metrics.recordStoreOp(ctx, "save", "error")
		logError(ctx, "credential_save", "Failed to persist session",
			slog.String("error", err.Error()),
		)
		return
	}
	m.metrics.recordStoreOp(ctx, "save", "ok")
}

func (m *Manager) setMessage(msg string) {
	m.mu.Lock()
	m.lastMessage = msg
	m.mu.Unlock()
}

func (m *Manager) statusLocked() *StatusInfo {
	status := &StatusInfo{Message: m.lastMessage}
	if m.session != nil {
		status.Authenticated = true
		status.Username = m.session.Username
		status.ExpiresAt = m.session.ExpiresAt
		status.RemainingDays = m.session.RemainingDays
		status.DeviceInfo = m.session.DeviceInfo
		status.ResetDeviceCount = m.session.ResetDeviceCount
		status.LastHeartbeat = m.session.LastHeartbeat
		return status
	}
	if m.trial.Started() && m.trial.Status() == TrialValid {
		status.TrialActive = true
		status.TrialRemainingSeconds = m.trial.RemainingSeconds()
	}
	return status
}
