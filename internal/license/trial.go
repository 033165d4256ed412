package license

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// TrialStatus is the outcome of the trial gate's redundant validation. Two
// independent checks must both agree: the clamp and the integrity token are
// re-derived on every read before the stored fields are trusted.
type TrialStatus int

const (
	// TrialValid means the window is active and internally consistent.
	TrialValid TrialStatus = iota
	// TrialTokenInvalid means the integrity token no longer matches the
	// stored fields; treated exactly like expiry.
	TrialTokenInvalid
	// TrialExpired means the window has elapsed or was never started.
	TrialExpired
	// TrialClockAnomaly means the monotonic counter went backwards.
	TrialClockAnomaly
)

func (s TrialStatus) String() string {
	switch s {
	case TrialValid:
		return "valid"
	case TrialTokenInvalid:
		return "token_invalid"
	case TrialExpired:
		return "expired"
	case TrialClockAnomaly:
		return "clock_anomaly"
	default:
		return "unknown"
	}
}

// TrialConfig bounds the randomized trial window.
type TrialConfig struct {
	MinDuration time.Duration
	MaxDuration time.Duration
	// HardClamp is the ceiling applied to the stored duration before every
	// expiry decision, so editing the duration field in memory buys nothing
	// beyond the clamp.
	HardClamp time.Duration
}

// TrialGate grants a short, randomized, single-use trial window to
// unauthenticated users.
type TrialGate struct {
	mu        sync.Mutex
	clock     Clock
	machineID string
	cfg       TrialConfig

	started   bool
	consumed  bool
	startTick int64
	duration  time.Duration
	token     string
}

// NewTrialGate creates a gate bound to the machine identity.
func NewTrialGate(clock Clock, machineID string, cfg TrialConfig) *TrialGate {
	return &TrialGate{clock: clock, machineID: machineID, cfg: cfg}
}

// Start activates the trial window once. The duration is drawn fresh from
// the configured range, clamped, and sealed with an integrity token. A second
// Start is an error: the window is single-use.
func (tg *TrialGate) Start(ctx context.Context) error {
	tg.mu.Lock()
	defer tg.mu.Unlock()

	if tg.consumed {
		return fmt.Errorf("trial already used")
	}

	duration := tg.randomDuration()
	clamped := tg.clamp(duration)

	tg.started = true
	tg.consumed = true
	tg.startTick = tg.clock.Tick()
	tg.duration = clamped
	tg.token = tg.deriveToken(tg.startTick, clamped)

	logInfo(ctx, "trial_start", "Trial window activated",
		slog.Int64("duration_seconds", int64(clamped.Seconds())),
	)
	return nil
}

// Started reports whether the window was ever activated.
func (tg *TrialGate) Started() bool {
	tg.mu.Lock()
	defer tg.mu.Unlock()
	return tg.started
}

// Status re-validates the window. Both the clamp and the integrity token are
// recomputed before the stored duration is trusted; a mismatch is treated
// identically to expiry.
func (tg *TrialGate) Status() TrialStatus {
	tg.mu.Lock()
	defer tg.mu.Unlock()
	return tg.statusLocked()
}

// IsExpired reports whether the window no longer grants access, for any
// reason.
func (tg *TrialGate) IsExpired() bool {
	return tg.Status() != TrialValid
}

// RemainingSeconds returns the whole seconds left in the window: strictly
// decreasing over elapsed monotonic time, zero at or after expiry, never
// negative.
func (tg *TrialGate) RemainingSeconds() int64 {
	tg.mu.Lock()
	defer tg.mu.Unlock()

	if tg.statusLocked() != TrialValid {
		return 0
	}
	elapsed := time.Duration(tg.clock.Tick()-tg.startTick) * time.Millisecond
	remaining := tg.clamp(tg.duration) - elapsed
	if remaining <= 0 {
		return 0
	}
	return int64(remaining / time.Second)
}

func (tg *TrialGate) statusLocked() TrialStatus {
	if !tg.started {
		return TrialExpired
	}

	clamped := tg.clamp(tg.duration)

	// Independent check: the token sealed at Start must still match the
	// fields in use.
	expected := tg.deriveToken(tg.startTick, clamped)
	if subtle.ConstantTimeCompare([]byte(tg.token), []byte(expected)) != 1 {
		return TrialTokenInvalid
	}

	elapsedTicks := tg.clock.Tick() - tg.startTick
	if elapsedTicks < 0 {
		return TrialClockAnomaly
	}
	if time.Duration(elapsedTicks)*time.Millisecond >= clamped {
		return TrialExpired
	}
	return TrialValid
}

func (tg *TrialGate) clamp(d time.Duration) time.Duration {
	if d > tg.cfg.HardClamp {
		return tg.cfg.HardClamp
	}
	return d
}

func (tg *TrialGate) deriveToken(startTick int64, duration time.Duration) string {
	h := sha256.Sum256([]byte(fmt.Sprintf("%d|%d|%s|trial-v1",
		startTick, int64(duration.Seconds()), tg.machineID)))
	return hex.EncodeToString(h[:])
}

// randomDuration draws uniformly from [MinDuration, MaxDuration] using the
// CSPRNG; predictability of the window length would make it easier to probe.
func (tg *TrialGate) randomDuration() time.Duration {
	span := tg.cfg.MaxDuration - tg.cfg.MinDuration
	if span <= 0 {
		return tg.cfg.MinDuration
	}

	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return tg.cfg.MinDuration
	}
	offset := time.Duration(binary.BigEndian.Uint64(buf[:]) % uint64(span))
	return tg.cfg.MinDuration + offset
}
