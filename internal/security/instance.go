package security

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// InstanceGuard is a machine-scoped exclusive lock preventing a second
// process launch from claiming another device slot. Acquisition failure is
// reported, never fatal; the caller decides the policy.
type InstanceGuard struct {
	lockPath string
	acquired bool
}

// NewInstanceGuard creates a guard over the given machine-scoped lock path.
func NewInstanceGuard(lockPath string) *InstanceGuard {
	return &InstanceGuard{lockPath: lockPath}
}

// TryAcquire attempts to take the lock. It returns false if another live
// process already holds it. A lock file left behind by a crashed process is
// reclaimed when its recorded PID no longer exists.
func (g *InstanceGuard) TryAcquire() bool {
	if g.acquired {
		return true
	}

	for attempt := 0; attempt < 2; attempt++ {
		file, err := os.OpenFile(g.lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
		if err == nil {
			fmt.Fprintf(file, "%d", os.Getpid())
			file.Close()
			g.acquired = true
			slog.Debug("Instance lock acquired", slog.String("path", g.lockPath))
			return true
		}
		if !os.IsExist(err) {
			slog.Warn("Instance lock not acquirable",
				slog.String("path", g.lockPath),
				slog.String("error", err.Error()),
			)
			return false
		}
		if !g.holderAlive() {
			// Stale lock from a crashed process.
			slog.Info("Reclaiming stale instance lock", slog.String("path", g.lockPath))
			os.Remove(g.lockPath)
			continue
		}
		return false
	}
	return false
}

// Release drops the lock if held. Idempotent.
func (g *InstanceGuard) Release() {
	if !g.acquired {
		return
	}
	if err := os.Remove(g.lockPath); err != nil && !os.IsNotExist(err) {
		slog.Warn("Failed to remove instance lock",
			slog.String("path", g.lockPath),
			slog.String("error", err.Error()),
		)
	}
	g.acquired = false
}

// holderAlive reports whether the PID recorded in the lock file still refers
// to a running process. Unreadable or malformed lock contents count as alive;
// reclaiming on uncertainty would defeat the guard.
func (g *InstanceGuard) holderAlive() bool {
	data, err := os.ReadFile(g.lockPath)
	if err != nil {
		return true
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return true
	}
	if pid == os.Getpid() {
		return false
	}
	return pidAlive(pid)
}
