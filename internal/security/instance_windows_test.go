//go:build windows

package security

import (
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPidAliveCurrentProcess(t *testing.T) {
	assert.True(t, pidAlive(os.Getpid()))
}

func TestTryAcquireDoesNotReclaimLiveHolder(t *testing.T) {
	cmd := exec.Command("ping", "-n", "30", "127.0.0.1")
	require.NoError(t, cmd.Start())
	t.Cleanup(func() {
		cmd.Process.Kill()
		cmd.Wait()
	})

	lockPath := filepath.Join(t.TempDir(), "instance.lock")
	require.NoError(t, os.WriteFile(lockPath, []byte(strconv.Itoa(cmd.Process.Pid)), 0o600))

	guard := NewInstanceGuard(lockPath)
	assert.False(t, guard.TryAcquire())

	// The live holder's lock file must survive the attempt.
	_, err := os.Stat(lockPath)
	assert.NoError(t, err)
}
