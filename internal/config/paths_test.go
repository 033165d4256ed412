package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolvePathsExplicitDirs(t *testing.T) {
	base := t.TempDir()
	profile := filepath.Join(base, "profile")
	machine := filepath.Join(base, "machine")

	paths, err := ResolvePaths(PathsConfig{ProfileDir: profile, MachineDir: machine})
	require.NoError(t, err)

	assert.Equal(t, profile, paths.ProfileDir)
	assert.Equal(t, machine, paths.MachineDir)
	assert.Equal(t, filepath.Join(profile, CredentialFileName), paths.CredentialFile)
	assert.Equal(t, filepath.Join(machine, VersionCounterFileName), paths.VersionCounterFile)
	assert.Equal(t, filepath.Join(machine, InstanceLockName), paths.InstanceLockFile)

	// Directories are created on resolution.
	assert.DirExists(t, profile)
	assert.DirExists(t, machine)
}

func TestResolvePathsSplitsScopes(t *testing.T) {
	base := t.TempDir()
	paths, err := ResolvePaths(PathsConfig{
		ProfileDir: filepath.Join(base, "p"),
		MachineDir: filepath.Join(base, "m"),
	})
	require.NoError(t, err)

	// The credential is per-user; the counter and the lock are machine-wide.
	assert.Equal(t, paths.ProfileDir, filepath.Dir(paths.CredentialFile))
	assert.Equal(t, paths.MachineDir, filepath.Dir(paths.VersionCounterFile))
	assert.Equal(t, paths.MachineDir, filepath.Dir(paths.InstanceLockFile))
	assert.NotEqual(t, paths.ProfileDir, paths.MachineDir)
}

func TestFileExists(t *testing.T) {
	dir := t.TempDir()

	assert.False(t, FileExists(filepath.Join(dir, "missing")))
	assert.False(t, FileExists(dir)) // directories do not count

	path := filepath.Join(dir, "f")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))
	assert.True(t, FileExists(path))
}
