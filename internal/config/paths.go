package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// Paths is the single source of truth for engine file locations.
type Paths struct {
	// ProfileDir is the per-user state directory holding the credential file.
	ProfileDir string
	// MachineDir is a machine-scoped directory shared by all users; it holds
	// the anti-rollback version counter and the instance lock.
	MachineDir string

	CredentialFile     string
	VersionCounterFile string
	InstanceLockFile   string
}

// ResolvePaths computes the engine paths, creating the directories if needed.
// Explicit values in cfg override the platform defaults, which tests use to
// point everything at a temp dir.
func ResolvePaths(cfg PathsConfig) (*Paths, error) {
	profileDir := cfg.ProfileDir
	if profileDir == "" {
		base, err := os.UserConfigDir()
		if err != nil {
			return nil, fmt.Errorf("resolve user config dir: %w", err)
		}
		profileDir = filepath.Join(base, AppName)
	}

	machineDir := cfg.MachineDir
	if machineDir == "" {
		machineDir = defaultMachineDir()
	}

	for _, dir := range []string{profileDir, machineDir} {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create state dir %s: %w", dir, err)
		}
	}

	return &Paths{
		ProfileDir:         profileDir,
		MachineDir:         machineDir,
		CredentialFile:     filepath.Join(profileDir, CredentialFileName),
		VersionCounterFile: filepath.Join(machineDir, VersionCounterFileName),
		InstanceLockFile:   filepath.Join(machineDir, InstanceLockName),
	}, nil
}

// defaultMachineDir returns a directory visible to every user on the machine.
// The lock and the version counter must be machine-scoped, otherwise a second
// OS account would bypass both.
func defaultMachineDir() string {
	switch runtime.GOOS {
	case "windows":
		if pd := os.Getenv("ProgramData"); pd != "" {
			return filepath.Join(pd, AppName)
		}
		return filepath.Join(os.TempDir(), AppName)
	default:
		return filepath.Join("/var/tmp", AppName)
	}
}

// FileExists reports whether path exists and is a regular file.
func FileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
