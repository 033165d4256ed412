package security

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"time"
)

// Sentinel values substituted for identifiers that cannot be read. Using
// fixed literals keeps the fingerprint stable and computable on restricted
// hardware instead of aborting.
const (
	SentinelCPU   = "CPU_UNKNOWN"
	SentinelBoard = "BOARD_UNKNOWN"
	SentinelDisk  = "DISK_UNKNOWN"
	SentinelBIOS  = "BIOS_UNKNOWN"
	SentinelOSID  = "OSID_UNKNOWN"
)

// HardwareIdentifiers holds the raw per-component values that feed the
// fingerprint. Exposed for registration payloads and debugging.
type HardwareIdentifiers struct {
	CPUID             string `json:"cpu_id"`
	MotherboardSerial string `json:"motherboard_serial"`
	DiskSerial        string `json:"disk_serial"`
	BIOSUUID          string `json:"bios_uuid"`
	OSInstallID       string `json:"os_install_id"`
}

// FingerprintManager derives a stable, privacy-preserving device fingerprint
// from multiple hardware identifiers. Reads are cached; the underlying
// hardware does not change while the process runs.
type FingerprintManager struct {
	cache       string
	cacheIDs    *HardwareIdentifiers
	cacheMutex  sync.RWMutex
	cacheExpiry time.Time
	cacheTTL    time.Duration
}

// NewFingerprintManager creates a new fingerprint manager with caching
func NewFingerprintManager() *FingerprintManager {
	return &FingerprintManager{cacheTTL: 1 * time.Hour}
}

// Fingerprint returns the SHA-256 hex digest of the concatenated hardware
// identifiers. It never fails: unreadable identifiers become sentinels, and
// if every identifier is unreadable the hostname alone is hashed.
func (fm *FingerprintManager) Fingerprint() string {
	fm.cacheMutex.RLock()
	if fm.cache != "" && time.Now().Before(fm.cacheExpiry) {
		cached := fm.cache
		fm.cacheMutex.RUnlock()
		return cached
	}
	fm.cacheMutex.RUnlock()

	ids := fm.Identifiers()

	allUnknown := ids.CPUID == SentinelCPU &&
		ids.MotherboardSerial == SentinelBoard &&
		ids.DiskSerial == SentinelDisk &&
		ids.BIOSUUID == SentinelBIOS &&
		ids.OSInstallID == SentinelOSID

	var combined string
	if allUnknown {
		hostname, err := os.Hostname()
		if err != nil || hostname == "" {
			hostname = "unknown-host"
		}
		combined = strings.ToLower(strings.TrimSpace(hostname))
		slog.Warn("All hardware identifiers unreadable, fingerprinting by hostname",
			slog.String("hostname", combined),
		)
	} else {
		combined = strings.Join([]string{
			ids.CPUID,
			ids.MotherboardSerial,
			ids.DiskSerial,
			ids.BIOSUUID,
			ids.OSInstallID,
		}, "|")
	}

	hash := sha256.Sum256([]byte(combined))
	fingerprint := hex.EncodeToString(hash[:])

	fm.cacheMutex.Lock()
	fm.cache = fingerprint
	fm.cacheIDs = ids
	fm.cacheExpiry = time.Now().Add(fm.cacheTTL)
	fm.cacheMutex.Unlock()

	slog.Debug("Device fingerprint generated",
		slog.String("fingerprint", fingerprint[:16]),
		slog.Bool("degraded", allUnknown),
	)

	return fingerprint
}

// Identifiers reads the five hardware identifiers, substituting sentinels for
// any that cannot be read.
func (fm *FingerprintManager) Identifiers() *HardwareIdentifiers {
	fm.cacheMutex.RLock()
	if fm.cacheIDs != nil && time.Now().Before(fm.cacheExpiry) {
		ids := *fm.cacheIDs
		fm.cacheMutex.RUnlock()
		return &ids
	}
	fm.cacheMutex.RUnlock()

	return &HardwareIdentifiers{
		CPUID:             readOrSentinel(readCPUID, SentinelCPU),
		MotherboardSerial: readOrSentinel(readBoardSerial, SentinelBoard),
		DiskSerial:        readOrSentinel(readDiskSerial, SentinelDisk),
		BIOSUUID:          readOrSentinel(readBIOSUUID, SentinelBIOS),
		OSInstallID:       readOrSentinel(readOSInstallID, SentinelOSID),
	}
}

func readOrSentinel(read func() (string, error), sentinel string) string {
	value, err := read()
	value = strings.TrimSpace(value)
	if err != nil || value == "" {
		return sentinel
	}
	return value
}

// readCPUID reads a CPU identifier through the platform API.
func readCPUID() (string, error) {
	switch runtime.GOOS {
	case "windows":
		if procID := os.Getenv("PROCESSOR_IDENTIFIER"); procID != "" {
			return procID, nil
		}
		return wmicValue("cpu", "ProcessorId")
	case "linux":
		data, err := os.ReadFile("/proc/cpuinfo")
		if err != nil {
			return "", err
		}
		for _, line := range strings.Split(string(data), "\n") {
			if strings.HasPrefix(line, "model name") {
				return line, nil
			}
		}
		return "", os.ErrNotExist
	case "darwin":
		return sysctlValue("machdep.cpu.brand_string")
	default:
		return "", os.ErrNotExist
	}
}

func readBoardSerial() (string, error) {
	switch runtime.GOOS {
	case "windows":
		return wmicValue("baseboard", "SerialNumber")
	case "linux":
		return readDMI("board_serial")
	default:
		return "", os.ErrNotExist
	}
}

func readDiskSerial() (string, error) {
	switch runtime.GOOS {
	case "windows":
		return wmicValue("diskdrive", "SerialNumber")
	case "linux":
		// First physical block device with a serial attribute.
		entries, err := os.ReadDir("/sys/block")
		if err != nil {
			return "", err
		}
		for _, entry := range entries {
			name := entry.Name()
			if strings.HasPrefix(name, "loop") || strings.HasPrefix(name, "ram") {
				continue
			}
			data, err := os.ReadFile("/sys/block/" + name + "/device/serial")
			if err == nil && len(strings.TrimSpace(string(data))) > 0 {
				return strings.TrimSpace(string(data)), nil
			}
		}
		return "", os.ErrNotExist
	default:
		return "", os.ErrNotExist
	}
}

func readBIOSUUID() (string, error) {
	switch runtime.GOOS {
	case "windows":
		return wmicValue("csproduct", "UUID")
	case "linux":
		return readDMI("product_uuid")
	case "darwin":
		return sysctlValue("kern.uuid")
	default:
		return "", os.ErrNotExist
	}
}

// readOSInstallID reads the OS installation identifier: MachineGuid on
// Windows, /etc/machine-id on Linux.
func readOSInstallID() (string, error) {
	switch runtime.GOOS {
	case "windows":
		out, err := exec.Command("reg", "query",
			`HKLM\SOFTWARE\Microsoft\Cryptography`, "/v", "MachineGuid").Output()
		if err != nil {
			return "", err
		}
		fields := strings.Fields(string(out))
		if len(fields) == 0 {
			return "", os.ErrNotExist
		}
		return fields[len(fields)-1], nil
	case "linux":
		data, err := os.ReadFile("/etc/machine-id")
		if err != nil {
			data, err = os.ReadFile("/var/lib/dbus/machine-id")
		}
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(data)), nil
	default:
		return "", os.ErrNotExist
	}
}

func readDMI(name string) (string, error) {
	data, err := os.ReadFile("/sys/class/dmi/id/" + name)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func wmicValue(class, property string) (string, error) {
	out, err := exec.Command("wmic", class, "get", property).Output()
	if err != nil {
		return "", err
	}
	lines := strings.Split(string(out), "\n")
	for _, line := range lines[1:] {
		if v := strings.TrimSpace(line); v != "" {
			return v, nil
		}
	}
	return "", os.ErrNotExist
}

func sysctlValue(key string) (string, error) {
	out, err := exec.Command("sysctl", "-n", key).Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

// ClearCache clears the cached fingerprint. Tests only.
func (fm *FingerprintManager) ClearCache() {
	fm.cacheMutex.Lock()
	defer fm.cacheMutex.Unlock()
	fm.cache = ""
	fm.cacheIDs = nil
	fm.cacheExpiry = time.Time{}
}
