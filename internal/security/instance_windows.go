//go:build windows

package security

import "golang.org/x/sys/windows"

// stillActive is the Windows STILL_ACTIVE exit code (STATUS_PENDING, 259)
// reported by GetExitCodeProcess for a running process.
const stillActive uint32 = 259

// pidAlive reports whether the given PID refers to a running process.
// os.Process.Signal cannot probe liveness on Windows (only os.Kill is
// supported, so every probe signal errors even for a live process); query
// the process handle instead.
func pidAlive(pid int) bool {
	handle, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION, false, uint32(pid))
	if err != nil {
		return false
	}
	defer windows.CloseHandle(handle)

	var exitCode uint32
	if err := windows.GetExitCodeProcess(handle, &exitCode); err != nil {
		return false
	}
	return exitCode == stillActive
}
