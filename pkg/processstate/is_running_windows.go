//go:build windows

package processstate

import (
	"syscall"

	"github.com/traaittPlatform/traaittplatformd-ha/pkg/errors"
)

const (
	stillActive                    = 259
	processQueryLimitedInformation = 0x1000
)

// IsProcessRunning reports whether pid has not yet produced an exit code.
func IsProcessRunning(pid int) (bool, error) {
	if pid <= 0 {
		return false, errors.NewValidationError("PID must be positive", nil).WithContext("pid", pid)
	}

	handle, err := syscall.OpenProcess(processQueryLimitedInformation, false, uint32(pid))
	if err != nil {
		return false, nil
	}
	defer syscall.CloseHandle(handle)

	var exitCode uint32
	if err := syscall.GetExitCodeProcess(handle, &exitCode); err != nil {
		return false, errors.NewProcessError("failed to read exit code", err).WithContext("pid", pid)
	}

	return exitCode == stillActive, nil
}
