//go:build !windows

package processstate

import (
	stderrors "errors"
	"os"
	"syscall"

	"github.com/traaittPlatform/traaittplatformd-ha/pkg/errors"
)

// IsProcessRunning probes pid with signal 0. A zombie still counts as running
// until it is reaped.
func IsProcessRunning(pid int) (bool, error) {
	if pid <= 0 {
		return false, errors.NewValidationError("PID must be positive", nil).WithContext("pid", pid)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return false, errors.NewProcessError("failed to find process", err).WithContext("pid", pid)
	}

	err = process.Signal(syscall.Signal(0))
	switch {
	case err == nil:
		return true, nil
	case stderrors.Is(err, os.ErrProcessDone), stderrors.Is(err, syscall.ESRCH):
		return false, nil
	case stderrors.Is(err, syscall.EPERM):
		// Exists but belongs to someone else.
		return true, nil
	default:
		return false, errors.NewProcessError("failed to probe process", err).WithContext("pid", pid)
	}
}
