package processfile

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/traaittPlatform/traaittplatformd-ha/pkg/errors"
)

// DefaultFileName is the node PID file created inside the data directory.
const DefaultFileName = "traaittPlatformd.pid"

// PIDFilePath returns the PID file location for a data directory.
func PIDFilePath(dataDir string) string {
	return filepath.Join(dataDir, DefaultFileName)
}

// WritePIDFile records pid at path, creating the parent directory if needed.
func WritePIDFile(path string, pid int) error {
	if pid <= 0 {
		return errors.NewValidationError("PID must be positive", nil).WithContext("pid", pid)
	}
	if err := ValidatePIDFileDirectory(path); err != nil {
		return errors.NewIOError("PID file directory validation failed", err).WithContext("pid_file", path)
	}

	if err := os.WriteFile(path, []byte(fmt.Sprintf("%d\n", pid)), 0644); err != nil {
		return errors.NewIOError("failed to write PID file", err).WithContext("pid_file", path).WithContext("pid", pid)
	}
	return nil
}

// ReadPIDFile returns the PID stored at path. A missing file is reported as
// a not-found error.
func ReadPIDFile(path string) (int, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, errors.NewNotFoundError("PID file not found", err).WithContext("pid_file", path)
		}
		return 0, errors.NewIOError("failed to read PID file", err).WithContext("pid_file", path)
	}

	text := strings.TrimSpace(string(content))
	pid, err := strconv.Atoi(text)
	if err != nil || pid <= 0 {
		return 0, errors.NewParseError("invalid PID in PID file", err).WithContext("pid_file", path).WithContext("content", text)
	}
	return pid, nil
}

// RemovePIDFile deletes path; a missing file is not an error.
func RemovePIDFile(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.NewIOError("failed to remove PID file", err).WithContext("pid_file", path)
	}
	return nil
}

// ValidatePIDFileDirectory makes sure the directory holding path exists and
// is a directory.
func ValidatePIDFileDirectory(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.NewIOError("failed to create PID file directory", err).WithContext("directory", dir)
	}

	info, err := os.Stat(dir)
	if err != nil {
		return errors.NewIOError("failed to stat PID file directory", err).WithContext("directory", dir)
	}
	if !info.IsDir() {
		return errors.NewValidationError("PID file parent is not a directory", nil).WithContext("directory", dir)
	}
	return nil
}
