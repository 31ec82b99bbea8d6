package daemon

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/traaittPlatform/traaittplatformd-ha/pkg/errors"
)

// ValidateOptions validates spawn options
func ValidateOptions(opts Options) error {
	if opts.Path == "" {
		return errors.NewValidationError("daemon path is required", nil)
	}

	if _, err := os.Stat(opts.Path); os.IsNotExist(err) {
		return errors.NewNotFoundError("daemon not found: "+opts.Path, err)
	}

	if opts.Dir != "" {
		if !filepath.IsAbs(opts.Dir) {
			return errors.NewValidationError("working directory must be absolute path", nil)
		}

		if info, err := os.Stat(opts.Dir); err != nil {
			return errors.NewValidationError("working directory not accessible: "+opts.Dir, err)
		} else if !info.IsDir() {
			return errors.NewValidationError("working directory is not a directory: "+opts.Dir, nil)
		}
	}

	for _, env := range opts.Environment {
		if !strings.Contains(env, "=") {
			return errors.NewValidationError("invalid environment variable format: "+env, nil)
		}
	}

	return nil
}

// ensureExecutable sets the execute bits on path if none are set.
func ensureExecutable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return errors.NewIOError("file does not exist", err).WithContext("path", path)
	}

	if runtime.GOOS == "windows" {
		return nil
	}

	mode := info.Mode()
	if mode&0111 != 0 {
		return nil
	}

	if err := os.Chmod(path, mode|0111); err != nil {
		return errors.NewPermissionError("failed to make file executable", err).WithContext("path", path)
	}

	return nil
}
