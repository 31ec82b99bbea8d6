// Package checkpoints refreshes the node's checkpoint file.
package checkpoints

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/traaittPlatform/traaittplatformd-ha/pkg/errors"
	"github.com/traaittPlatform/traaittplatformd-ha/pkg/logging"
)

// Refresh removes dest and replaces it with the file served at url. The
// download goes to a temporary file next to dest and is renamed into place
// only once complete.
func Refresh(ctx context.Context, url, dest string, client *http.Client, logger logging.Logger) error {
	if url == "" || dest == "" {
		return errors.NewValidationError("checkpoints url and destination are required", nil)
	}
	if client == nil {
		client = http.DefaultClient
	}

	if err := os.Remove(dest); err != nil {
		if !os.IsNotExist(err) {
			return errors.NewIOError("failed to delete checkpoints file", err).WithContext("file", dest)
		}
		logger.Infof("%s not found, skipping delete...", dest)
	} else {
		logger.Infof("Deleting %s...", dest)
	}

	logger.Infof("Downloading latest checkpoints file...")
	if err := download(ctx, client, url, dest); err != nil {
		return err
	}
	logger.Infof("Downloaded %s to %s", url, dest)
	return nil
}

func download(ctx context.Context, client *http.Client, url, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return errors.NewValidationError("invalid checkpoints url", err).WithContext("url", url)
	}

	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return errors.NewCancelledError("checkpoints download cancelled", ctx.Err())
		}
		return errors.NewNetworkError("checkpoints download failed", err).WithContext("url", url)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errors.NewNetworkError(fmt.Sprintf("checkpoints download returned %s", resp.Status), nil).WithContext("url", url)
	}

	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.NewIOError("failed to create checkpoints directory", err).WithContext("dir", dir)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(dest)+".*.tmp")
	if err != nil {
		return errors.NewIOError("failed to create temporary checkpoints file", err).WithContext("dir", dir)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		return errors.NewIOError("failed to write checkpoints file", err).WithContext("file", tmpName)
	}
	if err := tmp.Close(); err != nil {
		return errors.NewIOError("failed to close checkpoints file", err).WithContext("file", tmpName)
	}
	if err := os.Rename(tmpName, dest); err != nil {
		return errors.NewIOError("failed to move checkpoints file into place", err).WithContext("file", dest)
	}
	return nil
}
