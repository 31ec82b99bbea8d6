//go:build !windows

package processstate

import (
	"os"
	"os/exec"
	"testing"

	"github.com/traaittPlatform/traaittplatformd-ha/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsProcessRunning(t *testing.T) {
	running, err := IsProcessRunning(os.Getpid())
	require.NoError(t, err)
	assert.True(t, running)

	cmd := exec.Command("/bin/sh", "-c", "exit 0")
	require.NoError(t, cmd.Start())
	pid := cmd.Process.Pid
	require.NoError(t, cmd.Wait())

	running, err = IsProcessRunning(pid)
	require.NoError(t, err)
	assert.False(t, running)

	_, err = IsProcessRunning(0)
	assert.True(t, errors.IsValidationError(err))
}
