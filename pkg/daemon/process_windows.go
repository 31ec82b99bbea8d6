//go:build windows

package daemon

import (
	"os"
	"os/exec"
)

func setupProcessAttributes(cmd *exec.Cmd) {}

func killProcessGroup(process *os.Process) error {
	return process.Kill()
}
