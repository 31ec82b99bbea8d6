//go:build !windows

package daemon

import (
	"os"
	"os/exec"
	"syscall"
)

// setupProcessAttributes puts the node in its own process group so the kill
// reaches its children too.
func setupProcessAttributes(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}
}

func killProcessGroup(process *os.Process) error {
	if err := syscall.Kill(-process.Pid, syscall.SIGKILL); err != nil {
		return process.Kill()
	}
	return nil
}
