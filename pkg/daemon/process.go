package daemon

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/traaittPlatform/traaittplatformd-ha/pkg/errors"
	"github.com/traaittPlatform/traaittplatformd-ha/pkg/logging"
	"github.com/traaittPlatform/traaittplatformd-ha/pkg/processstate"
)

const (
	maxLineSize = 1024 * 1024
	killWait    = 5 * time.Second
)

// Options describe how the node is spawned.
type Options struct {
	Path string
	Args []string
	// Dir is the working directory; empty means the user's home directory.
	Dir string
	// Environment is appended to the inherited environment.
	Environment []string
}

// LineHandler receives every non-empty output line, trimmed.
type LineHandler func(line string)

// Process owns a running node, its input stream and its merged output.
type Process struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	logger logging.Logger

	writeMutex sync.Mutex

	done      chan struct{}
	exitCode  int
	streamErr error
}

// Spawn starts the node and begins scanning its output. onLine runs on the
// output goroutine.
func Spawn(ctx context.Context, opts Options, onLine LineHandler, logger logging.Logger) (*Process, error) {
	if ctx == nil {
		return nil, errors.NewValidationError("context cannot be nil", nil)
	}

	if err := ValidateOptions(opts); err != nil {
		return nil, err
	}

	if err := ensureExecutable(opts.Path); err != nil {
		return nil, errors.NewPermissionError("failed to ensure daemon is executable", err).WithContext("path", opts.Path)
	}

	workDir := opts.Dir
	if workDir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			workDir = home
		}
	}

	cmd := exec.Command(opts.Path, opts.Args...)
	cmd.Dir = workDir
	cmd.Env = append(os.Environ(), opts.Environment...)

	setupProcessAttributes(cmd)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, errors.NewProcessError("failed to create stdin pipe", err).WithContext("path", opts.Path)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errors.NewProcessError("failed to create stdout pipe", err).WithContext("path", opts.Path)
	}
	cmd.Stderr = cmd.Stdout

	logger.Debugf("Executing daemon, path: '%s', args: %v, working directory: '%s'", opts.Path, opts.Args, workDir)

	if err := cmd.Start(); err != nil {
		return nil, errors.NewProcessError("failed to start the daemon", err).WithContext("path", opts.Path)
	}

	logger.Infof("Successfully executed daemon, PID: %d", cmd.Process.Pid)

	p := &Process{
		cmd:    cmd,
		stdin:  stdin,
		logger: logger,
		done:   make(chan struct{}),
	}

	go p.run(stdout, onLine)

	return p, nil
}

func (p *Process) run(stdout io.Reader, onLine LineHandler) {
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if onLine != nil {
			onLine(line)
		}
	}
	scanErr := scanner.Err()
	if scanErr != nil {
		// Keep draining so the node never blocks on a full pipe.
		io.Copy(io.Discard, stdout)
	}

	waitErr := p.cmd.Wait()

	p.exitCode = -1
	if p.cmd.ProcessState != nil {
		p.exitCode = p.cmd.ProcessState.ExitCode()
	}
	if scanErr != nil {
		p.streamErr = errors.NewIOError("failed to read daemon output", scanErr).WithContext("pid", p.PID())
	}

	p.logger.Infof("Daemon exited, PID: %d, exit code: %d, wait: %v", p.PID(), p.exitCode, waitErr)
	close(p.done)
}

// PID of the node.
func (p *Process) PID() int {
	return p.cmd.Process.Pid
}

// Done is closed once the node has exited and its output is drained.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// ExitCode is valid after Done is closed; -1 means killed by a signal.
func (p *Process) ExitCode() int {
	<-p.done
	return p.exitCode
}

// StreamErr reports an output stream failure; valid after Done is closed.
func (p *Process) StreamErr() error {
	<-p.done
	return p.streamErr
}

// Exited reports whether the node has exited.
func (p *Process) Exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// Write sends one command line to the node's console.
func (p *Process) Write(command string) error {
	p.writeMutex.Lock()
	defer p.writeMutex.Unlock()

	if p.Exited() {
		return errors.NewProcessError("daemon has exited", nil).WithContext("command", command)
	}
	if _, err := fmt.Fprintf(p.stdin, "%s\n", command); err != nil {
		return errors.NewIOError("failed to write to daemon", err).WithContext("command", command)
	}
	return nil
}

// Terminate asks the node to exit, waits up to grace for it, then kills its
// process group.
func (p *Process) Terminate(ctx context.Context, grace time.Duration) error {
	pid := p.PID()

	if err := p.Write("exit"); err != nil {
		p.logger.Warnf("Failed to send exit command, PID: %d, error: %v", pid, err)
	}

	select {
	case <-p.done:
		p.logger.Infof("Daemon PID %d exited gracefully", pid)
		return nil
	case <-time.After(grace):
		p.logger.Warnf("Daemon PID %d did not exit within %v, killing", pid, grace)
	case <-ctx.Done():
		p.logger.Warnf("Context cancelled while waiting for daemon PID %d, killing", pid)
	}

	if running, err := processstate.IsProcessRunning(pid); err != nil || running {
		if err := killProcessGroup(p.cmd.Process); err != nil {
			p.logger.Errorf("Failed to kill daemon PID %d: %v", pid, err)
		}
	}

	select {
	case <-p.done:
		p.logger.Infof("Daemon PID %d killed", pid)
		return nil
	case <-time.After(killWait):
		return errors.NewTimeoutError("daemon did not exit after kill", nil).WithContext("pid", pid)
	}
}
