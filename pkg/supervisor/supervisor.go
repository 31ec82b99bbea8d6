package supervisor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/traaittPlatform/traaittplatformd-ha/pkg/config"
	"github.com/traaittPlatform/traaittplatformd-ha/pkg/daemon"
	"github.com/traaittPlatform/traaittplatformd-ha/pkg/domain"
	"github.com/traaittPlatform/traaittplatformd-ha/pkg/errors"
	"github.com/traaittPlatform/traaittplatformd-ha/pkg/eventbus"
	"github.com/traaittPlatform/traaittplatformd-ha/pkg/logging"
	"github.com/traaittPlatform/traaittplatformd-ha/pkg/monitoring"
	"github.com/traaittPlatform/traaittplatformd-ha/pkg/processfile"
	"github.com/traaittPlatform/traaittplatformd-ha/pkg/processstate"
	"github.com/traaittPlatform/traaittplatformd-ha/pkg/rpc"
)

const banner = "************************************************"

// Supervisor owns the node process and drives its lifecycle events.
type Supervisor struct {
	config  *config.Config
	bus     *eventbus.Bus
	client  rpc.Capabilities
	monitor *monitoring.Monitor
	logger  logging.Logger

	mutex        sync.Mutex
	process      *daemon.Process
	startedAt    time.Time
	retryTimer   *time.Timer
	stoppedTimer *time.Timer
	exitPending  bool
	helpWaiter   chan struct{}
	runCtx       context.Context
	closed       bool
}

// New wires a supervisor, its health monitor and the bus handlers that move
// the node through its lifecycle.
func New(cfg *config.Config, bus *eventbus.Bus, client rpc.Capabilities, logger logging.Logger) (*Supervisor, error) {
	if cfg == nil || bus == nil || client == nil {
		return nil, errors.NewValidationError("config, bus and client are required", nil)
	}

	s := &Supervisor{
		config: cfg,
		bus:    bus,
		client: client,
		logger: logger,
		runCtx: context.Background(),
	}

	monitor, err := monitoring.NewMonitor(monitoring.Config{
		PollingInterval:    cfg.Monitor.PollingInterval,
		MaxPollingFailures: cfg.Monitor.MaxPollingFailures,
		MaxDeviance:        *cfg.Monitor.MaxDeviance,
		CheckHeight:        config.IsSet(cfg.Monitor.CheckHeight),
		BlockTargetTime:    cfg.Monitor.BlockTargetTime,
	}, client, s, bus, logging.WithPrefix("module: monitor , ", logger))
	if err != nil {
		return nil, err
	}
	s.monitor = monitor

	bus.Subscribe(eventbus.EventStarted, s.onStarted)
	bus.Subscribe(eventbus.EventTopBlock, s.onTopBlock)
	bus.Subscribe(eventbus.EventStopped, s.onStopped)

	return s, nil
}

func (s *Supervisor) Bus() *eventbus.Bus {
	return s.bus
}

func (s *Supervisor) Monitor() *monitoring.Monitor {
	return s.monitor
}

// Start launches the node. A stale database lock defers the start by the
// retry delay; a missing binary is fatal and is not retried.
func (s *Supervisor) Start(ctx context.Context) error {
	if err := s.beginStart(ctx); err != nil {
		return err
	}

	dataDir := s.config.Daemon.DataDir
	if s.orphanAlive(dataDir) {
		s.scheduleRetry()
		return nil
	}

	lockFile := filepath.Join(dataDir, "DB", "LOCK")
	if fileExists(lockFile) {
		s.bus.Publish(eventbus.EventError, "Database LOCK file exists...")
		if config.IsSet(s.config.Supervisor.ClearDBLockFile) {
			if err := os.Remove(lockFile); err != nil {
				s.bus.Publish(eventbus.EventError, fmt.Sprintf("Could not delete the DB LOCK File at: %s: %v", lockFile, err))
			} else {
				s.bus.Publish(eventbus.EventInfo, fmt.Sprintf("Deleted the DB LOCK File at: %s", lockFile))
			}
		}
		s.scheduleRetry()
		return nil
	}

	s.bus.Publish(eventbus.EventInfo, "Attempting to start traaittplatformd-ha...")

	path := s.config.Daemon.Path
	if !fileExists(path) {
		s.publishBanner(eventbus.EventError,
			fmt.Sprintf("%s could not be found", path),
			"HALTING THE SERVICE DUE TO ERROR")
		return errors.NewNotFoundError("daemon binary not found", nil).WithContext("path", path)
	}

	if !fileExists(dataDir) {
		s.publishBanner(eventbus.EventInfo,
			fmt.Sprintf("%s could not be found", dataDir),
			"It is highly recommended that you bootstrap the blockchain before utilizing this service.",
			"You will be waiting a while for the service to reported as running correctly without bootstrapping.")
		if err := os.MkdirAll(dataDir, 0755); err != nil {
			s.bus.Publish(eventbus.EventError, fmt.Sprintf("Could not create blockchain directory %s: %v", dataDir, err))
			return errors.NewIOError("failed to create data directory", err).WithContext("data_dir", dataDir)
		}
	}

	if config.IsSet(s.config.Supervisor.ClearP2POnStart) {
		p2pFile := filepath.Join(dataDir, "p2pstate.bin")
		if fileExists(p2pFile) {
			if err := os.Remove(p2pFile); err != nil {
				s.bus.Publish(eventbus.EventError, fmt.Sprintf("Could not delete the P2P State File at: %s: %v", p2pFile, err))
			} else {
				s.bus.Publish(eventbus.EventInfo, fmt.Sprintf("Deleted the P2P State File at: %s", p2pFile))
			}
		}
	}

	s.monitor.Reset()

	args := daemon.BuildArgs(s.config.Daemon)
	proc, err := daemon.Spawn(ctx, daemon.Options{Path: path, Args: args}, s.handleLine,
		logging.WithPrefix("module: daemon , ", s.logger))
	if err != nil {
		s.bus.Publish(eventbus.EventError, fmt.Sprintf("Error in child process...: %v", err))
		s.bus.Publish(eventbus.EventDown, nil)
		return err
	}

	if err := s.attach(proc); err != nil {
		proc.Terminate(context.Background(), s.config.GracePeriod())
		return err
	}
	if err := processfile.WritePIDFile(processfile.PIDFilePath(dataDir), proc.PID()); err != nil {
		s.logger.Warnf("Could not record daemon PID: %v", err)
	}
	go s.watch(proc)

	s.bus.Publish(eventbus.EventStart, eventbus.StartInfo{CommandLine: daemon.CommandLine(path, args)})
	return nil
}

// orphanAlive reports whether a node recorded by an earlier run still owns
// the data directory. A stale PID file is removed.
func (s *Supervisor) orphanAlive(dataDir string) bool {
	pidFile := processfile.PIDFilePath(dataDir)
	pid, err := processfile.ReadPIDFile(pidFile)
	if err != nil {
		if !errors.IsNotFoundError(err) {
			s.logger.Warnf("Ignoring unreadable PID file %s: %v", pidFile, err)
			processfile.RemovePIDFile(pidFile)
		}
		return false
	}

	running, err := processstate.IsProcessRunning(pid)
	if err != nil {
		s.logger.Warnf("Could not check PID %d from %s: %v", pid, pidFile, err)
	}
	if running && pid != os.Getpid() {
		s.bus.Publish(eventbus.EventError,
			fmt.Sprintf("traaittPlatformd from a previous run is still running with PID %d", pid))
		return true
	}

	s.logger.Infof("Removing stale PID file %s (PID %d)", pidFile, pid)
	processfile.RemovePIDFile(pidFile)
	return false
}

func (s *Supervisor) beginStart(ctx context.Context) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.closed {
		return errors.NewCancelledError("supervisor is closed", nil)
	}
	if s.process != nil {
		return errors.NewConflictError("daemon is already running", nil).WithContext("pid", s.process.PID())
	}
	if s.retryTimer != nil {
		s.retryTimer.Stop()
		s.retryTimer = nil
	}
	s.runCtx = ctx
	return nil
}

func (s *Supervisor) attach(proc *daemon.Process) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.closed || s.process != nil {
		return errors.NewConflictError("daemon start raced with another start or close", nil)
	}
	s.process = proc
	s.startedAt = time.Now()
	return nil
}

func (s *Supervisor) scheduleRetry() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.closed {
		return
	}
	ctx := s.runCtx
	delay := s.config.Supervisor.LockRetryDelay
	s.logger.Warnf("Deferring daemon start, retry in: %v", delay)
	s.retryTimer = time.AfterFunc(delay, func() {
		if err := s.Start(ctx); err != nil {
			s.logger.Errorf("Deferred daemon start failed: %v", err)
		}
	})
}

// watch waits for the node to exit and publishes stopped after the
// configured delay so trailing output is delivered first.
func (s *Supervisor) watch(proc *daemon.Process) {
	<-proc.Done()

	if err := proc.StreamErr(); err != nil {
		s.bus.Publish(eventbus.EventError, fmt.Sprintf("Error in child process...: %v", err))
		s.bus.Publish(eventbus.EventDown, nil)
	}

	exitCode := proc.ExitCode()
	s.logger.Infof("Daemon exited, exit code: %d", exitCode)

	pidFile := processfile.PIDFilePath(s.config.Daemon.DataDir)
	if pid, err := processfile.ReadPIDFile(pidFile); err == nil && pid == proc.PID() {
		if err := processfile.RemovePIDFile(pidFile); err != nil {
			s.logger.Warnf("Could not remove PID file: %v", err)
		}
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.process == proc {
		s.process = nil
	}
	if s.closed {
		return
	}
	s.exitPending = true
	s.stoppedTimer = time.AfterFunc(s.config.Supervisor.StoppedDelay, func() {
		s.mutex.Lock()
		s.exitPending = false
		s.mutex.Unlock()
		s.bus.Publish(eventbus.EventStopped, eventbus.StoppedInfo{ExitCode: exitCode})
	})
}

// Stop halts health checking, asks the node to exit and kills it if it is
// still alive after the grace period. A node that already exited and whose
// stopped event is still pending counts as stopped.
func (s *Supervisor) Stop(ctx context.Context) error {
	proc, exitPending := s.detachForStop()
	s.monitor.Stop()

	if proc == nil {
		if exitPending {
			s.logger.Debugf("Daemon already exited, stopped event pending")
			return nil
		}
		return errors.NewNotFoundError("daemon is not running", nil)
	}
	return proc.Terminate(ctx, s.config.GracePeriod())
}

func (s *Supervisor) detachForStop() (*daemon.Process, bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.retryTimer != nil {
		s.retryTimer.Stop()
		s.retryTimer = nil
	}
	return s.process, s.exitPending
}

// Close stops the node and cancels every pending timer, including a pending
// stopped event.
func (s *Supervisor) Close(ctx context.Context) error {
	s.mutex.Lock()
	s.closed = true
	s.mutex.Unlock()

	err := s.Stop(ctx)
	if errors.IsNotFoundError(err) {
		err = nil
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.stoppedTimer != nil {
		s.stoppedTimer.Stop()
		s.stoppedTimer = nil
	}
	s.exitPending = false
	return err
}

// Write sends a console command to the node.
func (s *Supervisor) Write(command string) error {
	proc := s.currentProcess()
	if proc == nil {
		return errors.NewNotFoundError("daemon is not running", nil).WithContext("command", command)
	}
	return proc.Write(command)
}

func (s *Supervisor) currentProcess() *daemon.Process {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.process
}

// Status implements domain.Contract.
func (s *Supervisor) Status(ctx context.Context) (*domain.Status, error) {
	snapshot := s.monitor.Snapshot()
	checks := s.monitor.Checks()

	st := &domain.Status{
		State:            s.monitor.State().String(),
		Synced:           s.monitor.Synced(),
		Height:           snapshot.LocalHeight,
		NetworkHeight:    snapshot.NetworkHeight,
		Percent:          snapshot.Percent,
		ConsecutiveFails: checks.ConsecutiveFailures,
		TriggerArmed:     checks.TriggerArmed,
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.process != nil {
		st.Running = true
		st.PID = s.process.PID()
		st.Uptime = time.Since(s.startedAt).Round(time.Second)
	}
	return st, nil
}

func (s *Supervisor) publishBanner(event eventbus.Event, lines ...string) {
	s.bus.Publish(event, banner)
	for _, line := range lines {
		s.bus.Publish(event, line)
	}
	s.bus.Publish(event, banner)
}

func (s *Supervisor) onStarted(interface{}) {
	s.mutex.Lock()
	ctx := s.runCtx
	s.mutex.Unlock()

	s.monitor.StartSyncWatch(ctx)
}

func (s *Supervisor) onTopBlock(interface{}) {
	if !s.monitor.Synced() {
		return
	}

	s.mutex.Lock()
	ctx := s.runCtx
	s.mutex.Unlock()

	go func() {
		rpcCtx, cancel := context.WithTimeout(ctx, 2*s.config.Supervisor.Timeout)
		defer cancel()

		header, err := s.client.LastBlockHeader(rpcCtx)
		if err != nil {
			s.bus.Publish(eventbus.EventError, err)
			return
		}
		block, err := s.client.Block(rpcCtx, header.Hash)
		if err != nil {
			s.bus.Publish(eventbus.EventError, err)
			return
		}
		s.bus.Publish(eventbus.EventBlock, block)
	}()
}

func (s *Supervisor) onStopped(interface{}) {
	s.monitor.MarkStopped()
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
