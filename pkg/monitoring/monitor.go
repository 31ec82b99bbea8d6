package monitoring

import (
	"context"
	"sync"
	"time"

	"github.com/traaittPlatform/traaittplatformd-ha/pkg/errors"
	"github.com/traaittPlatform/traaittplatformd-ha/pkg/eventbus"
	"github.com/traaittPlatform/traaittplatformd-ha/pkg/logging"
	"github.com/traaittPlatform/traaittplatformd-ha/pkg/rpc"

	"golang.org/x/sync/errgroup"
)

// StatusReader is the part of the node client the monitor polls.
type StatusReader interface {
	Status(ctx context.Context) (*rpc.Info, error)
	Height(ctx context.Context) (*rpc.HeightInfo, error)
}

// LivenessProber asks the node to echo on its console.
type LivenessProber interface {
	CheckResponsive(ctx context.Context) error
}

type Config struct {
	PollingInterval    time.Duration
	MaxPollingFailures int
	MaxDeviance        int64
	CheckHeight        bool
	BlockTargetTime    time.Duration
}

// Monitor watches the node until it is synced, then checks its health every
// polling interval and turns a run of failures into a down event.
//
// Events published from a tick run on the tick goroutine; their handlers
// must not call Stop or Reset synchronously.
type Monitor struct {
	config Config
	reader StatusReader
	prober LivenessProber
	bus    *eventbus.Bus
	logger logging.Logger

	mutex      sync.Mutex
	state      HealthState
	synced     bool
	checks     CheckState
	snapshot   SyncSnapshot
	syncLoop   *loop
	healthLoop *loop
	runCtx     context.Context
	cancel     context.CancelFunc
	trigger    *time.Timer
	triggerGen uint64
}

func NewMonitor(config Config, reader StatusReader, prober LivenessProber, bus *eventbus.Bus, logger logging.Logger) (*Monitor, error) {
	if err := ValidateConfig(config); err != nil {
		return nil, err
	}
	if reader == nil || prober == nil || bus == nil {
		return nil, errors.NewValidationError("status reader, prober and bus are required", nil)
	}
	return &Monitor{
		config: config,
		reader: reader,
		prober: prober,
		bus:    bus,
		logger: logger,
		state:  StateStarting,
	}, nil
}

func (m *Monitor) State() HealthState {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.state
}

func (m *Monitor) Synced() bool {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.synced
}

func (m *Monitor) Snapshot() SyncSnapshot {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.snapshot
}

func (m *Monitor) Checks() CheckState {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	checks := m.checks
	checks.TriggerArmed = m.trigger != nil
	return checks
}

// Reset stops everything and returns to Starting, forgetting that a check
// has ever passed.
func (m *Monitor) Reset() {
	m.Stop()

	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.state = StateStarting
	m.checks = CheckState{}
	m.snapshot = SyncSnapshot{}
}

// Stop cancels both loops and the down trigger and clears the synced flag.
func (m *Monitor) Stop() {
	syncLoop, healthLoop := m.detachLoops()

	if syncLoop != nil {
		syncLoop.stop()
	}
	if healthLoop != nil {
		healthLoop.stop()
	}
}

func (m *Monitor) detachLoops() (*loop, *loop) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	m.disarmLocked()
	m.synced = false

	syncLoop, healthLoop := m.syncLoop, m.healthLoop
	m.syncLoop, m.healthLoop = nil, nil
	return syncLoop, healthLoop
}

// MarkStopped records that the node process has exited.
func (m *Monitor) MarkStopped() {
	m.Stop()
	m.setState(StateStopped)
}

// StartSyncWatch polls the node height until it matches the network height.
func (m *Monitor) StartSyncWatch(ctx context.Context) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.syncLoop != nil || m.synced {
		return
	}

	runCtx := m.runContextLocked(ctx)
	m.state = StateAwaitingSync
	m.logger.Infof("Starting sync watch, interval: %v", m.config.PollingInterval)
	m.syncLoop = startLoop(m.config.PollingInterval, func() bool {
		return m.syncTick(runCtx)
	})
}

func (m *Monitor) runContextLocked(ctx context.Context) context.Context {
	if m.cancel == nil {
		m.runCtx, m.cancel = context.WithCancel(ctx)
	}
	return m.runCtx
}

func (m *Monitor) syncTick(ctx context.Context) bool {
	height, err := m.reader.Height(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return true
		}
		m.logger.Warnf("Sync poll failed, error: %v", err)
		m.bus.Publish(eventbus.EventWarning, err)
		return false
	}

	status := eventbus.SyncStatus{
		Height:        height.Height,
		NetworkHeight: height.NetworkHeight,
		Percent:       SyncPercent(height.Height, height.NetworkHeight),
	}
	m.updateSnapshot(height.Height, height.NetworkHeight, height.Status)
	m.bus.Publish(eventbus.EventSyncing, status)

	if height.Height == height.NetworkHeight && height.Height > 1 {
		if !m.markSynced() {
			return true
		}
		m.logger.Infof("Daemon synced, height: %d", height.Height)
		m.bus.Publish(eventbus.EventSynced, status)
		m.startHealthChecks(ctx)
		return true
	}
	return false
}

func (m *Monitor) markSynced() bool {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.cancel == nil {
		return false
	}
	m.synced = true
	m.state = StateSynced
	return true
}

// StartHealthChecks begins the periodic health check.
func (m *Monitor) StartHealthChecks(ctx context.Context) {
	m.mutex.Lock()
	runCtx := m.runContextLocked(ctx)
	m.synced = true
	m.mutex.Unlock()

	m.startHealthChecks(runCtx)
}

func (m *Monitor) startHealthChecks(ctx context.Context) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.healthLoop != nil || m.cancel == nil {
		return
	}

	m.state = StateSynced
	m.logger.Infof("Starting health checks, interval: %v, max failures: %d", m.config.PollingInterval, m.config.MaxPollingFailures)
	m.healthLoop = startLoop(m.config.PollingInterval, func() bool {
		if ctx.Err() != nil {
			return true
		}
		m.Check(ctx)
		return false
	})
}

// Check runs one health check: the node RPC reads and the console probe
// run concurrently and all must succeed.
func (m *Monitor) Check(ctx context.Context) error {
	var info *rpc.Info
	var height *rpc.HeightInfo

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		info, height, err = m.checkRPC(gctx)
		return err
	})
	g.Go(func() error {
		return m.prober.CheckResponsive(gctx)
	})

	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			return errors.NewCancelledError("health check cancelled", ctx.Err())
		}
		m.recordFailure(err.Error())
		m.logger.Warnf("Health check failed, error: %v", err)
		m.bus.Publish(eventbus.EventError, err)
		m.triggerDown()
		return err
	}

	m.updateSnapshot(height.Height, height.NetworkHeight, height.Status)
	ready := ReadyInfo{
		Info:           *info,
		GlobalHashRate: GlobalHashRate(info.Difficulty, m.config.BlockTargetTime),
	}

	if m.config.CheckHeight {
		deviance := Deviance(height.Height, height.NetworkHeight)
		if deviance > m.config.MaxDeviance {
			m.recordFailure("desynchronized")
			m.setState(StateDesynced)
			m.logger.Warnf("Daemon desynced, height: %d, network height: %d, deviance: %d",
				height.Height, height.NetworkHeight, deviance)
			m.bus.Publish(eventbus.EventDesync, eventbus.DesyncInfo{
				Height:        height.Height,
				NetworkHeight: height.NetworkHeight,
				Deviance:      deviance,
			})
			m.triggerDown()
			return nil
		}
	}

	m.recordSuccess()
	m.triggerUp()
	m.setState(StateMonitoring)
	m.bus.Publish(eventbus.EventReady, ready)
	return nil
}

func (m *Monitor) checkRPC(ctx context.Context) (*rpc.Info, *rpc.HeightInfo, error) {
	var info *rpc.Info
	var height *rpc.HeightInfo

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		info, err = m.reader.Status(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		height, err = m.reader.Height(gctx)
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, nil, errors.NewHealthCheckError("Daemon is not passing checks", err)
	}

	if info.Height != height.Height || info.Status != height.Status {
		return nil, nil, errors.NewHealthCheckError("Daemon is not passing checks",
			errors.NewConsistencyError("Daemon is returning inconsistent results", nil).
				WithContext("info_height", info.Height).
				WithContext("height", height.Height).
				WithContext("info_status", info.Status).
				WithContext("height_status", height.Status))
	}

	return info, height, nil
}

func (m *Monitor) setState(state HealthState) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if m.state != state {
		m.logger.Debugf("Health state changed, %s->%s", m.state, state)
	}
	m.state = state
}

func (m *Monitor) updateSnapshot(height, networkHeight int64, status string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.snapshot = SyncSnapshot{
		LocalHeight:   height,
		NetworkHeight: networkHeight,
		Percent:       SyncPercent(height, networkHeight),
		Status:        status,
		Updated:       time.Now(),
	}
}

func (m *Monitor) recordSuccess() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.checks.LastCheck = time.Now()
	m.checks.Message = ""
	m.checks.ConsecutiveSuccesses++
	m.checks.ConsecutiveFailures = 0
}

func (m *Monitor) recordFailure(message string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.checks.LastCheck = time.Now()
	m.checks.Message = message
	m.checks.ConsecutiveFailures++
	m.checks.ConsecutiveSuccesses = 0
}
