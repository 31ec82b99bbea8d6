package service

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/traaittPlatform/traaittplatformd-ha/pkg/checkpoints"
	"github.com/traaittPlatform/traaittplatformd-ha/pkg/config"
	"github.com/traaittPlatform/traaittplatformd-ha/pkg/control"
	"github.com/traaittPlatform/traaittplatformd-ha/pkg/errors"
	"github.com/traaittPlatform/traaittplatformd-ha/pkg/eventbus"
	"github.com/traaittPlatform/traaittplatformd-ha/pkg/logging"
	"github.com/traaittPlatform/traaittplatformd-ha/pkg/metrics"
	"github.com/traaittPlatform/traaittplatformd-ha/pkg/mqttbridge"
	"github.com/traaittPlatform/traaittplatformd-ha/pkg/rpc"
	"github.com/traaittPlatform/traaittplatformd-ha/pkg/supervisor"
	"github.com/traaittPlatform/traaittplatformd-ha/pkg/telemetry"
)

const checkpointsTimeout = time.Minute

// Service wires the supervisor to its observers and applies the restart
// policy: a down node is stopped and a stopped node is started again.
type Service struct {
	config     *config.Config
	logger     logging.Logger
	bus        *eventbus.Bus
	supervisor *supervisor.Supervisor
	telemetry  *telemetry.Server
	control    *control.Server
	mqtt       *mqttbridge.Bridge
	metrics    *metrics.Sink
	breaker    *restartBreaker

	mutex        sync.Mutex
	controlAddr  net.Addr
	ctx          context.Context
	shuttingDown bool
	restartTimer *time.Timer
}

func New(cfg *config.Config, logger logging.Logger) (*Service, error) {
	bus := eventbus.New()
	client := rpc.NewClient(cfg.RPCEndpoint(), cfg.Supervisor.Timeout, logging.WithPrefix("module: rpc , ", logger))

	sup, err := supervisor.New(cfg, bus, client, logging.WithPrefix("module: supervisor , ", logger))
	if err != nil {
		return nil, errors.NewInternalError("failed to create supervisor", err)
	}

	s := &Service{
		config:     cfg,
		logger:     logger,
		bus:        bus,
		supervisor: sup,
		breaker:    newRestartBreaker(cfg.Restart, logging.WithPrefix("module: restart , ", logger)),
		ctx:        context.Background(),
	}

	if cfg.Telemetry.Enabled {
		server, err := telemetry.NewServer(cfg.Telemetry, rpc.Operations(client), sup,
			logging.WithPrefix("module: telemetry , ", logger))
		if err != nil {
			return nil, errors.NewInternalError("failed to create telemetry server", err)
		}
		server.Attach(bus)
		s.telemetry = server
	}
	if cfg.Control.Enabled {
		s.control = control.NewServer(sup, logging.WithPrefix("module: control , ", logger))
	}

	s.subscribe()
	return s, nil
}

func (s *Service) Bus() *eventbus.Bus {
	return s.bus
}

// ControlAddr is the bound control endpoint, nil until Start runs with
// control enabled.
func (s *Service) ControlAddr() net.Addr {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.controlAddr
}

func (s *Service) RestartState() BreakerState {
	return s.breaker.state()
}

// Start brings up the observers and then the node. A missing node binary
// is returned as an error; other start failures are left to the restart
// policy.
func (s *Service) Start(ctx context.Context) error {
	s.mutex.Lock()
	s.ctx = ctx
	s.mutex.Unlock()

	if s.config.MQTT.Enabled {
		bridge, err := mqttbridge.Connect(s.config.MQTT, logging.WithPrefix("module: mqtt , ", s.logger))
		if err != nil {
			return err
		}
		bridge.Attach(s.bus)
		s.mqtt = bridge
	}

	if s.config.InfluxDB.Enabled {
		sink, err := metrics.Connect(s.config.InfluxDB, logging.WithPrefix("module: influxdb , ", s.logger))
		if err != nil {
			return err
		}
		sink.Attach(s.bus)
		s.metrics = sink
	}

	if s.telemetry != nil {
		if _, err := s.telemetry.Start(); err != nil {
			return err
		}
	}

	if s.control != nil {
		addr, err := s.control.Listen(s.config.Control.Host, s.config.Control.Port)
		if err != nil {
			return err
		}
		s.mutex.Lock()
		s.controlAddr = addr
		s.mutex.Unlock()
	}

	if s.config.Checkpoints.RefreshOnStart {
		refreshCtx, cancel := context.WithTimeout(ctx, checkpointsTimeout)
		err := checkpoints.Refresh(refreshCtx, s.config.Checkpoints.URL, s.config.Checkpoints.File, http.DefaultClient,
			logging.WithPrefix("module: checkpoints , ", s.logger))
		cancel()
		if err != nil {
			s.logger.Warnf("Checkpoints refresh failed, continuing without, error: %v", err)
		}
	}

	if err := s.supervisor.Start(ctx); err != nil {
		if errors.IsNotFoundError(err) {
			return err
		}
		s.logger.Errorf("Daemon start failed, error: %v", err)
	}
	return nil
}

// Shutdown stops the node first so the observers see its final events.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mutex.Lock()
	s.shuttingDown = true
	if s.restartTimer != nil {
		s.restartTimer.Stop()
		s.restartTimer = nil
	}
	s.mutex.Unlock()

	errs := errors.NewErrorCollection()
	if err := s.supervisor.Close(ctx); err != nil {
		errs.Add(err)
	}
	if s.telemetry != nil {
		if err := s.telemetry.Stop(ctx); err != nil {
			errs.Add(err)
		}
	}
	if s.control != nil {
		s.control.Stop()
	}
	if s.mqtt != nil {
		s.mqtt.Close()
	}
	if s.metrics != nil {
		s.metrics.Close()
	}
	return errs.ToError()
}

func (s *Service) isShuttingDown() bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.shuttingDown
}

func (s *Service) runContext() context.Context {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.ctx
}

// stopNode handles a down node. Stop succeeds when the node already exited
// and its stopped event is pending; only when neither a process nor a
// pending stopped event exists is a start scheduled directly.
func (s *Service) stopNode() {
	if s.isShuttingDown() {
		return
	}

	err := s.supervisor.Stop(context.Background())
	if err == nil {
		return
	}
	if !errors.IsNotFoundError(err) {
		s.logger.Errorf("Failed to stop daemon, error: %v", err)
		return
	}
	s.restart("down", s.config.Supervisor.LockRetryDelay)
}

// restart asks the breaker for permission and starts the node after the
// larger of its backoff and minDelay.
func (s *Service) restart(trigger string, minDelay time.Duration) {
	if s.isShuttingDown() {
		return
	}

	delay, err := s.breaker.next(trigger)
	if err != nil {
		s.logger.Errorf("Not restarting daemon, error: %v", err)
		s.bus.Publish(eventbus.EventError, err)
		return
	}
	if delay < minDelay {
		delay = minDelay
	}
	if delay == 0 {
		s.startNode()
		return
	}
	s.scheduleStart(delay)
}

func (s *Service) scheduleStart(delay time.Duration) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.shuttingDown {
		return
	}
	if s.restartTimer != nil {
		s.restartTimer.Stop()
	}
	s.logger.Infof("Restarting daemon in: %v", delay)
	s.restartTimer = time.AfterFunc(delay, s.startNode)
}

func (s *Service) startNode() {
	if s.isShuttingDown() {
		return
	}
	if err := s.supervisor.Start(s.runContext()); err != nil {
		s.logger.Errorf("Daemon restart failed, error: %v", err)
	}
}
