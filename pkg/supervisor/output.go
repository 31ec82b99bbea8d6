package supervisor

import (
	"context"
	"time"

	"github.com/traaittPlatform/traaittplatformd-ha/pkg/daemon"
	"github.com/traaittPlatform/traaittplatformd-ha/pkg/errors"
	"github.com/traaittPlatform/traaittplatformd-ha/pkg/eventbus"
)

// handleLine runs on the output goroutine for every node line.
func (s *Supervisor) handleLine(line string) {
	signal, height, err := daemon.ParseLine(line)
	switch signal {
	case daemon.SignalStarted:
		s.bus.Publish(eventbus.EventStarted, nil)
	case daemon.SignalHelp:
		s.markHelp()
	case daemon.SignalTopBlock:
		if err != nil {
			s.bus.Publish(eventbus.EventError, err)
		} else {
			s.bus.Publish(eventbus.EventTopBlock, eventbus.TopBlock{Height: height})
		}
	}
	s.bus.Publish(eventbus.EventData, line)
}

func (s *Supervisor) markHelp() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.helpWaiter != nil {
		close(s.helpWaiter)
		s.helpWaiter = nil
	}
}

// CheckResponsive writes "help" to the node console and waits for the help
// text to be echoed within the help timeout.
func (s *Supervisor) CheckResponsive(ctx context.Context) error {
	proc, waiter := s.armHelp()
	defer s.disarmHelp(waiter)

	if proc == nil {
		return errors.NewUnresponsiveError("Daemon is unresponsive", errors.NewNotFoundError("daemon is not running", nil))
	}
	if err := proc.Write("help"); err != nil {
		return errors.NewUnresponsiveError("Daemon is unresponsive", err)
	}

	timeout := s.config.Monitor.HelpTimeout
	select {
	case <-waiter:
		return nil
	case <-proc.Done():
		return errors.NewUnresponsiveError("Daemon is unresponsive", errors.NewProcessError("daemon exited", nil))
	case <-ctx.Done():
		return errors.NewCancelledError("liveness probe cancelled", ctx.Err())
	case <-time.After(timeout):
		return errors.NewUnresponsiveError("Daemon is unresponsive", nil).WithContext("timeout", timeout.String())
	}
}

func (s *Supervisor) armHelp() (*daemon.Process, chan struct{}) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.helpWaiter == nil {
		s.helpWaiter = make(chan struct{})
	}
	return s.process, s.helpWaiter
}

func (s *Supervisor) disarmHelp(waiter chan struct{}) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.helpWaiter == waiter {
		s.helpWaiter = nil
	}
}
