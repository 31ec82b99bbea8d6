package service

import (
	"github.com/traaittPlatform/traaittplatformd-ha/pkg/eventbus"
	"github.com/traaittPlatform/traaittplatformd-ha/pkg/monitoring"
)

func (s *Service) subscribe() {
	s.bus.Subscribe(eventbus.EventStart, func(payload interface{}) {
		if info, ok := payload.(eventbus.StartInfo); ok {
			s.logger.Infof("traaittPlatformd has started... %s", info.CommandLine)
		}
	})
	s.bus.Subscribe(eventbus.EventStarted, func(interface{}) {
		s.logger.Infof("traaittPlatformd is attempting to synchronize with the network...")
	})
	s.bus.Subscribe(eventbus.EventSyncing, func(payload interface{}) {
		if info, ok := payload.(eventbus.SyncStatus); ok {
			s.logger.Infof("traaittPlatformd has synchronized %d out of %d blocks [%.2f%%]",
				info.Height, info.NetworkHeight, info.Percent)
		}
	})
	s.bus.Subscribe(eventbus.EventSynced, func(interface{}) {
		s.logger.Infof("traaittPlatformd is synchronized with the network...")
	})
	s.bus.Subscribe(eventbus.EventReady, func(payload interface{}) {
		s.breaker.reset()
		if info, ok := payload.(monitoring.ReadyInfo); ok {
			s.logger.Infof("traaittPlatformd is waiting for connections at %d @ %d - %d H/s",
				info.Height, info.Difficulty, info.GlobalHashRate)
		}
	})
	s.bus.Subscribe(eventbus.EventDesync, func(payload interface{}) {
		if info, ok := payload.(eventbus.DesyncInfo); ok {
			s.logger.Warnf("traaittPlatformd is currently off the blockchain by %d blocks. Network: %d  Daemon: %d",
				info.Deviance, info.NetworkHeight, info.Height)
		}
	})
	s.bus.Subscribe(eventbus.EventDown, func(interface{}) {
		s.logger.Warnf("traaittPlatformd is not responding... stopping process...")
		go s.stopNode()
	})
	s.bus.Subscribe(eventbus.EventStopped, func(payload interface{}) {
		exitCode := -1
		if info, ok := payload.(eventbus.StoppedInfo); ok {
			exitCode = info.ExitCode
		}
		if s.isShuttingDown() {
			s.logger.Infof("traaittPlatformd has closed (exitcode: %d)", exitCode)
			return
		}
		s.logger.Infof("traaittPlatformd has closed (exitcode: %d)... restarting process...", exitCode)
		s.restart("stopped", 0)
	})
	s.bus.Subscribe(eventbus.EventInfo, func(payload interface{}) {
		s.logger.Infof("%v", payload)
	})
	s.bus.Subscribe(eventbus.EventWarning, func(payload interface{}) {
		s.logger.Warnf("%v", payload)
	})
	s.bus.Subscribe(eventbus.EventError, func(payload interface{}) {
		s.logger.Errorf("%v", payload)
	})
}
