package monitoring

import (
	"time"

	"github.com/traaittPlatform/traaittplatformd-ha/pkg/eventbus"
)

// triggerDown arms the down timer unless it is already armed or no check has
// passed since the last start. Once fired the timer stays armed until a
// check passes, so down is published once per arm cycle.
func (m *Monitor) triggerDown() {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if !m.checks.FirstCheckPassed || m.trigger != nil {
		return
	}

	window := m.config.PollingInterval * time.Duration(m.config.MaxPollingFailures)
	gen := m.triggerGen
	m.trigger = time.AfterFunc(window, func() {
		m.fireDown(gen)
	})
	m.logger.Warnf("Down trigger armed, window: %v", window)
}

// triggerUp records a passing check and disarms the down timer.
func (m *Monitor) triggerUp() {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.checks.FirstCheckPassed = true
	if m.trigger != nil {
		m.logger.Infof("Down trigger disarmed")
	}
	m.disarmLocked()
}

func (m *Monitor) disarmLocked() {
	if m.trigger != nil {
		m.trigger.Stop()
		m.trigger = nil
	}
	m.triggerGen++
}

func (m *Monitor) fireDown(gen uint64) {
	if !m.markDown(gen) {
		return
	}
	m.logger.Errorf("Daemon is down, failures: %d", m.Checks().ConsecutiveFailures)
	m.bus.Publish(eventbus.EventDown, nil)
}

func (m *Monitor) markDown(gen uint64) bool {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if gen != m.triggerGen || m.trigger == nil {
		return false
	}
	m.state = StateDown
	return true
}
