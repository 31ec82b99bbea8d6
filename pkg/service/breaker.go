package service

import (
	"math"
	"sync"
	"time"

	"github.com/traaittPlatform/traaittplatformd-ha/pkg/config"
	"github.com/traaittPlatform/traaittplatformd-ha/pkg/errors"
	"github.com/traaittPlatform/traaittplatformd-ha/pkg/logging"
)

// BreakerState reports restart bookkeeping.
type BreakerState struct {
	IsOpen          bool      `json:"is_open"`
	RestartAttempts int       `json:"restart_attempts"`
	LastRestartTime time.Time `json:"last_restart_time"`
	LastTrigger     string    `json:"last_trigger,omitempty"`
}

// restartBreaker spaces out restarts with exponential backoff and stops
// restarting after too many attempts without the node becoming ready.
type restartBreaker struct {
	config config.RestartConfig
	logger logging.Logger

	mutex           sync.Mutex
	attempts        int
	open            bool
	lastRestartTime time.Time
	lastTrigger     string
}

func newRestartBreaker(cfg config.RestartConfig, logger logging.Logger) *restartBreaker {
	return &restartBreaker{
		config: cfg,
		logger: logger,
	}
}

// next records a restart request and returns how long to wait before
// performing it.
func (b *restartBreaker) next(trigger string) (time.Duration, error) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	b.lastTrigger = trigger
	if b.open {
		return 0, errors.NewConflictError("restart circuit breaker is open", nil).WithContext("trigger", trigger)
	}

	if b.config.MaxRetries > 0 && b.attempts >= b.config.MaxRetries {
		b.open = true
		b.logger.Errorf("Max restart retries exceeded, opening circuit breaker, attempts: %d, trigger: %s", b.attempts, trigger)
		return 0, errors.NewConflictError("max restart retries exceeded", nil).
			WithContext("attempts", b.attempts).WithContext("trigger", trigger)
	}

	delay := b.delayLocked()
	b.attempts++
	b.lastRestartTime = time.Now().Add(delay)

	b.logger.Debugf("Restart scheduled, trigger: %s, attempt: %d, delay: %v", trigger, b.attempts, delay)
	return delay, nil
}

func (b *restartBreaker) delayLocked() time.Duration {
	if b.config.RetryDelay <= 0 {
		return 0
	}
	rate := b.config.BackoffRate
	if rate < 1 {
		rate = 1
	}
	delay := time.Duration(float64(b.config.RetryDelay) * math.Pow(rate, float64(b.attempts)))
	if b.config.MaxDelay > 0 && delay > b.config.MaxDelay {
		delay = b.config.MaxDelay
	}
	return delay
}

// reset closes the breaker once the node has proven healthy.
func (b *restartBreaker) reset() {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if b.attempts > 0 || b.open {
		b.logger.Infof("Resetting restart breaker, previous attempts: %d", b.attempts)
	}
	b.attempts = 0
	b.open = false
}

func (b *restartBreaker) state() BreakerState {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return BreakerState{
		IsOpen:          b.open,
		RestartAttempts: b.attempts,
		LastRestartTime: b.lastRestartTime,
		LastTrigger:     b.lastTrigger,
	}
}
