package monitoring

import (
	"sync"
	"time"
)

// loop runs tick every interval until stopped or until tick returns true.
// The first tick happens one interval after start; a slow tick delays the
// next one instead of overlapping it.
type loop struct {
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func startLoop(interval time.Duration, tick func() bool) *loop {
	l := &loop{stopChan: make(chan struct{})}
	l.wg.Add(1)
	go l.run(interval, tick)
	return l
}

func (l *loop) run(interval time.Duration, tick func() bool) {
	defer l.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			select {
			case <-l.stopChan:
				return
			default:
			}
			if tick() {
				return
			}
		case <-l.stopChan:
			return
		}
	}
}

// stop ends the loop and waits for an in-flight tick. Safe to call more
// than once; must not be called from inside tick.
func (l *loop) stop() {
	l.stopOnce.Do(func() { close(l.stopChan) })
	l.wg.Wait()
}
