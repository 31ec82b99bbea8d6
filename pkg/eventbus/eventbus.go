// Package eventbus is the synchronous named-event dispatcher shared by the
// supervisor, the health monitor and every event consumer.
package eventbus

import "sync"

type Event string

const (
	EventStart    Event = "start"
	EventStarted  Event = "started"
	EventSyncing  Event = "syncing"
	EventSynced   Event = "synced"
	EventReady    Event = "ready"
	EventDesync   Event = "desync"
	EventDown     Event = "down"
	EventStopped  Event = "stopped"
	EventData     Event = "data"
	EventError    Event = "error"
	EventInfo     Event = "info"
	EventWarning  Event = "warning"
	EventTopBlock Event = "topblock"
	EventBlock    Event = "block"
)

// AllEvents lists every event in lifecycle order.
var AllEvents = []Event{
	EventStart, EventStarted, EventSyncing, EventSynced, EventReady, EventDesync,
	EventDown, EventStopped, EventData, EventError, EventInfo, EventWarning,
	EventTopBlock, EventBlock,
}

type Handler func(payload interface{})

type Bus struct {
	mutex    sync.RWMutex
	handlers map[Event][]Handler
}

func New() *Bus {
	return &Bus{
		handlers: make(map[Event][]Handler),
	}
}

// Subscribe appends handler to the handlers of event.
func (b *Bus) Subscribe(event Event, handler Handler) {
	if handler == nil {
		return
	}

	b.mutex.Lock()
	defer b.mutex.Unlock()

	b.handlers[event] = append(b.handlers[event], handler)
}

// Publish runs every handler registered for event, in registration order,
// on the calling goroutine. Handlers subscribed during a publish are not
// run by that publish.
func (b *Bus) Publish(event Event, payload interface{}) {
	for _, handler := range b.snapshot(event) {
		handler(payload)
	}
}

func (b *Bus) HandlerCount(event Event) int {
	b.mutex.RLock()
	defer b.mutex.RUnlock()

	return len(b.handlers[event])
}

func (b *Bus) snapshot(event Event) []Handler {
	b.mutex.RLock()
	defer b.mutex.RUnlock()

	handlers := b.handlers[event]
	if len(handlers) == 0 {
		return nil
	}
	out := make([]Handler, len(handlers))
	copy(out, handlers)
	return out
}
