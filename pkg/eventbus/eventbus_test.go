package eventbus

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishRunsHandlersInRegistrationOrder(t *testing.T) {
	bus := New()
	var order []string

	bus.Subscribe(EventReady, func(interface{}) { order = append(order, "first") })
	bus.Subscribe(EventReady, func(interface{}) { order = append(order, "second") })
	bus.Subscribe(EventDown, func(interface{}) { order = append(order, "down") })
	bus.Subscribe(EventReady, func(interface{}) { order = append(order, "third") })

	bus.Publish(EventReady, nil)

	assert.Equal(t, []string{"first", "second", "third"}, order)
	assert.Equal(t, 3, bus.HandlerCount(EventReady))
}

func TestPublishDeliversPayload(t *testing.T) {
	bus := New()
	var got SyncStatus

	bus.Subscribe(EventSyncing, func(payload interface{}) {
		got = payload.(SyncStatus)
	})
	bus.Publish(EventSyncing, SyncStatus{Height: 50, NetworkHeight: 100, Percent: 50})

	assert.Equal(t, SyncStatus{Height: 50, NetworkHeight: 100, Percent: 50}, got)
}

func TestPublishWithoutSubscribers(t *testing.T) {
	bus := New()
	assert.NotPanics(t, func() { bus.Publish(EventBlock, "nothing listens") })
	bus.Subscribe(EventBlock, nil)
	assert.Equal(t, 0, bus.HandlerCount(EventBlock))
}

func TestHandlerMayPublishAndSubscribe(t *testing.T) {
	bus := New()
	var events []Event

	bus.Subscribe(EventSynced, func(interface{}) {
		events = append(events, EventSynced)
		bus.Subscribe(EventSynced, func(interface{}) { events = append(events, "late") })
		bus.Publish(EventReady, nil)
	})
	bus.Subscribe(EventReady, func(interface{}) { events = append(events, EventReady) })

	bus.Publish(EventSynced, nil)
	require.Equal(t, []Event{EventSynced, EventReady}, events)

	events = nil
	bus.Publish(EventSynced, nil)
	assert.Equal(t, []Event{EventSynced, EventReady, "late"}, events)
}

func TestConcurrentPublish(t *testing.T) {
	bus := New()
	var mu sync.Mutex
	count := 0

	bus.Subscribe(EventData, func(interface{}) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			bus.Publish(EventData, "line")
		}()
	}
	wg.Wait()

	assert.Equal(t, 20, count)
}
