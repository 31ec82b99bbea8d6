package metrics

import (
	"sync"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/traaittPlatform/traaittplatformd-ha/pkg/eventbus"
	"github.com/traaittPlatform/traaittplatformd-ha/pkg/logging"
	"github.com/traaittPlatform/traaittplatformd-ha/pkg/monitoring"
	"github.com/traaittPlatform/traaittplatformd-ha/pkg/rpc"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	mu      sync.Mutex
	points  []*write.Point
	flushed int
}

func (f *fakeWriter) WritePoint(point *write.Point) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.points = append(f.points, point)
}

func (f *fakeWriter) Flush() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flushed++
}

func (f *fakeWriter) last(t *testing.T) (string, map[string]string, map[string]interface{}) {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.points)

	point := f.points[len(f.points)-1]
	tags := map[string]string{}
	for _, tag := range point.TagList() {
		tags[tag.Key] = tag.Value
	}
	fields := map[string]interface{}{}
	for _, field := range point.FieldList() {
		fields[field.Key] = field.Value
	}
	return point.Name(), tags, fields
}

func testSink() (*Sink, *fakeWriter, *eventbus.Bus) {
	writer := &fakeWriter{}
	sink := newSink(writer, logging.NewNopLogger())
	sink.now = func() time.Time { return time.Unix(1700000000, 0) }
	bus := eventbus.New()
	sink.Attach(bus)
	return sink, writer, bus
}

func TestSink_Syncing(t *testing.T) {
	_, writer, bus := testSink()

	bus.Publish(eventbus.EventSyncing, eventbus.SyncStatus{Height: 50, NetworkHeight: 100, Percent: 50})

	name, tags, fields := writer.last(t)
	assert.Equal(t, "daemon", name)
	assert.Equal(t, map[string]string{"status": "syncing"}, tags)
	assert.Equal(t, int64(50), fields["height"])
	assert.Equal(t, int64(100), fields["network_height"])
	assert.Equal(t, float64(50), fields["percent"])
	assert.Equal(t, true, fields["up"])
}

func TestSink_Ready(t *testing.T) {
	_, writer, bus := testSink()

	bus.Publish(eventbus.EventReady, monitoring.ReadyInfo{
		Info:           rpc.Info{Height: 100, NetworkHeight: 100, Difficulty: 3000},
		GlobalHashRate: 100,
	})

	_, tags, fields := writer.last(t)
	assert.Equal(t, "ready", tags["status"])
	assert.Equal(t, int64(3000), fields["difficulty"])
	assert.Equal(t, int64(100), fields["hashrate"])
	assert.Equal(t, float64(100), fields["percent"])
}

func TestSink_DesyncDownStopped(t *testing.T) {
	_, writer, bus := testSink()

	bus.Publish(eventbus.EventDesync, eventbus.DesyncInfo{Height: 90, NetworkHeight: 100, Deviance: 10})
	_, tags, fields := writer.last(t)
	assert.Equal(t, "desync", tags["status"])
	assert.Equal(t, int64(10), fields["deviance"])

	bus.Publish(eventbus.EventDown, nil)
	_, tags, fields = writer.last(t)
	assert.Equal(t, "down", tags["status"])
	assert.Equal(t, false, fields["up"])

	bus.Publish(eventbus.EventStopped, eventbus.StoppedInfo{ExitCode: 3})
	_, tags, fields = writer.last(t)
	assert.Equal(t, "stopped", tags["status"])
	assert.Equal(t, int64(3), fields["exit_code"])
}

func TestSink_IgnoresUnexpectedPayloads(t *testing.T) {
	_, writer, bus := testSink()

	bus.Publish(eventbus.EventSyncing, "not a status")
	bus.Publish(eventbus.EventReady, nil)
	bus.Publish(eventbus.EventInfo, "ignored")

	writer.mu.Lock()
	defer writer.mu.Unlock()
	assert.Empty(t, writer.points)
}

func TestSink_Close(t *testing.T) {
	sink, writer, _ := testSink()
	sink.Close()
	assert.Equal(t, 1, writer.flushed)
}
