package metrics

import (
	"context"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/traaittPlatform/traaittplatformd-ha/pkg/config"
	"github.com/traaittPlatform/traaittplatformd-ha/pkg/errors"
	"github.com/traaittPlatform/traaittplatformd-ha/pkg/eventbus"
	"github.com/traaittPlatform/traaittplatformd-ha/pkg/logging"
	"github.com/traaittPlatform/traaittplatformd-ha/pkg/monitoring"
)

const (
	measurement    = "daemon"
	connectTimeout = 10 * time.Second
)

type pointWriter interface {
	WritePoint(point *write.Point)
	Flush()
}

// Sink records node health as points in the "daemon" measurement.
type Sink struct {
	writer pointWriter
	client influxdb2.Client
	logger logging.Logger
	now    func() time.Time
}

// Connect pings the server and returns a sink backed by the batching,
// non-blocking write API.
func Connect(cfg config.InfluxDBConfig, logger logging.Logger) (*Sink, error) {
	options := influxdb2.DefaultOptions()
	if cfg.BatchSize > 0 {
		options.SetBatchSize(cfg.BatchSize)
	}
	if cfg.FlushInterval > 0 {
		options.SetFlushInterval(uint(cfg.FlushInterval / time.Millisecond))
	}
	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, options)

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	healthy, err := client.Ping(ctx)
	if err != nil {
		client.Close()
		return nil, errors.NewNetworkError("influxdb ping failed", err).WithContext("url", cfg.URL)
	}
	if !healthy {
		client.Close()
		return nil, errors.NewNetworkError("influxdb is not healthy", nil).WithContext("url", cfg.URL)
	}

	writeAPI := client.WriteAPI(cfg.Org, cfg.Bucket)
	go func() {
		for err := range writeAPI.Errors() {
			logger.Warnf("InfluxDB write failed, error: %v", err)
		}
	}()

	s := newSink(writeAPI, logger)
	s.client = client
	logger.Infof("Connected to InfluxDB, url: %s, bucket: %s", cfg.URL, cfg.Bucket)
	return s, nil
}

func newSink(writer pointWriter, logger logging.Logger) *Sink {
	return &Sink{
		writer: writer,
		logger: logger,
		now:    time.Now,
	}
}

// Attach records the lifecycle events that carry node metrics.
func (s *Sink) Attach(bus *eventbus.Bus) {
	bus.Subscribe(eventbus.EventSyncing, s.recordSync(eventbus.EventSyncing))
	bus.Subscribe(eventbus.EventSynced, s.recordSync(eventbus.EventSynced))
	bus.Subscribe(eventbus.EventReady, s.recordReady)
	bus.Subscribe(eventbus.EventDesync, s.recordDesync)
	bus.Subscribe(eventbus.EventDown, s.recordDown)
	bus.Subscribe(eventbus.EventStopped, s.recordStopped)
}

func (s *Sink) recordSync(event eventbus.Event) eventbus.Handler {
	return func(payload interface{}) {
		status, ok := payload.(eventbus.SyncStatus)
		if !ok {
			return
		}
		s.write(event, map[string]interface{}{
			"height":         status.Height,
			"network_height": status.NetworkHeight,
			"percent":        status.Percent,
			"up":             true,
		})
	}
}

func (s *Sink) recordReady(payload interface{}) {
	info, ok := payload.(monitoring.ReadyInfo)
	if !ok {
		return
	}
	s.write(eventbus.EventReady, map[string]interface{}{
		"height":         info.Height,
		"network_height": info.NetworkHeight,
		"difficulty":     info.Difficulty,
		"hashrate":       info.GlobalHashRate,
		"percent":        monitoring.SyncPercent(info.Height, info.NetworkHeight),
		"up":             true,
	})
}

func (s *Sink) recordDesync(payload interface{}) {
	info, ok := payload.(eventbus.DesyncInfo)
	if !ok {
		return
	}
	s.write(eventbus.EventDesync, map[string]interface{}{
		"height":         info.Height,
		"network_height": info.NetworkHeight,
		"deviance":       info.Deviance,
		"up":             true,
	})
}

func (s *Sink) recordDown(interface{}) {
	s.write(eventbus.EventDown, map[string]interface{}{"up": false})
}

func (s *Sink) recordStopped(payload interface{}) {
	fields := map[string]interface{}{"up": false}
	if info, ok := payload.(eventbus.StoppedInfo); ok {
		fields["exit_code"] = info.ExitCode
	}
	s.write(eventbus.EventStopped, fields)
}

func (s *Sink) write(event eventbus.Event, fields map[string]interface{}) {
	point := write.NewPoint(measurement, map[string]string{"status": string(event)}, fields, s.now())
	s.writer.WritePoint(point)
}

// Close flushes pending points and releases the client.
func (s *Sink) Close() {
	s.writer.Flush()
	if s.client != nil {
		s.client.Close()
	}
}
