package mqttbridge

import (
	"encoding/json"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/traaittPlatform/traaittplatformd-ha/pkg/config"
	"github.com/traaittPlatform/traaittplatformd-ha/pkg/errors"
	"github.com/traaittPlatform/traaittplatformd-ha/pkg/eventbus"
	"github.com/traaittPlatform/traaittplatformd-ha/pkg/logging"
)

// retainedEvents describe the node's current condition, so late subscribers
// get the last one.
var retainedEvents = map[eventbus.Event]bool{
	eventbus.EventReady:   true,
	eventbus.EventSyncing: true,
	eventbus.EventDesync:  true,
	eventbus.EventDown:    true,
	eventbus.EventStopped: true,
}

type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) pahomqtt.Token
	Disconnect(quiesce uint)
}

type eventMessage struct {
	Event     string      `json:"event"`
	Timestamp string      `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// Bridge forwards bus events to an MQTT broker under <prefix>/<event>.
type Bridge struct {
	client publisher
	config config.MQTTConfig
	logger logging.Logger
}

// Connect dials the broker and announces the supervisor as online.
func Connect(cfg config.MQTTConfig, logger logging.Logger) (*Bridge, error) {
	client := pahomqtt.NewClient(buildClientOptions(cfg))
	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, errors.NewTimeoutError("mqtt connect timed out", nil).WithContext("host", cfg.Host)
	}
	if err := token.Error(); err != nil {
		return nil, errors.NewNetworkError("mqtt connect failed", err).WithContext("host", cfg.Host)
	}

	b := newBridge(client, cfg, logger)
	b.send(topic(cfg.TopicPrefix, statusTopic), true, presencePayload(cfg.ClientID, "online"))
	logger.Infof("Connected to MQTT broker, host: %s, port: %d", cfg.Host, cfg.Port)
	return b, nil
}

func newBridge(client publisher, cfg config.MQTTConfig, logger logging.Logger) *Bridge {
	return &Bridge{
		client: client,
		config: cfg,
		logger: logger,
	}
}

// Attach forwards every event. Raw output lines are skipped unless
// forward_output is set.
func (b *Bridge) Attach(bus *eventbus.Bus) {
	for _, event := range eventbus.AllEvents {
		event := event
		if event == eventbus.EventData && !b.config.ForwardOutput {
			continue
		}
		bus.Subscribe(event, func(payload interface{}) {
			b.Publish(event, payload)
		})
	}
}

// Publish sends one event without waiting for the broker acknowledgement.
func (b *Bridge) Publish(event eventbus.Event, payload interface{}) {
	if err, ok := payload.(error); ok {
		payload = err.Error()
	}

	body, err := json.Marshal(eventMessage{
		Event:     string(event),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Data:      payload,
	})
	if err != nil {
		b.logger.Errorf("Failed to encode MQTT message, event: %s, error: %v", event, err)
		return
	}
	b.send(topic(b.config.TopicPrefix, string(event)), retainedEvents[event], body)
}

func (b *Bridge) send(topic string, retained bool, payload interface{}) {
	token := b.client.Publish(topic, qos(b.config), retained, payload)
	go func() {
		if !token.WaitTimeout(publishTimeout) {
			b.logger.Warnf("MQTT publish not acknowledged, topic: %s", topic)
			return
		}
		if err := token.Error(); err != nil {
			b.logger.Warnf("MQTT publish failed, topic: %s, error: %v", topic, err)
		}
	}()
}

// Close announces a graceful shutdown and disconnects.
func (b *Bridge) Close() {
	token := b.client.Publish(topic(b.config.TopicPrefix, statusTopic), qos(b.config), true,
		presencePayload(b.config.ClientID, "offline"))
	token.WaitTimeout(publishTimeout)
	b.client.Disconnect(disconnectQuiesce)
}
