package mqttbridge

import (
	"crypto/tls"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/traaittPlatform/traaittplatformd-ha/pkg/config"
)

const (
	connectTimeout    = 10 * time.Second
	publishTimeout    = 5 * time.Second
	disconnectQuiesce = 1000 // milliseconds
	defaultKeepAlive  = 60 * time.Second
	statusTopic       = "status"
)

// buildClientOptions maps the mqtt section onto paho options: broker URL,
// credentials, reconnect behaviour and an offline will on the status topic.
func buildClientOptions(cfg config.MQTTConfig) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()

	scheme := "tcp"
	if cfg.TLS {
		scheme = "ssl"
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}
	opts.AddBroker(fmt.Sprintf("%s://%s:%d", scheme, cfg.Host, cfg.Port))
	opts.SetClientID(cfg.ClientID)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectTimeout(connectTimeout)

	keepAlive := cfg.KeepAlive
	if keepAlive <= 0 {
		keepAlive = defaultKeepAlive
	}
	opts.SetKeepAlive(keepAlive)

	opts.SetWill(topic(cfg.TopicPrefix, statusTopic), presencePayload(cfg.ClientID, "offline"), qos(cfg), true)
	return opts
}

func topic(prefix, name string) string {
	return prefix + "/" + name
}

func qos(cfg config.MQTTConfig) byte {
	if cfg.QoS == 0 {
		return 1
	}
	return cfg.QoS
}

func presencePayload(clientID, status string) string {
	return fmt.Sprintf(`{"status":"%s","client_id":"%s","timestamp":"%s"}`,
		status, clientID, time.Now().UTC().Format(time.RFC3339))
}
