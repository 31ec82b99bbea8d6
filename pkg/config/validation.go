package config

import (
	"fmt"
	"time"

	"github.com/traaittPlatform/traaittplatformd-ha/pkg/errors"
	"github.com/traaittPlatform/traaittplatformd-ha/pkg/logging"
)

// ValidateConfig validates the entire configuration structure.
func ValidateConfig(config *Config) error {
	if config == nil {
		return errors.NewValidationError("configuration cannot be nil", nil)
	}

	if err := validateDaemonConfig(&config.Daemon); err != nil {
		return errors.NewValidationError("invalid daemon configuration", err)
	}
	if err := validateSupervisorConfig(&config.Supervisor); err != nil {
		return errors.NewValidationError("invalid supervisor configuration", err)
	}
	if err := validateMonitorConfig(&config.Monitor); err != nil {
		return errors.NewValidationError("invalid monitor configuration", err)
	}
	if err := validateTelemetryConfig(&config.Telemetry); err != nil {
		return errors.NewValidationError("invalid telemetry configuration", err)
	}
	if config.Control.Enabled {
		if err := ValidatePort(config.Control.Port); err != nil {
			return errors.NewValidationError("invalid control configuration", err)
		}
	}
	if config.MQTT.Enabled {
		if err := validateMQTTConfig(&config.MQTT); err != nil {
			return errors.NewValidationError("invalid mqtt configuration", err)
		}
	}
	if config.InfluxDB.Enabled {
		if err := validateInfluxDBConfig(&config.InfluxDB); err != nil {
			return errors.NewValidationError("invalid influxdb configuration", err)
		}
	}
	if err := validateRestartConfig(&config.Restart); err != nil {
		return errors.NewValidationError("invalid restart configuration", err)
	}
	if _, err := logging.ParseLevel(config.Logging.Level); err != nil {
		return errors.NewValidationError("invalid logging configuration", err)
	}

	return nil
}

func validateDaemonConfig(d *DaemonConfig) error {
	if d.Path == "" {
		return errors.NewValidationError("daemon path is required", nil)
	}
	if d.DataDir == "" {
		return errors.NewValidationError("data directory is required", nil)
	}
	if err := ValidatePort(d.RPCBindPort); err != nil {
		return errors.NewValidationError("invalid rpc bind port", err)
	}
	if d.P2PBindPort != 0 {
		if err := ValidatePort(d.P2PBindPort); err != nil {
			return errors.NewValidationError("invalid p2p bind port", err)
		}
	}
	if d.P2PExternalPort != 0 {
		if err := ValidatePort(d.P2PExternalPort); err != nil {
			return errors.NewValidationError("invalid p2p external port", err)
		}
	}
	if d.LogLevel != nil && (*d.LogLevel < 0 || *d.LogLevel > 4) {
		return errors.NewValidationError(fmt.Sprintf("daemon log level must be between 0 and 4, got %d", *d.LogLevel), nil)
	}
	if d.FeeAmount < 0 {
		return errors.NewValidationError("fee amount cannot be negative", nil)
	}
	return nil
}

func validateSupervisorConfig(s *SupervisorConfig) error {
	if err := ValidateTimeout(s.Timeout, "rpc"); err != nil {
		return err
	}
	if err := ValidateTimeout(s.LockRetryDelay, "lock retry"); err != nil {
		return err
	}
	if s.StoppedDelay < 0 {
		return errors.NewValidationError("stopped delay cannot be negative", nil)
	}
	return nil
}

func validateRestartConfig(r *RestartConfig) error {
	if r.MaxRetries < 0 {
		return errors.NewValidationError("max retries cannot be negative", nil)
	}
	if r.RetryDelay < 0 {
		return errors.NewValidationError("retry delay cannot be negative", nil)
	}
	if r.BackoffRate < 1 {
		return errors.NewValidationError("backoff rate must be at least 1", nil).WithContext("backoff_rate", r.BackoffRate)
	}
	if r.MaxDelay < r.RetryDelay {
		return errors.NewValidationError("max delay cannot be shorter than retry delay", nil)
	}
	return nil
}

func validateMonitorConfig(m *MonitorConfig) error {
	if err := ValidateTimeout(m.PollingInterval, "polling"); err != nil {
		return err
	}
	if m.MaxPollingFailures < 1 {
		return errors.NewValidationError("max polling failures must be at least 1", nil)
	}
	if m.MaxDeviance != nil && *m.MaxDeviance < 0 {
		return errors.NewValidationError("max deviance cannot be negative", nil)
	}
	if err := ValidateTimeout(m.HelpTimeout, "help"); err != nil {
		return err
	}
	if err := ValidateTimeout(m.BlockTargetTime, "block target"); err != nil {
		return err
	}
	return nil
}

func validateTelemetryConfig(t *TelemetryConfig) error {
	if !t.Enabled {
		return nil
	}
	if err := ValidatePort(t.Port); err != nil {
		return err
	}
	if t.SendBuffer < 1 {
		return errors.NewValidationError("send buffer must be at least 1", nil)
	}
	if t.PongTimeout <= t.PingInterval {
		return errors.NewValidationError("pong timeout must exceed ping interval", nil)
	}
	if t.MaxAuthFailures < 1 {
		return errors.NewValidationError("max auth failures must be at least 1", nil)
	}
	return nil
}

func validateMQTTConfig(q *MQTTConfig) error {
	if q.Host == "" {
		return errors.NewValidationError("mqtt host is required", nil)
	}
	if err := ValidatePort(q.Port); err != nil {
		return err
	}
	if q.QoS > 2 {
		return errors.NewValidationError(fmt.Sprintf("qos must be 0, 1 or 2, got %d", q.QoS), nil)
	}
	return nil
}

func validateInfluxDBConfig(i *InfluxDBConfig) error {
	if i.URL == "" {
		return errors.NewValidationError("influxdb url is required", nil)
	}
	if i.Org == "" || i.Bucket == "" {
		return errors.NewValidationError("influxdb org and bucket are required", nil)
	}
	return nil
}

// ValidatePort validates port number
func ValidatePort(port int) error {
	if port <= 0 || port > 65535 {
		return errors.NewValidationError("port must be between 1 and 65535", nil).WithContext("port", port)
	}
	return nil
}

// ValidateTimeout validates timeout duration
func ValidateTimeout(timeout time.Duration, name string) error {
	if timeout < 0 {
		return errors.NewValidationError(name+" timeout cannot be negative", nil)
	}

	if timeout == 0 {
		return errors.NewValidationError(name+" timeout cannot be zero", nil)
	}

	return nil
}
