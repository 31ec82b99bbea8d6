package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/traaittPlatform/traaittplatformd-ha/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadConfigFromFile(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	tests := []struct {
		name        string
		configYAML  string
		expectError bool
		validate    func(t *testing.T, config *Config)
	}{
		{
			name:       "empty file resolves every default",
			configYAML: "{}",
			validate: func(t *testing.T, config *Config) {
				assert.Equal(t, filepath.Join(home, ".traaittPlatform"), config.Daemon.DataDir)
				assert.True(t, filepath.IsAbs(config.Daemon.Path))
				assert.True(t, filepath.IsAbs(config.Daemon.LogFile))
				assert.Equal(t, 2, *config.Daemon.LogLevel)
				assert.Equal(t, "*", config.Daemon.EnableCors)
				assert.True(t, IsSet(config.Daemon.EnableBlockExplorer))
				assert.True(t, IsSet(config.Daemon.EnableBlockExplorerDetailed))
				assert.True(t, IsSet(config.Daemon.AllowLocalIP))
				assert.Equal(t, 24496, config.Daemon.RPCBindPort)

				assert.Equal(t, 2*time.Second, config.Supervisor.Timeout)
				assert.Equal(t, 4*time.Second, config.GracePeriod())
				assert.True(t, IsSet(config.Supervisor.ClearP2POnStart))
				assert.True(t, IsSet(config.Supervisor.ClearDBLockFile))

				assert.Equal(t, 10*time.Second, config.Monitor.PollingInterval)
				assert.Equal(t, 6, config.Monitor.MaxPollingFailures)
				assert.Equal(t, int64(5), *config.Monitor.MaxDeviance)
				assert.True(t, IsSet(config.Monitor.CheckHeight))

				assert.False(t, config.Telemetry.Enabled)
				assert.Equal(t, 24497, config.Telemetry.Port)
				assert.Equal(t, 24498, config.Control.Port)
				assert.Equal(t, "127.0.0.1", config.RPCQueryIP())
				assert.Equal(t, "http://127.0.0.1:24496", config.RPCEndpoint())
			},
		},
		{
			name: "explicit values override defaults",
			configYAML: `
daemon:
  path: /opt/node/traaittPlatformd
  data_dir: /var/lib/node
  rpc_bind_ip: 10.0.0.5
  rpc_bind_port: 11898
  enable_block_explorer: false
  peers: [1.2.3.4:11897, 5.6.7.8:11897]
supervisor:
  clear_p2p_on_start: false
monitor:
  polling_interval: 1s
  max_deviance: 0
  check_height: false
telemetry:
  enabled: true
  password: secret
`,
			validate: func(t *testing.T, config *Config) {
				assert.Equal(t, "/opt/node/traaittPlatformd", config.Daemon.Path)
				assert.False(t, IsSet(config.Daemon.EnableBlockExplorer))
				assert.Len(t, config.Daemon.Peers, 2)
				assert.False(t, IsSet(config.Supervisor.ClearP2POnStart))
				assert.Equal(t, time.Second, config.Monitor.PollingInterval)
				assert.Equal(t, int64(0), *config.Monitor.MaxDeviance)
				assert.False(t, IsSet(config.Monitor.CheckHeight))
				assert.Equal(t, "10.0.0.5", config.RPCQueryIP())
				assert.Equal(t, 11899, config.Telemetry.Port)
				assert.Equal(t, "10.0.0.5", config.Telemetry.Host)
			},
		},
		{
			name:        "malformed yaml",
			configYAML:  "daemon: [unterminated",
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config, err := LoadConfigFromFile(writeConfig(t, tt.configYAML))
			if tt.expectError {
				require.Error(t, err)
				assert.True(t, errors.IsValidationError(err))
				return
			}
			require.NoError(t, err)
			require.NoError(t, ValidateConfig(config))
			tt.validate(t, config)
		})
	}
}

func TestLoadConfigFromFileMissing(t *testing.T) {
	_, err := LoadConfigFromFile(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.True(t, errors.IsIOError(err))
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"rpc port out of range", func(c *Config) { c.Daemon.RPCBindPort = 70000 }},
		{"zero polling interval", func(c *Config) { c.Monitor.PollingInterval = 0 }},
		{"no polling failures", func(c *Config) { c.Monitor.MaxPollingFailures = 0 }},
		{"negative deviance", func(c *Config) { d := int64(-1); c.Monitor.MaxDeviance = &d }},
		{"bad log level", func(c *Config) { c.Logging.Level = "chatty" }},
		{"telemetry pong before ping", func(c *Config) {
			c.Telemetry.Enabled = true
			c.Telemetry.PongTimeout = c.Telemetry.PingInterval
		}},
		{"mqtt qos", func(c *Config) { c.MQTT.Enabled = true; c.MQTT.QoS = 3 }},
		{"negative restart retries", func(c *Config) { c.Restart.MaxRetries = -1 }},
		{"restart backoff below one", func(c *Config) { c.Restart.BackoffRate = 0.5 }},
		{"restart max delay too short", func(c *Config) {
			c.Restart.RetryDelay = time.Minute
			c.Restart.MaxDelay = time.Second
		}},
		{"influx bucket", func(c *Config) { c.InfluxDB.Enabled = true; c.InfluxDB.URL = "http://influx:8086" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config, err := Default()
			require.NoError(t, err)
			require.NoError(t, ValidateConfig(config))

			tt.mutate(config)
			err = ValidateConfig(config)
			require.Error(t, err)
			assert.True(t, errors.IsValidationError(err))
		})
	}

	assert.Error(t, ValidateConfig(nil))
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	p, err := ExpandPath("~/.traaittPlatform")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".traaittPlatform"), p)

	p, err = ExpandPath("relative/dir")
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(p))

	p, err = ExpandPath("/already/absolute")
	require.NoError(t, err)
	assert.Equal(t, "/already/absolute", p)
}
