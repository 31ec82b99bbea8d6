package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/traaittPlatform/traaittplatformd-ha/pkg/errors"
	"github.com/traaittPlatform/traaittplatformd-ha/pkg/logging"

	"gopkg.in/yaml.v3"
)

const (
	DefaultDaemonPath     = "./traaittPlatformd"
	DefaultDataDir        = "~/.traaittPlatform"
	DefaultDaemonLogFile  = "./traaittPlatformd.log"
	DefaultDaemonLogLevel = 2
	DefaultEnableCors     = "*"
	DefaultRPCBindIP      = "0.0.0.0"
	DefaultRPCBindPort    = 24496

	DefaultTimeout         = 2 * time.Second
	DefaultLockRetryDelay  = 5 * time.Second
	DefaultStoppedDelay    = 2 * time.Second
	DefaultPollingInterval = 10 * time.Second
	DefaultMaxFailures     = 6
	DefaultMaxDeviance     = 5
	DefaultHelpTimeout     = time.Second
	DefaultBlockTargetTime = 30 * time.Second

	DefaultTelemetrySendBuffer   = 256
	DefaultTelemetryPingInterval = 30 * time.Second
	DefaultTelemetryPongTimeout  = 60 * time.Second
	DefaultMaxAuthFailures       = 5
	DefaultAuthLockout           = time.Minute

	DefaultMQTTTopicPrefix = "traaittplatformd"
	DefaultMQTTClientID    = "traaittplatformd-ha"
	DefaultInfluxBatchSize = 100
	DefaultInfluxFlush     = 10 * time.Second
	DefaultCheckpointsURL  = "https://checkpoints.traaittplatform.dev"
	DefaultCheckpointsFile = "./checkpoints.csv"
	DefaultRestartBackoff  = 1.0
	DefaultRestartMaxDelay = 5 * time.Minute
)

// Config is the top-level configuration file structure.
type Config struct {
	Daemon      DaemonConfig      `yaml:"daemon"`
	Supervisor  SupervisorConfig  `yaml:"supervisor"`
	Monitor     MonitorConfig     `yaml:"monitor"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
	Control     ControlConfig     `yaml:"control"`
	MQTT        MQTTConfig        `yaml:"mqtt"`
	InfluxDB    InfluxDBConfig    `yaml:"influxdb"`
	Checkpoints CheckpointsConfig `yaml:"checkpoints"`
	Restart     RestartConfig     `yaml:"restart"`
	Logging     logging.ZapConfig `yaml:"logging"`
}

// DaemonConfig holds the node options that are turned into command line flags.
// Zero values omit the corresponding flag.
type DaemonConfig struct {
	// Path to the node binary.
	// Default: ./traaittPlatformd
	Path string `yaml:"path"`

	// DataDir is the blockchain directory.
	// Default: ~/.traaittPlatform
	DataDir string `yaml:"data_dir"`

	LogFile  string `yaml:"log_file"`
	LogLevel *int   `yaml:"log_level,omitempty"`

	EnableCors                  string `yaml:"enable_cors"`
	EnableBlockExplorer         *bool  `yaml:"enable_block_explorer,omitempty"`
	EnableBlockExplorerDetailed *bool  `yaml:"enable_block_explorer_detailed,omitempty"`

	// LoadCheckpoints is passed only when the file exists at start time.
	LoadCheckpoints string `yaml:"load_checkpoints,omitempty"`

	RPCBindIP       string `yaml:"rpc_bind_ip"`
	RPCBindPort     int    `yaml:"rpc_bind_port"`
	P2PBindIP       string `yaml:"p2p_bind_ip,omitempty"`
	P2PBindPort     int    `yaml:"p2p_bind_port,omitempty"`
	P2PExternalPort int    `yaml:"p2p_external_port,omitempty"`
	AllowLocalIP    *bool  `yaml:"allow_local_ip,omitempty"`

	Peers          []string `yaml:"peers,omitempty"`
	PriorityNodes  []string `yaml:"priority_nodes,omitempty"`
	ExclusiveNodes []string `yaml:"exclusive_nodes,omitempty"`
	SeedNode       string   `yaml:"seed_node,omitempty"`
	HideMyPort     bool     `yaml:"hide_my_port,omitempty"`

	DBThreads           int  `yaml:"db_threads,omitempty"`
	DBMaxOpenFiles      int  `yaml:"db_max_open_files,omitempty"`
	DBWriteBufferSize   int  `yaml:"db_write_buffer_size,omitempty"`
	DBReadBufferSize    int  `yaml:"db_read_buffer_size,omitempty"`
	DBEnableCompression bool `yaml:"db_enable_compression,omitempty"`

	FeeAddress string `yaml:"fee_address,omitempty"`
	FeeAmount  int64  `yaml:"fee_amount,omitempty"`
}

// SupervisorConfig controls the process lifecycle.
type SupervisorConfig struct {
	// Timeout bounds each node RPC call; the stop grace period is twice this.
	Timeout         time.Duration `yaml:"timeout"`
	ClearP2POnStart *bool         `yaml:"clear_p2p_on_start,omitempty"`
	ClearDBLockFile *bool         `yaml:"clear_db_lock_file,omitempty"`
	LockRetryDelay  time.Duration `yaml:"lock_retry_delay"`
	StoppedDelay    time.Duration `yaml:"stopped_delay"`
}

// MonitorConfig controls the sync watch and the health checks.
type MonitorConfig struct {
	PollingInterval    time.Duration `yaml:"polling_interval"`
	MaxPollingFailures int           `yaml:"max_polling_failures"`
	MaxDeviance        *int64        `yaml:"max_deviance,omitempty"`
	CheckHeight        *bool         `yaml:"check_height,omitempty"`
	HelpTimeout        time.Duration `yaml:"help_timeout"`
	BlockTargetTime    time.Duration `yaml:"block_target_time"`
}

// TelemetryConfig controls the websocket telemetry server.
type TelemetryConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Password        string        `yaml:"password,omitempty"`
	RequireAuth     bool          `yaml:"require_auth"`
	SendBuffer      int           `yaml:"send_buffer"`
	PingInterval    time.Duration `yaml:"ping_interval"`
	PongTimeout     time.Duration `yaml:"pong_timeout"`
	MaxAuthFailures int           `yaml:"max_auth_failures"`
	AuthLockout     time.Duration `yaml:"auth_lockout"`
}

// ControlConfig controls the gRPC health endpoint.
type ControlConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// MQTTConfig controls event fan-out to an MQTT broker.
type MQTTConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Host          string        `yaml:"host"`
	Port          int           `yaml:"port"`
	TLS           bool          `yaml:"tls"`
	Username      string        `yaml:"username,omitempty"`
	Password      string        `yaml:"password,omitempty"`
	ClientID      string        `yaml:"client_id"`
	TopicPrefix   string        `yaml:"topic_prefix"`
	QoS           byte          `yaml:"qos"`
	ForwardOutput bool          `yaml:"forward_output"`
	KeepAlive     time.Duration `yaml:"keep_alive"`
}

// InfluxDBConfig controls the metrics sink.
type InfluxDBConfig struct {
	Enabled       bool          `yaml:"enabled"`
	URL           string        `yaml:"url"`
	Token         string        `yaml:"token"`
	Org           string        `yaml:"org"`
	Bucket        string        `yaml:"bucket"`
	BatchSize     uint          `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
}

// RestartConfig bounds how the service restarts a node that keeps stopping.
// The zero value restarts immediately and without limit.
type RestartConfig struct {
	// MaxRetries opens the breaker after this many restarts without the node
	// becoming ready. Zero means unlimited.
	MaxRetries  int           `yaml:"max_retries"`
	RetryDelay  time.Duration `yaml:"retry_delay"`
	BackoffRate float64       `yaml:"backoff_rate"`
	MaxDelay    time.Duration `yaml:"max_delay"`
}

// CheckpointsConfig controls the checkpoint file refresh.
type CheckpointsConfig struct {
	URL            string `yaml:"url"`
	File           string `yaml:"file"`
	RefreshOnStart bool   `yaml:"refresh_on_start"`
}

// LoadConfigFromFile loads the configuration from a YAML file and applies defaults.
func LoadConfigFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.NewIOError("failed to read configuration file", err).WithContext("filename", filename)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, errors.NewValidationError("failed to parse YAML configuration", err).WithContext("filename", filename)
	}

	if err := SetDefaults(&config); err != nil {
		return nil, errors.NewValidationError("failed to apply configuration defaults", err).WithContext("filename", filename)
	}

	return &config, nil
}

// Default returns a configuration with every default applied.
func Default() (*Config, error) {
	var config Config
	if err := SetDefaults(&config); err != nil {
		return nil, err
	}
	return &config, nil
}

// SetDefaults fills unset values and resolves every path to an absolute one.
func SetDefaults(config *Config) error {
	d := &config.Daemon
	if d.Path == "" {
		d.Path = DefaultDaemonPath
	}
	if d.DataDir == "" {
		d.DataDir = DefaultDataDir
	}
	if d.LogFile == "" {
		d.LogFile = DefaultDaemonLogFile
	}
	if d.LogLevel == nil {
		level := DefaultDaemonLogLevel
		d.LogLevel = &level
	}
	if d.EnableCors == "" {
		d.EnableCors = DefaultEnableCors
	}
	d.EnableBlockExplorer = boolDefault(d.EnableBlockExplorer, true)
	d.EnableBlockExplorerDetailed = boolDefault(d.EnableBlockExplorerDetailed, true)
	d.AllowLocalIP = boolDefault(d.AllowLocalIP, true)
	if d.RPCBindIP == "" {
		d.RPCBindIP = DefaultRPCBindIP
	}
	if d.RPCBindPort == 0 {
		d.RPCBindPort = DefaultRPCBindPort
	}

	var err error
	if d.Path, err = ExpandPath(d.Path); err != nil {
		return err
	}
	if d.DataDir, err = ExpandPath(d.DataDir); err != nil {
		return err
	}
	if d.LogFile, err = ExpandPath(d.LogFile); err != nil {
		return err
	}
	if d.LoadCheckpoints != "" {
		if d.LoadCheckpoints, err = ExpandPath(d.LoadCheckpoints); err != nil {
			return err
		}
	}

	s := &config.Supervisor
	if s.Timeout == 0 {
		s.Timeout = DefaultTimeout
	}
	s.ClearP2POnStart = boolDefault(s.ClearP2POnStart, true)
	s.ClearDBLockFile = boolDefault(s.ClearDBLockFile, true)
	if s.LockRetryDelay == 0 {
		s.LockRetryDelay = DefaultLockRetryDelay
	}
	if s.StoppedDelay == 0 {
		s.StoppedDelay = DefaultStoppedDelay
	}

	m := &config.Monitor
	if m.PollingInterval == 0 {
		m.PollingInterval = DefaultPollingInterval
	}
	if m.MaxPollingFailures == 0 {
		m.MaxPollingFailures = DefaultMaxFailures
	}
	if m.MaxDeviance == nil {
		deviance := int64(DefaultMaxDeviance)
		m.MaxDeviance = &deviance
	}
	m.CheckHeight = boolDefault(m.CheckHeight, true)
	if m.HelpTimeout == 0 {
		m.HelpTimeout = DefaultHelpTimeout
	}
	if m.BlockTargetTime == 0 {
		m.BlockTargetTime = DefaultBlockTargetTime
	}

	t := &config.Telemetry
	if t.Host == "" {
		t.Host = d.RPCBindIP
	}
	if t.Port == 0 {
		t.Port = d.RPCBindPort + 1
	}
	if t.SendBuffer == 0 {
		t.SendBuffer = DefaultTelemetrySendBuffer
	}
	if t.PingInterval == 0 {
		t.PingInterval = DefaultTelemetryPingInterval
	}
	if t.PongTimeout == 0 {
		t.PongTimeout = DefaultTelemetryPongTimeout
	}
	if t.MaxAuthFailures == 0 {
		t.MaxAuthFailures = DefaultMaxAuthFailures
	}
	if t.AuthLockout == 0 {
		t.AuthLockout = DefaultAuthLockout
	}

	c := &config.Control
	if c.Host == "" {
		c.Host = d.RPCBindIP
	}
	if c.Port == 0 {
		c.Port = d.RPCBindPort + 2
	}

	q := &config.MQTT
	if q.Host == "" {
		q.Host = "localhost"
	}
	if q.Port == 0 {
		q.Port = 1883
	}
	if q.ClientID == "" {
		q.ClientID = DefaultMQTTClientID
	}
	if q.TopicPrefix == "" {
		q.TopicPrefix = DefaultMQTTTopicPrefix
	}
	if q.QoS == 0 {
		q.QoS = 1
	}
	if q.KeepAlive == 0 {
		q.KeepAlive = 60 * time.Second
	}

	i := &config.InfluxDB
	if i.BatchSize == 0 {
		i.BatchSize = DefaultInfluxBatchSize
	}
	if i.FlushInterval == 0 {
		i.FlushInterval = DefaultInfluxFlush
	}

	r := &config.Restart
	if r.BackoffRate == 0 {
		r.BackoffRate = DefaultRestartBackoff
	}
	if r.MaxDelay == 0 {
		r.MaxDelay = DefaultRestartMaxDelay
	}

	k := &config.Checkpoints
	if k.URL == "" {
		k.URL = DefaultCheckpointsURL
	}
	if k.File == "" {
		k.File = DefaultCheckpointsFile
		if d.LoadCheckpoints != "" {
			k.File = d.LoadCheckpoints
		}
	}
	if k.File, err = ExpandPath(k.File); err != nil {
		return err
	}

	l := &config.Logging
	if l.Level == "" {
		l.Level = "info"
	}
	if l.Format == "" {
		l.Format = "json"
	}
	if l.Output == "" {
		l.Output = "stdout"
	}

	return nil
}

// ExpandPath replaces a leading ~ with the home directory and makes the result absolute.
func ExpandPath(path string) (string, error) {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", errors.NewIOError("failed to resolve home directory", err).WithContext("path", path)
		}
		path = filepath.Join(home, strings.TrimPrefix(path, "~"))
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", errors.NewIOError("failed to resolve absolute path", err).WithContext("path", path)
	}
	return abs, nil
}

// RPCQueryIP is the address used to reach the node's RPC interface.
func (c *Config) RPCQueryIP() string {
	if c.Daemon.RPCBindIP == "0.0.0.0" {
		return "127.0.0.1"
	}
	return c.Daemon.RPCBindIP
}

// RPCEndpoint is the base URL of the node's RPC interface.
func (c *Config) RPCEndpoint() string {
	return fmt.Sprintf("http://%s:%d", c.RPCQueryIP(), c.Daemon.RPCBindPort)
}

// GracePeriod is how long stop waits after "exit" before killing the node.
func (c *Config) GracePeriod() time.Duration {
	return c.Supervisor.Timeout * 2
}

// IsSet reports whether a tri-state flag resolved to true.
func IsSet(b *bool) bool {
	return b != nil && *b
}

func boolDefault(b *bool, value bool) *bool {
	if b != nil {
		return b
	}
	return &value
}
