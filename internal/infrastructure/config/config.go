package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the light bridge.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Bridge     BridgeConfig     `yaml:"bridge"`
	Controller ControllerConfig `yaml:"controller"`
	Listener   ListenerConfig   `yaml:"listener"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	Database   DatabaseConfig   `yaml:"database"`
	InfluxDB   InfluxDBConfig   `yaml:"influxdb"`
	API        APIConfig        `yaml:"api"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// BridgeConfig identifies this bridge instance.
type BridgeConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// ControllerConfig contains the lighting controller command link settings.
// Durations are in seconds.
type ControllerConfig struct {
	Host              string `yaml:"host"`
	Port              int    `yaml:"port"`
	ConnectTimeout    int    `yaml:"connect_timeout"`
	RetryDelay        int    `yaml:"retry_delay"`
	MaxRetries        int    `yaml:"max_retries"`
	WriteTimeout      int    `yaml:"write_timeout"`
	HeartbeatInterval int    `yaml:"heartbeat_interval"`
}

// ListenerConfig contains the status link settings.
// An empty host or zero port falls back to the controller's.
type ListenerConfig struct {
	Enabled      bool   `yaml:"enabled"`
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	ReadTimeout  int    `yaml:"read_timeout"`
	RetryBackoff int    `yaml:"retry_backoff"`
	BufferSize   int    `yaml:"buffer_size"`
	LogEvery     int    `yaml:"log_every"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	KeepAlive int                 `yaml:"keep_alive"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
	Topics    MQTTTopicsConfig    `yaml:"topics"`
	Discovery DiscoveryConfig     `yaml:"discovery"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains the manual reconnection policy.
// The broker client's own auto-reconnect is always disabled.
type MQTTReconnectConfig struct {
	Delay       int `yaml:"delay"`
	MaxAttempts int `yaml:"max_attempts"`
}

// MQTTTopicsConfig contains topic roots.
type MQTTTopicsConfig struct {
	Prefix          string `yaml:"prefix"`
	DiscoveryPrefix string `yaml:"discovery_prefix"`
}

// DiscoveryConfig contains Home Assistant discovery settings.
type DiscoveryConfig struct {
	Enabled      bool   `yaml:"enabled"`
	NodeID       string `yaml:"node_id"`
	DeviceID     string `yaml:"device_id"`
	DeviceName   string `yaml:"device_name"`
	Manufacturer string `yaml:"manufacturer"`
	Model        string `yaml:"model"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string            `yaml:"level"`
	Format string            `yaml:"format"`
	Output string            `yaml:"output"`
	File   FileLoggingConfig `yaml:"file"`
}

// FileLoggingConfig contains file-based logging settings.
// When Path is set, log lines go to the file as well as stdout.
type FileLoggingConfig struct {
	Path string `yaml:"path"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: LIGHTBRIDGE_SECTION_KEY
// For example: LIGHTBRIDGE_CONTROLLER_HOST, LIGHTBRIDGE_MQTT_PASSWORD
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	// Start with defaults
	cfg := defaultConfig()

	// Read and parse YAML file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Apply environment variable overrides
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
// Controller timings match the controller firmware's expectations.
func defaultConfig() *Config {
	return &Config{
		Bridge: BridgeConfig{
			ID:   "light-controller-001",
			Name: "Light Controller",
		},
		Controller: ControllerConfig{
			Host:              "192.168.0.107",
			Port:              5555,
			ConnectTimeout:    5,
			RetryDelay:        5,
			MaxRetries:        5,
			WriteTimeout:      5,
			HeartbeatInterval: 30,
		},
		Listener: ListenerConfig{
			Enabled:      true,
			ReadTimeout:  5,
			RetryBackoff: 10,
			BufferSize:   1024,
			LogEvery:     3,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "light_controller",
			},
			QoS:       1,
			KeepAlive: 60,
			Reconnect: MQTTReconnectConfig{
				Delay:       5,
				MaxAttempts: 5,
			},
			Topics: MQTTTopicsConfig{
				Prefix:          "home/light",
				DiscoveryPrefix: "homeassistant",
			},
			Discovery: DiscoveryConfig{
				Enabled:      true,
				NodeID:       "light_controller",
				DeviceID:     "light_controller_001",
				DeviceName:   "Light Controller",
				Manufacturer: "Custom Automation",
				Model:        "v1.0",
			},
		},
		Database: DatabaseConfig{
			Path:        "./data/lightbridge.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		InfluxDB: InfluxDBConfig{
			Bucket:        "lighting",
			BatchSize:     100,
			FlushInterval: 10,
		},
		API: APIConfig{
			Enabled: true,
			Host:    "0.0.0.0",
			Port:    8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: LIGHTBRIDGE_SECTION_KEY
func applyEnvOverrides(cfg *Config) error {
	var errs []string

	setInt := func(name string, dst *int) {
		v := os.Getenv(name)
		if v == "" {
			return
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %q is not an integer", name, v))
			return
		}
		*dst = n
	}

	// Controller
	if v := os.Getenv("LIGHTBRIDGE_CONTROLLER_HOST"); v != "" {
		cfg.Controller.Host = v
	}
	setInt("LIGHTBRIDGE_CONTROLLER_PORT", &cfg.Controller.Port)

	// MQTT
	if v := os.Getenv("LIGHTBRIDGE_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	setInt("LIGHTBRIDGE_MQTT_PORT", &cfg.MQTT.Broker.Port)
	if v := os.Getenv("LIGHTBRIDGE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("LIGHTBRIDGE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// Database
	if v := os.Getenv("LIGHTBRIDGE_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// InfluxDB
	if v := os.Getenv("LIGHTBRIDGE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// API
	if v := os.Getenv("LIGHTBRIDGE_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	setInt("LIGHTBRIDGE_API_PORT", &cfg.API.Port)

	// Logging
	if v := os.Getenv("LIGHTBRIDGE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of all validation failures, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Bridge validation
	if c.Bridge.ID == "" {
		errs = append(errs, "bridge.id is required")
	}

	// Controller validation
	if c.Controller.Host == "" {
		errs = append(errs, "controller.host is required")
	}
	if !validPort(c.Controller.Port) {
		errs = append(errs, "controller.port must be between 1 and 65535")
	}
	if c.Controller.MaxRetries < 1 {
		errs = append(errs, "controller.max_retries must be at least 1")
	}
	if c.Listener.Port != 0 && !validPort(c.Listener.Port) {
		errs = append(errs, "listener.port must be between 1 and 65535")
	}

	// MQTT validation
	if c.MQTT.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required")
	}
	if !validPort(c.MQTT.Broker.Port) {
		errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Reconnect.MaxAttempts < 1 {
		errs = append(errs, "mqtt.reconnect.max_attempts must be at least 1")
	}
	if strings.ContainsAny(c.MQTT.Topics.Prefix, "+#") {
		errs = append(errs, "mqtt.topics.prefix must not contain wildcards")
	}

	// Database validation
	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	// InfluxDB validation
	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			errs = append(errs, "influxdb.url is required when influxdb is enabled")
		}
		if c.InfluxDB.Org == "" || c.InfluxDB.Bucket == "" {
			errs = append(errs, "influxdb.org and influxdb.bucket are required when influxdb is enabled")
		}
	}

	// API validation
	if c.API.Enabled && !validPort(c.API.Port) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	// Logging validation
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error", "":
	default:
		errs = append(errs, fmt.Sprintf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

func validPort(p int) bool {
	return p >= 1 && p <= 65535
}

// ControllerAddress returns the command link "host:port".
func (c *Config) ControllerAddress() string {
	return net.JoinHostPort(c.Controller.Host, strconv.Itoa(c.Controller.Port))
}

// ListenerAddress returns the status link "host:port", falling back to the
// controller address for unset fields.
func (c *Config) ListenerAddress() string {
	host := c.Listener.Host
	if host == "" {
		host = c.Controller.Host
	}
	port := c.Listener.Port
	if port == 0 {
		port = c.Controller.Port
	}
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// seconds converts a seconds field to a Duration.
func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

// GetConnectTimeout returns the controller dial timeout.
func (c *Config) GetConnectTimeout() time.Duration { return seconds(c.Controller.ConnectTimeout) }

// GetRetryDelay returns the wait between controller dial attempts.
func (c *Config) GetRetryDelay() time.Duration { return seconds(c.Controller.RetryDelay) }

// GetControllerWriteTimeout returns the frame write timeout.
func (c *Config) GetControllerWriteTimeout() time.Duration {
	return seconds(c.Controller.WriteTimeout)
}

// GetHeartbeatInterval returns the keep-alive period.
func (c *Config) GetHeartbeatInterval() time.Duration { return seconds(c.Controller.HeartbeatInterval) }

// GetListenerReadTimeout returns the status link read deadline.
func (c *Config) GetListenerReadTimeout() time.Duration { return seconds(c.Listener.ReadTimeout) }

// GetListenerRetryBackoff returns the wait after a failed status link dial.
func (c *Config) GetListenerRetryBackoff() time.Duration { return seconds(c.Listener.RetryBackoff) }

// GetMQTTReconnectDelay returns the wait before each manual bus reconnect.
func (c *Config) GetMQTTReconnectDelay() time.Duration { return seconds(c.MQTT.Reconnect.Delay) }

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
