package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Device   DeviceConfig   `yaml:"device"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	Poll     PollConfig     `yaml:"poll"`
	LogLevel string         `yaml:"log_level"`
}

// DeviceConfig identifies the SwitchBot and how to talk to it.
type DeviceConfig struct {
	Address    string `yaml:"address"`
	Password   string `yaml:"password"`    // empty means unauthenticated
	DualMode   *bool  `yaml:"dual_mode"`   // required
	RetryCount int    `yaml:"retry_count"` // retries after the first attempt
}

// MQTTConfig holds the broker connection used by the bridge.
type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	ClientID    string `yaml:"client_id"`
	TLS         bool   `yaml:"tls"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	TopicPrefix string `yaml:"topic_prefix"`
	QoS         int    `yaml:"qos"`
}

// InfluxDBConfig holds the optional telemetry sink.
type InfluxDBConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Token   string `yaml:"token"`
	Org     string `yaml:"org"`
	Bucket  string `yaml:"bucket"`
}

// PollConfig schedules periodic settings refreshes in bridge mode.
type PollConfig struct {
	Schedule string `yaml:"schedule"` // cron expression or duration; empty disables
}

// DefaultConfigDir returns the default config directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "switchbot-go")
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// Default returns a Config with sensible default values. The device
// address and mode have no defaults.
func Default() *Config {
	return &Config{
		Device: DeviceConfig{
			RetryCount: 3,
		},
		MQTT: MQTTConfig{
			Host:        "localhost",
			Port:        1883,
			ClientID:    "switchbot-go",
			TopicPrefix: "switchbot",
			QoS:         1,
		},
		InfluxDB: InfluxDBConfig{
			URL:    "http://localhost:8086",
			Bucket: "switchbot",
		},
		LogLevel: "info",
	}
}

// Load reads and parses a YAML config file. Missing fields are filled
// with defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(expandTilde(path))
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	return cfg, nil
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	if c.Device.Address == "" {
		return fmt.Errorf("device.address must not be empty")
	}

	if c.Device.DualMode == nil {
		return fmt.Errorf("device.dual_mode must be set to true or false")
	}

	if c.Device.RetryCount < 0 {
		return fmt.Errorf("device.retry_count must be >= 0, got %d", c.Device.RetryCount)
	}

	if c.MQTT.Enabled {
		if c.MQTT.Host == "" {
			return fmt.Errorf("mqtt.host must not be empty")
		}
		if c.MQTT.Port <= 0 || c.MQTT.Port > 65535 {
			return fmt.Errorf("mqtt.port must be 1-65535, got %d", c.MQTT.Port)
		}
		if c.MQTT.ClientID == "" {
			return fmt.Errorf("mqtt.client_id must not be empty")
		}
		if c.MQTT.TopicPrefix == "" || strings.ContainsAny(c.MQTT.TopicPrefix, "+#") {
			return fmt.Errorf("mqtt.topic_prefix must be non-empty without wildcards, got %q", c.MQTT.TopicPrefix)
		}
		if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
			return fmt.Errorf("mqtt.qos must be 0, 1, or 2, got %d", c.MQTT.QoS)
		}
	}

	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			return fmt.Errorf("influxdb.url must not be empty")
		}
		if c.InfluxDB.Org == "" || c.InfluxDB.Bucket == "" {
			return fmt.Errorf("influxdb.org and influxdb.bucket must not be empty")
		}
	}

	if c.Poll.Schedule != "" {
		if !c.MQTT.Enabled {
			return fmt.Errorf("poll.schedule requires mqtt.enabled")
		}
		if d, err := time.ParseDuration(c.Poll.Schedule); err == nil && d <= 0 {
			return fmt.Errorf("poll.schedule duration must be positive, got %q", c.Poll.Schedule)
		}
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}

	return nil
}

// ParseLogLevel maps a log_level string to a slog.Level, defaulting to info.
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

const defaultConfigTemplate = `# switchbot-go configuration
#
# device.dual_mode: true for an on/off switch, false for a momentary press.
device:
  address: ""
  password: ""
  dual_mode: false
  retry_count: 3

mqtt:
  enabled: false
  host: localhost
  port: 1883
  client_id: switchbot-go
  tls: false
  username: ""
  password: ""
  topic_prefix: switchbot
  qos: 1

influxdb:
  enabled: false
  url: http://localhost:8086
  token: ""
  org: ""
  bucket: switchbot

# Cron expression ("0 * * * *") or duration ("1h"). Empty disables polling.
poll:
  schedule: ""

log_level: info
`

// WriteDefault writes a commented default config to DefaultConfigPath.
// It returns the written path, or "" if a config file already exists.
func WriteDefault() (string, error) {
	path := DefaultConfigPath()
	if _, err := os.Stat(path); err == nil {
		return "", nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("checking config file: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("creating config dir: %w", err)
	}
	// The file may later hold a device password.
	if err := os.WriteFile(path, []byte(defaultConfigTemplate), 0o600); err != nil {
		return "", fmt.Errorf("writing config file: %w", err)
	}
	return path, nil
}

// expandTilde replaces a leading ~ with the user's home directory.
func expandTilde(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
