// Package config loads the daemon's persisted configuration.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	DefaultSerialPort = "/dev/ttyACM0"
	DefaultSerialBaud = 115200

	defaultTickRateHz       = 20
	defaultHeartbeatMs      = 500
	defaultCommandTimeoutMs = 1000
	defaultHealthIntervalMs = 1000
)

// SerialConfig selects the robot link device.
type SerialConfig struct {
	Port string `json:"port"`
	Baud int    `json:"baud"`
}

// LoggingConfig defines runtime logging behavior.
type LoggingConfig struct {
	Level     string `json:"level"`
	LogToFile bool   `json:"log_to_file"`
}

// LoopConfig sets the control loop cadence.
type LoopConfig struct {
	TickRateHz       int `json:"tick_rate_hz"`
	HeartbeatMs      int `json:"heartbeat_ms"`
	CommandTimeoutMs int `json:"command_timeout_ms"`
	HealthIntervalMs int `json:"health_interval_ms"`
}

// DatabaseConfig locates the goal store.
type DatabaseConfig struct {
	Path string `json:"path"`
}

// MetricsConfig enables the metrics listener when Addr is non-empty.
type MetricsConfig struct {
	Addr string `json:"addr"`
}

// SystemConfig holds host integration hooks.
type SystemConfig struct {
	// command run when the robot requests a host shutdown; empty disables it
	ShutdownCommand string `json:"shutdown_command"`
}

// AppConfig is the root persisted configuration.
type AppConfig struct {
	Serial   SerialConfig   `json:"serial"`
	Logging  LoggingConfig  `json:"logging"`
	Loop     LoopConfig     `json:"loop"`
	Database DatabaseConfig `json:"database"`
	Metrics  MetricsConfig  `json:"metrics"`
	System   SystemConfig   `json:"system"`
}

func Default() AppConfig {
	return AppConfig{
		Serial: SerialConfig{
			Port: DefaultSerialPort,
			Baud: DefaultSerialBaud,
		},
		Logging: LoggingConfig{
			Level:     "info",
			LogToFile: false,
		},
		Loop: LoopConfig{
			TickRateHz:       defaultTickRateHz,
			HeartbeatMs:      defaultHeartbeatMs,
			CommandTimeoutMs: defaultCommandTimeoutMs,
			HealthIntervalMs: defaultHealthIntervalMs,
		},
		Database: DatabaseConfig{
			Path: "goals.db",
		},
	}
}

func Load(path string) (AppConfig, error) {
	cfg := Default()
	cleanPath := filepath.Clean(path)
	// #nosec G304 -- path comes from the daemon's own flags.
	raw, err := os.ReadFile(cleanPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}

		return AppConfig{}, fmt.Errorf("read config: %w", err)
	}

	if err := json.Unmarshal(raw, &cfg); err != nil {
		return AppConfig{}, fmt.Errorf("decode config json: %w", err)
	}

	cfg.FillMissingDefaults()

	return cfg, nil
}

func (c *AppConfig) FillMissingDefaults() {
	if c.Serial.Port == "" {
		c.Serial.Port = DefaultSerialPort
	}
	if c.Serial.Baud <= 0 {
		c.Serial.Baud = DefaultSerialBaud
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Loop.TickRateHz <= 0 {
		c.Loop.TickRateHz = defaultTickRateHz
	}
	if c.Loop.HeartbeatMs <= 0 {
		c.Loop.HeartbeatMs = defaultHeartbeatMs
	}
	if c.Loop.CommandTimeoutMs < 0 {
		c.Loop.CommandTimeoutMs = defaultCommandTimeoutMs
	}
	if c.Loop.HealthIntervalMs <= 0 {
		c.Loop.HealthIntervalMs = defaultHealthIntervalMs
	}
	if c.Database.Path == "" {
		c.Database.Path = "goals.db"
	}
}

// TickPeriod converts the configured rate into a loop period.
func (c *AppConfig) TickPeriod() time.Duration {
	return time.Second / time.Duration(c.Loop.TickRateHz)
}

func (c *AppConfig) Heartbeat() time.Duration {
	return time.Duration(c.Loop.HeartbeatMs) * time.Millisecond
}

// CommandTimeout returns zero when the velocity watchdog is disabled.
func (c *AppConfig) CommandTimeout() time.Duration {
	return time.Duration(c.Loop.CommandTimeoutMs) * time.Millisecond
}

func (c *AppConfig) HealthInterval() time.Duration {
	return time.Duration(c.Loop.HealthIntervalMs) * time.Millisecond
}
