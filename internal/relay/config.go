package relay

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the relay's on-disk configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Limits   LimitsConfig   `yaml:"limits"`
	Logging  LoggingConfig  `yaml:"logging"`
	Presence PresenceConfig `yaml:"presence"`
	Audit    AuditConfig    `yaml:"audit"`
}

// ServerConfig holds the listen address.
type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// LimitsConfig holds the worker pool's sizing knobs.
type LimitsConfig struct {
	WorkerCount          int `yaml:"worker_count"`            // N, default 8
	MaxClientsPerWorker  int `yaml:"max_clients_per_worker"`  // default 1024
	IdleTimeoutSeconds   int `yaml:"idle_timeout_seconds"`    // default 900 (15m)
	HandshakeTimeoutSecs int `yaml:"handshake_timeout_seconds"`
}

// LoggingConfig holds the relay's logging settings.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	OutputFile string `yaml:"output_file"`
}

// PresenceConfig configures the optional multi-instance presence directory.
type PresenceConfig struct {
	Enabled      bool   `yaml:"enabled"`
	RedisAddr    string `yaml:"redis_addr"`
	RedisDB      int    `yaml:"redis_db"`
	InstanceAddr string `yaml:"instance_addr"` // this relay's externally reachable address
}

// AuditConfig configures the optional Postgres connection-event log.
type AuditConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

// DefaultConfig returns a configuration with the spec's defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr: "0.0.0.0:20247",
		},
		Limits: LimitsConfig{
			WorkerCount:          8,
			MaxClientsPerWorker:  1024,
			IdleTimeoutSeconds:   900,
			HandshakeTimeoutSecs: 30,
		},
		Logging: LoggingConfig{
			Level:      "info",
			OutputFile: "",
		},
	}
}

// LoadConfig reads and validates a YAML config file, falling back to
// defaults for any field the file omits.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("relay: read config: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("relay: parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("relay: invalid config: %w", err)
	}

	return cfg, nil
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if c.Server.ListenAddr == "" {
		return fmt.Errorf("server.listen_addr is required")
	}
	if c.Limits.WorkerCount < 1 {
		return fmt.Errorf("limits.worker_count must be at least 1")
	}
	if c.Limits.MaxClientsPerWorker < 1 {
		return fmt.Errorf("limits.max_clients_per_worker must be at least 1")
	}
	if c.Limits.IdleTimeoutSeconds < 0 {
		return fmt.Errorf("limits.idle_timeout_seconds must not be negative")
	}
	if c.Presence.Enabled && c.Presence.RedisAddr == "" {
		return fmt.Errorf("presence.redis_addr is required when presence.enabled is true")
	}
	if c.Audit.Enabled && (c.Audit.Host == "" || c.Audit.Database == "") {
		return fmt.Errorf("audit.host and audit.database are required when audit.enabled is true")
	}
	return nil
}

// IdleTimeout returns the configured idle timeout, or 0 (disabled) if the
// config explicitly set it to zero.
func (c *Config) IdleTimeout() time.Duration {
	return time.Duration(c.Limits.IdleTimeoutSeconds) * time.Second
}
