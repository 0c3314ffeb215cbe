package config

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Broker kinds selectable in configuration.
const (
	BrokerRedis  = "redis"
	BrokerNATS   = "nats"
	BrokerMemory = "memory"
)

// Config is the node configuration, loaded from YAML with defaults
// for anything unset.
type Config struct {
	// InstanceID identifies this server instance in lifecycle events.
	// Defaults to a random UUID per process.
	InstanceID string `yaml:"instance_id"`

	ListenAddr  string `yaml:"listen_addr"`
	MetricsPath string `yaml:"metrics_path"`

	Broker    string `yaml:"broker"`
	RedisAddr string `yaml:"redis_addr"`
	NATSURL   string `yaml:"nats_url"`

	// History and presence both need Redis; they are ignored for the
	// memory broker unless redis_addr is still reachable.
	HistoryEnabled  bool `yaml:"history_enabled"`
	HistoryLimit    int  `yaml:"history_limit"`
	PresenceEnabled bool `yaml:"presence_enabled"`

	LogLevel string `yaml:"log_level"`
	LogJSON  bool   `yaml:"log_json"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		InstanceID:      "instance-" + uuid.NewString(),
		ListenAddr:      ":8080",
		MetricsPath:     "/metrics",
		Broker:          BrokerRedis,
		RedisAddr:       "localhost:6379",
		NATSURL:         "nats://localhost:4222",
		HistoryEnabled:  true,
		HistoryLimit:    100,
		PresenceEnabled: true,
		LogLevel:        "info",
	}
}

// Load reads a YAML config file over the defaults. An empty path
// returns the defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.Broker {
	case BrokerRedis, BrokerNATS, BrokerMemory:
	default:
		return fmt.Errorf("unknown broker kind %q", c.Broker)
	}
	if c.HistoryLimit < 0 {
		return fmt.Errorf("history_limit must be >= 0")
	}
	return nil
}
