// internal/config/config.go
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultAlias is the storage alias used when a layer is built without an
// explicit one.
const DefaultAlias = "default"

type Config struct {
	// Databases maps a storage alias to a Postgres DSN. One broker layer is
	// built per alias, each fully independent of the others.
	Databases map[string]string `yaml:"databases"`

	Broker struct {
		Prefix               string         `yaml:"prefix"`
		MessageExpirySeconds int            `yaml:"message_expiry_seconds"`
		GroupExpirySeconds   int            `yaml:"group_expiry_seconds"`
		Capacity             int            `yaml:"capacity"`
		ChannelCapacity      map[string]int `yaml:"channel_capacity"`
		ReceiveWaitSeconds   int            `yaml:"receive_wait_seconds"`
	} `yaml:"broker"`

	GC struct {
		IntervalSeconds int `yaml:"interval_seconds"`
	} `yaml:"gc"`

	ListenAddr string `yaml:"listen_addr"`
}

// Default returns a config with every knob at its documented default. Capacity
// values are advisory metadata; nothing in the delivery path enforces them.
func Default() *Config {
	cfg := &Config{
		Databases:  map[string]string{},
		ListenAddr: ":8080",
	}
	cfg.Broker.Prefix = "asgi"
	cfg.Broker.MessageExpirySeconds = 60
	cfg.Broker.GroupExpirySeconds = 86400
	cfg.Broker.Capacity = 100
	cfg.Broker.ReceiveWaitSeconds = 5
	cfg.GC.IntervalSeconds = 10
	return cfg
}

// LoadConfig reads path and overlays it on the defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if len(cfg.Databases) == 0 {
		return nil, fmt.Errorf("config: at least one database alias is required")
	}
	if _, ok := cfg.Databases[DefaultAlias]; !ok {
		return nil, fmt.Errorf("config: database alias %q is required", DefaultAlias)
	}
	return cfg, nil
}
