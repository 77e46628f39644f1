// Package config defines the YAML configuration tree for the proxy engine:
// listeners, named handlers, and named connectors, each handler/connector
// carrying a registry type name plus an arbitrary per-type settings
// sub-tree decoded lazily by that type's factory.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration document.
type Config struct {
	Listeners  []ListenerConfig           `yaml:"listeners"`
	Handlers   map[string]ComponentConfig `yaml:"handlers"`
	Connectors map[string]ComponentConfig `yaml:"connectors"`
	Logging    LoggingConfig              `yaml:"logging"`
	Metrics    MetricsConfig              `yaml:"metrics"`
}

// ListenerConfig names the endpoint to accept on and the handler (by name,
// referencing a key in Config.Handlers) it hands accepted connections to.
type ListenerConfig struct {
	Name     string `yaml:"name"`
	Endpoint string `yaml:"endpoint"`
	Handler  string `yaml:"handler"`
}

// ComponentConfig is the shape shared by every handler and connector entry:
// a registry type name plus a settings sub-tree the type's factory decodes
// itself (the Go analogue of the original's per-component property_tree).
type ComponentConfig struct {
	Type     string    `yaml:"type"`
	Settings yaml.Node `yaml:"settings"`
}

// LoggingConfig configures the process-wide structured logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig configures the optional Prometheus HTTP exporter.
type MetricsConfig struct {
	Listen string `yaml:"listen"`
}

// Load reads and parses a YAML configuration file, implicitly inserting a
// default `type: system` connector named "" if the config omits one.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes a YAML document into a Config, applying the same defaults
// as Load.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if cfg.Connectors == nil {
		cfg.Connectors = make(map[string]ComponentConfig)
	}
	if _, ok := cfg.Connectors[""]; !ok {
		cfg.Connectors[""] = ComponentConfig{Type: "system"}
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
	return &cfg, nil
}
