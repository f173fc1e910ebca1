package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/astreltsov/db-mcp-server/registry"
)

// Config declares connections to register at startup. Connections added at
// runtime through add_connection live only in the registry and are never
// written back here.
type Config struct {
	Connections map[string]Connection `yaml:"connections"`
}

type Connection struct {
	Type            string `yaml:"type"`
	registry.Params `yaml:",inline"`
}

func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return &config, nil
}
