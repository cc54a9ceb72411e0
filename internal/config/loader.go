package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// decode parses YAML into a ServerConfig. Values may reference
// environment variables with ${VAR} syntax; unset variables expand to
// the empty string.
func decode(raw []byte) (*ServerConfig, error) {
	cfg := &ServerConfig{}
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(raw))), cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load reads and parses a config file without touching its values.
func Load(path string) (*ServerConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg, err := decode(raw)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// LoadWithDefaults loads a config file and fills unset fields.
func LoadWithDefaults(path string) (*ServerConfig, error) {
	cfg, err := Load(path)
	if err == nil {
		cfg.applyDefaults()
	}
	return cfg, err
}

// LoadAndValidate is what the daemon calls at startup: load, default,
// then reject configs that cannot run.
func LoadAndValidate(path string) (*ServerConfig, error) {
	cfg, err := LoadWithDefaults(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}
