package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"go.yaml.in/yaml/v3"
)

// EnvConfigPath names the environment variable holding the config file path
// when --config is not given.
const EnvConfigPath = "ROUTE53_IP_UPDATE_CONFIG"

// Load reads the configuration from path, falling back to the path in
// ROUTE53_IP_UPDATE_CONFIG. With neither set it returns an empty Config so the
// command line alone can describe the run.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if path == "" {
		return &Config{}, nil
	}
	return LoadFromPath(path)
}

// LoadFromPath reads the configuration file at path. The format follows the
// extension: .yaml, .yml and .json are read as YAML, .toml as TOML.
func LoadFromPath(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.NewDecoder(bytes.NewReader(data)).Decode(&cfg); err != nil {
			return nil, fmt.Errorf("%w: parsing config file %s: %w", ErrInvalidConfig, path, err)
		}
	case ".yaml", ".yml", ".json":
		if len(bytes.TrimSpace(data)) > 0 {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("%w: parsing config file %s: %w", ErrInvalidConfig, path, err)
			}
		}
	default:
		return nil, fmt.Errorf("%w: unsupported config file extension %q", ErrInvalidConfig, filepath.Ext(path))
	}

	cfg.expandEnv()
	return &cfg, nil
}

// expandEnv expands ${ENV_VAR} references in string settings.
func (c *Config) expandEnv() {
	if c.IPService != nil {
		v := os.ExpandEnv(*c.IPService)
		c.IPService = &v
	}
	for i := range c.Zones {
		z := &c.Zones[i]
		z.ZoneID = os.ExpandEnv(z.ZoneID)
		for j := range z.Hostnames {
			z.Hostnames[j].Hostname = os.ExpandEnv(z.Hostnames[j].Hostname)
		}
	}
}
