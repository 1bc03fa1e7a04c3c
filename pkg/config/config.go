package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/BurntSushi/toml"

	"github.com/brookhq/brook/pkg/dotdir"
)

const configFileName = "config.toml"

// CurrentV is the config schema version written by this build.
const CurrentV = 0

// Configer loads, saves, and mutates the on-disk brook configuration.
type Configer interface {
	LoadConfig() (*Config, error)
	SaveConfig(cfg *Config) error
	GetConfigValue(key string) (string, error)
	SetConfigValue(key, value string) error
	ConfigPath() string
}

type configer struct {
	path string
}

// NewConfiger returns a Configer rooted at the .brook directory resolved
// from configDir (empty means default dotdir resolution).
func NewConfiger(configDir string) (Configer, error) {
	ddm := dotdir.NewManager()
	target, err := ddm.Target(configDir)
	if err != nil {
		return nil, fmt.Errorf("resolving config dir: %w", err)
	}
	return &configer{path: filepath.Join(target, configFileName)}, nil
}

// ConfigPath returns the absolute path of the config file.
func (c *configer) ConfigPath() string {
	return c.path
}

// LoadConfig reads config.toml, layering it over NewDefaultConfig().
// A missing file is not an error; defaults are returned.
func (c *configer) LoadConfig() (*Config, error) {
	data, err := os.ReadFile(c.path)
	if os.IsNotExist(err) {
		return NewDefaultConfig(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", c.path, err)
	}

	cfg, err := ParseConfigTOML(data)
	if err != nil {
		return nil, err
	}

	mergeDefaults(cfg)
	return cfg, nil
}

// SaveConfig writes cfg to config.toml.
func (c *configer) SaveConfig(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("cannot save nil config")
	}

	f, err := os.OpenFile(c.path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("opening %s: %w", c.path, err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	return nil
}

// GetConfigValue returns the current value of a dotted config key.
func (c *configer) GetConfigValue(key string) (string, error) {
	info, ok := configKeys[key]
	if !ok {
		return "", fmt.Errorf("unknown config key %q", key)
	}

	cfg, err := c.LoadConfig()
	if err != nil {
		return "", err
	}

	return info.get(cfg), nil
}

// SetConfigValue assigns value to a dotted config key and persists the
// result to disk.
func (c *configer) SetConfigValue(key, value string) error {
	info, ok := configKeys[key]
	if !ok {
		return fmt.Errorf("unknown config key %q", key)
	}

	cfg, err := c.LoadConfig()
	if err != nil {
		return err
	}

	if err := info.set(cfg, value); err != nil {
		return err
	}

	return c.SaveConfig(cfg)
}

// ParseConfigTOML decodes raw TOML into a Config and validates the
// schema version.
func ParseConfigTOML(data []byte) (*Config, error) {
	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.Version > CurrentV {
		return nil, fmt.Errorf("unsupported config version %d (max %d)", cfg.Version, CurrentV)
	}
	return &cfg, nil
}

// mergeDefaults fills zero-valued fields in cfg from NewDefaultConfig().
// Explicitly set values always win.
func mergeDefaults(cfg *Config) {
	d := NewDefaultConfig()

	if cfg.Relay.Listen == "" {
		cfg.Relay.Listen = d.Relay.Listen
	}
	if cfg.Relay.HeartbeatSeconds == 0 {
		cfg.Relay.HeartbeatSeconds = d.Relay.HeartbeatSeconds
	}
	if cfg.Upstream.URL == "" {
		cfg.Upstream.URL = d.Upstream.URL
	}
	if cfg.Upstream.Model == "" {
		cfg.Upstream.Model = d.Upstream.Model
	}
	if cfg.Upstream.MaxTokens == 0 {
		cfg.Upstream.MaxTokens = d.Upstream.MaxTokens
	}
	if cfg.Upstream.Temperature == 0 {
		cfg.Upstream.Temperature = d.Upstream.Temperature
	}
	if cfg.Events.KafkaTopic == "" {
		cfg.Events.KafkaTopic = d.Events.KafkaTopic
	}
	if cfg.Client.Target == "" {
		cfg.Client.Target = d.Client.Target
	}
}

// ValidConfigKeys returns all supported dotted config keys, sorted.
func ValidConfigKeys() []string {
	keys := make([]string, 0, len(configKeys))
	for k := range configKeys {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// IsValidConfigKey reports whether key names a supported config key.
func IsValidConfigKey(key string) bool {
	_, ok := configKeys[key]
	return ok
}
