// Package config loads and persists azrelay configuration.
//
// Values are resolved from, lowest to highest precedence: built-in defaults,
// config.json or config.toml in the config directory, environment variables
// (a .env file in the working directory included) and CLI flags.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

const configFile = "config.toml"

// Configer reads and writes config.toml in a config directory.
type Configer struct {
	targetPath string
}

// NewConfiger returns a Configer for dir. An empty dir means the current
// working directory.
func NewConfiger(dir string) (*Configer, error) {
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("resolving working directory: %w", err)
		}
		dir = wd
	}

	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("reading config dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("config dir %s is not a directory", dir)
	}

	return &Configer{targetPath: filepath.Join(dir, configFile)}, nil
}

// ValidConfigKeys returns every supported configuration key name in display
// order.
func ValidConfigKeys() []string {
	return []string{
		KeyHost,
		KeyPort,
		KeyDebug,
		KeyThreaded,
		KeyCompatMode,
		KeyGlobalize,
		KeyBaseURL,
		KeyMetrics,
		KeyEventsBrokers,
		KeyEventsTopic,
	}
}

// NormalizeKey returns the canonical upper case form of key.
func NormalizeKey(key string) string {
	return strings.ToUpper(strings.TrimSpace(key))
}

// IsValidConfigKey returns true if the given key is a supported configuration
// key, ignoring case.
func IsValidConfigKey(key string) bool {
	_, ok := configKeys[NormalizeKey(key)]
	return ok
}

// GetTarget returns the path of the config.toml file.
func (c *Configer) GetTarget() string {
	return c.targetPath
}

// Exists reports whether config.toml is present.
func (c *Configer) Exists() bool {
	_, err := os.Stat(c.targetPath)
	return err == nil
}

// LoadConfig loads config.toml from the config directory. Keys absent from
// the file keep their defaults, and a missing file yields NewDefaultConfig().
func (c *Configer) LoadConfig() (*Config, error) {
	data, err := os.ReadFile(c.targetPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return NewDefaultConfig(), nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	return ParseConfigTOML(data)
}

// SaveConfig persists the configuration to config.toml in the config directory.
func (c *Configer) SaveConfig(cfg *Config) error {
	if cfg == nil {
		return errors.New("cannot save nil config")
	}

	var buf bytes.Buffer
	encoder := toml.NewEncoder(&buf)
	if err := encoder.Encode(cfg); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	if err := os.WriteFile(c.targetPath, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	return nil
}

// SetConfigValue loads the config, sets the given key to the given value, and saves it.
// Returns an error if the key is not a valid config key.
func (c *Configer) SetConfigValue(key string, value string) error {
	info, ok := configKeys[NormalizeKey(key)]
	if !ok {
		return fmt.Errorf("unknown config key: %q", key)
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

// GetConfigValue loads the config and returns the string representation of the given key.
// Returns an error if the key is not a valid config key.
func (c *Configer) GetConfigValue(key string) (string, error) {
	cfg, err := c.LoadConfig()
	if err != nil {
		return "", err
	}

	return cfg.Get(key)
}

// Get returns the string representation of key on cfg.
func (cfg *Config) Get(key string) (string, error) {
	info, ok := configKeys[NormalizeKey(key)]
	if !ok {
		return "", fmt.Errorf("unknown config key: %q", key)
	}
	return info.get(cfg), nil
}

// ListenAddr returns the host:port the gateway listens on.
func (cfg *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
}

// Brokers splits EventsBrokers into broker addresses, dropping empty entries.
func (cfg *Config) Brokers() []string {
	var brokers []string
	for _, b := range strings.Split(cfg.EventsBrokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

// ParseConfigTOML parses raw TOML bytes over the defaults. Key names are
// matched case-insensitively.
func ParseConfigTOML(data []byte) (*Config, error) {
	cfg := NewDefaultConfig()
	if _, err := toml.Decode(string(data), cfg); err != nil {
		return nil, fmt.Errorf("parsing config TOML: %w", err)
	}

	return cfg, nil
}
