package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// DotEnvFile is the env file loaded from the working directory at startup.
const DotEnvFile = ".env"

// InitViper creates and returns a configured *viper.Viper.
// It loads DotEnvFile into the process environment, sets defaults from
// NewDefaultConfig(), reads config.json or config.toml from configDir (the
// working directory when empty) and binds environment variables by key name.
// When both files exist config.json wins.
//
// Config precedence (highest to lowest):
//  1. CLI flags (once bound via BindRegisteredFlags)
//  2. Environment variables (BASE_URL, COMPAT_MODE, etc.), .env included
//  3. config.json / config.toml file values
//  4. Defaults from NewDefaultConfig()
func InitViper(configDir string) (*viper.Viper, error) {
	if err := LoadDotEnv(DotEnvFile); err != nil {
		return nil, err
	}

	v := viper.New()

	// 1. Register all defaults from NewDefaultConfig().
	setViperDefaults(v)

	// 2. Config file discovery: viper tries each supported extension in order.
	v.SetConfigName("config")
	if configDir == "" {
		configDir = "."
	}
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		// Config file not found errors are fine, defaults will apply.
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	// 3. Environment variables share the key names: BASE_URL, PORT, etc.
	v.AutomaticEnv()

	return v, nil
}

// LoadDotEnv loads path into the process environment without overriding
// variables that are already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("reading %s: %w", path, err)
	}

	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

// FromViper assembles a Config from the resolved viper values.
func FromViper(v *viper.Viper) *Config {
	return &Config{
		Host:          v.GetString(viperKey(KeyHost)),
		Port:          v.GetUint(viperKey(KeyPort)),
		Debug:         v.GetBool(viperKey(KeyDebug)),
		Threaded:      v.GetBool(viperKey(KeyThreaded)),
		CompatMode:    v.GetBool(viperKey(KeyCompatMode)),
		Globalize:     v.GetBool(viperKey(KeyGlobalize)),
		BaseURL:       v.GetString(viperKey(KeyBaseURL)),
		Metrics:       v.GetBool(viperKey(KeyMetrics)),
		EventsBrokers: v.GetString(viperKey(KeyEventsBrokers)),
		EventsTopic:   v.GetString(viperKey(KeyEventsTopic)),
	}
}

// viperKey maps a config key to viper's lower case key space.
func viperKey(key string) string {
	return strings.ToLower(key)
}

// setViperDefaults registers defaults from NewDefaultConfig() into viper.
// This keeps defaults.go as the single source of truth.
func setViperDefaults(v *viper.Viper) {
	d := NewDefaultConfig()

	for _, key := range ValidConfigKeys() {
		v.SetDefault(viperKey(key), configKeys[key].get(d))
	}
}
