package config

import (
	"fmt"
	"strconv"
)

// Config is the complete azrelay configuration. It is assembled once at
// startup and passed to constructors by value or pointer, never mutated
// after that.
//
// The TOML layout is flat and uses the upper case key names so config.toml
// reads the same as the environment.
type Config struct {
	Host       string `toml:"HOST"`
	Port       uint   `toml:"PORT"`
	Debug      bool   `toml:"DEBUG"`
	Threaded   bool   `toml:"THREADED"`
	CompatMode bool   `toml:"COMPAT_MODE"`
	Globalize  bool   `toml:"GLOBALIZE"`
	BaseURL    string `toml:"BASE_URL"`

	Metrics       bool   `toml:"METRICS"`
	EventsBrokers string `toml:"EVENTS_BROKERS"`
	EventsTopic   string `toml:"EVENTS_TOPIC"`
}

// Config key names. Lookups are case-insensitive.
const (
	KeyHost          = "HOST"
	KeyPort          = "PORT"
	KeyDebug         = "DEBUG"
	KeyThreaded      = "THREADED"
	KeyCompatMode    = "COMPAT_MODE"
	KeyGlobalize     = "GLOBALIZE"
	KeyBaseURL       = "BASE_URL"
	KeyMetrics       = "METRICS"
	KeyEventsBrokers = "EVENTS_BROKERS"
	KeyEventsTopic   = "EVENTS_TOPIC"
)

// configKeyInfo maps a user-facing key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

// configKeys is the authoritative map of all supported config keys.
var configKeys = map[string]configKeyInfo{
	KeyHost: {
		get: func(c *Config) string { return c.Host },
		set: func(c *Config, v string) error { c.Host = v; return nil },
	},
	KeyPort: {
		get: func(c *Config) string { return strconv.FormatUint(uint64(c.Port), 10) },
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 16)
			if err != nil {
				return fmt.Errorf("invalid value for PORT: %w", err)
			}
			c.Port = uint(n)
			return nil
		},
	},
	KeyDebug:      boolKey(KeyDebug, func(c *Config) *bool { return &c.Debug }),
	KeyThreaded:   boolKey(KeyThreaded, func(c *Config) *bool { return &c.Threaded }),
	KeyCompatMode: boolKey(KeyCompatMode, func(c *Config) *bool { return &c.CompatMode }),
	KeyGlobalize:  boolKey(KeyGlobalize, func(c *Config) *bool { return &c.Globalize }),
	KeyBaseURL: {
		get: func(c *Config) string { return c.BaseURL },
		set: func(c *Config, v string) error { c.BaseURL = v; return nil },
	},
	KeyMetrics: boolKey(KeyMetrics, func(c *Config) *bool { return &c.Metrics }),
	KeyEventsBrokers: {
		get: func(c *Config) string { return c.EventsBrokers },
		set: func(c *Config, v string) error { c.EventsBrokers = v; return nil },
	},
	KeyEventsTopic: {
		get: func(c *Config) string { return c.EventsTopic },
		set: func(c *Config, v string) error { c.EventsTopic = v; return nil },
	},
}

func boolKey(name string, field func(c *Config) *bool) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return strconv.FormatBool(*field(c)) },
		set: func(c *Config, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			*field(c) = b
			return nil
		},
	}
}
