package config

const (
	defaultHost        = "0.0.0.0"
	defaultPort        = 5000
	defaultEventsTopic = "azrelay.completions"
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Host:        defaultHost,
		Port:        defaultPort,
		Threaded:    true,
		Metrics:     true,
		EventsTopic: defaultEventsTopic,
	}
}
