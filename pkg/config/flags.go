package config

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Flag is the single source of truth for a CLI flag.
// Commands reference flags by registry key rather than hard-coding names,
// shorthands, defaults, and descriptions inline.
type Flag struct {
	// Name is the long flag name (e.g. "base-url").
	Name string

	// Shorthand is the one-letter short flag (e.g. "u"). Empty for no shorthand.
	Shorthand string

	// Key is the config key this flag maps to (e.g. "BASE_URL").
	Key string

	// Description is the help text shown in --help output.
	Description string
}

// FlagSet is a mapping of flag names to Flag structs that hold their name,
// shorthand, config key, etc.
type FlagSet map[string]Flag

// Flag registry keys.
// Use these constants when calling AddStringFlag, AddUintFlag, AddBoolFlag
// and BindRegisteredFlags to avoid typos or drift from one command to another.
const (
	FlagHost          = "host"
	FlagPort          = "port"
	FlagDebug         = "debug"
	FlagThreaded      = "threaded"
	FlagCompatMode    = "compat-mode"
	FlagGlobalize     = "globalize"
	FlagBaseURL       = "base-url"
	FlagMetrics       = "metrics"
	FlagEventsBrokers = "events-brokers"
	FlagEventsTopic   = "events-topic"
)

// ServeFlags are the flags accepted by "azrelay serve".
var ServeFlags = FlagSet{
	FlagHost:          {Name: "host", Key: KeyHost, Description: "Address to listen on"},
	FlagPort:          {Name: "port", Shorthand: "p", Key: KeyPort, Description: "Port to listen on"},
	FlagDebug:         {Name: "debug", Shorthand: "d", Key: KeyDebug, Description: "Enable debug logging"},
	FlagThreaded:      {Name: "threaded", Key: KeyThreaded, Description: "Serve connections concurrently"},
	FlagCompatMode:    {Name: "compat-mode", Key: KeyCompatMode, Description: "Rewrite streamed chunks into the generic OpenAI chunk shape"},
	FlagGlobalize:     {Name: "globalize", Key: KeyGlobalize, Description: "Expose the server through a public tunnel (not supported)"},
	FlagBaseURL:       {Name: "base-url", Shorthand: "u", Key: KeyBaseURL, Description: "Azure OpenAI resource endpoint"},
	FlagMetrics:       {Name: "metrics", Key: KeyMetrics, Description: "Serve Prometheus metrics on /metrics"},
	FlagEventsBrokers: {Name: "events-brokers", Key: KeyEventsBrokers, Description: "Comma-separated Kafka brokers for completion events"},
	FlagEventsTopic:   {Name: "events-topic", Key: KeyEventsTopic, Description: "Kafka topic for completion events"},
}

// AddStringFlag registers a string flag on cmd from the given FlagSet.
// The flag's name, shorthand, default, and description all come from the
// FlagSet entry so they cannot drift across commands.
func AddStringFlag(cmd *cobra.Command, fs FlagSet, key string, target *string) {
	def, ok := fs[key]
	if !ok {
		return
	}

	defaultVal := defaults().GetString(viperKey(def.Key))
	if def.Shorthand != "" {
		cmd.Flags().StringVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().StringVar(target, def.Name, defaultVal, def.Description)
	}
}

// AddUintFlag registers a uint flag on cmd from the given FlagSet.
func AddUintFlag(cmd *cobra.Command, fs FlagSet, registryKey string, target *uint) {
	def, ok := fs[registryKey]
	if !ok {
		return
	}

	defaultVal := defaults().GetUint(viperKey(def.Key))
	if def.Shorthand != "" {
		cmd.Flags().UintVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().UintVar(target, def.Name, defaultVal, def.Description)
	}
}

// AddBoolFlag registers a bool flag on cmd from the given FlagSet.
func AddBoolFlag(cmd *cobra.Command, fs FlagSet, registryKey string, target *bool) {
	def, ok := fs[registryKey]
	if !ok {
		return
	}

	defaultVal := defaults().GetBool(viperKey(def.Key))
	if def.Shorthand != "" {
		cmd.Flags().BoolVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().BoolVar(target, def.Name, defaultVal, def.Description)
	}
}

// BindRegisteredFlags binds already-registered flags to viper using definitions
// from the given FlagSet. Call this in PreRunE after InitViper to connect flags
// to the viper precedence chain (flag > env > config file > default).
// Only flags the user actually set override lower layers.
func BindRegisteredFlags(v *viper.Viper, cmd *cobra.Command, fs FlagSet, registryKeys []string) {
	for _, registryKey := range registryKeys {
		def, ok := fs[registryKey]
		if !ok {
			continue
		}

		f := cmd.Flags().Lookup(def.Name)
		if f == nil {
			continue
		}

		_ = v.BindPFlag(viperKey(def.Key), f)
	}
}

// defaults returns a viper instance holding only the built-in defaults.
func defaults() *viper.Viper {
	v := viper.New()
	setViperDefaults(v)
	return v
}
