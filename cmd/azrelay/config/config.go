// Package configcmder provides the config command for managing the persistent
// azrelay configuration stored in config.toml.
package configcmder

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/azrelay/pkg/config"
)

const configLongDesc string = `Manage persistent azrelay configuration.

Configuration is stored as config.toml in the config directory (the working
directory unless --config-dir is given). Environment variables of the same
name and CLI flags take precedence over config file values.

Keys are case-insensitive:
  HOST, PORT, DEBUG, THREADED, COMPAT_MODE, GLOBALIZE, BASE_URL,
  METRICS, EVENTS_BROKERS, EVENTS_TOPIC

Use subcommands to get, set, or list configuration values:
  azrelay config set <key> <value>    Set a configuration value
  azrelay config get <key>            Get a configuration value
  azrelay config list                 List all configuration values

Examples:
  azrelay config set BASE_URL https://my-resource.openai.azure.com
  azrelay config set compat_mode true
  azrelay config get PORT
  azrelay config list`

const configShortDesc string = "Manage persistent azrelay configuration"

func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: configShortDesc,
		Long:  configLongDesc,
	}

	cmd.AddCommand(newSetCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newListCmd())

	return cmd
}

func validateKey(key string) error {
	if !config.IsValidConfigKey(key) {
		return fmt.Errorf("unknown config key: %q\n\nValid keys: %s",
			key, strings.Join(config.ValidConfigKeys(), ", "))
	}
	return nil
}

func completeKeys(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
	if len(args) == 0 {
		return config.ValidConfigKeys(), cobra.ShellCompDirectiveNoFileComp
	}
	return nil, cobra.ShellCompDirectiveNoFileComp
}

func newConfiger(cmd *cobra.Command) (*config.Configer, error) {
	configDir, _ := cmd.Flags().GetString("config-dir")
	cfger, err := config.NewConfiger(configDir)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfger, nil
}
