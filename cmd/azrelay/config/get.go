package configcmder

import (
	"github.com/spf13/cobra"

	"github.com/papercomputeco/azrelay/pkg/cliui"
	"github.com/papercomputeco/azrelay/pkg/config"
)

const getLongDesc string = `Get a configuration value.

Reads the value for the given key from config.toml, falling back to the
built-in default when the key is not set in the file.

Examples:
  azrelay config get BASE_URL
  azrelay config get port`

const getShortDesc string = "Get a configuration value"

func newGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:               "get <key>",
		Short:             getShortDesc,
		Long:              getLongDesc,
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: completeKeys,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateKey(args[0]); err != nil {
				return err
			}

			cfger, err := newConfiger(cmd)
			if err != nil {
				return err
			}
			return runGet(cmd, cfger, args[0])
		},
	}

	return cmd
}

func runGet(cmd *cobra.Command, cfger *config.Configer, key string) error {
	value, err := cfger.GetConfigValue(key)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	cliui.ConfigSource(out, cfger.GetTarget(), cfger.Exists())
	cliui.Table(out, []cliui.Row{{Key: config.NormalizeKey(key), Value: value}})
	return nil
}
