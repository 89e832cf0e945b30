package configcmder

import (
	"github.com/spf13/cobra"

	"github.com/papercomputeco/azrelay/pkg/cliui"
	"github.com/papercomputeco/azrelay/pkg/config"
)

const listLongDesc string = `List all configuration values.

Displays every configuration key with the value resolved from config.toml
and the built-in defaults.

Examples:
  azrelay config list`

const listShortDesc string = "List all configuration values"

func newListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: listShortDesc,
		Long:  listLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfger, err := newConfiger(cmd)
			if err != nil {
				return err
			}
			return runList(cmd, cfger)
		},
	}

	return cmd
}

func runList(cmd *cobra.Command, cfger *config.Configer) error {
	cfg, err := cfger.LoadConfig()
	if err != nil {
		return err
	}

	keys := config.ValidConfigKeys()
	rows := make([]cliui.Row, 0, len(keys))
	for _, key := range keys {
		value, err := cfg.Get(key)
		if err != nil {
			return err
		}
		rows = append(rows, cliui.Row{Key: key, Value: value})
	}

	out := cmd.OutOrStdout()
	cliui.ConfigSource(out, cfger.GetTarget(), cfger.Exists())
	cliui.Table(out, rows)
	return nil
}
