package configcmder

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/azrelay/pkg/cliui"
	"github.com/papercomputeco/azrelay/pkg/config"
)

const setLongDesc string = `Set a configuration value.

Sets the given key to the provided value in config.toml, creating the file
when it does not exist yet. Boolean keys accept true/false, PORT accepts a
port number.

Examples:
  azrelay config set BASE_URL https://my-resource.openai.azure.com
  azrelay config set port 8080
  azrelay config set EVENTS_BROKERS localhost:9092`

const setShortDesc string = "Set a configuration value"

func newSetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:               "set <key> <value>",
		Short:             setShortDesc,
		Long:              setLongDesc,
		Args:              cobra.ExactArgs(2),
		ValidArgsFunction: completeKeys,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateKey(args[0]); err != nil {
				return err
			}

			cfger, err := newConfiger(cmd)
			if err != nil {
				return err
			}
			return runSet(cmd, cfger, args[0], args[1])
		},
	}

	return cmd
}

func runSet(cmd *cobra.Command, cfger *config.Configer, key, value string) error {
	if err := cfger.SetConfigValue(key, value); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "\n  %s Set %s = %s\n\n",
		cliui.SuccessMark,
		cliui.KeyStyle.Render(config.NormalizeKey(key)),
		cliui.ValueStyle.Render(value),
	)
	return nil
}
