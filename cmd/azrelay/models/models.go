// Package modelscmder provides the models command, which prints the model
// catalog served on GET /v1/models.
package modelscmder

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/azrelay/pkg/cliui"
	"github.com/papercomputeco/azrelay/pkg/llm"
)

const modelsLongDesc string = `List the models advertised by the gateway.

Prints the same static catalog that GET /v1/models returns. Use --json to
print the raw response body.`

const modelsShortDesc string = "List the advertised models"

func NewModelsCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "models",
		Short: modelsShortDesc,
		Long:  modelsLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, asJSON)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the catalog as JSON")

	return cmd
}

func run(cmd *cobra.Command, asJSON bool) error {
	catalog := llm.Catalog()
	out := cmd.OutOrStdout()

	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(catalog)
	}

	fmt.Fprintf(out, "\n  %s\n\n", cliui.HeaderStyle.Render("Models"))
	for _, m := range catalog.Data {
		fmt.Fprintf(out, "  %s  %s  %s\n",
			cliui.KeyStyle.Render(m.ID),
			cliui.ValueStyle.Render(m.Name),
			cliui.DimStyle.Render(strconv.Itoa(m.Context)+" tokens"),
		)
	}
	fmt.Fprintln(out)
	return nil
}
