// Package azrelaycmder
package azrelaycmder

import (
	"github.com/spf13/cobra"

	configcmder "github.com/papercomputeco/azrelay/cmd/azrelay/config"
	modelscmder "github.com/papercomputeco/azrelay/cmd/azrelay/models"
	servecmder "github.com/papercomputeco/azrelay/cmd/azrelay/serve"
	versioncmder "github.com/papercomputeco/azrelay/cmd/version"
)

const azrelayLongDesc string = `azrelay is an OpenAI-compatible gateway for Azure OpenAI.

Point any OpenAI client at azrelay and it calls the Azure OpenAI deployment
named by the request's model, passing the caller's key through.

  azrelay serve         Run the gateway
  azrelay config        Manage persistent configuration
  azrelay models        List the advertised models
  azrelay version       Print build information`

const azrelayShortDesc string = "azrelay - OpenAI-compatible gateway for Azure OpenAI"

func NewAzrelayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "azrelay",
		Short:        azrelayShortDesc,
		Long:         azrelayLongDesc,
		SilenceUsage: true,
	}

	// Global flags
	cmd.PersistentFlags().String("config-dir", "", "Directory holding config.toml or config.json (default: working directory)")

	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(modelscmder.NewModelsCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
