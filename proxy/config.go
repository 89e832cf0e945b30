package proxy

import (
	"net/http"

	"github.com/papercomputeco/azrelay/pkg/config"
)

// Config is the gateway configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., "0.0.0.0:5000")
	ListenAddr string

	// BaseURL is the Azure OpenAI resource endpoint
	// (e.g., "https://my-resource.openai.azure.com"). Chat requests fail with
	// an internal error while it is empty.
	BaseURL string

	// CompatMode rewrites streamed chunks into the generic OpenAI chunk shape.
	CompatMode bool

	// Threaded serves connections concurrently. When false the server accepts
	// a single connection at a time.
	Threaded bool

	// Metrics mounts the Prometheus handler on /metrics.
	Metrics bool

	// HTTPClient overrides the upstream HTTP client. Optional.
	HTTPClient *http.Client
}

// ConfigFrom maps the resolved application configuration onto a gateway Config.
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		ListenAddr: cfg.ListenAddr(),
		BaseURL:    cfg.BaseURL,
		CompatMode: cfg.CompatMode,
		Threaded:   cfg.Threaded,
		Metrics:    cfg.Metrics,
	}
}
