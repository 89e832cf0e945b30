// Package upstream sends chat completion requests to an Azure OpenAI
// deployment.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/papercomputeco/azrelay/pkg/llm"
	"github.com/papercomputeco/azrelay/pkg/sse"
	"github.com/papercomputeco/azrelay/proxy/header"
)

// APIVersion is the Azure OpenAI REST API version requested on every call.
const APIVersion = "2024-02-15-preview"

// DefaultTimeout bounds a single upstream call, body included.
const DefaultTimeout = 5 * time.Minute

// Client calls the chat completions endpoint of one Azure OpenAI resource.
// It never retries.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// Config configures a Client.
type Config struct {
	// BaseURL is the Azure resource endpoint, e.g. "https://foo.openai.azure.com".
	BaseURL string

	// HTTPClient overrides the default client. Optional.
	HTTPClient *http.Client

	Logger *zap.Logger
}

// NewClient creates a Client.
func NewClient(cfg Config) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			// LLM requests can be slow, long completions stream for minutes
			Timeout: DefaultTimeout,
		}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: httpClient,
		logger:     logger,
	}
}

// Endpoint returns the chat completions URL for the deployment named model.
func (c *Client) Endpoint(model string) string {
	return c.baseURL + "/openai/deployments/" + url.PathEscape(model) +
		"/chat/completions?api-version=" + APIVersion
}

// Send posts payload to the deployment named by payload.Model using token as
// the api-key. Provider and transport failures are reported through
// Result.Failure rather than as an error.
//
// For a streaming payload the returned Result holds the open response body
// and the caller must Close it.
func (c *Client) Send(ctx context.Context, token string, payload llm.UpstreamPayload) *Result {
	endpoint := c.Endpoint(payload.Model)

	body, err := json.Marshal(payload)
	if err != nil {
		return transportFailure(fmt.Errorf("encoding payload: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return transportFailure(fmt.Errorf("creating request: %w", err))
	}
	header.SetUpstreamRequestHeaders(req, token)

	c.logger.Debug("forwarding request to upstream",
		zap.String("url", endpoint),
		zap.String("model", payload.Model),
		zap.Bool("stream", payload.Stream),
	)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("upstream request failed", zap.Error(err))
		return transportFailure(err)
	}

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		c.logger.Warn("upstream returned error",
			zap.Int("status", resp.StatusCode),
			zap.String("model", payload.Model),
			zap.ByteString("body", respBody),
		)
		return &Result{Status: resp.StatusCode, Failure: statusFailure(resp.StatusCode, payload.Model, endpoint)}
	}

	if payload.Stream {
		return &Result{
			Status: resp.StatusCode,
			Lines:  sse.NewLineReader(resp.Body),
			body:   resp.Body,
		}
	}

	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		c.logger.Error("failed to read upstream response", zap.Error(err))
		return transportFailure(fmt.Errorf("reading response: %w", err))
	}

	return &Result{Status: resp.StatusCode, Body: respBody}
}
