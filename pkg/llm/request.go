// Package llm provides the wire representations of chat completion requests,
// streamed chunks and error bodies that azrelay accepts and emits.
package llm

import (
	"encoding/json"
	"errors"
)

// Generation defaults applied when the caller omits a parameter.
const (
	DefaultTemperature      = 0.7
	DefaultTopP             = 1.0
	DefaultMaxTokens        = 150
	DefaultFrequencyPenalty = 1.0
	DefaultPresencePenalty  = 1.0
)

var (
	// ErrMissingModel is returned by Resolve when the request has no model.
	ErrMissingModel = errors.New("model is required")

	// ErrMissingMessages is returned by Resolve when the request has no messages.
	ErrMissingMessages = errors.New("messages is required")
)

// ChatRequest is an inbound OpenAI-style chat completion request.
// Optional parameters are pointers so an absent field can be told apart
// from an explicit zero.
type ChatRequest struct {
	Model string `json:"model"`

	// Messages are kept as the caller sent them so every field (tool_calls,
	// tool_call_id, name, multimodal content) reaches the provider verbatim.
	Messages []json.RawMessage `json:"messages"`
	Stream   *bool             `json:"stream,omitempty"`

	Temperature      *float64 `json:"temperature,omitempty"`
	TopP             *float64 `json:"top_p,omitempty"`
	FrequencyPenalty *float64 `json:"frequency_penalty,omitempty"`
	PresencePenalty  *float64 `json:"presence_penalty,omitempty"`

	// MaxTokens and MaxCompletionTokens both limit the completion length.
	// MaxCompletionTokens wins when both are set.
	MaxTokens           *int `json:"max_tokens,omitempty"`
	MaxCompletionTokens *int `json:"max_completion_tokens,omitempty"`
}

// UpstreamPayload is the fully resolved request body sent to the provider.
type UpstreamPayload struct {
	Model string `json:"-"`

	Messages         []json.RawMessage `json:"messages"`
	Temperature      float64           `json:"temperature"`
	TopP             float64           `json:"top_p"`
	MaxTokens        int               `json:"max_tokens"`
	FrequencyPenalty float64           `json:"frequency_penalty"`
	PresencePenalty  float64           `json:"presence_penalty"`
	Stream           bool              `json:"stream"`
}

// Resolve validates the required fields and applies defaults for every
// omitted generation parameter.
func (r *ChatRequest) Resolve() (UpstreamPayload, error) {
	if r.Model == "" {
		return UpstreamPayload{}, ErrMissingModel
	}
	if r.Messages == nil {
		return UpstreamPayload{}, ErrMissingMessages
	}

	p := UpstreamPayload{
		Model:            r.Model,
		Messages:         r.Messages,
		Temperature:      floatOr(r.Temperature, DefaultTemperature),
		TopP:             floatOr(r.TopP, DefaultTopP),
		MaxTokens:        DefaultMaxTokens,
		FrequencyPenalty: floatOr(r.FrequencyPenalty, DefaultFrequencyPenalty),
		PresencePenalty:  floatOr(r.PresencePenalty, DefaultPresencePenalty),
		Stream:           r.Stream != nil && *r.Stream,
	}

	switch {
	case r.MaxCompletionTokens != nil:
		p.MaxTokens = *r.MaxCompletionTokens
	case r.MaxTokens != nil:
		p.MaxTokens = *r.MaxTokens
	}

	return p, nil
}

func floatOr(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}
