package llm

import "encoding/json"

// ChunkObject is the object type carried by every streamed chunk.
const ChunkObject = "chat.completion.chunk"

// FinishReasonStop marks the final content chunk of a stream.
const FinishReasonStop = "stop"

// CompatChunk is the generic OpenAI-compatible streaming chunk emitted in
// compatibility mode. Field order is significant for older front-ends and
// matches the order below.
type CompatChunk struct {
	ID      string         `json:"id"`
	Created string         `json:"created"` // unix seconds, string encoded
	Model   string         `json:"model"`
	Object  string         `json:"object"`
	Choices []CompatChoice `json:"choices"`

	// FinishReason is null for every chunk except the final "stop" chunk.
	FinishReason *string `json:"finish_reason"`
}

// CompatChoice is the single choice of a CompatChunk.
type CompatChoice struct {
	Delta CompatDelta `json:"delta"`
	Index int         `json:"index"`
}

// CompatDelta holds the incremental content. Content is the raw JSON value
// copied from the upstream chunk, so a null upstream content stays null.
type CompatDelta struct {
	Content json.RawMessage `json:"content"`
}
