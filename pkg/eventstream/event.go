package eventstream

import (
	"time"

	"github.com/google/uuid"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeCompletionFinished is emitted after a chat completion request
	// has been answered, successfully or not.
	EventTypeCompletionFinished = "azrelay.completion.finished"
)

// CompletionEvent is a transport-neutral event payload for a finished chat
// completion request.
type CompletionEvent struct {
	SchemaVersion int           `json:"schema_version"`
	EventType     string        `json:"event_type"`
	EventID       string        `json:"event_id"`
	EmittedAt     time.Time     `json:"emitted_at"`
	RequestMeta   RequestMeta   `json:"request_meta"`
	Stream        *StreamResult `json:"stream,omitempty"`

	// ErrorKind is empty for successful completions.
	ErrorKind string `json:"error_kind,omitempty"`
}

// RequestMeta captures request lifecycle metadata for the event.
type RequestMeta struct {
	RequestID   string    `json:"request_id"`
	Model       string    `json:"model"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
	DurationMs  int64     `json:"duration_ms"`
	Streaming   bool      `json:"streaming"`
	Compat      bool      `json:"compat"`
	HTTPStatus  int       `json:"http_status"`
}

// StreamResult summarizes a streamed response.
type StreamResult struct {
	Frames       int `json:"frames"`
	LinesDropped int `json:"lines_dropped"`
}

// Error kinds reported on CompletionEvent.
const (
	ErrorKindUpstream  = "upstream"
	ErrorKindFiltered  = "filtered"
	ErrorKindStream    = "stream"
	ErrorKindMalformed = "malformed_request"
)

// NewCompletionEvent stamps a CompletionEvent with a fresh id, the schema
// version and the event type.
func NewCompletionEvent(meta RequestMeta, emittedAt time.Time) *CompletionEvent {
	return &CompletionEvent{
		SchemaVersion: SchemaVersionV1,
		EventType:     EventTypeCompletionFinished,
		EventID:       uuid.NewString(),
		EmittedAt:     emittedAt,
		RequestMeta:   meta,
	}
}
