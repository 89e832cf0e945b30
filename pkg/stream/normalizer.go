// Package stream rewrites upstream chat completion streams into the frames
// azrelay sends to its callers.
package stream

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/papercomputeco/azrelay/pkg/llm"
	"github.com/papercomputeco/azrelay/pkg/sse"
)

// Mode selects how upstream lines are turned into downstream frames.
type Mode string

const (
	// ModePassthrough forwards each upstream line unchanged.
	ModePassthrough Mode = "passthrough"

	// ModeCompat rewrites each upstream chunk into the generic
	// OpenAI-compatible chunk shape and terminates the stream explicitly.
	ModeCompat Mode = "compat"
)

// DoneFrame is the final frame of every compat stream. It carries no
// trailing separator.
const DoneFrame = "data: [DONE]"

const frameSeparator = "\n\n"

// ErrFiltered is returned by Run when the line filter rejects an upstream line.
var ErrFiltered = errors.New("upstream stream rejected by content filter")

// LineSource is a single-pass sequence of upstream lines.
// Next returns nil, nil once the sequence is exhausted.
type LineSource interface {
	Next() ([]byte, error)
}

// Stats summarizes one Run.
type Stats struct {
	// Lines is the number of upstream lines read.
	Lines int

	// Frames is the number of frames written to the destination,
	// terminal frames included.
	Frames int

	// Dropped is the number of upstream lines skipped in compat mode.
	Dropped int
}

// Normalizer turns upstream lines into downstream frames.
// A Normalizer holds no per-stream state and may be shared across streams.
type Normalizer struct {
	mode   Mode
	logger *zap.Logger
	now    func() time.Time
	filter func(line []byte) bool
}

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithLogger sets the logger used for dropped line diagnostics.
func WithLogger(l *zap.Logger) Option {
	return func(n *Normalizer) {
		n.logger = l
	}
}

// WithClock overrides the clock used to stamp compat sessions.
func WithClock(now func() time.Time) Option {
	return func(n *Normalizer) {
		n.now = now
	}
}

// WithFilter installs a predicate checked against every raw upstream line.
// When it reports true, Run stops and returns ErrFiltered.
func WithFilter(filter func(line []byte) bool) Option {
	return func(n *Normalizer) {
		n.filter = filter
	}
}

// NewNormalizer creates a Normalizer for mode.
func NewNormalizer(mode Mode, opts ...Option) *Normalizer {
	n := &Normalizer{
		mode:   mode,
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Mode returns the mode the Normalizer was built with.
func (n *Normalizer) Mode() Mode {
	return n.mode
}

// Run drains src, writing frames to dst.
//
// In compat mode the stream is closed with a stop chunk followed by
// DoneFrame once src is exhausted, even if no content chunk was written.
// A read error from src, a write error on dst or a filtered line ends Run
// early without the terminal frames.
func (n *Normalizer) Run(src LineSource, model string, dst io.Writer) (Stats, error) {
	if n.mode == ModeCompat {
		return n.runCompat(src, model, dst)
	}
	return n.runPassthrough(src, dst)
}

func (n *Normalizer) runPassthrough(src LineSource, dst io.Writer) (Stats, error) {
	var stats Stats

	for {
		line, err := n.next(src, &stats)
		if err != nil || line == nil {
			return stats, err
		}

		frame := make([]byte, 0, len(line)+len(frameSeparator))
		frame = append(frame, line...)
		frame = append(frame, frameSeparator...)
		if _, err := dst.Write(frame); err != nil {
			return stats, fmt.Errorf("writing frame: %w", err)
		}
		stats.Frames++
	}
}

func (n *Normalizer) runCompat(src LineSource, model string, dst io.Writer) (Stats, error) {
	var stats Stats

	session, err := NewSession(model, n.now())
	if err != nil {
		return stats, err
	}

	for {
		line, err := n.next(src, &stats)
		if err != nil {
			return stats, err
		}
		if line == nil {
			break
		}

		content, ok := extractContent(line)
		if !ok {
			stats.Dropped++
			n.logger.Debug("dropping upstream line",
				zap.String("session_id", session.ID),
				zap.ByteString("line", line),
			)
			continue
		}

		if err := writeChunk(dst, session, content, nil); err != nil {
			return stats, err
		}
		stats.Frames++
	}

	stop := llm.FinishReasonStop
	if err := writeChunk(dst, session, json.RawMessage(`""`), &stop); err != nil {
		return stats, err
	}
	stats.Frames++

	if _, err := io.WriteString(dst, DoneFrame); err != nil {
		return stats, fmt.Errorf("writing done frame: %w", err)
	}
	stats.Frames++

	return stats, nil
}

// next reads one line from src and applies the filter.
func (n *Normalizer) next(src LineSource, stats *Stats) ([]byte, error) {
	line, err := src.Next()
	if err != nil {
		return nil, fmt.Errorf("reading upstream line: %w", err)
	}
	if line == nil {
		return nil, nil
	}
	stats.Lines++

	if n.filter != nil && n.filter(line) {
		return nil, ErrFiltered
	}
	return line, nil
}

// extractContent returns the raw JSON of choices[0].delta.content from an
// upstream line. It reports false for anything that is not a well formed
// chunk carrying that field.
func extractContent(line []byte) (json.RawMessage, bool) {
	payload := sse.TrimData(line)
	if !gjson.ValidBytes(payload) {
		return nil, false
	}

	choices := gjson.GetBytes(payload, "choices")
	if !choices.IsArray() {
		return nil, false
	}

	content := choices.Get("0.delta.content")
	if !content.Exists() {
		return nil, false
	}

	return json.RawMessage(content.Raw), true
}

func writeChunk(dst io.Writer, s *Session, content json.RawMessage, finishReason *string) error {
	chunk := llm.CompatChunk{
		ID:      s.ID,
		Created: s.Created,
		Model:   s.Model,
		Object:  llm.ChunkObject,
		Choices: []llm.CompatChoice{{
			Delta: llm.CompatDelta{Content: content},
			Index: 0,
		}},
		FinishReason: finishReason,
	}

	var buf bytes.Buffer
	buf.WriteString(sse.DataPrefix)

	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(chunk); err != nil {
		return fmt.Errorf("encoding chunk: %w", err)
	}

	// Encode terminates the document with a single newline.
	buf.WriteByte('\n')

	if _, err := dst.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("writing chunk: %w", err)
	}
	return nil
}
