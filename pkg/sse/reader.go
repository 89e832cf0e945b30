// Package sse provides a minimal line reader for upstream Server-Sent Events
// streams. The proxy treats the upstream stream as a sequence of non-empty
// lines and leaves event assembly to its consumers.
//
// See the SSE specification:
// https://html.spec.whatwg.org/multipage/server-sent-events.html
package sse

import (
	"bufio"
	"bytes"
	"errors"
	"io"
)

// DataPrefix is the field prefix carried by SSE data lines.
const DataPrefix = "data: "

// LineReader yields the non-empty lines of an upstream SSE body, one at a time.
//
// ┌──────────────────┐
// │ source io.Reader │
// └──────────────────┘
// │
// ▼
// ┌──────────────────┐
// │ LineReader.Next()│──▶ "data: {...}"
// └──────────────────┘
//
// It is lazy and single-pass: bytes are read from the source only as Next is
// called and a line is handed out exactly once. Lines have no length cap.
type LineReader struct {
	reader *bufio.Reader
	done   bool

	// peeked holds a line returned by Peek that Next has not yet consumed.
	peeked    []byte
	hasPeeked bool
}

// NewLineReader returns a LineReader over src.
func NewLineReader(src io.Reader) *LineReader {
	return &LineReader{reader: bufio.NewReaderSize(src, 64*1024)}
}

// Next returns the next non-empty line without its trailing newline.
// Blank lines (event separators and keep-alives) are skipped.
// Next returns nil, nil when the source is exhausted.
func (r *LineReader) Next() ([]byte, error) {
	if r.hasPeeked {
		line := r.peeked
		r.peeked = nil
		r.hasPeeked = false
		return line, nil
	}

	for !r.done {
		raw, err := r.reader.ReadBytes('\n')
		if err != nil {
			if !errors.Is(err, io.EOF) {
				return nil, err
			}
			r.done = true
		}

		// ReadBytes returns a fresh slice, so the line stays valid after
		// later reads.
		line := bytes.TrimRight(raw, "\r\n")
		if len(line) > 0 {
			return line, nil
		}
	}

	return nil, nil
}

// Peek returns the line the next call to Next will return, without consuming
// it. Like Next, it returns nil, nil at the end of the source.
func (r *LineReader) Peek() ([]byte, error) {
	if r.hasPeeked {
		return r.peeked, nil
	}

	line, err := r.Next()
	if err != nil {
		return nil, err
	}

	r.peeked = line
	r.hasPeeked = true
	return line, nil
}

// TrimData strips a single leading "data: " field prefix from line.
// Lines without the prefix are returned unchanged.
func TrimData(line []byte) []byte {
	return bytes.TrimPrefix(line, []byte(DataPrefix))
}
