package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/papercomputeco/azrelay/pkg/eventstream"
	"github.com/papercomputeco/azrelay/pkg/llm"
	"github.com/papercomputeco/azrelay/pkg/stream"
	"github.com/papercomputeco/azrelay/pkg/upstream"
	"github.com/papercomputeco/azrelay/pkg/utils"
	"github.com/papercomputeco/azrelay/proxy/header"
	"github.com/papercomputeco/azrelay/proxy/worker"
)

// filterMarker is the substring that flags an upstream line as a content
// filter rejection.
var filterMarker = []byte("error")

// filterFrame replaces the rest of a stream that hit the filter after the
// response was committed.
var filterFrame = []byte(`data: {"error":"` + msgFiltered + `"}` + "\n\n")

// maxLoggedLine caps how much of an upstream line ends up in a log entry.
const maxLoggedLine = 256

// isFiltered reports whether a raw upstream line looks like a filter
// rejection. It is a plain substring test, so content that merely mentions
// the word trips it as well.
func isFiltered(line []byte) bool {
	return bytes.Contains(line, filterMarker)
}

// completion tracks one chat completion request for its completion event.
type completion struct {
	requestID string
	model     string
	streaming bool
	startTime time.Time
	status    int
	errorKind string
	stats     *stream.Stats
}

func (p *Proxy) handleModels(c *fiber.Ctx) error {
	return c.JSON(llm.Catalog())
}

func (p *Proxy) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

// handleChatCompletions answers an OpenAI-style chat completion request from
// the Azure deployment named by its model.
func (p *Proxy) handleChatCompletions(c *fiber.Ctx) error {
	rec := &completion{
		requestID: requestID(c),
		startTime: time.Now(),
	}

	token := header.Token(c)
	if token == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(llm.ErrorResponse{Error: msgUnauthorized})
	}

	var req llm.ChatRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		p.logger.Debug("rejecting malformed request",
			zap.String("request_id", rec.requestID),
			zap.Error(err),
		)
		return p.sendMalformed(c, rec, msgInvalidJSON)
	}

	payload, err := req.Resolve()
	if err != nil {
		rec.model = req.Model
		return p.sendMalformed(c, rec, err.Error())
	}
	rec.model = payload.Model
	rec.streaming = payload.Stream

	if p.config.BaseURL == "" {
		p.logger.Error("no upstream base URL configured, set BASE_URL")
		return fiber.ErrInternalServerError
	}

	p.logger.Debug("chat completion request",
		zap.String("request_id", rec.requestID),
		zap.String("model", payload.Model),
		zap.Int("message_count", len(payload.Messages)),
		zap.Bool("stream", payload.Stream),
	)

	if payload.Stream {
		return p.handleStreaming(c, rec, token, payload)
	}

	return p.handleNonStreaming(c, rec, token, payload)
}

// handleNonStreaming relays the upstream body verbatim.
func (p *Proxy) handleNonStreaming(c *fiber.Ctx, rec *completion, token string, payload llm.UpstreamPayload) error {
	res := p.client.Send(c.Context(), token, payload)
	if !res.OK() {
		return p.sendFailure(c, rec, res.Failure)
	}

	rec.status = fiber.StatusOK
	p.enqueueCompletion(rec)

	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.Status(fiber.StatusOK).Send(res.Body)
}

// handleStreaming relays the upstream stream through the normalizer.
//
// The first upstream line is inspected before anything is committed so an
// immediate filter rejection can still be answered with a 400.
func (p *Proxy) handleStreaming(c *fiber.Ctx, rec *completion, token string, payload llm.UpstreamPayload) error {
	// Use context.Background() instead of c.Context() because fasthttp recycles
	// its RequestCtx after the handler returns, but the streaming goroutine
	// keeps reading the upstream body. The goroutine cancels it when done.
	ctx, cancel := context.WithCancel(context.Background())

	res := p.client.Send(ctx, token, payload)
	if !res.OK() {
		cancel()
		return p.sendFailure(c, rec, res.Failure)
	}

	first, err := res.Lines.Peek()
	if err != nil {
		res.Close()
		cancel()

		p.logger.Error("error reading upstream stream",
			zap.String("request_id", rec.requestID),
			zap.Error(err),
		)
		return p.sendFailure(c, rec, upstream.TransportFailure(err))
	}
	if first != nil && isFiltered(first) {
		res.Close()
		cancel()

		p.logger.Warn("upstream stream rejected before commit",
			zap.String("request_id", rec.requestID),
			zap.String("line", utils.Truncate(string(first), maxLoggedLine)),
		)
		p.metrics.RecordFiltered()

		rec.status = fiber.StatusBadRequest
		rec.errorKind = eventstream.ErrorKindFiltered
		p.enqueueCompletion(rec)

		return c.Status(fiber.StatusBadRequest).JSON(llm.ErrorResponse{Error: msgFiltered})
	}

	header.SetStreamHeaders(c)
	c.Locals(streamingKey, true)
	c.Status(fiber.StatusOK)
	rec.status = fiber.StatusOK

	// Use io.Pipe + SetBodyStream instead of SetBodyStreamWriter.
	// SetBodyStreamWriter buffers through an internal pipe and bufio.Writers so
	// Flush() in the callback does not reach the TCP socket.
	//
	// With io.Pipe, pw.Write blocks until fasthttp's writeBodyChunked reads and
	// flushes each chunk. This gives direct backpressure and true per-frame
	// streaming, and a write fails once the client is gone.
	release, _ := c.Locals(releaseKey).(func())

	pr, pw := io.Pipe()
	go p.pipeStream(res, cancel, pw, rec, payload.Model, release)

	// Set the pipe reader as the body stream with unknown size (-1),
	// which triggers chunked transfer encoding in fasthttp.
	c.Context().Response.SetBodyStream(pr, -1)

	return nil
}

// pipeStream drives the normalizer into the pipe writer and releases the
// upstream call, and the serial slot when there is one, once the stream ends
// for any reason.
func (p *Proxy) pipeStream(res *upstream.Result, cancel context.CancelFunc, pw *io.PipeWriter, rec *completion, model string, release func()) {
	if release != nil {
		defer release()
	}
	defer cancel()
	defer res.Close()
	defer pw.Close()

	stats, err := p.normalizer.Run(res.Lines, model, pw)
	rec.stats = &stats

	switch {
	case errors.Is(err, stream.ErrFiltered):
		p.logger.Warn("upstream stream rejected after commit",
			zap.String("request_id", rec.requestID),
			zap.Int("lines", stats.Lines),
		)
		p.metrics.RecordFiltered()
		rec.errorKind = eventstream.ErrorKindFiltered

		if _, werr := pw.Write(filterFrame); werr != nil {
			p.logger.Debug("error writing filter frame to pipe", zap.Error(werr))
		} else {
			stats.Frames++
		}
	case err != nil:
		p.logger.Error("error relaying stream",
			zap.String("request_id", rec.requestID),
			zap.Error(err),
		)
		rec.errorKind = eventstream.ErrorKindStream
	default:
		p.logger.Debug("stream complete",
			zap.String("request_id", rec.requestID),
			zap.Int("lines", stats.Lines),
			zap.Int("frames", stats.Frames),
			zap.Int("dropped", stats.Dropped),
			zap.Duration("duration", time.Since(rec.startTime)),
		)
	}

	p.metrics.RecordStream(string(p.normalizer.Mode()), stats.Frames, stats.Dropped)
	p.enqueueCompletion(rec)
}

// sendFailure answers with an upstream failure.
func (p *Proxy) sendFailure(c *fiber.Ctx, rec *completion, failure *upstream.Failure) error {
	p.metrics.RecordUpstreamFailure(failure.Status)

	rec.status = failure.Status
	rec.errorKind = eventstream.ErrorKindUpstream
	p.enqueueCompletion(rec)

	return c.Status(failure.Status).JSON(failure.Response())
}

// sendMalformed rejects a request the gateway cannot forward.
func (p *Proxy) sendMalformed(c *fiber.Ctx, rec *completion, msg string) error {
	rec.status = fiber.StatusBadRequest
	rec.errorKind = eventstream.ErrorKindMalformed
	p.enqueueCompletion(rec)

	return c.Status(fiber.StatusBadRequest).JSON(llm.ErrorResponse{Error: msg})
}

// enqueueCompletion hands the completion event to the worker pool without
// blocking the request.
func (p *Proxy) enqueueCompletion(rec *completion) {
	now := time.Now()

	event := eventstream.NewCompletionEvent(eventstream.RequestMeta{
		RequestID:   rec.requestID,
		Model:       rec.model,
		StartedAt:   rec.startTime,
		CompletedAt: now,
		DurationMs:  now.Sub(rec.startTime).Milliseconds(),
		Streaming:   rec.streaming,
		Compat:      p.normalizer.Mode() == stream.ModeCompat,
		HTTPStatus:  rec.status,
	}, now)
	event.ErrorKind = rec.errorKind

	if rec.stats != nil {
		event.Stream = &eventstream.StreamResult{
			Frames:       rec.stats.Frames,
			LinesDropped: rec.stats.Dropped,
		}
	}

	p.workerPool.Enqueue(worker.Job{Event: event})
}
