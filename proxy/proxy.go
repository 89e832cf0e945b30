// Package proxy provides the azrelay gateway: an OpenAI-compatible HTTP front
// for Azure OpenAI chat deployments.
package proxy

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/papercomputeco/azrelay/pkg/eventstream"
	"github.com/papercomputeco/azrelay/pkg/metrics"
	"github.com/papercomputeco/azrelay/pkg/stream"
	"github.com/papercomputeco/azrelay/pkg/upstream"
	"github.com/papercomputeco/azrelay/proxy/header"
	"github.com/papercomputeco/azrelay/proxy/worker"
)

// Routes served by the gateway.
const (
	RouteModels          = "/v1/models"
	RouteChatCompletions = "/v1/chat/completions"
	RouteHealth          = "/health"
	RouteMetrics         = "/metrics"
)

// requestIDKey is the fiber Locals key holding the request id.
const requestIDKey = "requestid"

// streamingKey is the fiber Locals key set on streamed responses.
const streamingKey = "streaming"

// releaseKey is the fiber Locals key holding the serial slot release func of
// a non-threaded gateway.
const releaseKey = "release"

// Proxy is the azrelay gateway. It translates OpenAI-style chat requests into
// Azure OpenAI deployment calls and relays the answers, optionally rewriting
// streamed chunks into the generic OpenAI chunk shape.
// Completion events are handed to its worker pool for async publishing.
type Proxy struct {
	config     Config
	workerPool *worker.Pool
	logger     *zap.Logger
	client     *upstream.Client
	normalizer *stream.Normalizer
	metrics    *metrics.Collector
	server     *fiber.App

	// serial holds one slot while a request runs on a non-threaded gateway.
	serial chan struct{}
}

// New creates a new Proxy.
// The publisher is injected to deliver completion events.
func New(config Config, publisher eventstream.Publisher, logger *zap.Logger) (*Proxy, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	wp, err := worker.NewPool(&worker.Config{
		Publisher: publisher,
		Logger:    logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create worker pool: %w", err)
	}

	mode := stream.ModePassthrough
	if config.CompatMode {
		mode = stream.ModeCompat
	}

	p := &Proxy{
		config:     config,
		workerPool: wp,
		logger:     logger,
		client: upstream.NewClient(upstream.Config{
			BaseURL:    config.BaseURL,
			HTTPClient: config.HTTPClient,
			Logger:     logger,
		}),
		normalizer: stream.NewNormalizer(mode,
			stream.WithLogger(logger),
			stream.WithFilter(isFiltered),
		),
		metrics: metrics.NewCollector(),
	}

	fiberConfig := fiber.Config{
		// Disable startup message for cleaner logs
		DisableStartupMessage: true,
		ErrorHandler:          p.handleError,
	}
	app := fiber.New(fiberConfig)

	app.Use(requestid.New(requestid.Config{
		Header:     header.RequestID,
		Generator:  uuid.NewString,
		ContextKey: requestIDKey,
	}))
	app.Use(p.accessLog)
	app.Use(recover.New())
	app.Use(cors.New())
	if !config.Threaded {
		p.serial = make(chan struct{}, 1)
		app.Use(p.serialize)
	}

	// Streamed bodies must reach the client chunk by chunk.
	app.Use(compress.New(compress.Config{
		Next: func(c *fiber.Ctx) bool {
			return c.Path() == RouteChatCompletions
		},
	}))

	app.Get(RouteModels, p.handleModels)
	app.Post(RouteChatCompletions, p.handleChatCompletions)
	app.Get(RouteHealth, p.handleHealth)
	if config.Metrics {
		app.Get(RouteMetrics, adaptor.HTTPHandler(p.metrics.Handler()))
	}

	p.server = app

	return p, nil
}

// Run starts the gateway on the configured listening address
func (p *Proxy) Run() error {
	p.logger.Info("starting azrelay gateway",
		zap.String("listen", p.config.ListenAddr),
		zap.String("upstream", p.config.BaseURL),
		zap.String("mode", string(p.normalizer.Mode())),
	)

	return p.server.Listen(p.config.ListenAddr)
}

// RunWithListener starts the gateway using the provided listener.
func (p *Proxy) RunWithListener(listener net.Listener) error {
	p.logger.Info("starting azrelay gateway",
		zap.String("listen", listener.Addr().String()),
		zap.String("upstream", p.config.BaseURL),
		zap.String("mode", string(p.normalizer.Mode())),
	)

	return p.server.Listener(listener)
}

// Close gracefully shuts down the gateway and waits for the worker pool to
// drain queued completion events.
func (p *Proxy) Close() error {
	err := p.server.Shutdown()
	p.workerPool.Close()
	return err
}

// Metrics returns the gateway's metrics collector.
func (p *Proxy) Metrics() *metrics.Collector {
	return p.metrics
}

// accessLog logs and measures every request. Errors from the chain are
// resolved through the error handler first so the final status is known.
func (p *Proxy) accessLog(c *fiber.Ctx) error {
	startTime := time.Now()

	if chainErr := c.Next(); chainErr != nil {
		if err := c.App().ErrorHandler(c, chainErr); err != nil {
			_ = c.SendStatus(fiber.StatusInternalServerError)
		}
	}

	status := c.Response().StatusCode()
	streaming, _ := c.Locals(streamingKey).(bool)
	duration := time.Since(startTime)

	p.metrics.RecordRequest(routeLabel(c.Path()), status, streaming, duration)

	p.logger.Debug("request handled",
		zap.String("request_id", requestID(c)),
		zap.String("method", c.Method()),
		zap.String("path", c.Path()),
		zap.Int("status", status),
		zap.Bool("streaming", streaming),
		zap.Duration("duration", duration),
	)

	return nil
}

// serialize runs one request at a time. Connections are still accepted
// concurrently and wait for their turn. A streamed response keeps the slot
// until its body has been written.
func (p *Proxy) serialize(c *fiber.Ctx) error {
	p.serial <- struct{}{}
	release := sync.OnceFunc(func() { <-p.serial })
	c.Locals(releaseKey, release)

	err := c.Next()
	if streaming, _ := c.Locals(streamingKey).(bool); !streaming {
		release()
	}
	return err
}

// routeLabel bounds the route label cardinality to the known routes.
func routeLabel(path string) string {
	switch path {
	case RouteModels, RouteChatCompletions, RouteHealth, RouteMetrics:
		return path
	default:
		return "other"
	}
}

func requestID(c *fiber.Ctx) string {
	id, _ := c.Locals(requestIDKey).(string)
	return id
}
