// Package servecmder provides the serve command, which runs the azrelay
// gateway.
package servecmder

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/papercomputeco/azrelay/pkg/config"
	"github.com/papercomputeco/azrelay/pkg/eventstream"
	"github.com/papercomputeco/azrelay/pkg/eventstream/kafka"
	"github.com/papercomputeco/azrelay/pkg/eventstream/nop"
	"github.com/papercomputeco/azrelay/pkg/logger"
	"github.com/papercomputeco/azrelay/proxy"
)

type serveCommander struct {
	flags  config.Config
	cfg    *config.Config
	logger *zap.Logger
}

const serveLongDesc string = `Run the azrelay gateway.

The gateway answers OpenAI-style chat completion requests by calling the
Azure OpenAI deployment named by the request's model. Streamed answers are
relayed as-is, or rewritten into the generic OpenAI chunk shape when
COMPAT_MODE is set.

Configuration is resolved from built-in defaults, config.json or config.toml
in the config directory, environment variables (including a .env file in the
working directory) and flags, in increasing order of precedence.

When EVENTS_BROKERS is set, one completion event per chat request is
published to the EVENTS_TOPIC Kafka topic.`

const serveShortDesc string = "Run the azrelay gateway"

var serveFlagKeys = []string{
	config.FlagHost,
	config.FlagPort,
	config.FlagDebug,
	config.FlagThreaded,
	config.FlagCompatMode,
	config.FlagGlobalize,
	config.FlagBaseURL,
	config.FlagMetrics,
	config.FlagEventsBrokers,
	config.FlagEventsTopic,
}

func NewServeCmd() *cobra.Command {
	return newServeCmd(&serveCommander{})
}

func newServeCmd(cmder *serveCommander) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.resolveConfig(cmd)
		},
		RunE: func(_ *cobra.Command, _ []string) error {
			return cmder.run()
		},
	}

	fs := config.ServeFlags
	config.AddStringFlag(cmd, fs, config.FlagHost, &cmder.flags.Host)
	config.AddUintFlag(cmd, fs, config.FlagPort, &cmder.flags.Port)
	config.AddBoolFlag(cmd, fs, config.FlagDebug, &cmder.flags.Debug)
	config.AddBoolFlag(cmd, fs, config.FlagThreaded, &cmder.flags.Threaded)
	config.AddBoolFlag(cmd, fs, config.FlagCompatMode, &cmder.flags.CompatMode)
	config.AddBoolFlag(cmd, fs, config.FlagGlobalize, &cmder.flags.Globalize)
	config.AddStringFlag(cmd, fs, config.FlagBaseURL, &cmder.flags.BaseURL)
	config.AddBoolFlag(cmd, fs, config.FlagMetrics, &cmder.flags.Metrics)
	config.AddStringFlag(cmd, fs, config.FlagEventsBrokers, &cmder.flags.EventsBrokers)
	config.AddStringFlag(cmd, fs, config.FlagEventsTopic, &cmder.flags.EventsTopic)

	return cmd
}

// resolveConfig layers defaults, config file, environment and the flags the
// user actually set into c.cfg.
func (c *serveCommander) resolveConfig(cmd *cobra.Command) error {
	configDir, _ := cmd.Flags().GetString("config-dir")

	v, err := config.InitViper(configDir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	config.BindRegisteredFlags(v, cmd, config.ServeFlags, serveFlagKeys)

	c.cfg = config.FromViper(v)
	return nil
}

func (c *serveCommander) run() error {
	c.logger = logger.NewLogger(c.cfg.Debug)
	defer func() { _ = c.logger.Sync() }()

	if c.cfg.Globalize {
		c.logger.Warn("GLOBALIZE is set but public tunnels are not supported, serving locally only")
	}
	if c.cfg.BaseURL == "" {
		c.logger.Warn("BASE_URL is not set, chat completion requests will fail")
	}

	publisher, err := newPublisher(c.cfg, c.logger)
	if err != nil {
		return err
	}
	defer publisher.Close()

	p, err := proxy.New(proxy.ConfigFrom(c.cfg), publisher, c.logger)
	if err != nil {
		return fmt.Errorf("creating proxy: %w", err)
	}
	defer p.Close()

	errChan := make(chan error, 1)
	go func() {
		if err := p.Run(); err != nil {
			errChan <- fmt.Errorf("proxy error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		c.logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
		return nil
	}
}

// newPublisher returns a Kafka publisher when brokers are configured and a
// no-op publisher otherwise.
func newPublisher(cfg *config.Config, log *zap.Logger) (eventstream.Publisher, error) {
	brokers := cfg.Brokers()
	if len(brokers) == 0 {
		log.Debug("completion events disabled, no brokers configured")
		return nop.NewPublisher(), nil
	}

	publisher, err := kafka.NewPublisher(kafka.Config{
		Brokers: brokers,
		Topic:   cfg.EventsTopic,
	})
	if err != nil {
		return nil, fmt.Errorf("creating kafka publisher: %w", err)
	}

	log.Info("publishing completion events",
		zap.Strings("brokers", brokers),
		zap.String("topic", cfg.EventsTopic),
	)
	return publisher, nil
}
