// Package servecmder provides the serve command for running the relay server.
package servecmder

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/brookhq/brook/api"
	"github.com/brookhq/brook/pkg/config"
	"github.com/brookhq/brook/pkg/credentials"
	"github.com/brookhq/brook/pkg/eventstream"
	"github.com/brookhq/brook/pkg/eventstream/kafka"
	"github.com/brookhq/brook/pkg/eventstream/nop"
	"github.com/brookhq/brook/pkg/llm/openai"
	"github.com/brookhq/brook/pkg/logger"
	"github.com/brookhq/brook/pkg/storage"
	"github.com/brookhq/brook/pkg/storage/inmemory"
	"github.com/brookhq/brook/pkg/storage/postgres"
	"github.com/brookhq/brook/pkg/storage/sqlite"
	"github.com/brookhq/brook/relay"
)

const (
	// allowedOriginsEnvVar overrides the CORS origin prefix list with a
	// comma-separated value.
	allowedOriginsEnvVar = "ALLOWED_ORIGINS"

	// portEnvVar overrides the listening port.
	portEnvVar = "PORT"
)

type ServeCommander struct {
	listen       string
	apiListen    string
	origins      []string
	upstreamURL  string
	model        string
	maxTokens    uint
	temperature  float64
	authToken    string
	heartbeat    uint
	sqlitePath   string
	postgresURL  string
	kafkaBrokers []string
	kafkaTopic   string
	logFile      string
	configDir    string
	debug        bool

	log *slog.Logger
}

const serveLongDesc string = `Run the brook relay server.

The relay accepts multimodal prompt requests, proxies them to the
configured streaming model provider, and re-emits the response as
normalized SSE frames. Structured JSON embedded in the model output is
detected on the fly and surfaced early as a dedicated frame.

Flag defaults come from config.toml in the .brook/ directory. The
ALLOWED_ORIGINS and PORT environment variables override both, and the
provider API key is read from ` + credentials.UpstreamKeyEnvVar + ` or the
stored credentials.

Examples:
  brook serve
  brook serve --listen :8090 --model gpt-4o
  brook serve --sqlite ./brook.db --kafka-brokers localhost:9092
  ALLOWED_ORIGINS=https://app.example.com PORT=8080 brook serve`

const serveShortDesc string = "Run the brook relay server"

func NewServeCmd() *cobra.Command {
	cmder := &ServeCommander{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")

			cfger, err := config.NewConfiger(cmder.configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			cfg, err := cfger.LoadConfig()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			// Config file fills in flags the caller did not set.
			if !cmd.Flags().Changed("listen") {
				cmder.listen = cfg.Relay.Listen
			}
			if !cmd.Flags().Changed("origins") && cfg.Relay.AllowedOrigins != "" {
				cmder.origins = strings.Split(cfg.Relay.AllowedOrigins, ",")
			}
			if !cmd.Flags().Changed("auth-token") {
				cmder.authToken = cfg.Relay.AuthToken
			}
			if !cmd.Flags().Changed("heartbeat") {
				cmder.heartbeat = cfg.Relay.HeartbeatSeconds
			}
			if !cmd.Flags().Changed("upstream") {
				cmder.upstreamURL = cfg.Upstream.URL
			}
			if !cmd.Flags().Changed("model") {
				cmder.model = cfg.Upstream.Model
			}
			if !cmd.Flags().Changed("max-tokens") {
				cmder.maxTokens = cfg.Upstream.MaxTokens
			}
			if !cmd.Flags().Changed("temperature") {
				cmder.temperature = cfg.Upstream.Temperature
			}
			if !cmd.Flags().Changed("sqlite") {
				cmder.sqlitePath = cfg.Storage.SQLitePath
			}
			if !cmd.Flags().Changed("postgres") {
				cmder.postgresURL = cfg.Storage.PostgresURL
			}
			if !cmd.Flags().Changed("kafka-brokers") && cfg.Events.KafkaBrokers != "" {
				cmder.kafkaBrokers = strings.Split(cfg.Events.KafkaBrokers, ",")
			}
			if !cmd.Flags().Changed("kafka-topic") {
				cmder.kafkaTopic = cfg.Events.KafkaTopic
			}

			// Environment variables override both.
			if env := os.Getenv(allowedOriginsEnvVar); env != "" {
				cmder.origins = strings.Split(env, ",")
			}
			if env := os.Getenv(portEnvVar); env != "" {
				cmder.listen = ":" + env
			}

			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %v", err)
			}
			return cmder.run()
		},
	}

	defaults := config.NewDefaultConfig()
	cmd.Flags().StringVarP(&cmder.listen, "listen", "l", defaults.Relay.Listen, "Address for the relay to listen on")
	cmd.Flags().StringVarP(&cmder.apiListen, "api-listen", "a", "", "Address for the transcript API server (empty disables it)")
	cmd.Flags().StringSliceVar(&cmder.origins, "origins", nil, "Allowed CORS origin prefixes (comma-separated)")
	cmd.Flags().StringVar(&cmder.authToken, "auth-token", "", "Shared bearer token required by /api/brain-stream")
	cmd.Flags().UintVar(&cmder.heartbeat, "heartbeat", defaults.Relay.HeartbeatSeconds, "Seconds between SSE keep-alive comments (0 disables)")
	cmd.Flags().StringVarP(&cmder.upstreamURL, "upstream", "u", defaults.Upstream.URL, "Upstream model provider URL")
	cmd.Flags().StringVarP(&cmder.model, "model", "m", defaults.Upstream.Model, "Upstream model identifier")
	cmd.Flags().UintVar(&cmder.maxTokens, "max-tokens", defaults.Upstream.MaxTokens, "Maximum tokens per upstream generation")
	cmd.Flags().Float64Var(&cmder.temperature, "temperature", defaults.Upstream.Temperature, "Upstream sampling temperature")
	cmd.Flags().StringVarP(&cmder.sqlitePath, "sqlite", "s", "", "Path to SQLite transcript database (default: in-memory)")
	cmd.Flags().StringVar(&cmder.postgresURL, "postgres", "", "Postgres transcript database URL (takes precedence over --sqlite)")
	cmd.Flags().StringSliceVar(&cmder.kafkaBrokers, "kafka-brokers", nil, "Kafka broker addresses for stream completion events")
	cmd.Flags().StringVar(&cmder.kafkaTopic, "kafka-topic", defaults.Events.KafkaTopic, "Kafka topic for stream completion events")
	cmd.Flags().StringVar(&cmder.logFile, "log-file", "", "Append JSON logs to this file; console output switches to pretty")

	return cmd
}

func (c *ServeCommander) run() error {
	log, closeLog, err := c.buildLogger()
	if err != nil {
		return err
	}
	defer closeLog()
	c.log = log

	apiKey, err := c.upstreamKey()
	if err != nil {
		return err
	}

	driver, err := c.createDriver()
	if err != nil {
		return err
	}
	defer driver.Close()

	publisher := c.createPublisher()
	defer publisher.Close()

	upstream := openai.NewClient(c.upstreamURL, apiKey, openai.WithLogger(c.log))

	relayConfig := relay.Config{
		ListenAddr:        c.listen,
		AllowedOrigins:    c.origins,
		AuthToken:         c.authToken,
		HeartbeatInterval: time.Duration(c.heartbeat) * time.Second,
		Model:             c.model,
		MaxTokens:         int(c.maxTokens),
		Temperature:       c.temperature,
	}
	r, err := relay.New(relayConfig, upstream, driver, publisher, c.log)
	if err != nil {
		return fmt.Errorf("creating relay: %w", err)
	}
	defer r.Close()

	c.watchOrigins(r)

	errChan := make(chan error, 2)
	go func() {
		if err := r.Run(); err != nil {
			errChan <- fmt.Errorf("relay error: %w", err)
		}
	}()

	if c.apiListen != "" {
		apiServer := api.NewServer(api.Config{ListenAddr: c.apiListen}, driver, c.log)
		defer apiServer.Shutdown()
		go func() {
			if err := apiServer.Run(); err != nil {
				errChan <- fmt.Errorf("API server error: %w", err)
			}
		}()
	}

	// Wait for interrupt signal or error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		c.log.Info("received signal, shutting down", "signal", sig.String())
		return nil
	}
}

// buildLogger returns the serve logger. Without --log-file every record is
// JSON on stdout; with it, stdout gets pretty output and the file gets JSON
// records, fanned out through logger.Multi.
func (c *ServeCommander) buildLogger() (*slog.Logger, func(), error) {
	if c.logFile == "" {
		return logger.New(logger.WithDebug(c.debug), logger.WithJSON(true)), func() {}, nil
	}

	f, err := os.OpenFile(c.logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}

	console := logger.New(logger.WithDebug(c.debug), logger.WithPretty(true))
	file := logger.New(
		logger.WithDebug(c.debug),
		logger.WithJSON(true),
		logger.WithWriters(f),
		logger.WithSource(c.debug),
	)

	return logger.Multi(console, file), func() { f.Close() }, nil
}

// upstreamKey resolves the provider API key: environment first, then
// stored credentials.
func (c *ServeCommander) upstreamKey() (string, error) {
	mgr, err := credentials.NewManager(c.configDir)
	if err != nil {
		return "", fmt.Errorf("loading credentials: %w", err)
	}

	key, err := mgr.UpstreamKey()
	if err != nil {
		return "", fmt.Errorf("loading credentials: %w", err)
	}
	if key == "" {
		return "", fmt.Errorf("no provider API key found; set %s or run 'brook auth key'", credentials.UpstreamKeyEnvVar)
	}
	return key, nil
}

func (c *ServeCommander) createDriver() (storage.Driver, error) {
	if c.postgresURL != "" {
		driver, err := postgres.NewDriver(context.Background(), c.postgresURL)
		if err != nil {
			return nil, fmt.Errorf("creating postgres driver: %w", err)
		}
		c.log.Info("using postgres transcript storage")
		return driver, nil
	}

	if c.sqlitePath != "" {
		driver, err := sqlite.NewDriver(c.sqlitePath)
		if err != nil {
			return nil, fmt.Errorf("creating sqlite driver: %w", err)
		}
		c.log.Info("using sqlite transcript storage", "path", c.sqlitePath)
		return driver, nil
	}

	c.log.Info("using in-memory transcript storage")
	return inmemory.NewDriver(), nil
}

func (c *ServeCommander) createPublisher() eventstream.Publisher {
	if len(c.kafkaBrokers) == 0 {
		return nop.NewPublisher()
	}

	c.log.Info("publishing stream events to kafka",
		"brokers", strings.Join(c.kafkaBrokers, ","),
		"topic", c.kafkaTopic,
	)
	return kafka.NewPublisher(c.kafkaBrokers, c.kafkaTopic)
}

// watchOrigins reloads the CORS origin list when the config file changes
// on disk. The environment override still wins when set.
func (c *ServeCommander) watchOrigins(r *relay.Relay) {
	if os.Getenv(allowedOriginsEnvVar) != "" {
		return
	}

	v, err := config.InitViper(c.configDir)
	if err != nil {
		c.log.Debug("config watch disabled", "error", err)
		return
	}

	config.Watch(v, func(_ fsnotify.Event) {
		origins := v.GetString("relay.allowed_origins")
		if origins == "" {
			return
		}
		r.SetAllowedOrigins(strings.Split(origins, ","))
	})
}
