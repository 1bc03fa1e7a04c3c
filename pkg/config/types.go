package config

import (
	"fmt"
	"strconv"
)

// Config represents the persistent brook configuration stored as config.toml
// in the .brook/ directory. The TOML layout uses sections for logical grouping.
type Config struct {
	Version  int            `toml:"version"`
	Relay    RelayConfig    `toml:"relay"`
	Upstream UpstreamConfig `toml:"upstream"`
	Storage  StorageConfig  `toml:"storage"`
	Events   EventsConfig   `toml:"events"`
	Client   ClientConfig   `toml:"client"`
}

// RelayConfig holds relay server settings.
type RelayConfig struct {
	Listen string `toml:"listen,omitempty"`

	// AllowedOrigins is a comma-separated list of origin prefixes
	// permitted by the CORS policy. Empty allows no browser origins
	// (requests without an Origin header are always accepted).
	AllowedOrigins string `toml:"allowed_origins,omitempty"`

	// AuthToken, when set, is the shared bearer token required by the
	// brain-stream endpoint. When empty, any non-empty bearer is accepted.
	AuthToken string `toml:"auth_token,omitempty"`

	// HeartbeatSeconds is the SSE comment keep-alive interval.
	// Zero disables heartbeats.
	HeartbeatSeconds uint `toml:"heartbeat_seconds,omitempty"`
}

// UpstreamConfig holds model-provider settings.
type UpstreamConfig struct {
	URL         string  `toml:"url,omitempty"`
	Model       string  `toml:"model,omitempty"`
	MaxTokens   uint    `toml:"max_tokens,omitempty"`
	Temperature float64 `toml:"temperature,omitempty"`
}

// StorageConfig holds transcript storage settings.
type StorageConfig struct {
	SQLitePath  string `toml:"sqlite_path,omitempty"`
	PostgresURL string `toml:"postgres_url,omitempty"`
}

// EventsConfig holds stream-completion event publishing settings.
type EventsConfig struct {
	KafkaBrokers string `toml:"kafka_brokers,omitempty"`
	KafkaTopic   string `toml:"kafka_topic,omitempty"`
}

// ClientConfig holds settings for CLI commands that connect to a running
// relay (e.g. brook chat). Target is a full URL (scheme + host + port).
type ClientConfig struct {
	Target string `toml:"target,omitempty"`
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"relay.listen": {
		get: func(c *Config) string { return c.Relay.Listen },
		set: func(c *Config, v string) error { c.Relay.Listen = v; return nil },
	},
	"relay.allowed_origins": {
		get: func(c *Config) string { return c.Relay.AllowedOrigins },
		set: func(c *Config, v string) error { c.Relay.AllowedOrigins = v; return nil },
	},
	"relay.auth_token": {
		get: func(c *Config) string { return c.Relay.AuthToken },
		set: func(c *Config, v string) error { c.Relay.AuthToken = v; return nil },
	},
	"relay.heartbeat_seconds": {
		get: func(c *Config) string { return strconv.FormatUint(uint64(c.Relay.HeartbeatSeconds), 10) },
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 32)
			if err != nil {
				return fmt.Errorf("invalid value %q for relay.heartbeat_seconds: %w", v, err)
			}
			c.Relay.HeartbeatSeconds = uint(n)
			return nil
		},
	},
	"upstream.url": {
		get: func(c *Config) string { return c.Upstream.URL },
		set: func(c *Config, v string) error { c.Upstream.URL = v; return nil },
	},
	"upstream.model": {
		get: func(c *Config) string { return c.Upstream.Model },
		set: func(c *Config, v string) error { c.Upstream.Model = v; return nil },
	},
	"upstream.max_tokens": {
		get: func(c *Config) string { return strconv.FormatUint(uint64(c.Upstream.MaxTokens), 10) },
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 32)
			if err != nil {
				return fmt.Errorf("invalid value %q for upstream.max_tokens: %w", v, err)
			}
			c.Upstream.MaxTokens = uint(n)
			return nil
		},
	},
	"upstream.temperature": {
		get: func(c *Config) string { return strconv.FormatFloat(c.Upstream.Temperature, 'g', -1, 64) },
		set: func(c *Config, v string) error {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("invalid value %q for upstream.temperature: %w", v, err)
			}
			c.Upstream.Temperature = f
			return nil
		},
	},
	"storage.sqlite_path": {
		get: func(c *Config) string { return c.Storage.SQLitePath },
		set: func(c *Config, v string) error { c.Storage.SQLitePath = v; return nil },
	},
	"storage.postgres_url": {
		get: func(c *Config) string { return c.Storage.PostgresURL },
		set: func(c *Config, v string) error { c.Storage.PostgresURL = v; return nil },
	},
	"events.kafka_brokers": {
		get: func(c *Config) string { return c.Events.KafkaBrokers },
		set: func(c *Config, v string) error { c.Events.KafkaBrokers = v; return nil },
	},
	"events.kafka_topic": {
		get: func(c *Config) string { return c.Events.KafkaTopic },
		set: func(c *Config, v string) error { c.Events.KafkaTopic = v; return nil },
	},
	"client.target": {
		get: func(c *Config) string { return c.Client.Target },
		set: func(c *Config, v string) error { c.Client.Target = v; return nil },
	},
}
