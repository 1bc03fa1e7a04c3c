package config

// NewDefaultConfig returns a Config populated with sensible defaults for a
// local relay. Values here are overridden by config.toml, environment
// variables, and flags in that order.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Relay: RelayConfig{
			Listen:           ":3000",
			HeartbeatSeconds: 15,
		},
		Upstream: UpstreamConfig{
			URL:         "https://api.openai.com",
			Model:       "gpt-4o",
			MaxTokens:   1024,
			Temperature: 0.2,
		},
		Events: EventsConfig{
			KafkaTopic: "brook.streams",
		},
		Client: ClientConfig{
			Target: "http://localhost:3000",
		},
	}
}
