package relay

import "time"

// Config is the relay server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":3000")
	ListenAddr string

	// AllowedOrigins is the list of origin prefixes permitted by CORS.
	// Requests without an Origin header are always allowed. Can be
	// updated at runtime via Relay.SetAllowedOrigins.
	AllowedOrigins []string

	// AuthToken, when non-empty, is the shared bearer token required by
	// the brain-stream endpoint. When empty, any non-empty bearer is
	// accepted.
	AuthToken string

	// HeartbeatInterval is how often an SSE comment keep-alive is
	// written on an open stream. Zero disables heartbeats.
	HeartbeatInterval time.Duration

	// Model is the upstream model identifier.
	Model string

	// MaxTokens bounds upstream generation length.
	MaxTokens int

	// Temperature is the upstream sampling temperature. Kept low for
	// factual consistency.
	Temperature float64
}
