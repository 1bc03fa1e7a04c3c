package credentials

// Credentials represents the stored secrets in session.toml.
type Credentials struct {
	Version  int                `toml:"version"`
	Session  SessionCredential  `toml:"session"`
	Upstream UpstreamCredential `toml:"upstream"`
}

// SessionCredential holds the bearer token presented to the relay.
type SessionCredential struct {
	Token string `toml:"token,omitempty"`
}

// UpstreamCredential holds the model-provider API key used by the relay.
type UpstreamCredential struct {
	APIKey string `toml:"api_key,omitempty"`
}
