package llm

// ChatRequest represents a provider-agnostic chat completion request.
// This is the internal representation built by the relay before it is
// translated to a provider-specific wire format.
type ChatRequest struct {
	// Model name (e.g., "gpt-4o")
	Model string `json:"model"`

	// Conversation messages
	Messages []Message `json:"messages"`

	// System prompt (some providers handle this separately from messages)
	System string `json:"system,omitempty"`

	// Whether to stream the response
	Stream *bool `json:"stream,omitempty"`

	// Generation parameters (unified across providers)
	MaxTokens   *int     `json:"max_tokens,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
}
