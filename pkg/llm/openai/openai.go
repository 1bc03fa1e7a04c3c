// Package openai implements the upstream streaming chat client against
// the OpenAI chat completions API.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/brookhq/brook/pkg/llm"
	"github.com/brookhq/brook/pkg/logger"
	"github.com/brookhq/brook/pkg/sse"
)

const completionsPath = "/v1/chat/completions"

// APIError is returned when the provider responds with a non-success
// HTTP status.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("openai: status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("openai: status %d", e.StatusCode)
}

// Client streams chat completions from an OpenAI-compatible endpoint.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	log        *slog.Logger
}

// Option mutates a Client during construction.
type Option func(*Client)

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithLogger attaches a logger for diagnostic output.
func WithLogger(log *slog.Logger) Option {
	return func(c *Client) {
		c.log = log
	}
}

// NewClient returns a Client targeting baseURL (scheme + host, no path)
// authenticated with apiKey.
func NewClient(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{},
		log:        logger.Nop(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// StreamChat opens a streaming chat completion and invokes onDelta for
// every incremental content delta, in arrival order. It returns nil when
// the provider signals completion, the context's error when ctx is
// cancelled mid-stream, and any error returned by onDelta unchanged.
func (c *Client) StreamChat(ctx context.Context, req llm.ChatRequest, onDelta func(delta string) error) error {
	wireReq := c.toWire(req)

	body, err := json.Marshal(wireReq)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+completionsPath, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("calling upstream: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.apiError(resp)
	}

	reader := sse.NewReader(resp.Body)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		ev, err := reader.Next()
		if err != nil {
			// Cancellation surfaces as a read error on the body;
			// prefer the context's error in that case.
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return fmt.Errorf("reading upstream stream: %w", err)
		}
		if ev == nil {
			// Upstream closed without [DONE]; treat as completion.
			return nil
		}

		if ev.Data == sse.DoneSentinel {
			return nil
		}

		var chunk chatCompletionChunk
		if err := json.Unmarshal([]byte(ev.Data), &chunk); err != nil {
			c.log.Debug("skipping unparseable upstream chunk", "error", err)
			continue
		}

		for _, choice := range chunk.Choices {
			if choice.Delta.Content == "" {
				continue
			}
			if err := onDelta(choice.Delta.Content); err != nil {
				return err
			}
		}
	}
}

// toWire translates the provider-agnostic request into OpenAI's wire
// format. Images become data-URI image_url parts.
func (c *Client) toWire(req llm.ChatRequest) chatCompletionRequest {
	wire := chatCompletionRequest{
		Model:  req.Model,
		Stream: req.Stream == nil || *req.Stream,
	}

	if req.MaxTokens != nil {
		wire.MaxTokens = *req.MaxTokens
	}
	if req.Temperature != nil {
		wire.Temperature = *req.Temperature
	}

	if req.System != "" {
		wire.Messages = append(wire.Messages, chatMessage{
			Role:    "system",
			Content: req.System,
		})
	}

	for _, msg := range req.Messages {
		parts := make([]contentPart, 0, len(msg.Content))
		for _, block := range msg.Content {
			switch block.Type {
			case "text":
				parts = append(parts, contentPart{Type: "text", Text: block.Text})
			case "image":
				mediaType := llm.NormalizeMediaType(block.MediaType)
				parts = append(parts, contentPart{
					Type: "image_url",
					ImageURL: &imageURL{
						URL: "data:" + mediaType + ";base64," + block.ImageBase64,
					},
				})
			}
		}
		wire.Messages = append(wire.Messages, chatMessage{
			Role:    msg.Role,
			Content: parts,
		})
	}

	return wire
}

// apiError drains the response body and shapes a non-2xx status into an
// APIError, preferring the provider's own error message when parseable.
func (c *Client) apiError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return apiErr
	}

	var parsed errorResponse
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error.Message != "" {
		apiErr.Message = parsed.Error.Message
	} else {
		apiErr.Message = string(bytes.TrimSpace(body))
	}

	return apiErr
}
