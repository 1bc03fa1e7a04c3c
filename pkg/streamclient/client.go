// Package streamclient consumes the relay's normalized SSE streams. Each
// Client keeps its own registry of in-flight streams so concurrent
// instances can be cancelled independently.
package streamclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/brookhq/brook/pkg/llm"
	"github.com/brookhq/brook/pkg/logger"
	"github.com/brookhq/brook/pkg/sse"
	"github.com/brookhq/brook/relay"
)

const brainStreamPath = "/api/brain-stream"

// ErrNoSession is returned before any network activity when no session
// credential is available.
var ErrNoSession = errors.New("session token required; run 'brook auth login' first")

// TokenSource yields the session credential attached to every stream
// request. credentials.Manager satisfies this.
type TokenSource interface {
	SessionToken() (string, error)
}

// Request describes one streaming chat turn.
type Request struct {
	Message        string
	Language       string
	ConversationID string
	ActiveTrigger  string
	AttachedFiles  []relay.ImagePayload
	PersonalTouch  *llm.PersonalTouch

	// StreamID identifies the stream in the cancellation registry. A
	// random ID is assigned when empty.
	StreamID string
}

// Callbacks receive stream progress. All fields are optional.
type Callbacks struct {
	// OnToken receives the cumulative text after each token frame, not
	// the individual delta.
	OnToken func(cumulative string)

	// OnJSON receives the early structured payload, at most once.
	OnJSON func(raw json.RawMessage)

	// OnComplete fires exactly once when the stream terminates with
	// [DONE].
	OnComplete func(full string)

	// OnError fires at most once, on the first terminal failure.
	OnError func(err error)

	// OnMalformedFrame is a diagnostic hook for frames that fail to
	// parse. The stream continues regardless.
	OnMalformedFrame func(data string, err error)
}

// Client streams chat turns from a relay server.
type Client struct {
	target     string
	tokens     TokenSource
	httpClient *http.Client
	log        *slog.Logger

	mu     sync.Mutex
	active map[string]context.CancelFunc
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithLogger sets the client's logger.
func WithLogger(log *slog.Logger) Option {
	return func(c *Client) {
		c.log = log
	}
}

// New creates a Client for the relay at target.
func New(target string, tokens TokenSource, opts ...Option) *Client {
	c := &Client{
		target:     strings.TrimRight(target, "/"),
		tokens:     tokens,
		httpClient: &http.Client{},
		log:        logger.Nop(),
		active:     make(map[string]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Stream opens one streaming turn and blocks until it terminates. On
// success the full accumulated text is returned and OnComplete has fired
// once. Cancellation via CancelStream or ctx returns ("", nil) with
// neither OnComplete nor OnError invoked.
func (c *Client) Stream(ctx context.Context, req Request, cb Callbacks) (string, error) {
	token, err := c.tokens.SessionToken()
	if err != nil {
		return "", c.fail(cb, fmt.Errorf("loading session token: %w", err))
	}
	if token == "" {
		return "", c.fail(cb, ErrNoSession)
	}

	streamID := req.StreamID
	if streamID == "" {
		streamID = uuid.NewString()
	}

	ctx, cancel := context.WithCancel(ctx)
	c.register(streamID, cancel)
	defer func() {
		c.unregister(streamID)
		cancel()
	}()

	body, err := json.Marshal(relay.BrainRequest{
		Message:        req.Message,
		Language:       req.Language,
		ConversationID: req.ConversationID,
		ActiveTrigger:  req.ActiveTrigger,
		AttachedFiles:  req.AttachedFiles,
		Stream:         true,
		PersonalTouch:  req.PersonalTouch,
	})
	if err != nil {
		return "", c.fail(cb, fmt.Errorf("encoding request: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.target+brainStreamPath, bytes.NewReader(body))
	if err != nil {
		return "", c.fail(cb, fmt.Errorf("building request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return "", nil
		}
		return "", c.fail(cb, fmt.Errorf("connecting to relay: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", c.fail(cb, fmt.Errorf("relay returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))))
	}

	return c.consume(ctx, resp.Body, streamID, cb)
}

// consume reads normalized frames until a terminal condition.
func (c *Client) consume(ctx context.Context, body io.Reader, streamID string, cb Callbacks) (string, error) {
	reader := sse.NewReader(body)

	var text strings.Builder

	for {
		event, err := reader.Next()
		if err != nil {
			if ctx.Err() != nil {
				return "", nil
			}
			return "", c.fail(cb, fmt.Errorf("reading stream: %w", err))
		}
		if event == nil {
			// Connection closed without [DONE].
			if ctx.Err() != nil {
				return "", nil
			}
			return "", c.fail(cb, errors.New("stream ended without completion"))
		}
		if event.Data == "" {
			continue
		}

		if event.Data == sse.DoneSentinel {
			full := text.String()
			if cb.OnComplete != nil {
				cb.OnComplete(full)
			}
			return full, nil
		}

		frame, err := sse.ParseFrame(event.Data)
		if err != nil {
			c.log.Debug("skipping malformed frame",
				"stream_id", streamID,
				"data", event.Data,
			)
			if cb.OnMalformedFrame != nil {
				cb.OnMalformedFrame(event.Data, err)
			}
			continue
		}

		switch {
		case frame.Error != nil:
			return "", c.fail(cb, fmt.Errorf("relay error: %s", *frame.Error))
		case frame.JSON != nil:
			if cb.OnJSON != nil {
				cb.OnJSON(frame.JSON)
			}
		case frame.Token != nil:
			text.WriteString(*frame.Token)
			if cb.OnToken != nil {
				cb.OnToken(text.String())
			}
		default:
			if cb.OnMalformedFrame != nil {
				cb.OnMalformedFrame(event.Data, errors.New("frame carries no known field"))
			}
		}
	}
}

// CancelStream aborts the identified stream. Unknown IDs are a no-op, so
// repeated cancellation is safe.
func (c *Client) CancelStream(streamID string) {
	c.mu.Lock()
	cancel, ok := c.active[streamID]
	if ok {
		delete(c.active, streamID)
	}
	c.mu.Unlock()

	if ok {
		cancel()
	}
}

// CancelAllStreams aborts every in-flight stream on this client.
func (c *Client) CancelAllStreams() {
	c.mu.Lock()
	cancels := make([]context.CancelFunc, 0, len(c.active))
	for id, cancel := range c.active {
		cancels = append(cancels, cancel)
		delete(c.active, id)
	}
	c.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
}

// ActiveStreams reports the IDs currently registered for cancellation.
func (c *Client) ActiveStreams() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	ids := make([]string, 0, len(c.active))
	for id := range c.active {
		ids = append(ids, id)
	}
	return ids
}

func (c *Client) register(streamID string, cancel context.CancelFunc) {
	c.mu.Lock()
	c.active[streamID] = cancel
	c.mu.Unlock()
}

func (c *Client) unregister(streamID string) {
	c.mu.Lock()
	delete(c.active, streamID)
	c.mu.Unlock()
}

// fail reports err through OnError and returns it.
func (c *Client) fail(cb Callbacks, err error) error {
	if cb.OnError != nil {
		cb.OnError(err)
	}
	return err
}
