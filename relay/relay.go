// Package relay provides the streaming relay server: it accepts multimodal
// prompt requests, proxies them to a streaming model provider, and re-emits
// the output as normalized SSE frames with an early structured-JSON
// side channel.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/brookhq/brook/pkg/eventstream"
	"github.com/brookhq/brook/pkg/jsonscan"
	"github.com/brookhq/brook/pkg/llm"
	"github.com/brookhq/brook/pkg/sse"
	"github.com/brookhq/brook/pkg/storage"
	"github.com/brookhq/brook/relay/worker"
)

const (
	visionStreamPath = "/api/vision-stream"
	brainStreamPath  = "/api/brain-stream"

	// errNoImages is the in-band message for an empty or missing image list.
	errNoImages = "No images"

	defaultVisionPrompt = "Describe the contents of these images in detail."
)

// StreamChatter opens one streaming completion against an upstream model
// provider, invoking onDelta per content delta.
type StreamChatter interface {
	StreamChat(ctx context.Context, req llm.ChatRequest, onDelta func(delta string) error) error
}

// Relay is the streaming relay server.
type Relay struct {
	config     Config
	upstream   StreamChatter
	workerPool *worker.Pool
	log        *slog.Logger
	server     *fiber.App
	origins    *originPolicy
}

// New creates a new Relay. The storage driver and event publisher are
// handed to the async worker pool; both may be nil to disable recording.
func New(config Config, upstream StreamChatter, driver storage.Driver, publisher eventstream.Publisher, log *slog.Logger) (*Relay, error) {
	if upstream == nil {
		return nil, errors.New("upstream client is required")
	}

	app := fiber.New(fiber.Config{
		// Disable startup message for cleaner logs
		DisableStartupMessage: true,
		// Enable streaming
		StreamRequestBody: true,
	})

	wp, err := worker.NewPool(&worker.Config{
		Driver:    driver,
		Publisher: publisher,
		Logger:    log,
	})
	if err != nil {
		return nil, err
	}

	r := &Relay{
		config:     config,
		upstream:   upstream,
		workerPool: wp,
		log:        log,
		server:     app,
		origins:    newOriginPolicy(config.AllowedOrigins),
	}

	app.Use(corsMiddleware(r.origins))

	app.Get("/healthz", r.handleHealthz)
	app.Post(visionStreamPath, r.handleVisionStream)
	app.Post(brainStreamPath, r.handleBrainStream)

	return r, nil
}

// Run starts the relay server on the configured listening address.
func (r *Relay) Run() error {
	r.log.Info("starting relay server",
		"listen", r.config.ListenAddr,
		"model", r.config.Model,
	)

	return r.server.Listen(r.config.ListenAddr)
}

// RunWithListener starts the relay server using the provided listener.
func (r *Relay) RunWithListener(listener net.Listener) error {
	r.log.Info("starting relay server",
		"listen", listener.Addr().String(),
		"model", r.config.Model,
	)

	return r.server.Listener(listener)
}

// Close gracefully shuts down the relay and waits for the worker pool to
// drain.
func (r *Relay) Close() error {
	err := r.server.Shutdown()
	r.workerPool.Close()
	return err
}

// SetAllowedOrigins replaces the CORS origin prefix list at runtime.
// Used by the serve command when the config file changes on disk.
func (r *Relay) SetAllowedOrigins(origins []string) {
	r.origins.set(origins)
	r.log.Info("allowed origins updated", "origins", strings.Join(origins, ","))
}

// Test dispatches a request against the relay's in-process server.
// Exposed for tests.
func (r *Relay) Test(req *http.Request, timeoutMs ...int) (*http.Response, error) {
	return r.server.Test(req, timeoutMs...)
}

func (r *Relay) handleHealthz(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"ok": true})
}

// handleVisionStream serves POST /api/vision-stream. Headers are flushed
// for streaming before validation, so all errors travel in-band as error
// frames over HTTP 200.
func (r *Relay) handleVisionStream(c *fiber.Ctx) error {
	startTime := time.Now()
	streamID := uuid.NewString()

	var req VisionRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		r.log.Debug("unparseable vision request body",
			"stream_id", streamID,
			"error", err,
		)
	}

	setSSEHeaders(c)

	// io.Pipe gives direct backpressure: pw.Write blocks until fasthttp
	// reads from pr and flushes the chunk to the socket.
	pr, pw := io.Pipe()

	if len(req.Images) == 0 {
		go r.failStream(pw, streamID, visionStreamPath, startTime, errNoImages)
	} else {
		prompt := req.Prompt
		if prompt == "" {
			prompt = defaultVisionPrompt
		}
		chatReq := r.buildChatRequest(prompt, req.Language, req.PersonalTouch, req.Images)
		go r.stream(pw, chatReq, streamID, visionStreamPath, prompt, startTime)
	}

	// Unknown size (-1) triggers chunked transfer encoding in fasthttp.
	c.Context().Response.SetBodyStream(pr, -1)

	return nil
}

// handleBrainStream serves POST /api/brain-stream, the text-first twin of
// the vision endpoint. Unlike vision-stream it requires a bearer
// credential; auth failures surface as HTTP 401 before any streaming.
func (r *Relay) handleBrainStream(c *fiber.Ctx) error {
	startTime := time.Now()
	streamID := uuid.NewString()

	token := bearerToken(c.Get(fiber.HeaderAuthorization))
	if token == "" || (r.config.AuthToken != "" && token != r.config.AuthToken) {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}

	var req BrainRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil || req.Message == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "message is required"})
	}

	setSSEHeaders(c)

	pr, pw := io.Pipe()

	chatReq := r.buildChatRequest(req.Message, req.Language, req.PersonalTouch, req.AttachedFiles)
	go r.stream(pw, chatReq, streamID, brainStreamPath, req.Message, startTime)

	c.Context().Response.SetBodyStream(pr, -1)

	return nil
}

// buildChatRequest assembles the provider-agnostic request: system
// instruction from language + personalization, then one user message of
// a text block plus one image block per attachment.
func (r *Relay) buildChatRequest(prompt, language string, pt *llm.PersonalTouch, images []ImagePayload) llm.ChatRequest {
	content := make([]llm.ContentBlock, 0, len(images)+1)
	content = append(content, llm.ContentBlock{Type: "text", Text: prompt})
	for _, img := range images {
		content = append(content, llm.NewImageBlock(img.Base64, img.MimeType))
	}

	stream := true
	maxTokens := r.config.MaxTokens
	temperature := r.config.Temperature

	return llm.ChatRequest{
		Model:       r.config.Model,
		System:      llm.SystemInstruction(language, pt),
		Messages:    []llm.Message{{Role: "user", Content: content}},
		Stream:      &stream,
		MaxTokens:   &maxTokens,
		Temperature: &temperature,
	}
}

// stream drives one upstream completion into the pipe as normalized SSE
// frames. Runs in its own goroutine; the fasthttp handler has already
// returned by the time this writes.
func (r *Relay) stream(pw *io.PipeWriter, chatReq llm.ChatRequest, streamID, endpoint, prompt string, startTime time.Time) {
	defer pw.Close()

	w := sse.NewWriter(pw)

	// Cancelling ctx aborts the upstream HTTP request. Tied below to
	// downstream write failures so a disconnected client stops upstream
	// generation instead of leaking it.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stopHeartbeat := r.startHeartbeat(w, cancel)
	defer stopHeartbeat()

	scanner := jsonscan.New()
	var reply strings.Builder
	tokenCount := 0

	err := r.upstream.StreamChat(ctx, chatReq, func(delta string) error {
		if !scanner.Done() {
			if raw, ok := scanner.Feed(delta); ok {
				if err := w.WriteJSON(raw); err != nil {
					return err
				}
			}
		}

		// Token emission is additive: the characters that formed the
		// JSON payload are forwarded here too.
		reply.WriteString(delta)
		tokenCount++

		return w.WriteToken(delta)
	})

	stopHeartbeat()

	errMsg := ""
	switch {
	case err == nil:
		if werr := w.WriteDone(); werr != nil {
			r.log.Debug("client gone before [DONE]", "stream_id", streamID)
		}
	case errors.Is(err, io.ErrClosedPipe), errors.Is(err, context.Canceled):
		// Client disconnected; upstream already aborted via ctx. There
		// is nobody left to write a terminal frame to.
		errMsg = "client disconnected"
		r.log.Info("stream aborted by client",
			"stream_id", streamID,
			"endpoint", endpoint,
		)
	default:
		errMsg = err.Error()
		r.log.Error("stream failed",
			"stream_id", streamID,
			"endpoint", endpoint,
			"error", err,
		)
		if werr := w.WriteError(errMsg); werr != nil {
			r.log.Debug("client gone before error frame", "stream_id", streamID)
		}
	}

	r.record(streamID, endpoint, prompt, reply.String(), tokenCount, scanner.Done(), errMsg, startTime)
}

// failStream emits a single in-band error frame and records the failed
// stream. No [DONE] follows.
func (r *Relay) failStream(pw *io.PipeWriter, streamID, endpoint string, startTime time.Time, msg string) {
	defer pw.Close()

	w := sse.NewWriter(pw)
	if err := w.WriteError(msg); err != nil {
		r.log.Debug("client gone before error frame", "stream_id", streamID)
	}

	r.log.Warn("rejected stream request",
		"stream_id", streamID,
		"endpoint", endpoint,
		"reason", msg,
	)

	r.record(streamID, endpoint, "", "", 0, false, msg, startTime)
}

// startHeartbeat writes SSE comment keep-alives until stopped. A failed
// heartbeat write means the client is gone, which cancels the upstream
// request. Returns an idempotent stop function.
func (r *Relay) startHeartbeat(w *sse.Writer, cancel context.CancelFunc) func() {
	if r.config.HeartbeatInterval <= 0 {
		return func() {}
	}

	done := make(chan struct{})
	var once sync.Once

	go func() {
		ticker := time.NewTicker(r.config.HeartbeatInterval)
		defer ticker.Stop()

		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := w.WriteComment("ping"); err != nil {
					cancel()
					return
				}
			}
		}
	}()

	return func() {
		once.Do(func() { close(done) })
	}
}

// record enqueues the transcript and completion event for async
// persistence. Best-effort; a full queue drops the job.
func (r *Relay) record(streamID, endpoint, prompt, reply string, tokenCount int, jsonEmitted bool, errMsg string, startTime time.Time) {
	completedAt := time.Now().UTC()

	r.workerPool.Enqueue(worker.Job{
		Transcript: &storage.Transcript{
			ID:         streamID,
			Endpoint:   endpoint,
			Model:      r.config.Model,
			Prompt:     prompt,
			Reply:      reply,
			TokenCount: tokenCount,
			DurationMs: time.Since(startTime).Milliseconds(),
			Err:        errMsg,
			CreatedAt:  completedAt,
		},
		Event: &eventstream.StreamCompletedEvent{
			SchemaVersion: eventstream.SchemaVersionV1,
			EventType:     eventstream.EventTypeStreamCompleted,
			EventID:       uuid.NewString(),
			EmittedAt:     completedAt,
			Stream: eventstream.StreamMeta{
				StreamID:    streamID,
				Model:       r.config.Model,
				TokenCount:  tokenCount,
				JSONEmitted: jsonEmitted,
				Err:         errMsg,
			},
			Request: eventstream.RequestMeta{
				Path:        endpoint,
				StartedAt:   startTime.UTC(),
				CompletedAt: completedAt,
				DurationMs:  time.Since(startTime).Milliseconds(),
			},
		},
	})
}

// setSSEHeaders prepares the response for server-sent events. The
// X-Accel-Buffering header keeps intermediary proxies from buffering the
// stream.
func setSSEHeaders(c *fiber.Ctx) {
	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set("X-Accel-Buffering", "no")
}

// bearerToken extracts the token from an Authorization header value.
func bearerToken(header string) string {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, prefix))
}
