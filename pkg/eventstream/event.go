// Package eventstream defines transport-neutral events emitted when a
// relay stream reaches a terminal frame, plus publisher backends.
package eventstream

import "time"

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeStreamCompleted is emitted after a stream terminates,
	// successfully or not.
	EventTypeStreamCompleted = "brook.stream.completed"
)

// StreamCompletedEvent is a transport-neutral event payload for a
// terminated stream.
type StreamCompletedEvent struct {
	SchemaVersion int         `json:"schema_version"`
	EventType     string      `json:"event_type"`
	EventID       string      `json:"event_id"`
	EmittedAt     time.Time   `json:"emitted_at"`
	Stream        StreamMeta  `json:"stream"`
	Request       RequestMeta `json:"request_meta"`
}

// StreamMeta describes the stream's outcome.
type StreamMeta struct {
	StreamID    string `json:"stream_id"`
	Model       string `json:"model"`
	TokenCount  int    `json:"token_count"`
	JSONEmitted bool   `json:"json_emitted"`
	Err         string `json:"error,omitempty"`
}

// RequestMeta captures request lifecycle metadata for the event.
type RequestMeta struct {
	Path        string    `json:"path,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
	DurationMs  int64     `json:"duration_ms"`
}
