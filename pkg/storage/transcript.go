// Package storage persists completed stream transcripts. Recording is
// best-effort and asynchronous; a storage failure never affects a live
// stream.
package storage

import "time"

// Transcript is one completed (or failed) relay stream.
type Transcript struct {
	// ID is the stream identifier assigned when the request arrived.
	ID string

	// Endpoint names the relay route that served the stream.
	Endpoint string

	// Model is the upstream model identifier used.
	Model string

	// Prompt is the user-visible prompt text (images excluded).
	Prompt string

	// Reply is the full concatenated token output.
	Reply string

	// TokenCount is the number of token frames emitted downstream.
	TokenCount int

	// DurationMs is wall time from request arrival to terminal frame.
	DurationMs int64

	// Err holds the terminal error message for failed streams, empty on
	// success.
	Err string

	CreatedAt time.Time
}
