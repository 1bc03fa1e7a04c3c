package sse

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
)

// Writer emits brook's normalized SSE frames to a downstream client. All
// writes are serialized with a mutex so the relay handler, the heartbeat
// ticker, and the upstream callback can share one Writer.
//
// Each frame is a single "data: <payload>\n\n" event. If the underlying
// writer implements http.Flusher, Writer flushes after every frame.
type Writer struct {
	mu      sync.Mutex
	dest    io.Writer
	flusher http.Flusher
}

// NewWriter returns a Writer emitting frames to dest.
func NewWriter(dest io.Writer) *Writer {
	w := &Writer{dest: dest}
	if f, ok := dest.(http.Flusher); ok {
		w.flusher = f
	}
	return w
}

// WriteToken emits a token frame carrying one upstream content delta.
func (w *Writer) WriteToken(token string) error {
	return w.writeJSONFrame(tokenFrame{Token: token})
}

// WriteJSON emits the structured-payload frame. The relay sends at most
// one of these per stream, as soon as the embedded object balances.
func (w *Writer) WriteJSON(raw json.RawMessage) error {
	return w.writeJSONFrame(jsonFrame{JSON: raw})
}

// WriteError emits the terminal error frame. No [DONE] follows an error.
func (w *Writer) WriteError(msg string) error {
	return w.writeJSONFrame(errorFrame{Error: msg})
}

// WriteDone emits the [DONE] sentinel that terminates a successful stream.
func (w *Writer) WriteDone() error {
	return w.writeRaw("data: " + DoneSentinel + "\n\n")
}

// WriteComment emits an SSE comment line. Clients ignore comments, which
// makes them suitable as keep-alive heartbeats on idle connections.
func (w *Writer) WriteComment(comment string) error {
	return w.writeRaw(": " + comment + "\n\n")
}

func (w *Writer) writeJSONFrame(frame any) error {
	payload, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("marshaling frame: %w", err)
	}
	return w.writeRaw("data: " + string(payload) + "\n\n")
}

func (w *Writer) writeRaw(s string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err := io.WriteString(w.dest, s); err != nil {
		return fmt.Errorf("writing frame: %w", err)
	}

	if w.flusher != nil {
		w.flusher.Flush()
	}

	return nil
}
