package relay

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
)

// Writer emits SSE frames to the client connection. Every message goes out as
// a well-formed event:/data: frame terminated by a blank line; after Close all
// sends become no-ops, so a terminal emission racing a client disconnect never
// writes to a dead connection.
type Writer struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
	closed  bool
}

// NewWriter wraps the response writer. It fails if the underlying transport
// cannot flush, since an SSE stream buffered until completion is useless.
func NewWriter(w http.ResponseWriter) (*Writer, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("relay: response writer does not support flushing")
	}
	return &Writer{w: w, flusher: flusher}, nil
}

// Open sets the stream headers and primes the connection with a comment line.
// X-Accel-Buffering keeps nginx-style intermediaries from buffering the body.
func (sw *Writer) Open() {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	if sw.closed {
		return
	}

	h := sw.w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")

	fmt.Fprint(sw.w, ": connected\n\n")
	sw.flusher.Flush()
}

// Send writes one SSE frame. A non-empty event name adds an event: line. A
// string payload is written literally; anything else is JSON-serialized.
func (sw *Writer) Send(event string, payload any) error {
	data, ok := payload.(string)
	if !ok {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("relay: marshal SSE payload: %w", err)
		}
		data = string(encoded)
	}

	sw.mu.Lock()
	defer sw.mu.Unlock()
	if sw.closed {
		return nil
	}

	if event != "" {
		fmt.Fprintf(sw.w, "event: %s\n", event)
	}
	fmt.Fprintf(sw.w, "data: %s\n\n", data)
	sw.flusher.Flush()
	return nil
}

// Close marks the stream finished. Safe to call multiple times; the handler
// returning closes the underlying connection.
func (sw *Writer) Close() {
	sw.mu.Lock()
	sw.closed = true
	sw.mu.Unlock()
}
