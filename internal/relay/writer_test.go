package relay

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestWriterFrames(t *testing.T) {
	t.Parallel()

	rr := httptest.NewRecorder()
	w, err := NewWriter(rr)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}

	w.Open()
	if err := w.Send(EventChunk, Chunk{Content: "hi"}); err != nil {
		t.Fatalf("send chunk: %v", err)
	}
	if err := w.Send(EventDone, "[DONE]"); err != nil {
		t.Fatalf("send done: %v", err)
	}

	if ct := rr.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}
	if rr.Header().Get("X-Accel-Buffering") != "no" {
		t.Fatalf("anti-buffering header missing")
	}

	body := rr.Body.String()
	if !strings.HasPrefix(body, ": connected\n\n") {
		t.Fatalf("stream should be primed with a comment, got %q", body)
	}
	if !strings.Contains(body, "event: chunk\ndata: {\"content\":\"hi\"}\n\n") {
		t.Fatalf("chunk frame malformed: %q", body)
	}
	if !strings.Contains(body, "event: done\ndata: [DONE]\n\n") {
		t.Fatalf("done frame malformed: %q", body)
	}
}

func TestWriterSendWithoutEventName(t *testing.T) {
	t.Parallel()

	rr := httptest.NewRecorder()
	w, _ := NewWriter(rr)

	if err := w.Send("", "ping"); err != nil {
		t.Fatalf("send: %v", err)
	}

	body := rr.Body.String()
	if strings.Contains(body, "event:") {
		t.Fatalf("no event line expected, got %q", body)
	}
	if !strings.Contains(body, "data: ping\n\n") {
		t.Fatalf("data frame malformed: %q", body)
	}
}

func TestWriterSendAfterCloseIsNoOp(t *testing.T) {
	t.Parallel()

	rr := httptest.NewRecorder()
	w, _ := NewWriter(rr)

	w.Close()
	w.Close() // idempotent

	if err := w.Send(EventDone, "[DONE]"); err != nil {
		t.Fatalf("send after close must not error, got %v", err)
	}
	if rr.Body.Len() != 0 {
		t.Fatalf("nothing should be written after close, got %q", rr.Body.String())
	}

	w.Open()
	if rr.Body.Len() != 0 {
		t.Fatalf("open after close must not write, got %q", rr.Body.String())
	}
}
