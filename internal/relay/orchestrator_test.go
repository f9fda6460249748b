package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"streamgate/internal/session"
)

type fakeUpstream struct {
	mu           sync.Mutex
	streamCalls  []string
	completeCall string

	streamFn   func(ctx context.Context, model string) (io.ReadCloser, error)
	completeFn func(ctx context.Context, model string) (string, error)
}

func (f *fakeUpstream) Stream(ctx context.Context, model string, _ []session.Message) (io.ReadCloser, error) {
	f.mu.Lock()
	f.streamCalls = append(f.streamCalls, model)
	f.mu.Unlock()
	return f.streamFn(ctx, model)
}

func (f *fakeUpstream) Complete(ctx context.Context, model string, _ []session.Message) (string, error) {
	f.mu.Lock()
	f.completeCall = model
	f.mu.Unlock()
	if f.completeFn == nil {
		return "", errors.New("complete not configured")
	}
	return f.completeFn(ctx, model)
}

func (f *fakeUpstream) Models(context.Context) ([]byte, error) {
	return nil, errors.New("models not configured")
}

func sseBody(payloads ...string) io.ReadCloser {
	var b strings.Builder
	for _, p := range payloads {
		fmt.Fprintf(&b, "data: %s\n\n", p)
	}
	return io.NopCloser(strings.NewReader(b.String()))
}

// blockingBody blocks every read until its context ends.
type blockingBody struct {
	ctx context.Context
}

func (b *blockingBody) Read([]byte) (int, error) {
	<-b.ctx.Done()
	return 0, b.ctx.Err()
}

func (b *blockingBody) Close() error { return nil }

func newTestSession(t *testing.T, store *session.Store, model string) session.Session {
	t.Helper()
	id := store.Create(model, []session.Message{
		{Role: session.RoleUser, Content: "hi"},
	})
	sess, ok := store.Get(id)
	if !ok {
		t.Fatalf("session missing after create")
	}
	return sess
}

func newTestWriter(t *testing.T) (*Writer, *httptest.ResponseRecorder) {
	t.Helper()
	rr := httptest.NewRecorder()
	w, err := NewWriter(rr)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	return w, rr
}

func TestOrchestratorFallbackToLaterCandidate(t *testing.T) {
	store := session.NewStore(time.Minute, time.Minute, zaptest.NewLogger(t))
	defer store.Close()

	sess := newTestSession(t, store, "primary/model")
	good := fallbackModels[1]

	fake := &fakeUpstream{
		streamFn: func(_ context.Context, model string) (io.ReadCloser, error) {
			if model != good {
				return nil, errors.New("upstream: stream 502: bad gateway")
			}
			return sseBody(
				`{"choices":[{"delta":{"content":"Hi"}}]}`,
				`{"choices":[{"delta":{"content":" there"}}]}`,
				"[DONE]",
			), nil
		},
	}

	o := NewOrchestrator(fake, store, zaptest.NewLogger(t))
	w, rr := newTestWriter(t)

	state := o.Run(context.Background(), sess, w)
	if state != StateCompleted {
		t.Fatalf("expected completed, got %s", state)
	}

	want := []string{"primary/model", fallbackModels[0], good}
	if len(fake.streamCalls) != len(want) {
		t.Fatalf("unexpected candidate attempts: %v", fake.streamCalls)
	}
	for i, model := range want {
		if fake.streamCalls[i] != model {
			t.Fatalf("candidate %d: got %s, want %s", i, fake.streamCalls[i], model)
		}
	}

	body := rr.Body.String()
	first := strings.Index(body, `data: {"content":"Hi"}`)
	second := strings.Index(body, `data: {"content":" there"}`)
	done := strings.Index(body, "event: done\ndata: [DONE]")
	if first == -1 || second == -1 || done == -1 {
		t.Fatalf("missing events in body: %q", body)
	}
	if !(first < second && second < done) {
		t.Fatalf("events out of order: %q", body)
	}
	if strings.Count(body, "event: done") != 1 {
		t.Fatalf("exactly one done event expected: %q", body)
	}
	if strings.Contains(body, "event: error") {
		t.Fatalf("failed candidates must not surface errors: %q", body)
	}

	if _, ok := store.Get(sess.ID); ok {
		t.Fatalf("session should be deleted after the attempt")
	}
}

func TestOrchestratorFinishReasonCompletes(t *testing.T) {
	store := session.NewStore(time.Minute, time.Minute, zaptest.NewLogger(t))
	defer store.Close()

	sess := newTestSession(t, store, "primary/model")

	fake := &fakeUpstream{
		streamFn: func(context.Context, string) (io.ReadCloser, error) {
			// Finish reason without a trailing [DONE].
			return sseBody(
				`{"choices":[{"delta":{"content":"bye"},"finish_reason":"stop"}]}`,
				`{"choices":[{"delta":{"content":"late"}}]}`,
			), nil
		},
	}

	o := NewOrchestrator(fake, store, zaptest.NewLogger(t))
	w, rr := newTestWriter(t)

	if state := o.Run(context.Background(), sess, w); state != StateCompleted {
		t.Fatalf("expected completed, got %s", state)
	}

	body := rr.Body.String()
	if !strings.Contains(body, `data: {"content":"bye"}`) {
		t.Fatalf("content before finish marker should be emitted: %q", body)
	}
	if strings.Contains(body, "late") {
		t.Fatalf("payloads after the finish marker must not be relayed: %q", body)
	}
	if strings.Count(body, "event: done") != 1 {
		t.Fatalf("exactly one done event expected: %q", body)
	}
}

func TestOrchestratorMalformedPayloadIsDropped(t *testing.T) {
	store := session.NewStore(time.Minute, time.Minute, zaptest.NewLogger(t))
	defer store.Close()

	sess := newTestSession(t, store, "primary/model")

	fake := &fakeUpstream{
		streamFn: func(context.Context, string) (io.ReadCloser, error) {
			return sseBody(
				"{this is not json",
				`{"choices":[{"delta":{"content":"ok"}}]}`,
				"[DONE]",
			), nil
		},
	}

	o := NewOrchestrator(fake, store, zaptest.NewLogger(t))
	w, rr := newTestWriter(t)

	if state := o.Run(context.Background(), sess, w); state != StateCompleted {
		t.Fatalf("expected completed, got %s", state)
	}

	body := rr.Body.String()
	if strings.Contains(body, "not json") {
		t.Fatalf("malformed payload must not reach the client: %q", body)
	}
	if !strings.Contains(body, `data: {"content":"ok"}`) {
		t.Fatalf("payload after the malformed one should still be relayed: %q", body)
	}
}

func TestOrchestratorNonStreamingFallback(t *testing.T) {
	store := session.NewStore(time.Minute, time.Minute, zaptest.NewLogger(t))
	defer store.Close()

	sess := newTestSession(t, store, "primary/model")

	fake := &fakeUpstream{
		streamFn: func(context.Context, string) (io.ReadCloser, error) {
			return nil, errors.New("upstream: stream 503")
		},
		completeFn: func(_ context.Context, model string) (string, error) {
			return "full response", nil
		},
	}

	o := NewOrchestrator(fake, store, zaptest.NewLogger(t))
	w, rr := newTestWriter(t)

	if state := o.Run(context.Background(), sess, w); state != StateCompleted {
		t.Fatalf("expected completed, got %s", state)
	}

	if fake.completeCall != "primary/model" {
		t.Fatalf("non-streaming fallback must use the session's original model, got %s", fake.completeCall)
	}

	body := rr.Body.String()
	if strings.Count(body, "event: chunk") != 1 {
		t.Fatalf("expected exactly one chunk: %q", body)
	}
	if !strings.Contains(body, `data: {"content":"full response"}`) {
		t.Fatalf("missing fallback content: %q", body)
	}
	if strings.Count(body, "event: done") != 1 {
		t.Fatalf("expected exactly one done: %q", body)
	}
}

func TestOrchestratorTotalFailure(t *testing.T) {
	store := session.NewStore(time.Minute, time.Minute, zaptest.NewLogger(t))
	defer store.Close()

	sess := newTestSession(t, store, "primary/model")

	fake := &fakeUpstream{
		streamFn: func(context.Context, string) (io.ReadCloser, error) {
			return nil, errors.New("upstream: stream 503")
		},
		completeFn: func(context.Context, string) (string, error) {
			return "", errors.New("upstream: completion 503")
		},
	}

	o := NewOrchestrator(fake, store, zaptest.NewLogger(t))
	w, rr := newTestWriter(t)

	if state := o.Run(context.Background(), sess, w); state != StateFailed {
		t.Fatalf("expected failed, got %s", state)
	}

	body := rr.Body.String()
	if strings.Count(body, "event: error") != 1 {
		t.Fatalf("expected exactly one error event: %q", body)
	}
	if strings.Contains(body, "event: done") {
		t.Fatalf("no done event on total failure: %q", body)
	}
	if _, ok := store.Get(sess.ID); ok {
		t.Fatalf("session should be deleted after total failure")
	}
}

func TestOrchestratorAttemptTimeout(t *testing.T) {
	store := session.NewStore(time.Minute, time.Minute, zaptest.NewLogger(t))
	defer store.Close()

	sess := newTestSession(t, store, "primary/model")

	fake := &fakeUpstream{
		streamFn: func(ctx context.Context, _ string) (io.ReadCloser, error) {
			return &blockingBody{ctx: ctx}, nil
		},
	}

	o := NewOrchestrator(fake, store, zaptest.NewLogger(t)).WithAttemptTimeout(30 * time.Millisecond)
	w, rr := newTestWriter(t)

	start := time.Now()
	state := o.Run(context.Background(), sess, w)
	if state != StateTimedOut {
		t.Fatalf("expected timed_out, got %s", state)
	}
	if time.Since(start) > time.Second {
		t.Fatalf("timeout took too long: %v", time.Since(start))
	}

	// Timeout is a normal terminal condition: done, not error.
	body := rr.Body.String()
	if strings.Count(body, "event: done") != 1 {
		t.Fatalf("expected exactly one done after timeout: %q", body)
	}
	if strings.Contains(body, "event: error") {
		t.Fatalf("timeout must not emit error: %q", body)
	}
}

func TestOrchestratorClientDisconnect(t *testing.T) {
	store := session.NewStore(time.Minute, time.Minute, zaptest.NewLogger(t))
	defer store.Close()

	sess := newTestSession(t, store, "primary/model")

	fake := &fakeUpstream{
		streamFn: func(ctx context.Context, _ string) (io.ReadCloser, error) {
			return &blockingBody{ctx: ctx}, nil
		},
	}

	o := NewOrchestrator(fake, store, zaptest.NewLogger(t))
	w, rr := newTestWriter(t)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	state := o.Run(ctx, sess, w)
	if state != StateClientClosed {
		t.Fatalf("expected client_closed, got %s", state)
	}

	// No writes after the client went away.
	if rr.Body.Len() != 0 {
		t.Fatalf("no events expected after disconnect: %q", rr.Body.String())
	}
	if _, ok := store.Get(sess.ID); ok {
		t.Fatalf("session should be released on disconnect")
	}
}
