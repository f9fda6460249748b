package relay

import (
	"context"
	"errors"
	"io"
	"strconv"
	"time"

	"go.uber.org/zap"

	"streamgate/internal/metrics"
	"streamgate/internal/session"
	"streamgate/internal/sse"
	"streamgate/internal/upstream"
)

// State is the terminal state of one stream attempt.
type State string

const (
	StateCompleted    State = "completed"
	StateFailed       State = "failed"
	StateTimedOut     State = "timed_out"
	StateClientClosed State = "client_closed"
)

// Client-facing event names.
const (
	EventChunk = "chunk"
	EventDone  = "done"
	EventError = "error"
)

// DefaultAttemptTimeout bounds one whole stream attempt. It is not reset per
// chunk: a healthy but endless upstream stream is cut off too.
const DefaultAttemptTimeout = 60 * time.Second

// fallbackModels are tried, in order, after the session's own model fails to
// connect. Duplicates of the session model are skipped.
var fallbackModels = []string{
	"google/gemini-2.0-flash-exp:free",
	"meta-llama/llama-3.3-70b-instruct:free",
	"mistralai/mistral-7b-instruct:free",
}

// Chunk is the only payload shape forwarded to clients for ordinary data.
type Chunk struct {
	Content string `json:"content"`
}

// ErrorPayload is the terminal error event body.
type ErrorPayload struct {
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

// Orchestrator drives one upstream stream per client connection: candidate
// fallback, payload extraction, timeout and cleanup.
type Orchestrator struct {
	client  upstream.Client
	store   *session.Store
	logger  *zap.Logger
	timeout time.Duration
}

func NewOrchestrator(client upstream.Client, store *session.Store, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		client:  client,
		store:   store,
		logger:  logger.Named("relay"),
		timeout: DefaultAttemptTimeout,
	}
}

// WithAttemptTimeout overrides the per-attempt timeout; used by tests.
func (o *Orchestrator) WithAttemptTimeout(d time.Duration) *Orchestrator {
	if d > 0 {
		o.timeout = d
	}
	return o
}

// Run relays one session to the client writer and returns the terminal state.
// ctx is the client connection's context: its cancellation means the client
// went away. The stream handler consumes the session record before calling
// Run; the deferred delete is a backstop so a direct caller can never leave
// an id good for a second attempt.
func (o *Orchestrator) Run(ctx context.Context, sess session.Session, w *Writer) State {
	defer o.store.Delete(sess.ID)

	logger := o.logger.With(
		zap.String("session_id", sess.ID),
		zap.String("model", sess.Model),
	)

	state := o.runCandidates(ctx, sess, w, logger)

	metrics.StreamOutcomesTotal.WithLabelValues(string(state)).Inc()
	logger.Info("stream finished", zap.String("state", string(state)))
	return state
}

func (o *Orchestrator) runCandidates(ctx context.Context, sess session.Session, w *Writer, logger *zap.Logger) State {
	for i, model := range candidates(sess.Model) {
		if ctx.Err() != nil {
			return StateClientClosed
		}

		metrics.FallbackAttemptsTotal.WithLabelValues(strconv.Itoa(i)).Inc()

		state, connected := o.attempt(ctx, model, sess.Messages, w, logger)
		if !connected {
			// Never reached Streaming: stay silent and try the next
			// candidate. The client hears nothing about this failure.
			logger.Warn("candidate failed to connect",
				zap.String("candidate", model),
				zap.Int("position", i),
			)
			continue
		}
		return state
	}

	// Every candidate failed before streaming: one last non-streaming call
	// against the session's original model.
	logger.Warn("all stream candidates exhausted, trying non-streaming fallback")

	content, err := o.client.Complete(ctx, sess.Model, sess.Messages)
	if err != nil {
		if ctx.Err() != nil {
			return StateClientClosed
		}
		logger.Error("non-streaming fallback failed", zap.Error(err))
		_ = w.Send(EventError, ErrorPayload{
			Message: "all upstream models failed",
			Detail:  err.Error(),
		})
		return StateFailed
	}

	if content != "" {
		metrics.ChunksRelayedTotal.Inc()
		_ = w.Send(EventChunk, Chunk{Content: content})
	}
	_ = w.Send(EventDone, sse.DoneSentinel)
	return StateCompleted
}

// attempt runs one candidate stream to a terminal state. connected is false
// only when the upstream never returned a readable 2xx body; once streaming
// has begun every outcome is terminal for the whole run.
func (o *Orchestrator) attempt(parent context.Context, model string, messages []session.Message, w *Writer, logger *zap.Logger) (state State, connected bool) {
	ctx, cancel := context.WithTimeout(parent, o.timeout)
	defer cancel()

	body, err := o.client.Stream(ctx, model, messages)
	if err != nil {
		logger.Debug("stream connect failed",
			zap.String("candidate", model),
			zap.Error(err),
		)
		return StateFailed, false
	}
	defer body.Close()

	parser := sse.NewParser()
	buf := make([]byte, 4096)

	for {
		n, readErr := body.Read(buf)
		if n > 0 {
			for _, payload := range parser.Feed(buf[:n]) {
				if o.relayPayload(payload, w, logger) {
					_ = w.Send(EventDone, sse.DoneSentinel)
					return StateCompleted, true
				}
			}
			if parser.Done() {
				_ = w.Send(EventDone, sse.DoneSentinel)
				return StateCompleted, true
			}
		}

		if readErr == nil {
			continue
		}

		if errors.Is(readErr, io.EOF) {
			// Stream ended without an explicit [DONE]; drain the parser
			// and complete normally.
			for _, payload := range parser.Flush() {
				if o.relayPayload(payload, w, logger) {
					break
				}
			}
			_ = w.Send(EventDone, sse.DoneSentinel)
			return StateCompleted, true
		}

		// The read failed. Cancellation of the parent context means the
		// client disconnected: no further writes are attempted.
		if parent.Err() != nil {
			logger.Info("client disconnected mid-stream",
				zap.String("candidate", model),
			)
			return StateClientClosed, true
		}

		// Attempt deadline: a timeout is a normal terminal condition since
		// partial content may already have been delivered.
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			logger.Warn("stream attempt timed out",
				zap.String("candidate", model),
				zap.Duration("timeout", o.timeout),
			)
			_ = w.Send(EventDone, sse.DoneSentinel)
			return StateTimedOut, true
		}

		// Mid-stream transport error after content may have flowed: close
		// out with done rather than starting over on another candidate.
		logger.Warn("stream read error",
			zap.String("candidate", model),
			zap.Error(readErr),
		)
		_ = w.Send(EventDone, sse.DoneSentinel)
		return StateCompleted, true
	}
}

// relayPayload forwards one extracted payload and reports whether it carried a
// finish marker. Undecodable payloads are dropped: logged and counted, never
// surfaced to the client and never fatal to the stream.
func (o *Orchestrator) relayPayload(payload string, w *Writer, logger *zap.Logger) (finished bool) {
	content, finished, ok := extract(payload)
	if !ok {
		metrics.PayloadDecodeFailuresTotal.Inc()
		logger.Debug("dropping undecodable payload",
			zap.String("payload", truncate(payload, 200)),
		)
		return false
	}

	if content != "" {
		metrics.ChunksRelayedTotal.Inc()
		_ = w.Send(EventChunk, Chunk{Content: content})
	}
	return finished
}

// candidates builds the ordered model list for one session.
func candidates(model string) []string {
	out := []string{model}
	for _, fb := range fallbackModels {
		if fb != model {
			out = append(out, fb)
		}
	}
	return out
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
