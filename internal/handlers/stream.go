package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"streamgate/internal/metrics"
	"streamgate/internal/relay"
	"streamgate/internal/session"
	"streamgate/pkg/logging"
)

// StreamHandler holds dependencies for the GET /stream/{sessionID} endpoint.
type StreamHandler struct {
	Store        *session.Store
	Orchestrator *relay.Orchestrator
}

func NewStreamHandler(store *session.Store, orch *relay.Orchestrator) *StreamHandler {
	return &StreamHandler{Store: store, Orchestrator: orch}
}

// Stream handles GET /stream/{sessionID}. The response is an SSE stream that
// always ends with exactly one terminal event: done or error. An unknown,
// expired or already-consumed session id is reported as an error event on the
// stream itself, since by this point the client is listening for events, not
// status codes.
func (h *StreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.L(ctx)

	sw, err := relay.NewWriter(w)
	if err != nil {
		logger.Error("streaming unsupported", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	defer sw.Close()

	sw.Open()

	metrics.ActiveStreams.Inc()
	defer metrics.ActiveStreams.Dec()

	// Consume takes the session atomically: a concurrent second connect on
	// the same id loses the race here and gets the error event below, so a
	// session never feeds two stream attempts.
	id := chi.URLParam(r, "sessionID")
	sess, ok := h.Store.Consume(id)
	if !ok {
		logger.Warn("unknown or expired session", zap.String("session_id", id))
		_ = sw.Send(relay.EventError, relay.ErrorPayload{
			Message: "invalid or expired session",
		})
		return
	}

	h.Orchestrator.Run(ctx, sess, sw)
}
