package handlers

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"streamgate/internal/session"
	"streamgate/pkg/logging"
)

// PrepareHandler holds dependencies for the POST /prepare endpoint.
type PrepareHandler struct {
	Store *session.Store
}

func NewPrepareHandler(store *session.Store) *PrepareHandler {
	return &PrepareHandler{Store: store}
}

type prepareRequest struct {
	Model    string            `json:"model"`
	Messages []session.Message `json:"messages"`
}

type prepareResponse struct {
	SessionID string `json:"sessionId"`
}

// Prepare handles POST /prepare. The body is permissive: an empty object is
// accepted and normalized (default model, injected system/user turns); only a
// body that is not JSON at all is rejected.
func (h *PrepareHandler) Prepare(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.L(ctx)

	var req prepareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid prepare body", zap.Error(err))
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	id := h.Store.Create(req.Model, req.Messages)

	logger.Info("session prepared",
		zap.String("session_id", id),
		zap.String("model", req.Model),
		zap.Int("message_count", len(req.Messages)),
	)

	writeJSON(w, http.StatusOK, prepareResponse{SessionID: id})
}

// writeJSON sends JSON responses consistently.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
