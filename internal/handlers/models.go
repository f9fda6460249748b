package handlers

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"streamgate/internal/catalog"
	"streamgate/internal/upstream"
	"streamgate/pkg/logging"
)

// ModelsHandler holds dependencies for the GET /models endpoint.
type ModelsHandler struct {
	Client   upstream.Client
	Cache    catalog.Cache
	CacheTTL time.Duration
}

func NewModelsHandler(client upstream.Client, cache catalog.Cache, ttl time.Duration) *ModelsHandler {
	return &ModelsHandler{
		Client:   client,
		Cache:    cache,
		CacheTTL: ttl,
	}
}

// Models handles GET /models: an opaque passthrough of the upstream model
// catalog, served from cache while the TTL holds.
func (h *ModelsHandler) Models(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.L(ctx)

	if cached, hit, err := h.Cache.Get(ctx, catalog.Key); err == nil && hit {
		writeCatalog(w, cached)
		return
	} else if err != nil {
		// Cache is best-effort; log and fetch upstream.
		logger.Warn("catalog_cache_get_error", zap.Error(err))
	}

	body, err := h.Client.Models(ctx)
	if err != nil {
		logger.Error("models fetch failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "upstream models fetch failed")
		return
	}

	if err := h.Cache.Set(ctx, catalog.Key, body, h.CacheTTL); err != nil {
		logger.Warn("catalog_cache_set_error", zap.Error(err))
	}

	writeCatalog(w, body)
}

func writeCatalog(w http.ResponseWriter, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}
