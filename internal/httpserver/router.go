package httpserver

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"streamgate/internal/handlers"
	"streamgate/internal/metrics"
	"streamgate/internal/middleware"
)

func SetupRouter(
	r *chi.Mux,
	baseLogger *zap.Logger,
	prepareHandler *handlers.PrepareHandler,
	streamHandler *handlers.StreamHandler,
	modelsHandler *handlers.ModelsHandler,
) {
	r.Use(metrics.Middleware)

	// base middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)

	r.Use(middleware.LoggingContext(baseLogger))
	r.Use(middleware.Recoverer())             // panic recovery
	r.Use(middleware.MaxBodySize(512 * 1024)) // 512 KB max body

	// Short-lived JSON endpoints get a request timeout. The stream route must
	// not: it stays open for the life of the relay and enforces its own
	// attempt deadline.
	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(15 * time.Second))
		r.Post("/prepare", prepareHandler.Prepare)
		r.Get("/models", modelsHandler.Models)
	})

	r.Get("/stream/{sessionID}", streamHandler.Stream)

	// health check
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Handle("/metrics", metrics.Handler())
}
