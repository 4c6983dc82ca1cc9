package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/paperchat-ai/paperchat/internal/api/handlers"
	"github.com/paperchat-ai/paperchat/internal/config"
	"github.com/paperchat-ai/paperchat/internal/core"
	"github.com/paperchat-ai/paperchat/internal/core/ingestion_engine"
	"github.com/paperchat-ai/paperchat/internal/services"
)

// Server wraps the HTTP server instance and its handlers.
type Server struct {
	httpServer *http.Server
	log        *zap.Logger
}

// NewServer builds and wires all routes.
func NewServer(
	cfg *config.Config,
	store core.Store,
	blobs core.ObjectStore,
	ing ingestion_engine.Ingestor,
	fetcher handlers.PDFFetcher,
	retriever *services.Retriever,
	generator *services.Generator,
	log *zap.Logger,
) *Server {
	docHandler := handlers.NewDocumentHandler(store, blobs, ing, fetcher, log)
	searchHandler := handlers.NewSearchHandler(store, retriever, log)
	threadHandler := handlers.NewThreadHandler(store, retriever, generator, log)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:3000"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/api", func(api chi.Router) {
		api.Post("/documents/upload", docHandler.UploadDocument)
		api.Post("/documents/upload-arxiv", docHandler.UploadArxivDocument)
		api.Get("/documents", docHandler.ListDocuments)
		api.Get("/documents/{id}", docHandler.GetDocument)
		api.Delete("/documents/{id}", docHandler.DeleteDocument)
		api.Post("/documents/{id}/ingest", docHandler.IngestDocument)

		api.Post("/search", searchHandler.Search)

		api.Post("/threads", threadHandler.CreateThread)
		api.Get("/threads", threadHandler.ListThreads)
		api.Get("/threads/{id}", threadHandler.GetThread)
		api.Delete("/threads/{id}", threadHandler.DeleteThread)
		api.Get("/threads/{id}/messages", threadHandler.ListMessages)
		// Streaming turns bypass the router timeout middleware on purpose:
		// a long generation must not be cut off at the proxy layer.
		api.Get("/threads/{id}/stream", threadHandler.StreamResponse)
	})

	httpSrv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &Server{httpServer: httpSrv, log: log}
}

// Start runs the HTTP server until it is shut down.
func (s *Server) Start() error {
	s.log.Info("http server listening", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down http server")
	return s.httpServer.Shutdown(ctx)
}
