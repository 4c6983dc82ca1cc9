// Package app wires configuration, infrastructure clients, services and the
// HTTP server into a runnable application.
package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/paperchat-ai/paperchat/internal/config"
	"github.com/paperchat-ai/paperchat/internal/core"
	db "github.com/paperchat-ai/paperchat/internal/core/database"
	"github.com/paperchat-ai/paperchat/internal/core/extract"
	"github.com/paperchat-ai/paperchat/internal/core/ingestion_engine"
	"github.com/paperchat-ai/paperchat/internal/core/llm"
	"github.com/paperchat-ai/paperchat/internal/core/objectstore"
	"github.com/paperchat-ai/paperchat/internal/services"
)

const ingestWorkers = 2

type App struct {
	Store    core.Store
	Blobs    core.ObjectStore
	Ingestor *ingestion_engine.DocumentIngestor
	Server   *Server
	log      *zap.Logger
}

// NewApp builds every component from config. All dependencies flow through
// constructors; nothing global.
func NewApp(ctx context.Context, cfg *config.Config, log *zap.Logger) (*App, error) {
	bootCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	store, err := db.NewDatabaseClient(bootCtx, cfg)
	if err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}
	log.Info("database initialized and ready")

	var blobs core.ObjectStore
	switch cfg.StorageBackend {
	case "s3":
		blobs, err = objectstore.NewS3Store(bootCtx, cfg, log)
	default:
		blobs, err = objectstore.NewLocalStore(cfg.StoragePath)
	}
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("init object store: %w", err)
	}
	log.Info("object store initialized", zap.String("backend", cfg.StorageBackend))

	var embedder core.EmbeddingProvider
	switch cfg.EmbedProvider {
	case "gemini":
		embedder, err = llm.NewGeminiEmbedder(bootCtx, cfg.GeminiAPIKey, cfg.EmbedModel, cfg.EmbedDim, log)
	case "openai":
		embedder = llm.NewOpenAIEmbedder(cfg.EmbedBaseURL, cfg.EmbedAPIKey, cfg.EmbedModel, cfg.EmbedDim, log)
	default:
		err = fmt.Errorf("unknown EMBED_PROVIDER %q", cfg.EmbedProvider)
	}
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("init embedder: %w", err)
	}

	chat := llm.NewOpenAIChatClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModel, cfg.LLMProvider, log)
	log.Info("chat backend configured",
		zap.String("provider", cfg.LLMProvider),
		zap.String("model", cfg.LLMModel),
		zap.String("base_url", cfg.LLMBaseURL))

	extractor := extract.NewPDFExtractor()
	chunker := ingestion_engine.NewChunker(cfg.ChunkSize, cfg.ChunkOverlap, ingestion_engine.ApproxTokens)
	ingestor := ingestion_engine.NewDocumentIngestor(store, blobs, embedder, extractor, chunker, cfg.EmbedDim, log)
	ingestor.Start(ctx, ingestWorkers)

	retriever := services.NewRetriever(store, embedder, log)
	generator := services.NewGenerator(store, chat, log)
	fetcher := ingestion_engine.NewArxivFetcher(log)

	server := NewServer(cfg, store, blobs, ingestor, fetcher, retriever, generator, log)

	return &App{
		Store:    store,
		Blobs:    blobs,
		Ingestor: ingestor,
		Server:   server,
		log:      log,
	}, nil
}

func (a *App) Close() {
	if a.Store != nil {
		_ = a.Store.Close()
	}
}
