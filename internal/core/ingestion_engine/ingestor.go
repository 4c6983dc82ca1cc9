// Package ingestion_engine drives uploaded documents through the
// extract -> chunk -> embed -> persist pipeline.
package ingestion_engine

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/paperchat-ai/paperchat/internal/core"
	"github.com/paperchat-ai/paperchat/internal/models"
)

// Ingestor is the entrypoint used by the HTTP layer: enqueue a document and a
// background worker processes it.
type Ingestor interface {
	Start(ctx context.Context, numWorkers int)
	Enqueue(docID string)
	Ingest(ctx context.Context, docID string) bool
}

// DocumentIngestor orchestrates the background ingestion pipeline and owns
// the document status state machine.
//
// jobs is an in-memory queue of document IDs; each worker processes one
// document at a time with a detached timeout context so an HTTP request
// lifecycle never cancels an ingestion mid-flight.
type DocumentIngestor struct {
	store     core.Store
	blobs     core.ObjectStore
	embedder  core.EmbeddingProvider
	extractor core.Extractor
	chunker   *Chunker
	embedDim  int
	log       *zap.Logger
	jobs      chan string
}

var _ Ingestor = (*DocumentIngestor)(nil)

// NewDocumentIngestor constructs the ingestor with a bounded job queue (64).
func NewDocumentIngestor(
	store core.Store,
	blobs core.ObjectStore,
	embedder core.EmbeddingProvider,
	extractor core.Extractor,
	chunker *Chunker,
	embedDim int,
	log *zap.Logger,
) *DocumentIngestor {
	return &DocumentIngestor{
		store:     store,
		blobs:     blobs,
		embedder:  embedder,
		extractor: extractor,
		chunker:   chunker,
		embedDim:  embedDim,
		log:       log,
		jobs:      make(chan string, 64),
	}
}

// Start launches numWorkers goroutines reading from the jobs channel.
func (i *DocumentIngestor) Start(ctx context.Context, numWorkers int) {
	for w := 1; w <= numWorkers; w++ {
		go func(w int) {
			for {
				select {
				case <-ctx.Done():
					i.log.Info("ingestion worker shutting down", zap.Int("worker", w))
					return
				case docID := <-i.jobs:
					// Detach from the server context: an enqueued document
					// should finish even while the request that uploaded it
					// is long gone.
					procCtx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
					ok := i.Ingest(procCtx, docID)
					cancel()
					i.log.Info("ingestion finished",
						zap.String("document_id", docID),
						zap.Int("worker", w),
						zap.Bool("success", ok))
				}
			}
		}(w)
	}
}

// Enqueue schedules a document ID for ingestion.
// If the queue is full, this call blocks until space frees up.
func (i *DocumentIngestor) Enqueue(docID string) {
	i.jobs <- docID
}

// Ingest runs the full pipeline for one document and reports whether it
// reached ready. Every expected failure mode is recorded as status error and
// returned as false; callers never see an error value.
//
// Two concurrent Ingest calls for the same document are not serialized: each
// performs a full overwrite of the chunk set and the last commit wins.
func (i *DocumentIngestor) Ingest(ctx context.Context, docID string) bool {
	log := i.log.With(zap.String("document_id", docID))

	doc, err := i.store.GetDocumentByID(ctx, docID)
	if err != nil {
		log.Error("load document failed", zap.Error(err))
		return false
	}
	if doc == nil {
		log.Error("document not found")
		return false
	}

	if !doc.Status.CanTransition(models.StatusProcessing) {
		log.Warn("illegal status transition, refusing to ingest",
			zap.String("status", string(doc.Status)))
		return false
	}
	if err := i.store.UpdateDocumentStatus(ctx, docID, models.StatusProcessing, nil); err != nil {
		// The document never left uploaded, so there is nothing to mark.
		log.Error("set processing failed", zap.Error(err))
		return false
	}

	data, err := i.blobs.Download(ctx, doc.StoragePath)
	if err != nil {
		log.Error("download blob failed", zap.String("path", doc.StoragePath), zap.Error(err))
		i.markError(docID, nil, err)
		return false
	}

	pages, totalPages, err := i.extractor.ExtractPages(data)
	if err != nil {
		log.Error("text extraction failed", zap.Error(err))
		i.markError(docID, nil, err)
		return false
	}
	log.Info("text extracted", zap.Int("pages", totalPages))

	chunks := i.chunker.Chunk(pages)
	if len(chunks) == 0 {
		log.Warn("no chunks produced, possibly empty or unreadable pdf",
			zap.Int("pages", totalPages))
		i.markError(docID, &totalPages, nil)
		return false
	}

	texts := make([]string, len(chunks))
	for idx, ch := range chunks {
		texts[idx] = ch.Text
	}
	embeddings, err := i.embedder.EmbedMany(ctx, texts)
	if err != nil {
		log.Error("embedding failed", zap.Int("chunks", len(chunks)), zap.Error(err))
		i.markError(docID, nil, err)
		return false
	}
	if len(embeddings) != len(chunks) {
		log.Error("embedding count mismatch",
			zap.Int("expected", len(chunks)), zap.Int("got", len(embeddings)))
		i.markError(docID, nil, nil)
		return false
	}
	for idx, emb := range embeddings {
		if len(emb) != i.embedDim {
			log.Error("embedding dimension mismatch",
				zap.Int("chunk", idx),
				zap.Int("expected", i.embedDim), zap.Int("got", len(emb)))
			i.markError(docID, nil, nil)
			return false
		}
	}

	rows := make([]models.Chunk, len(chunks))
	for idx, ch := range chunks {
		rows[idx] = models.Chunk{
			ID:         uuid.NewString(),
			DocumentID: docID,
			Page:       ch.Page,
			ChunkIndex: ch.ChunkIndex,
			Text:       ch.Text,
			Embedding:  embeddings[idx],
			TokenCount: ch.TokenCount,
		}
	}

	if err := i.store.ReplaceChunks(ctx, docID, rows, totalPages); err != nil {
		log.Error("persist chunks failed", zap.Error(err))
		i.markError(docID, nil, err)
		return false
	}

	log.Info("document ingestion completed",
		zap.Int("chunks", len(rows)), zap.Int("pages", totalPages))
	return true
}

// markError flips the document to error, best effort. Runs on a fresh context
// so a cancelled ingestion context cannot block the status write.
func (i *DocumentIngestor) markError(docID string, pages *int, cause error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := i.store.UpdateDocumentStatus(ctx, docID, models.StatusError, pages); err != nil {
		i.log.Error("set error status failed",
			zap.String("document_id", docID),
			zap.NamedError("cause", cause),
			zap.Error(err))
	}
}
