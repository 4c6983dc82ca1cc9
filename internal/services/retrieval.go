package services

import (
	"context"

	"go.uber.org/zap"

	"github.com/paperchat-ai/paperchat/internal/core"
	"github.com/paperchat-ai/paperchat/internal/core/extract"
)

// RetrievedChunk is one semantic search hit, ready for prompt assembly.
type RetrievedChunk struct {
	ChunkID    string  `json:"chunk_id"`
	Page       int     `json:"page"`
	Text       string  `json:"text"`
	Similarity float64 `json:"similarity"`
}

// Retriever answers "which chunks of this document are relevant to this
// query" via embedding similarity.
type Retriever struct {
	store    core.Store
	embedder core.EmbeddingProvider
	log      *zap.Logger
}

func NewRetriever(store core.Store, embedder core.EmbeddingProvider, log *zap.Logger) *Retriever {
	return &Retriever{store: store, embedder: embedder, log: log}
}

// Retrieve returns up to k chunks ordered by descending similarity.
// minPage and maxPage, when non-nil, bound the pages searched.
//
// Retrieval failure is never fatal to a chat turn: any error is logged and an
// empty result returned, letting generation proceed without context.
func (r *Retriever) Retrieve(ctx context.Context, documentID, query string, k int, minPage, maxPage *int) []RetrievedChunk {
	if k < 1 {
		k = 1
	}
	if k > 50 {
		k = 50
	}

	queryVec, err := r.embedder.EmbedOne(ctx, query)
	if err != nil {
		r.log.Warn("query embedding failed, returning no chunks",
			zap.String("document_id", documentID), zap.Error(err))
		return nil
	}

	hits, err := r.store.SearchChunks(ctx, documentID, queryVec, k, minPage, maxPage)
	if err != nil {
		r.log.Warn("chunk search failed, returning no chunks",
			zap.String("document_id", documentID), zap.Error(err))
		return nil
	}

	out := make([]RetrievedChunk, len(hits))
	for i, hit := range hits {
		out[i] = RetrievedChunk{
			ChunkID:    hit.ChunkID,
			Page:       hit.Page,
			Text:       extract.NormalizeMath(hit.Text),
			Similarity: 1 - hit.Distance,
		}
	}

	r.log.Info("retrieved chunks for query",
		zap.String("document_id", documentID), zap.Int("result_count", len(out)))
	return out
}
