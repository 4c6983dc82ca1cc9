package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/paperchat-ai/paperchat/internal/core"
)

// GeminiEmbedder implements core.EmbeddingProvider with Google's embedding
// models, selected with EMBED_PROVIDER=gemini.
type GeminiEmbedder struct {
	client *genai.Client
	model  string
	dim    int
	log    *zap.Logger
}

var _ core.EmbeddingProvider = (*GeminiEmbedder)(nil)

func NewGeminiEmbedder(ctx context.Context, apiKey, model string, dim int, log *zap.Logger) (*GeminiEmbedder, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &GeminiEmbedder{client: client, model: model, dim: dim, log: log}, nil
}

func (e *GeminiEmbedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	em := e.client.EmbeddingModel(e.model)
	res, err := em.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, &core.EmbeddingError{Err: err}
	}
	if res.Embedding == nil {
		return nil, &core.EmbeddingError{Err: fmt.Errorf("gemini returned no embedding")}
	}
	if err := e.checkDim(res.Embedding.Values); err != nil {
		return nil, err
	}
	return res.Embedding.Values, nil
}

func (e *GeminiEmbedder) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	em := e.client.EmbeddingModel(e.model)
	out := make([][]float32, 0, len(texts))

	for start := 0; start < len(texts); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(texts) {
			end = len(texts)
		}

		batch := em.NewBatch()
		for _, text := range texts[start:end] {
			batch.AddContent(genai.Text(text))
		}
		res, err := em.BatchEmbedContents(ctx, batch)
		if err != nil {
			return nil, &core.EmbeddingError{Err: err}
		}
		if len(res.Embeddings) != end-start {
			return nil, &core.EmbeddingError{
				Err: fmt.Errorf("embedding count mismatch: sent %d, got %d", end-start, len(res.Embeddings)),
			}
		}
		for _, emb := range res.Embeddings {
			if err := e.checkDim(emb.Values); err != nil {
				return nil, err
			}
			out = append(out, emb.Values)
		}

		if end < len(texts) {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(100 * time.Millisecond):
			}
		}
	}
	return out, nil
}

func (e *GeminiEmbedder) checkDim(vec []float32) error {
	if len(vec) != e.dim {
		return &core.EmbeddingError{
			Err: fmt.Errorf("embedding dimension mismatch: want %d, got %d", e.dim, len(vec)),
		}
	}
	return nil
}

func (e *GeminiEmbedder) Close() error { return e.client.Close() }
