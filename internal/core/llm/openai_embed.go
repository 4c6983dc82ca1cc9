package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/paperchat-ai/paperchat/internal/core"
)

const embedBatchSize = 100

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// OpenAIEmbedder implements core.EmbeddingProvider against the /v1/embeddings
// route of any OpenAI-compatible server.
type OpenAIEmbedder struct {
	baseURL string
	apiKey  string
	model   string
	dim     int
	http    *http.Client
	log     *zap.Logger
}

var _ core.EmbeddingProvider = (*OpenAIEmbedder)(nil)

func NewOpenAIEmbedder(baseURL, apiKey, model string, dim int, log *zap.Logger) *OpenAIEmbedder {
	return &OpenAIEmbedder{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		dim:     dim,
		http:    &http.Client{Timeout: 2 * time.Minute},
		log:     log,
	}
}

func (e *OpenAIEmbedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.embedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedMany embeds in batches of 100 with a short pause between batches so a
// large document does not hammer a local backend. Output order matches input.
func (e *OpenAIEmbedder) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		vecs, err := e.embedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, vecs...)

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

func (e *OpenAIEmbedder) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	raw, err := json.Marshal(embeddingRequest{Model: e.model, Input: texts})
	if err != nil {
		return nil, &core.EmbeddingError{Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/embeddings", bytes.NewReader(raw))
	if err != nil {
		return nil, &core.EmbeddingError{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.http.Do(req)
	if err != nil {
		return nil, &core.EmbeddingError{Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &core.EmbeddingError{Err: &HTTPError{StatusCode: resp.StatusCode, Body: string(msg)}}
	}

	var parsed embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, &core.EmbeddingError{Err: fmt.Errorf("decode embedding response: %w", err)}
	}
	if len(parsed.Data) != len(texts) {
		return nil, &core.EmbeddingError{
			Err: fmt.Errorf("embedding count mismatch: sent %d, got %d", len(texts), len(parsed.Data)),
		}
	}

	// The API may return rows out of order; place by index.
	vecs := make([][]float32, len(texts))
	for _, row := range parsed.Data {
		if row.Index < 0 || row.Index >= len(texts) {
			return nil, &core.EmbeddingError{Err: fmt.Errorf("embedding index %d out of range", row.Index)}
		}
		if len(row.Embedding) != e.dim {
			return nil, &core.EmbeddingError{
				Err: fmt.Errorf("embedding dimension mismatch: want %d, got %d", e.dim, len(row.Embedding)),
			}
		}
		vecs[row.Index] = row.Embedding
	}
	for i, v := range vecs {
		if v == nil {
			return nil, &core.EmbeddingError{Err: fmt.Errorf("missing embedding for input %d", i)}
		}
	}
	return vecs, nil
}
