package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/paperchat-ai/paperchat/internal/core"
)

type searchStore struct {
	core.Store
	hits    []core.ChunkHit
	err     error
	gotK    int
	gotMin  *int
	gotMax  *int
}

func (s *searchStore) SearchChunks(ctx context.Context, documentID string, queryVec []float32, k int, minPage, maxPage *int) ([]core.ChunkHit, error) {
	s.gotK, s.gotMin, s.gotMax = k, minPage, maxPage
	return s.hits, s.err
}

type fixedEmbedder struct {
	core.EmbeddingProvider
	err error
}

func (e *fixedEmbedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

func TestRetrieveMapsHits(t *testing.T) {
	store := &searchStore{hits: []core.ChunkHit{
		{ChunkID: "c1", Page: 2, Text: `energy \(E=mc^2\) here`, Distance: 0.25},
		{ChunkID: "c2", Page: 5, Text: "plain text", Distance: 0.6},
	}}
	r := NewRetriever(store, &fixedEmbedder{}, zap.NewNop())

	got := r.Retrieve(context.Background(), "doc-1", "energy?", 8, nil, nil)

	require.Len(t, got, 2)
	assert.Equal(t, "c1", got[0].ChunkID)
	assert.InDelta(t, 0.75, got[0].Similarity, 1e-9)
	assert.Equal(t, "energy $E=mc^2$ here", got[0].Text, "math is normalized on the way out")
	assert.InDelta(t, 0.4, got[1].Similarity, 1e-9)
}

func TestRetrieveClampsK(t *testing.T) {
	store := &searchStore{}
	r := NewRetriever(store, &fixedEmbedder{}, zap.NewNop())

	r.Retrieve(context.Background(), "doc-1", "q", 0, nil, nil)
	assert.Equal(t, 1, store.gotK)

	r.Retrieve(context.Background(), "doc-1", "q", 500, nil, nil)
	assert.Equal(t, 50, store.gotK)
}

func TestRetrievePassesPageBounds(t *testing.T) {
	store := &searchStore{}
	r := NewRetriever(store, &fixedEmbedder{}, zap.NewNop())

	lo, hi := 3, 13
	r.Retrieve(context.Background(), "doc-1", "q", 8, &lo, &hi)

	require.NotNil(t, store.gotMin)
	require.NotNil(t, store.gotMax)
	assert.Equal(t, 3, *store.gotMin)
	assert.Equal(t, 13, *store.gotMax)
}

func TestRetrieveSwallowsEmbeddingFailure(t *testing.T) {
	r := NewRetriever(&searchStore{}, &fixedEmbedder{err: errors.New("backend down")}, zap.NewNop())
	got := r.Retrieve(context.Background(), "doc-1", "q", 8, nil, nil)
	assert.Empty(t, got)
}

func TestRetrieveSwallowsSearchFailure(t *testing.T) {
	store := &searchStore{err: errors.New("db down")}
	r := NewRetriever(store, &fixedEmbedder{}, zap.NewNop())
	got := r.Retrieve(context.Background(), "doc-1", "q", 8, nil, nil)
	assert.Empty(t, got)
}
