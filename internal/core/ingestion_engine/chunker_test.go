package ingestion_engine

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// wordTokens makes chunk boundaries predictable in tests.
func wordTokens(s string) int { return len(strings.Fields(s)) }

func TestChunkSinglePageFitsOneChunk(t *testing.T) {
	c := NewChunker(100, 10, wordTokens)
	chunks := c.Chunk([]string{"first sentence here. second sentence here"})

	require.Len(t, chunks, 1)
	assert.Equal(t, 1, chunks[0].Page)
	assert.Equal(t, 0, chunks[0].ChunkIndex)
	assert.Equal(t, "first sentence here. second sentence here.", chunks[0].Text)
	assert.Equal(t, wordTokens(chunks[0].Text), chunks[0].TokenCount)
}

func TestChunkSplitsAndOverlaps(t *testing.T) {
	c := NewChunker(5, 3, wordTokens)
	chunks := c.Chunk([]string{"one two three. four five six. seven eight nine"})

	require.Len(t, chunks, 3)
	assert.Equal(t, "one two three.", chunks[0].Text)
	assert.Equal(t, "one two three. four five six.", chunks[1].Text)
	// Each chunk after the first starts with the tail of its predecessor.
	assert.True(t, strings.HasPrefix(chunks[1].Text, "one two three."))
	assert.True(t, strings.HasPrefix(chunks[2].Text, "four five six."))
}

func TestChunkTokenCountRecomputedFromFinalText(t *testing.T) {
	c := NewChunker(5, 3, wordTokens)
	chunks := c.Chunk([]string{"one two three. four five six. seven eight nine"})

	for _, ch := range chunks {
		assert.Equal(t, wordTokens(ch.Text), ch.TokenCount)
	}
}

func TestChunkNeverSpansPagesAndIndexIsGlobal(t *testing.T) {
	c := NewChunker(100, 10, wordTokens)
	chunks := c.Chunk([]string{"page one text", "", "  \n ", "page four text"})

	require.Len(t, chunks, 2)
	assert.Equal(t, 1, chunks[0].Page)
	assert.Equal(t, 4, chunks[1].Page)
	assert.Equal(t, 0, chunks[0].ChunkIndex)
	assert.Equal(t, 1, chunks[1].ChunkIndex)
}

func TestChunkFlattensNewlines(t *testing.T) {
	c := NewChunker(100, 10, wordTokens)
	chunks := c.Chunk([]string{"line one\nline two. next"})

	require.Len(t, chunks, 1)
	assert.NotContains(t, chunks[0].Text, "\n")
}

func TestChunkEmptyInput(t *testing.T) {
	c := NewChunker(100, 10, wordTokens)
	assert.Empty(t, c.Chunk(nil))
	assert.Empty(t, c.Chunk([]string{"", "   "}))
}

func TestChunkDeterministic(t *testing.T) {
	c := NewChunker(7, 2, wordTokens)
	pages := []string{
		"alpha beta gamma delta. epsilon zeta eta. theta iota kappa lambda. mu nu xi",
		"omicron pi rho. sigma tau upsilon phi chi",
	}
	first := c.Chunk(pages)
	second := c.Chunk(pages)
	assert.Equal(t, first, second)
}

func TestApproxTokens(t *testing.T) {
	assert.Equal(t, 0, ApproxTokens(""))
	assert.Equal(t, 1, ApproxTokens("abc"))
	assert.Equal(t, 1, ApproxTokens("abcd"))
	assert.Equal(t, 2, ApproxTokens("abcde"))
}
