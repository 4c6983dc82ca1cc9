package ingestion_engine

import (
	"strings"
)

// TokenCounter estimates the token count of a text span.
type TokenCounter func(text string) int

// ApproxTokens is a cheap token estimator (~4 chars ≈ 1 token).
func ApproxTokens(s string) int {
	n := len([]rune(s))
	if n <= 0 {
		return 0
	}
	return (n + 3) / 4
}

// ChunkData is one chunk produced by the Chunker, before persistence.
type ChunkData struct {
	Page       int
	ChunkIndex int
	Text       string
	TokenCount int
}

// Chunker splits per-page text into overlapping, token-bounded chunks.
//
// Size:    approximate tokens per chunk.
// Overlap: token budget carried from the tail of one chunk into the next.
// Count:   token counter; defaults to ApproxTokens.
type Chunker struct {
	Size    int
	Overlap int
	Count   TokenCounter
}

func NewChunker(size, overlap int, count TokenCounter) *Chunker {
	if count == nil {
		count = ApproxTokens
	}
	return &Chunker{Size: size, Overlap: overlap, Count: count}
}

// Chunk produces chunks page by page. Chunk indices are sequential across the
// whole document; no chunk spans two pages. Pages whose trimmed text is empty
// contribute nothing.
func (c *Chunker) Chunk(pages []string) []ChunkData {
	var chunks []ChunkData
	index := 0

	for pageNum, pageText := range pages {
		if strings.TrimSpace(pageText) == "" {
			continue
		}

		sentences := strings.Split(strings.ReplaceAll(pageText, "\n", " "), ". ")

		var current []string
		currentTokens := 0

		emit := func() {
			text := strings.Join(current, ". ") + "."
			chunks = append(chunks, ChunkData{
				Page:       pageNum + 1,
				ChunkIndex: index,
				Text:       text,
				TokenCount: c.Count(text),
			})
			index++
		}

		for _, sentence := range sentences {
			sentence = strings.TrimSpace(sentence)
			if sentence == "" {
				continue
			}
			sentenceTokens := c.Count(sentence)

			if currentTokens+sentenceTokens > c.Size && len(current) > 0 {
				emit()

				// Seed the next chunk with the tail of the one just closed,
				// keeping sentences while they fit the overlap budget.
				var overlap []string
				overlapTokens := 0
				for j := len(current) - 1; j >= 0; j-- {
					t := c.Count(current[j])
					if overlapTokens+t > c.Overlap {
						break
					}
					overlap = append([]string{current[j]}, overlap...)
					overlapTokens += t
				}
				current = overlap
				currentTokens = overlapTokens
			}

			current = append(current, sentence)
			currentTokens += sentenceTokens
		}

		if len(current) > 0 {
			emit()
		}
	}

	return chunks
}
