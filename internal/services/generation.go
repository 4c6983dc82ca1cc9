package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/paperchat-ai/paperchat/internal/core"
	"github.com/paperchat-ai/paperchat/internal/core/extract"
	"github.com/paperchat-ai/paperchat/internal/models"
)

const (
	generationMaxTokens = 1500
	titleMaxTokens      = 20
)

// Generator runs one chat turn: prompt assembly, streamed completion, then
// persistence of the assistant message and a chat run record.
type Generator struct {
	store core.Store
	chat  core.ChatClient
	log   *zap.Logger
}

func NewGenerator(store core.Store, chat core.ChatClient, log *zap.Logger) *Generator {
	return &Generator{store: store, chat: chat, log: log}
}

// ValidateConnection probes the chat backend, surfacing misconfiguration
// before a client-facing stream is opened.
func (g *Generator) ValidateConnection(ctx context.Context) error {
	return g.chat.ValidateConnection(ctx)
}

// buildMessages assembles the completion request: fixed instructions, up to
// 10 prior turns (excluding the just-saved current user message at the tail
// of history), then the user question wrapped with retrieved context.
func buildMessages(userMessage string, chunks []RetrievedChunk, history []models.Message) []core.ChatMessage {
	messages := []core.ChatMessage{{Role: "system", Content: BuildSystemPrompt()}}

	prior := history
	if len(prior) > 0 {
		prior = prior[:len(prior)-1]
	}
	if len(prior) > historyLimit {
		prior = prior[len(prior)-historyLimit:]
	}
	for _, msg := range prior {
		messages = append(messages, core.ChatMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
		})
	}

	messages = append(messages, core.ChatMessage{
		Role:    "user",
		Content: BuildUserPromptWithContext(userMessage, chunks),
	})
	return messages
}

// Generate starts a streamed completion and returns a channel of tokens.
//
// The backend is validated before any token flows; a *core.ConfigurationError
// return means nothing was streamed and the caller can still answer with a
// plain HTTP error. After that, failures never surface as errors: a broken
// stream appends an inline "[Error: ...]" marker and closes the channel.
//
// Once at least one token has been emitted, the assistant message and chat
// run are persisted even if the caller's context dies mid-stream; the
// finalizer runs on a fresh context so a client disconnect cannot lose the
// partial answer.
func (g *Generator) Generate(ctx context.Context, threadID, userMessage string, chunks []RetrievedChunk, history []models.Message) (<-chan string, error) {
	if err := g.chat.ValidateConnection(ctx); err != nil {
		return nil, err
	}

	messages := buildMessages(userMessage, chunks, history)
	g.log.Info("sending messages to model",
		zap.String("thread_id", threadID),
		zap.Int("num_messages", len(messages)),
		zap.Int("num_chunks", len(chunks)))

	tokens := make(chan string, 16)
	start := time.Now()

	go func() {
		defer close(tokens)

		emitted := 0
		full, err := g.chat.StreamChat(ctx, messages, generationMaxTokens, func(token string) {
			emitted++
			select {
			case tokens <- token:
			case <-ctx.Done():
			}
		})

		if err != nil {
			g.log.Error("generation failed",
				zap.String("thread_id", threadID),
				zap.Int("tokens_emitted", emitted),
				zap.Error(err))
			marker := fmt.Sprintf("\n\n[Error: Failed to generate response - %v]", err)
			select {
			case tokens <- marker:
			case <-ctx.Done():
			}
			full += marker
		}

		if emitted == 0 {
			return
		}
		g.finalize(threadID, full, chunks, time.Since(start))
	}()

	return tokens, nil
}

// finalize persists the assistant message and the observability record for
// one completed (or partially completed) generation.
func (g *Generator) finalize(threadID, content string, chunks []RetrievedChunk, latency time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	chunkIDs := make([]string, len(chunks))
	pageSet := map[int]struct{}{}
	for i, ch := range chunks {
		chunkIDs[i] = ch.ChunkID
		pageSet[ch.Page] = struct{}{}
	}
	pages := sortedPages(pageSet)

	normalized := extract.NormalizeMath(content)
	tokensCompletion := len(normalized) / 4

	msg := &models.Message{
		ID:               uuid.NewString(),
		ThreadID:         threadID,
		Role:             models.RoleAssistant,
		Content:          normalized,
		TokensCompletion: &tokensCompletion,
		Metadata:         &models.MessageMetadata{ChunkIDs: chunkIDs, Pages: pages},
	}
	if err := g.store.CreateMessage(ctx, msg); err != nil {
		g.log.Error("persist assistant message failed",
			zap.String("thread_id", threadID), zap.Error(err))
	}

	run := &models.ChatRun{
		ID:        uuid.NewString(),
		ThreadID:  threadID,
		Provider:  g.chat.Provider(),
		Model:     g.chat.Model(),
		LatencyMs: float64(latency.Milliseconds()),
		CostUSD:   0, // local providers are free; hosted pricing is not modeled
	}
	if err := g.store.CreateChatRun(ctx, run); err != nil {
		g.log.Error("persist chat run failed",
			zap.String("thread_id", threadID), zap.Error(err))
	}

	g.log.Info("generated response",
		zap.String("thread_id", threadID),
		zap.Float64("latency_ms", run.LatencyMs),
		zap.Int("tokens_completion", tokensCompletion))
}

// GenerateThreadTitle derives a short thread title from the first user
// message. Never fails: any backend error falls back to "New Chat".
func (g *Generator) GenerateThreadTitle(ctx context.Context, userMessage string) string {
	raw, err := g.chat.Complete(ctx, BuildTitleMessages(userMessage), titleMaxTokens)
	if err != nil {
		g.log.Warn("title generation failed, using fallback", zap.Error(err))
		return "New Chat"
	}
	title := CleanTitle(raw)
	g.log.Info("generated thread title", zap.String("title", title))
	return title
}

func sortedPages(set map[int]struct{}) []int {
	pages := make([]int, 0, len(set))
	for p := range set {
		pages = append(pages, p)
	}
	sort.Ints(pages)
	return pages
}
