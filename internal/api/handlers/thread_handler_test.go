package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/paperchat-ai/paperchat/internal/core"
	"github.com/paperchat-ai/paperchat/internal/models"
	"github.com/paperchat-ai/paperchat/internal/services"
)

type fakeStore struct {
	core.Store
	thread       *models.Thread
	messages     []models.Message
	hits         []core.ChunkHit
	titleUpdates []string
}

func (s *fakeStore) GetThreadByID(ctx context.Context, id string) (*models.Thread, error) {
	if s.thread != nil && s.thread.ID == id {
		return s.thread, nil
	}
	return nil, nil
}

func (s *fakeStore) CountMessages(ctx context.Context, threadID string) (int, error) {
	return len(s.messages), nil
}

func (s *fakeStore) CreateMessage(ctx context.Context, msg *models.Message) error {
	s.messages = append(s.messages, *msg)
	return nil
}

func (s *fakeStore) ListMessages(ctx context.Context, threadID string) ([]models.Message, error) {
	return s.messages, nil
}

func (s *fakeStore) UpdateThreadTitle(ctx context.Context, id, title string) error {
	s.titleUpdates = append(s.titleUpdates, title)
	return nil
}

func (s *fakeStore) SearchChunks(ctx context.Context, documentID string, queryVec []float32, k int, minPage, maxPage *int) ([]core.ChunkHit, error) {
	var out []core.ChunkHit
	for _, h := range s.hits {
		if minPage != nil && h.Page < *minPage {
			continue
		}
		if maxPage != nil && h.Page > *maxPage {
			continue
		}
		out = append(out, h)
	}
	return out, nil
}

func (s *fakeStore) CreateChatRun(ctx context.Context, run *models.ChatRun) error { return nil }

type fakeEmbedder struct{ core.EmbeddingProvider }

func (fakeEmbedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, 0}, nil
}

type fakeChat struct {
	tokens      []string
	validateErr error
	title       string
}

func (c *fakeChat) ValidateConnection(ctx context.Context) error { return c.validateErr }

func (c *fakeChat) StreamChat(ctx context.Context, messages []core.ChatMessage, maxTokens int, onDelta func(string)) (string, error) {
	var full string
	for _, tok := range c.tokens {
		full += tok
		onDelta(tok)
	}
	return full, nil
}

func (c *fakeChat) Complete(ctx context.Context, messages []core.ChatMessage, maxTokens int) (string, error) {
	return c.title, nil
}

func (c *fakeChat) Provider() string { return "test" }
func (c *fakeChat) Model() string    { return "test-model" }

func newStreamRouter(store *fakeStore, chat *fakeChat) *chi.Mux {
	log := zap.NewNop()
	retriever := services.NewRetriever(store, fakeEmbedder{}, log)
	generator := services.NewGenerator(store, chat, log)
	h := NewThreadHandler(store, retriever, generator, log)

	r := chi.NewRouter()
	r.Get("/api/threads/{id}/stream", h.StreamResponse)
	return r
}

type sseEvent struct {
	Type     string `json:"type"`
	Content  string `json:"content"`
	Title    string `json:"title"`
	ThreadID string `json:"thread_id"`
	Metadata *struct {
		Pages []int `json:"pages"`
	} `json:"metadata"`
}

func parseSSE(t *testing.T, body string) []sseEvent {
	t.Helper()
	var events []sseEvent
	for _, line := range strings.Split(body, "\n") {
		payload, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			continue
		}
		var ev sseEvent
		require.NoError(t, json.Unmarshal([]byte(payload), &ev))
		events = append(events, ev)
	}
	return events
}

func TestStreamResponseEventSequence(t *testing.T) {
	store := &fakeStore{
		thread: &models.Thread{ID: "t1", DocumentID: "d1", Title: "New Chat"},
		hits: []core.ChunkHit{
			{ChunkID: "c1", Page: 2, Text: "context text", Distance: 0.1},
			{ChunkID: "c2", Page: 9, Text: "more context", Distance: 0.2},
		},
	}
	chat := &fakeChat{tokens: []string{"Answer ", "here."}, title: "Good Short Title"}
	router := newStreamRouter(store, chat)

	req := httptest.NewRequest("GET", "/api/threads/t1/stream?query=what+is+this", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, 200, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	events := parseSSE(t, rec.Body.String())
	require.GreaterOrEqual(t, len(events), 4)

	assert.Equal(t, "start", events[0].Type)
	assert.Equal(t, "t1", events[0].ThreadID)
	assert.Equal(t, "Good Short Title", events[0].Title, "first message generates a title")

	assert.Equal(t, "token", events[1].Type)
	assert.Equal(t, "Answer ", events[1].Content)
	assert.Equal(t, "token", events[2].Type)
	assert.Equal(t, "here.", events[2].Content)

	last := events[len(events)-1]
	assert.Equal(t, "done", last.Type)
	require.NotNil(t, last.Metadata)
	assert.Equal(t, []int{2, 9}, last.Metadata.Pages)

	assert.Equal(t, []string{"Good Short Title"}, store.titleUpdates)
	// user message persisted before streaming, assistant persisted after
	require.GreaterOrEqual(t, len(store.messages), 2)
	assert.Equal(t, models.RoleUser, store.messages[0].Role)
	assert.Equal(t, "what is this", store.messages[0].Content)
}

func TestStreamResponseSecondMessageKeepsTitle(t *testing.T) {
	store := &fakeStore{
		thread: &models.Thread{ID: "t1", DocumentID: "d1", Title: "Existing Title"},
		messages: []models.Message{
			{Role: models.RoleUser, Content: "earlier"},
			{Role: models.RoleAssistant, Content: "reply"},
		},
	}
	chat := &fakeChat{tokens: []string{"ok"}}
	router := newStreamRouter(store, chat)

	req := httptest.NewRequest("GET", "/api/threads/t1/stream?query=followup", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, 200, rec.Code)
	assert.Empty(t, store.titleUpdates, "no title generation after the first message")

	events := parseSSE(t, rec.Body.String())
	assert.Equal(t, "start", events[0].Type)
	assert.Empty(t, events[0].Title)
}

func TestStreamResponsePageContextFilter(t *testing.T) {
	store := &fakeStore{
		thread: &models.Thread{ID: "t1", DocumentID: "d1", Title: "Existing"},
		messages: []models.Message{
			{Role: models.RoleUser, Content: "x"},
		},
		hits: []core.ChunkHit{
			{ChunkID: "near", Page: 12, Text: "near", Distance: 0.1},
			{ChunkID: "far", Page: 40, Text: "far", Distance: 0.2},
		},
	}
	chat := &fakeChat{tokens: []string{"ok"}}
	router := newStreamRouter(store, chat)

	req := httptest.NewRequest("GET", "/api/threads/t1/stream?query=q&page_context=10", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	events := parseSSE(t, rec.Body.String())
	last := events[len(events)-1]
	require.Equal(t, "done", last.Type)
	require.NotNil(t, last.Metadata)
	assert.Equal(t, []int{12}, last.Metadata.Pages, "only pages within page_context±5 are searched")
}

func TestStreamResponseValidationFailureIsPlainHTTPError(t *testing.T) {
	store := &fakeStore{thread: &models.Thread{ID: "t1", DocumentID: "d1", Title: "Existing"},
		messages: []models.Message{{Role: models.RoleUser, Content: "x"}}}
	chat := &fakeChat{validateErr: &core.ConfigurationError{Err: errors.New("no combo accepted")}}
	router := newStreamRouter(store, chat)

	req := httptest.NewRequest("GET", "/api/threads/t1/stream?query=q", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, 500, rec.Code)
	assert.Contains(t, rec.Body.String(), "Failed to connect to language model")
	assert.NotContains(t, rec.Header().Get("Content-Type"), "text/event-stream")
}

func TestStreamResponseUnknownThread(t *testing.T) {
	router := newStreamRouter(&fakeStore{}, &fakeChat{})

	req := httptest.NewRequest("GET", "/api/threads/nope/stream?query=q", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, 404, rec.Code)
}

func TestStreamResponseRejectsMissingQuery(t *testing.T) {
	store := &fakeStore{thread: &models.Thread{ID: "t1", DocumentID: "d1"}}
	router := newStreamRouter(store, &fakeChat{})

	req := httptest.NewRequest("GET", "/api/threads/t1/stream", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, 400, rec.Code)
}
