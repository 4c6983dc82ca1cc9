package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/paperchat-ai/paperchat/internal/core"
	"github.com/paperchat-ai/paperchat/internal/models"
	"github.com/paperchat-ai/paperchat/internal/services"
)

const (
	maxQueryLength  = 5000
	retrievalTopK   = 8
	pageContextSpan = 5
)

type ThreadHandler struct {
	store     core.Store
	retriever *services.Retriever
	generator *services.Generator
	log       *zap.Logger
}

func NewThreadHandler(store core.Store, retriever *services.Retriever, generator *services.Generator, log *zap.Logger) *ThreadHandler {
	return &ThreadHandler{store: store, retriever: retriever, generator: generator, log: log}
}

type threadCreateRequest struct {
	DocumentID string `json:"document_id"`
	Title      string `json:"title"`
}

func (h *ThreadHandler) CreateThread(w http.ResponseWriter, r *http.Request) {
	var req threadCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.DocumentID == "" {
		writeError(w, http.StatusBadRequest, "document_id is required")
		return
	}

	doc, err := h.store.GetDocumentByID(r.Context(), req.DocumentID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if doc == nil {
		writeError(w, http.StatusNotFound, "Document not found")
		return
	}

	title := req.Title
	if title == "" {
		title = "New Chat"
	}
	thread := &models.Thread{
		ID:         uuid.NewString(),
		DocumentID: req.DocumentID,
		Title:      title,
	}
	if err := h.store.CreateThread(r.Context(), thread); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.log.Info("created thread",
		zap.String("thread_id", thread.ID), zap.String("document_id", req.DocumentID))
	writeJSON(w, http.StatusCreated, thread)
}

func (h *ThreadHandler) ListThreads(w http.ResponseWriter, r *http.Request) {
	documentID := r.URL.Query().Get("document_id")
	if documentID == "" {
		writeError(w, http.StatusBadRequest, "document_id query parameter is required")
		return
	}

	threads, err := h.store.ListThreads(r.Context(), documentID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if threads == nil {
		threads = []models.Thread{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"threads": threads,
		"total":   len(threads),
	})
}

func (h *ThreadHandler) GetThread(w http.ResponseWriter, r *http.Request) {
	thread, err := h.store.GetThreadByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if thread == nil {
		writeError(w, http.StatusNotFound, "Thread not found")
		return
	}
	writeJSON(w, http.StatusOK, thread)
}

func (h *ThreadHandler) DeleteThread(w http.ResponseWriter, r *http.Request) {
	err := h.store.DeleteThread(r.Context(), chi.URLParam(r, "id"))
	if err == core.ErrNotFound {
		writeError(w, http.StatusNotFound, "Thread not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ThreadHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	threadID := chi.URLParam(r, "id")
	thread, err := h.store.GetThreadByID(r.Context(), threadID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if thread == nil {
		writeError(w, http.StatusNotFound, "Thread not found")
		return
	}

	messages, err := h.store.ListMessages(r.Context(), threadID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if messages == nil {
		messages = []models.Message{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"messages": messages,
		"total":    len(messages),
	})
}

// StreamResponse answers one chat turn over Server-Sent Events.
//
// The user message is persisted before the stream opens. On the thread's
// first message a title is generated. The chat backend is validated before
// any SSE bytes go out so misconfiguration still gets a plain HTTP 500.
func (h *ThreadHandler) StreamResponse(w http.ResponseWriter, r *http.Request) {
	threadID := chi.URLParam(r, "id")
	query := r.URL.Query().Get("query")
	if query == "" || len(query) > maxQueryLength {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("query must be 1..%d characters", maxQueryLength))
		return
	}

	thread, err := h.store.GetThreadByID(r.Context(), threadID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if thread == nil {
		writeError(w, http.StatusNotFound, "Thread not found")
		return
	}

	existing, err := h.store.CountMessages(r.Context(), threadID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	isFirstMessage := existing == 0

	tokensPrompt := len(query) / 4
	userMsg := &models.Message{
		ID:           uuid.NewString(),
		ThreadID:     threadID,
		Role:         models.RoleUser,
		Content:      query,
		TokensPrompt: &tokensPrompt,
	}
	if err := h.store.CreateMessage(r.Context(), userMsg); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	var generatedTitle string
	if isFirstMessage && (thread.Title == "" || thread.Title == "New Chat") {
		generatedTitle = h.generator.GenerateThreadTitle(r.Context(), query)
		if err := h.store.UpdateThreadTitle(r.Context(), threadID, generatedTitle); err != nil {
			h.log.Warn("thread title update failed", zap.String("thread_id", threadID), zap.Error(err))
		}
	}

	var minPage, maxPage *int
	if raw := r.URL.Query().Get("page_context"); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil || page < 1 {
			writeError(w, http.StatusBadRequest, "page_context must be a positive integer")
			return
		}
		lo := page - pageContextSpan
		if lo < 1 {
			lo = 1
		}
		hi := page + pageContextSpan
		minPage, maxPage = &lo, &hi
	}

	chunks := h.retriever.Retrieve(r.Context(), thread.DocumentID, query, retrievalTopK, minPage, maxPage)
	if len(chunks) == 0 {
		h.log.Warn("no chunks retrieved for query", zap.String("thread_id", threadID))
	}

	history, err := h.store.ListMessages(r.Context(), threadID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	tokens, err := h.generator.Generate(r.Context(), threadID, query, chunks, history)
	if err != nil {
		h.log.Error("llm validation failed", zap.String("thread_id", threadID), zap.Error(err))
		writeError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to connect to language model: %v", err))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")

	startEvent := map[string]any{"type": "start", "thread_id": threadID}
	if generatedTitle != "" {
		startEvent["title"] = generatedTitle
	}
	writeSSE(w, flusher, startEvent)

	received := 0
	for token := range tokens {
		received++
		writeSSE(w, flusher, map[string]any{"type": "token", "content": token})
	}
	if received == 0 {
		writeSSE(w, flusher, map[string]any{
			"type":    "error",
			"content": "Failed to generate response: model returned no output",
		})
		return
	}

	pageSet := map[int]struct{}{}
	for _, ch := range chunks {
		pageSet[ch.Page] = struct{}{}
	}
	pages := make([]int, 0, len(pageSet))
	for p := range pageSet {
		pages = append(pages, p)
	}
	sort.Ints(pages)
	writeSSE(w, flusher, map[string]any{"type": "done", "metadata": map[string]any{"pages": pages}})
}

func writeSSE(w http.ResponseWriter, flusher http.Flusher, event any) {
	raw, err := json.Marshal(event)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", raw)
	flusher.Flush()
}
