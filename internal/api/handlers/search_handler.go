package handlers

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/paperchat-ai/paperchat/internal/core"
	"github.com/paperchat-ai/paperchat/internal/services"
)

type SearchHandler struct {
	store     core.Store
	retriever *services.Retriever
	log       *zap.Logger
}

func NewSearchHandler(store core.Store, retriever *services.Retriever, log *zap.Logger) *SearchHandler {
	return &SearchHandler{store: store, retriever: retriever, log: log}
}

type searchRequest struct {
	DocumentID string `json:"document_id"`
	Query      string `json:"query"`
	K          int    `json:"k"`
	MinPage    *int   `json:"min_page"`
	MaxPage    *int   `json:"max_page"`
}

// Search runs a semantic query over one document's chunks.
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.DocumentID == "" || req.Query == "" {
		writeError(w, http.StatusBadRequest, "document_id and query are required")
		return
	}
	if req.K == 0 {
		req.K = 8
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

	results := h.retriever.Retrieve(r.Context(), req.DocumentID, req.Query, req.K, req.MinPage, req.MaxPage)
	if results == nil {
		results = []services.RetrievedChunk{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"results": results,
		"total":   len(results),
	})
}
