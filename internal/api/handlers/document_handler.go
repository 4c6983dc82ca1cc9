package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/paperchat-ai/paperchat/internal/core"
	"github.com/paperchat-ai/paperchat/internal/core/ingestion_engine"
	"github.com/paperchat-ai/paperchat/internal/models"
)

const maxUploadBytes = 52 << 20 // 52 MB

// PDFFetcher resolves an external reference to PDF bytes and a display title.
type PDFFetcher interface {
	Fetch(ctx context.Context, ref string) ([]byte, string, error)
}

type DocumentHandler struct {
	store    core.Store
	blobs    core.ObjectStore
	ingestor ingestion_engine.Ingestor
	fetcher  PDFFetcher
	log      *zap.Logger
}

func NewDocumentHandler(store core.Store, blobs core.ObjectStore, ing ingestion_engine.Ingestor, fetcher PDFFetcher, log *zap.Logger) *DocumentHandler {
	return &DocumentHandler{store: store, blobs: blobs, ingestor: ing, fetcher: fetcher, log: log}
}

// UploadDocument stores the PDF blob, records the document as uploaded and
// queues it for background ingestion.
func (h *DocumentHandler) UploadDocument(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()

	cleanFilename := filepath.Base(header.Filename)
	if !strings.EqualFold(filepath.Ext(cleanFilename), ".pdf") {
		writeError(w, http.StatusBadRequest, "only PDF files are supported")
		return
	}

	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "could not read file")
		return
	}
	if len(data) > maxUploadBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "file exceeds upload limit")
		return
	}

	docID := uuid.NewString()
	storagePath := fmt.Sprintf("documents/%s/%s", docID, cleanFilename)

	uploadCtx, cancel := context.WithTimeout(r.Context(), 5*time.Minute)
	defer cancel()

	if err := h.blobs.Upload(uploadCtx, storagePath, data, "application/pdf"); err != nil {
		h.log.Error("blob upload failed", zap.String("document_id", docID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "upload failed")
		return
	}

	size := int64(len(data))
	doc := &models.Document{
		ID:               docID,
		Title:            strings.TrimSuffix(cleanFilename, filepath.Ext(cleanFilename)),
		OriginalFilename: header.Filename,
		StoragePath:      storagePath,
		SizeBytes:        &size,
		Status:           models.StatusUploaded,
	}
	if err := h.store.CreateDocument(uploadCtx, doc); err != nil {
		h.log.Error("document insert failed", zap.String("document_id", docID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to store document metadata")
		return
	}

	h.ingestor.Enqueue(doc.ID)
	h.log.Info("document uploaded", zap.String("document_id", docID), zap.Int64("size_bytes", size))

	writeJSON(w, http.StatusAccepted, doc)
}

// UploadArxivDocument downloads a paper PDF from an arxiv URL or bare paper
// ID and runs it through the same store-and-enqueue path as a direct upload.
func (h *DocumentHandler) UploadArxivDocument(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ArxivURL string `json:"arxiv_url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.ArxivURL) == "" {
		writeError(w, http.StatusBadRequest, "arxiv_url is required")
		return
	}

	fetchCtx, cancel := context.WithTimeout(r.Context(), 5*time.Minute)
	defer cancel()

	data, title, err := h.fetcher.Fetch(fetchCtx, req.ArxivURL)
	if err != nil {
		if errors.Is(err, ingestion_engine.ErrInvalidArxivRef) || errors.Is(err, ingestion_engine.ErrNotPDF) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.log.Error("arxiv download failed", zap.String("arxiv_url", req.ArxivURL), zap.Error(err))
		writeError(w, http.StatusBadGateway, fmt.Sprintf("Failed to download PDF from arxiv: %v", err))
		return
	}

	docID := uuid.NewString()
	filename := title + ".pdf"
	storagePath := fmt.Sprintf("documents/%s/%s", docID, filename)

	if err := h.blobs.Upload(fetchCtx, storagePath, data, "application/pdf"); err != nil {
		h.log.Error("blob upload failed", zap.String("document_id", docID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "upload failed")
		return
	}

	size := int64(len(data))
	doc := &models.Document{
		ID:               docID,
		Title:            title,
		OriginalFilename: filename,
		StoragePath:      storagePath,
		SizeBytes:        &size,
		Status:           models.StatusUploaded,
	}
	if err := h.store.CreateDocument(fetchCtx, doc); err != nil {
		h.log.Error("document insert failed", zap.String("document_id", docID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to store document metadata")
		return
	}

	h.ingestor.Enqueue(doc.ID)
	h.log.Info("arxiv document uploaded",
		zap.String("document_id", docID),
		zap.String("arxiv_url", req.ArxivURL),
		zap.Int64("size_bytes", size))

	writeJSON(w, http.StatusAccepted, doc)
}

// IngestDocument re-queues an existing document for ingestion, e.g. one stuck
// in uploaded after a restart lost the in-memory job queue. Documents whose
// status admits no move to processing are refused.
func (h *DocumentHandler) IngestDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	doc, err := h.store.GetDocumentByID(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if doc == nil {
		writeError(w, http.StatusNotFound, "Document not found")
		return
	}
	if !doc.Status.CanTransition(models.StatusProcessing) {
		writeError(w, http.StatusConflict,
			fmt.Sprintf("document in status %q cannot be ingested", doc.Status))
		return
	}

	h.ingestor.Enqueue(doc.ID)
	h.log.Info("document queued for ingestion", zap.String("document_id", id))

	writeJSON(w, http.StatusAccepted, map[string]any{
		"status":      "queued",
		"document_id": id,
	})
}

func (h *DocumentHandler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	documents, err := h.store.ListDocuments(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if documents == nil {
		documents = []models.Document{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"documents": documents,
		"total":     len(documents),
	})
}

func (h *DocumentHandler) GetDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	doc, err := h.store.GetDocumentByID(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if doc == nil {
		writeError(w, http.StatusNotFound, "Document not found")
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// DeleteDocument removes the blob and the database record; chunks, threads
// and messages cascade with it.
func (h *DocumentHandler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	doc, err := h.store.GetDocumentByID(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if doc == nil {
		writeError(w, http.StatusNotFound, "Document not found")
		return
	}

	if _, err := h.blobs.Delete(r.Context(), doc.StoragePath); err != nil {
		// Keep going: an orphaned blob beats an undeletable document.
		h.log.Warn("blob delete failed", zap.String("document_id", id), zap.Error(err))
	}
	if err := h.store.DeleteDocument(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.log.Info("document deleted", zap.String("document_id", id))
	w.WriteHeader(http.StatusNoContent)
}
