package core

import (
	"context"
	"errors"

	"github.com/paperchat-ai/paperchat/internal/models"
)

// ErrNotFound is returned by object and record lookups for missing keys.
var ErrNotFound = errors.New("not found")

// ChunkHit is a retrieval result row: a chunk plus its cosine distance to the
// query vector.
type ChunkHit struct {
	ChunkID  string
	Page     int
	Text     string
	Distance float64
}

// Store defines all persistence operations the services need.
// It abstracts Postgres/pgvector so higher layers never depend on a specific DB.
type Store interface {
	CreateDocument(ctx context.Context, doc *models.Document) error
	GetDocumentByID(ctx context.Context, id string) (*models.Document, error)
	ListDocuments(ctx context.Context) ([]models.Document, error)
	// UpdateDocumentStatus persists a status change, recording pages when
	// non-nil. Transition legality is the caller's concern.
	UpdateDocumentStatus(ctx context.Context, id string, status models.DocumentStatus, pages *int) error
	DeleteDocument(ctx context.Context, id string) error

	// ReplaceChunks atomically removes any existing chunks for the document,
	// inserts the new set and flips the document to ready with the given page
	// count. A failure rolls everything back.
	ReplaceChunks(ctx context.Context, documentID string, chunks []models.Chunk, pages int) error
	GetChunksByDocument(ctx context.Context, documentID string) ([]models.Chunk, error)
	// SearchChunks returns up to k chunks of the document ordered by cosine
	// distance to queryVec, skipping chunks without an embedding. minPage and
	// maxPage, when non-nil, bound the page range inclusively.
	SearchChunks(ctx context.Context, documentID string, queryVec []float32, k int, minPage, maxPage *int) ([]ChunkHit, error)

	CreateThread(ctx context.Context, thread *models.Thread) error
	GetThreadByID(ctx context.Context, id string) (*models.Thread, error)
	ListThreads(ctx context.Context, documentID string) ([]models.Thread, error)
	UpdateThreadTitle(ctx context.Context, id string, title string) error
	DeleteThread(ctx context.Context, id string) error

	CreateMessage(ctx context.Context, msg *models.Message) error
	ListMessages(ctx context.Context, threadID string) ([]models.Message, error)
	CountMessages(ctx context.Context, threadID string) (int, error)

	CreateChatRun(ctx context.Context, run *models.ChatRun) error

	Close() error
}

// ObjectStore defines interactions with blob storage. Implementations exist
// for local disk and S3 so deployments can swap backends via config.
type ObjectStore interface {
	Upload(ctx context.Context, path string, data []byte, contentType string) error
	// Download returns ErrNotFound for a missing path.
	Download(ctx context.Context, path string) ([]byte, error)
	// Delete reports whether the object existed.
	Delete(ctx context.Context, path string) (bool, error)
}

// Extractor turns raw PDF bytes into normalized per-page text.
type Extractor interface {
	// ExtractPages returns one text per page and the total page count.
	ExtractPages(data []byte) ([]string, int, error)
}
