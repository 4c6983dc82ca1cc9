package models

import (
	"time"
)

// DocumentStatus tracks a document through the ingestion pipeline.
type DocumentStatus string

const (
	StatusUploaded   DocumentStatus = "uploaded"
	StatusProcessing DocumentStatus = "processing"
	StatusReady      DocumentStatus = "ready"
	StatusError      DocumentStatus = "error"
)

// CanTransition reports whether moving from s to next is a legal step of the
// ingestion state machine. Terminal states (ready, error) accept no further
// transitions; a document never returns to uploaded.
func (s DocumentStatus) CanTransition(next DocumentStatus) bool {
	switch s {
	case StatusUploaded:
		return next == StatusProcessing
	case StatusProcessing:
		return next == StatusReady || next == StatusError
	default:
		return false
	}
}

// Terminal reports whether the status admits no further transitions.
func (s DocumentStatus) Terminal() bool {
	return s == StatusReady || s == StatusError
}

// MessageRole is the author of a chat message.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleSystem    MessageRole = "system"
)

// Document represents one uploaded PDF.
type Document struct {
	ID               string         `db:"id" json:"id"`
	Title            string         `db:"title" json:"title"`
	OriginalFilename string         `db:"original_filename" json:"original_filename"`
	StoragePath      string         `db:"storage_path" json:"storage_path"`
	Pages            *int           `db:"pages" json:"pages"`
	SizeBytes        *int64         `db:"size_bytes" json:"size_bytes"`
	Status           DocumentStatus `db:"status" json:"status"`
	CreatedAt        time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time      `db:"updated_at" json:"updated_at"`
}

// Chunk is one text span of a document with its embedding.
// Embedding is nil until the ingestion pipeline has embedded the text.
type Chunk struct {
	ID         string    `db:"id" json:"id"`
	DocumentID string    `db:"document_id" json:"document_id"`
	Page       int       `db:"page" json:"page"`
	ChunkIndex int       `db:"chunk_index" json:"chunk_index"`
	Text       string    `db:"text" json:"text"`
	Embedding  []float32 `db:"embedding" json:"-"`
	TokenCount int       `db:"token_count" json:"token_count"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// Thread is a chat conversation scoped to one document.
type Thread struct {
	ID         string    `db:"id" json:"id"`
	DocumentID string    `db:"document_id" json:"document_id"`
	Title      string    `db:"title" json:"title"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// MessageMetadata records which chunks contributed to an assistant answer.
type MessageMetadata struct {
	ChunkIDs []string `json:"chunk_ids"`
	Pages    []int    `json:"pages"`
}

// Message is one turn in a thread. Immutable once created; conversation
// history is the creation-time ordering.
type Message struct {
	ID               string           `db:"id" json:"id"`
	ThreadID         string           `db:"thread_id" json:"thread_id"`
	Role             MessageRole      `db:"role" json:"role"`
	Content          string           `db:"content" json:"content"`
	TokensPrompt     *int             `db:"tokens_prompt" json:"tokens_prompt"`
	TokensCompletion *int             `db:"tokens_completion" json:"tokens_completion"`
	Metadata         *MessageMetadata `db:"metadata" json:"metadata"`
	CreatedAt        time.Time        `db:"created_at" json:"created_at"`
}

// ChatRun is a write-only observability record: one row per generation call.
type ChatRun struct {
	ID        string    `db:"id" json:"id"`
	ThreadID  string    `db:"thread_id" json:"thread_id"`
	Provider  string    `db:"provider" json:"provider"`
	Model     string    `db:"model" json:"model"`
	LatencyMs float64   `db:"latency_ms" json:"latency_ms"`
	CostUSD   float64   `db:"cost_usd" json:"cost_usd"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
