package core

import "fmt"

// The pipeline error taxonomy. Each stage of ingestion and generation wraps
// its failures in one of these so callers can dispatch with errors.As without
// depending on backend-specific error values.

// ExtractionError means the PDF could not be read or decoded.
type ExtractionError struct{ Err error }

func (e *ExtractionError) Error() string { return fmt.Sprintf("extract pdf: %v", e.Err) }
func (e *ExtractionError) Unwrap() error { return e.Err }

// ChunkingError is an unexpected fault inside the chunker. An empty chunk
// result is not an error.
type ChunkingError struct{ Err error }

func (e *ChunkingError) Error() string { return fmt.Sprintf("chunk document: %v", e.Err) }
func (e *ChunkingError) Unwrap() error { return e.Err }

// EmbeddingError means the embedding backend failed or returned vectors of
// the wrong dimension.
type EmbeddingError struct{ Err error }

func (e *EmbeddingError) Error() string { return fmt.Sprintf("embed: %v", e.Err) }
func (e *EmbeddingError) Unwrap() error { return e.Err }

// PersistenceError means a storage commit failed.
type PersistenceError struct{ Err error }

func (e *PersistenceError) Error() string { return fmt.Sprintf("persist: %v", e.Err) }
func (e *PersistenceError) Unwrap() error { return e.Err }

// ConfigurationError means the chat backend rejected every parameter
// combination during capability negotiation. Surfaces before any token is
// streamed.
type ConfigurationError struct{ Err error }

func (e *ConfigurationError) Error() string { return fmt.Sprintf("llm configuration invalid: %v", e.Err) }
func (e *ConfigurationError) Unwrap() error { return e.Err }

// GenerationStreamError means the chat backend failed after streaming had
// already started.
type GenerationStreamError struct{ Err error }

func (e *GenerationStreamError) Error() string { return fmt.Sprintf("generation stream: %v", e.Err) }
func (e *GenerationStreamError) Unwrap() error { return e.Err }
