// Package db implements the persistence layer on Postgres with pgvector.
package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pgvector/pgvector-go"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/paperchat-ai/paperchat/internal/config"
	"github.com/paperchat-ai/paperchat/internal/core"
	"github.com/paperchat-ai/paperchat/internal/models"
)

type DatabaseClient struct {
	db *sql.DB
}

var _ core.Store = (*DatabaseClient)(nil)

func NewDatabaseClient(ctx context.Context, cfg *config.Config) (*DatabaseClient, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database client configuration is nil")
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is empty")
	}

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if err := EnsureBootstrapped(ctx, db, cfg.EmbedDim); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	return &DatabaseClient{db: db}, nil
}

func (c *DatabaseClient) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Documents

func (c *DatabaseClient) CreateDocument(ctx context.Context, doc *models.Document) error {
	if doc == nil {
		return errors.New("nil document")
	}
	const q = `
		INSERT INTO documents
			(id, title, original_filename, storage_path, pages, size_bytes, status, created_at, updated_at)
		VALUES
			($1, $2, $3, $4, $5, $6, $7, now(), now())
	`
	_, err := c.db.ExecContext(ctx, q,
		doc.ID, doc.Title, doc.OriginalFilename, doc.StoragePath, doc.Pages, doc.SizeBytes, doc.Status)
	return err
}

func (c *DatabaseClient) GetDocumentByID(ctx context.Context, id string) (*models.Document, error) {
	const q = `
		SELECT id, title, original_filename, storage_path, pages, size_bytes, status, created_at, updated_at
		FROM documents
		WHERE id = $1
	`
	var d models.Document
	err := c.db.QueryRowContext(ctx, q, id).Scan(
		&d.ID, &d.Title, &d.OriginalFilename, &d.StoragePath, &d.Pages, &d.SizeBytes, &d.Status, &d.CreatedAt, &d.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (c *DatabaseClient) ListDocuments(ctx context.Context) ([]models.Document, error) {
	const q = `
		SELECT id, title, original_filename, storage_path, pages, size_bytes, status, created_at, updated_at
		FROM documents
		ORDER BY created_at DESC
	`
	rows, err := c.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Document
	for rows.Next() {
		var d models.Document
		if err := rows.Scan(
			&d.ID, &d.Title, &d.OriginalFilename, &d.StoragePath, &d.Pages, &d.SizeBytes, &d.Status, &d.CreatedAt, &d.UpdatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (c *DatabaseClient) UpdateDocumentStatus(ctx context.Context, id string, status models.DocumentStatus, pages *int) error {
	const q = `
		UPDATE documents
		SET status = $2, pages = COALESCE($3, pages), updated_at = now()
		WHERE id = $1
	`
	res, err := c.db.ExecContext(ctx, q, id, status, pages)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("document not found: %s", id)
	}
	return nil
}

func (c *DatabaseClient) DeleteDocument(ctx context.Context, id string) error {
	// Chunks, threads and messages go with it via ON DELETE CASCADE.
	res, err := c.db.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return core.ErrNotFound
	}
	return nil
}

// Chunks

func (c *DatabaseClient) ReplaceChunks(ctx context.Context, documentID string, chunks []models.Chunk, pages int) error {
	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = $1`, documentID); err != nil {
		_ = tx.Rollback()
		return err
	}

	const q = `
		INSERT INTO chunks
			(id, document_id, page, chunk_index, text, embedding, token_count, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
	`
	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	for i := range chunks {
		ch := &chunks[i]
		var vec any
		if ch.Embedding != nil {
			vec = pgvector.NewVector(ch.Embedding)
		}
		if _, err := stmt.ExecContext(ctx,
			ch.ID, documentID, ch.Page, ch.ChunkIndex, ch.Text, vec, ch.TokenCount,
		); err != nil {
			_ = tx.Rollback()
			return err
		}
	}

	const uq = `
		UPDATE documents
		SET status = $2, pages = $3, updated_at = now()
		WHERE id = $1
	`
	if _, err := tx.ExecContext(ctx, uq, documentID, models.StatusReady, pages); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (c *DatabaseClient) GetChunksByDocument(ctx context.Context, documentID string) ([]models.Chunk, error) {
	const q = `
		SELECT id, document_id, page, chunk_index, text, embedding, token_count, created_at
		FROM chunks
		WHERE document_id = $1
		ORDER BY chunk_index ASC
	`
	rows, err := c.db.QueryContext(ctx, q, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Chunk
	for rows.Next() {
		var (
			ch  models.Chunk
			emb sql.Null[pgvector.Vector]
		)
		if err := rows.Scan(
			&ch.ID, &ch.DocumentID, &ch.Page, &ch.ChunkIndex, &ch.Text, &emb, &ch.TokenCount, &ch.CreatedAt,
		); err != nil {
			return nil, err
		}
		if emb.Valid {
			ch.Embedding = emb.V.Slice()
		}
		out = append(out, ch)
	}
	return out, rows.Err()
}

// SearchChunks runs a cosine nearest-neighbor query over one document's
// chunks. Chunks without an embedding never match.
func (c *DatabaseClient) SearchChunks(ctx context.Context, documentID string, queryVec []float32, k int, minPage, maxPage *int) ([]core.ChunkHit, error) {
	const q = `
		SELECT id, page, text, embedding <=> $2 AS distance
		FROM chunks
		WHERE document_id = $1
		  AND embedding IS NOT NULL
		  AND ($4::int IS NULL OR page >= $4)
		  AND ($5::int IS NULL OR page <= $5)
		ORDER BY embedding <=> $2
		LIMIT $3
	`
	vec := pgvector.NewVector(queryVec)
	rows, err := c.db.QueryContext(ctx, q, documentID, vec, k, minPage, maxPage)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.ChunkHit
	for rows.Next() {
		var hit core.ChunkHit
		if err := rows.Scan(&hit.ChunkID, &hit.Page, &hit.Text, &hit.Distance); err != nil {
			return nil, err
		}
		out = append(out, hit)
	}
	return out, rows.Err()
}

// Threads

func (c *DatabaseClient) CreateThread(ctx context.Context, thread *models.Thread) error {
	if thread == nil {
		return errors.New("nil thread")
	}
	const q = `
		INSERT INTO threads (id, document_id, title, created_at, updated_at)
		VALUES ($1, $2, $3, now(), now())
	`
	_, err := c.db.ExecContext(ctx, q, thread.ID, thread.DocumentID, thread.Title)
	return err
}

func (c *DatabaseClient) GetThreadByID(ctx context.Context, id string) (*models.Thread, error) {
	const q = `
		SELECT id, document_id, title, created_at, updated_at
		FROM threads
		WHERE id = $1
	`
	var t models.Thread
	err := c.db.QueryRowContext(ctx, q, id).Scan(&t.ID, &t.DocumentID, &t.Title, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (c *DatabaseClient) ListThreads(ctx context.Context, documentID string) ([]models.Thread, error) {
	const q = `
		SELECT id, document_id, title, created_at, updated_at
		FROM threads
		WHERE document_id = $1
		ORDER BY updated_at DESC
	`
	rows, err := c.db.QueryContext(ctx, q, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Thread
	for rows.Next() {
		var t models.Thread
		if err := rows.Scan(&t.ID, &t.DocumentID, &t.Title, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (c *DatabaseClient) UpdateThreadTitle(ctx context.Context, id string, title string) error {
	const q = `
		UPDATE threads SET title = $2, updated_at = now() WHERE id = $1
	`
	res, err := c.db.ExecContext(ctx, q, id, title)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("thread not found: %s", id)
	}
	return nil
}

func (c *DatabaseClient) DeleteThread(ctx context.Context, id string) error {
	res, err := c.db.ExecContext(ctx, `DELETE FROM threads WHERE id = $1`, id)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return core.ErrNotFound
	}
	return nil
}

// Messages

func (c *DatabaseClient) CreateMessage(ctx context.Context, msg *models.Message) error {
	if msg == nil {
		return errors.New("nil message")
	}
	var meta []byte
	if msg.Metadata != nil {
		raw, err := json.Marshal(msg.Metadata)
		if err != nil {
			return fmt.Errorf("marshal message metadata: %w", err)
		}
		meta = raw
	}
	const q = `
		INSERT INTO messages
			(id, thread_id, role, content, tokens_prompt, tokens_completion, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
	`
	_, err := c.db.ExecContext(ctx, q,
		msg.ID, msg.ThreadID, msg.Role, msg.Content, msg.TokensPrompt, msg.TokensCompletion, meta)
	return err
}

func (c *DatabaseClient) ListMessages(ctx context.Context, threadID string) ([]models.Message, error) {
	const q = `
		SELECT id, thread_id, role, content, tokens_prompt, tokens_completion, metadata, created_at
		FROM messages
		WHERE thread_id = $1
		ORDER BY created_at ASC
	`
	rows, err := c.db.QueryContext(ctx, q, threadID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Message
	for rows.Next() {
		var (
			m    models.Message
			meta []byte
		)
		if err := rows.Scan(
			&m.ID, &m.ThreadID, &m.Role, &m.Content, &m.TokensPrompt, &m.TokensCompletion, &meta, &m.CreatedAt,
		); err != nil {
			return nil, err
		}
		if len(meta) > 0 {
			var md models.MessageMetadata
			if err := json.Unmarshal(meta, &md); err != nil {
				return nil, fmt.Errorf("unmarshal message metadata: %w", err)
			}
			m.Metadata = &md
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (c *DatabaseClient) CountMessages(ctx context.Context, threadID string) (int, error) {
	var n int
	err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages WHERE thread_id = $1`, threadID).Scan(&n)
	return n, err
}

// Chat runs

func (c *DatabaseClient) CreateChatRun(ctx context.Context, run *models.ChatRun) error {
	if run == nil {
		return errors.New("nil chat run")
	}
	const q = `
		INSERT INTO chat_runs (id, thread_id, provider, model, latency_ms, cost_usd, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
	`
	_, err := c.db.ExecContext(ctx, q,
		run.ID, run.ThreadID, run.Provider, run.Model, run.LatencyMs, run.CostUSD)
	return err
}
