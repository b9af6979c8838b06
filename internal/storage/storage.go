// Package storage provides the SQLite-backed document+chunk store.
// It owns the content_sources and chunks tables exclusively and serialises
// all read-modify-write sequences through database transactions so the
// invariants in the data model hold at every transaction boundary.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // register "sqlite" driver
)

// Document is one row of content_sources: a logical document identified by
// its canonical source path.
type Document struct {
	ID              string
	SourceType      string
	SourcePath      string
	ContentHash     string
	ChunkCount      int
	CreatedAt       time.Time
	UpdatedAt       time.Time
	IngestionStatus string
}

// ChunkMeta is the structured metadata stored in a chunk's meta column.
type ChunkMeta struct {
	DocumentID      string `json:"document_id"`
	SourceType      string `json:"source_type"`
	URL             string `json:"url"`
	Title           string `json:"title,omitempty"`
	Author          string `json:"author,omitempty"`
	Channel         string `json:"channel,omitempty"`
	ChunkIndex      int    `json:"chunk_index"`
	TotalChunks     int    `json:"total_chunks"`
	SourceTypeClass string `json:"source_type_class"`
	AppName         string `json:"app_name,omitempty"`
	BundleID        string `json:"bundle_id,omitempty"`
}

// SourceTypeClass values for ChunkMeta.SourceTypeClass.
const (
	ClassCapture       = "capture"
	ClassAccessibility = "accessibility"
)

// DocMeta carries the per-document attributes needed to build chunk meta.
// It is supplied by the caller (the ingestion server) for every write.
type DocMeta struct {
	URL             string
	Title           string
	Author          string
	Channel         string
	SourceTypeClass string
	AppName         string
	BundleID        string
}

// Store is the SQLite-backed implementation of the document+chunk store.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a Store at the given path and runs the schema
// migration. Use ":memory:" for an in-memory database in tests.
func Open(path string) (*Store, error) {
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", path, err)
	}
	// A single writer connection avoids SQLITE_BUSY under the server's own
	// serialised-critical-section model; concurrency happens above this layer.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// migrate creates the schema if it does not already exist. There are no
// schema migrations beyond initial creation.
func (s *Store) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS content_sources (
    id               TEXT    PRIMARY KEY,
    source_type      TEXT    NOT NULL,
    source_path      TEXT    NOT NULL,
    content_hash     TEXT    NOT NULL,
    chunk_count      INTEGER NOT NULL DEFAULT 0,
    created_at       INTEGER NOT NULL,
    updated_at       INTEGER NOT NULL,
    ingestion_status TEXT    NOT NULL DEFAULT 'ingested'
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_content_sources_source_path
    ON content_sources (source_path);
CREATE INDEX IF NOT EXISTS idx_content_sources_content_hash
    ON content_sources (content_hash);

CREATE TABLE IF NOT EXISTS chunks (
    id           TEXT    PRIMARY KEY,
    document_id  TEXT    NOT NULL,
    chunk_index  INTEGER NOT NULL,
    total_chunks INTEGER NOT NULL,
    vector_index INTEGER,
    text         TEXT    NOT NULL,
    meta         TEXT    NOT NULL,
    is_deleted   INTEGER NOT NULL DEFAULT 0,
    created_at   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_chunks_document_id ON chunks (document_id);
CREATE INDEX IF NOT EXISTS idx_chunks_is_deleted ON chunks (is_deleted);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("storage: migrate: %w", err)
	}
	return nil
}

// Close releases the database connection pool.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("storage: close: %w", err)
	}
	return nil
}

// Ping verifies the database connection is alive, for use as a readiness probe.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("storage: ping: %w", err)
	}
	return nil
}

// GetDocumentBySourcePath returns the document at the given canonical path,
// or nil (with no error) if none exists. source_path is UNIQUE, so at most
// one row can match.
func (s *Store) GetDocumentBySourcePath(ctx context.Context, sourcePath string) (*Document, error) {
	return s.getDocumentBySourcePath(ctx, s.db, sourcePath)
}

func (s *Store) getDocumentBySourcePath(ctx context.Context, q querier, sourcePath string) (*Document, error) {
	const query = `
SELECT id, source_type, source_path, content_hash, chunk_count, created_at, updated_at, ingestion_status
FROM content_sources WHERE source_path = ?`
	row := q.QueryRowContext(ctx, query, sourcePath)
	var d Document
	var createdAt, updatedAt int64
	err := row.Scan(&d.ID, &d.SourceType, &d.SourcePath, &d.ContentHash, &d.ChunkCount, &createdAt, &updatedAt, &d.IngestionStatus)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("storage: get document: %w", err)
	}
	d.CreatedAt = time.Unix(createdAt, 0).UTC()
	d.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &d, nil
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// CreateDocument inserts a brand-new document and its chunks in a single
// write transaction. Returns the created document and its live chunk count.
func (s *Store) CreateDocument(ctx context.Context, sourceType, sourcePath, contentHash string, meta DocMeta, texts []string) (*Document, error) {
	now := time.Now().Unix()
	docID := uuid.New().String()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("storage: create document: begin: %w", err)
	}
	defer tx.Rollback()

	const insertDoc = `
INSERT INTO content_sources (id, source_type, source_path, content_hash, chunk_count, created_at, updated_at, ingestion_status)
VALUES (?, ?, ?, ?, ?, ?, ?, 'ingested')`
	if _, err := tx.ExecContext(ctx, insertDoc, docID, sourceType, sourcePath, contentHash, len(texts), now, now); err != nil {
		return nil, fmt.Errorf("storage: create document: insert: %w", err)
	}

	if err := insertChunks(ctx, tx, docID, sourceType, meta, texts, 0, len(texts), now); err != nil {
		return nil, fmt.Errorf("storage: create document: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("storage: create document: commit: %w", err)
	}

	return &Document{
		ID:              docID,
		SourceType:      sourceType,
		SourcePath:      sourcePath,
		ContentHash:     contentHash,
		ChunkCount:      len(texts),
		CreatedAt:       time.Unix(now, 0).UTC(),
		UpdatedAt:       time.Unix(now, 0).UTC(),
		IngestionStatus: "ingested",
	}, nil
}

// ReplaceDocument performs a non-OCR update: existing live chunks are
// soft-deleted, the new content is chunked and inserted fresh, and the
// document's content_hash/chunk_count/updated_at are bumped. All in one
// write transaction.
func (s *Store) ReplaceDocument(ctx context.Context, docID, sourceType, contentHash string, meta DocMeta, texts []string) (int, error) {
	now := time.Now().Unix()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("storage: replace document: begin: %w", err)
	}
	defer tx.Rollback()

	const softDelete = `UPDATE chunks SET is_deleted = 1 WHERE document_id = ? AND is_deleted = 0`
	if _, err := tx.ExecContext(ctx, softDelete, docID); err != nil {
		return 0, fmt.Errorf("storage: replace document: soft delete: %w", err)
	}

	if err := insertChunks(ctx, tx, docID, sourceType, meta, texts, 0, len(texts), now); err != nil {
		return 0, fmt.Errorf("storage: replace document: %w", err)
	}

	const updateDoc = `
UPDATE content_sources SET content_hash = ?, chunk_count = ?, updated_at = ? WHERE id = ?`
	if _, err := tx.ExecContext(ctx, updateDoc, contentHash, len(texts), now, docID); err != nil {
		return 0, fmt.Errorf("storage: replace document: update: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("storage: replace document: commit: %w", err)
	}
	return len(texts), nil
}

// AppendChunks performs the OCR incremental-append update: new chunks are
// inserted starting at the document's current chunk_count, every live
// chunk's total_chunks (old and new) is bumped to the new total, and the
// document's content_hash/chunk_count/updated_at are updated accordingly.
func (s *Store) AppendChunks(ctx context.Context, docID, sourceType, fullContentHash string, meta DocMeta, newTexts []string) (int, error) {
	now := time.Now().Unix()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("storage: append chunks: begin: %w", err)
	}
	defer tx.Rollback()

	var currentCount int
	const countQuery = `SELECT chunk_count FROM content_sources WHERE id = ?`
	if err := tx.QueryRowContext(ctx, countQuery, docID).Scan(&currentCount); err != nil {
		return 0, fmt.Errorf("storage: append chunks: read count: %w", err)
	}

	newTotal := currentCount + len(newTexts)

	if err := insertChunks(ctx, tx, docID, sourceType, meta, newTexts, currentCount, newTotal, now); err != nil {
		return 0, fmt.Errorf("storage: append chunks: %w", err)
	}

	// Every live chunk (old and new) must carry the same total_chunks.
	// The meta JSON column of pre-existing chunks must be patched too, since
	// total_chunks is duplicated there for the wire/API contract.
	if err := patchExistingTotalChunks(ctx, tx, docID, currentCount, newTotal); err != nil {
		return 0, fmt.Errorf("storage: append chunks: patch totals: %w", err)
	}

	const updateDoc = `
UPDATE content_sources SET content_hash = ?, chunk_count = ?, updated_at = ? WHERE id = ?`
	if _, err := tx.ExecContext(ctx, updateDoc, fullContentHash, newTotal, now, docID); err != nil {
		return 0, fmt.Errorf("storage: append chunks: update document: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("storage: append chunks: commit: %w", err)
	}
	return len(newTexts), nil
}

// patchExistingTotalChunks rewrites total_chunks on every pre-existing live
// chunk of a document, both the plain column and the duplicated value
// inside its JSON meta blob.
func patchExistingTotalChunks(ctx context.Context, tx *sql.Tx, docID string, excludeFromIndex, newTotal int) error {
	const selectExisting = `
SELECT id, meta FROM chunks WHERE document_id = ? AND is_deleted = 0 AND chunk_index < ?`
	rows, err := tx.QueryContext(ctx, selectExisting, docID, excludeFromIndex)
	if err != nil {
		return fmt.Errorf("select existing chunks: %w", err)
	}
	type patch struct {
		id   string
		meta string
	}
	var patches []patch
	for rows.Next() {
		var id, metaJSON string
		if err := rows.Scan(&id, &metaJSON); err != nil {
			rows.Close()
			return fmt.Errorf("scan existing chunk: %w", err)
		}
		var m ChunkMeta
		if err := json.Unmarshal([]byte(metaJSON), &m); err != nil {
			rows.Close()
			return fmt.Errorf("unmarshal meta: %w", err)
		}
		m.TotalChunks = newTotal
		patched, err := json.Marshal(m)
		if err != nil {
			rows.Close()
			return fmt.Errorf("marshal meta: %w", err)
		}
		patches = append(patches, patch{id: id, meta: string(patched)})
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	const updateChunk = `UPDATE chunks SET total_chunks = ?, meta = ? WHERE id = ?`
	for _, p := range patches {
		if _, err := tx.ExecContext(ctx, updateChunk, newTotal, p.meta, p.id); err != nil {
			return fmt.Errorf("update chunk %s: %w", p.id, err)
		}
	}
	return nil
}

// insertChunks inserts len(texts) chunks for docID, with chunk_index
// starting at startIndex and total_chunks set to total on every inserted row.
func insertChunks(ctx context.Context, tx *sql.Tx, docID, sourceType string, meta DocMeta, texts []string, startIndex, total int, now int64) error {
	const insertChunk = `
INSERT INTO chunks (id, document_id, chunk_index, total_chunks, vector_index, text, meta, is_deleted, created_at)
VALUES (?, ?, ?, ?, NULL, ?, ?, 0, ?)`

	for i, text := range texts {
		idx := startIndex + i
		cm := ChunkMeta{
			DocumentID:      docID,
			SourceType:      sourceType,
			URL:             meta.URL,
			Title:           meta.Title,
			Author:          meta.Author,
			Channel:         meta.Channel,
			ChunkIndex:      idx,
			TotalChunks:     total,
			SourceTypeClass: meta.SourceTypeClass,
			AppName:         meta.AppName,
			BundleID:        meta.BundleID,
		}
		metaJSON, err := json.Marshal(cm)
		if err != nil {
			return fmt.Errorf("marshal chunk meta: %w", err)
		}
		chunkID := uuid.New().String()
		if _, err := tx.ExecContext(ctx, insertChunk, chunkID, docID, idx, total, text, string(metaJSON), now); err != nil {
			return fmt.Errorf("insert chunk %d: %w", idx, err)
		}
	}
	return nil
}

// LiveChunkTexts returns the text of every live chunk of a document, ordered
// by chunk_index ascending.
func (s *Store) LiveChunkTexts(ctx context.Context, docID string) ([]string, error) {
	const query = `
SELECT text FROM chunks WHERE document_id = ? AND is_deleted = 0 ORDER BY chunk_index ASC`
	rows, err := s.db.QueryContext(ctx, query, docID)
	if err != nil {
		return nil, fmt.Errorf("storage: live chunk texts: %w", err)
	}
	defer rows.Close()

	var texts []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("storage: live chunk texts scan: %w", err)
		}
		texts = append(texts, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: live chunk texts rows: %w", err)
	}
	return texts, nil
}
