package knowledge

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"
)

const vectorSchema = `
CREATE TABLE IF NOT EXISTS knowledge_documents (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	id TEXT NOT NULL UNIQUE,
	content TEXT NOT NULL,
	embedding TEXT NOT NULL,
	metadata TEXT NOT NULL DEFAULT '{}'
);
`

// SQLiteVectorStore persists documents in SQLite with their embeddings
// stored as JSON arrays. Search loads every vector and ranks in process.
type SQLiteVectorStore struct {
	db *sql.DB
}

// OpenSQLiteVectorStore opens (or creates) a store at dsn. Use ":memory:"
// for a throwaway store.
func OpenSQLiteVectorStore(ctx context.Context, dsn string) (*SQLiteVectorStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open knowledge database: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := NewSQLiteVectorStore(db)
	if err := s.Init(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLiteVectorStore wraps an existing database handle.
func NewSQLiteVectorStore(db *sql.DB) *SQLiteVectorStore {
	return &SQLiteVectorStore{db: db}
}

// Init creates the schema.
func (s *SQLiteVectorStore) Init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, vectorSchema); err != nil {
		return fmt.Errorf("failed to initialize knowledge schema: %w", err)
	}
	return nil
}

// Upsert implements VectorStore.
func (s *SQLiteVectorStore) Upsert(ctx context.Context, docs []Document) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin upsert: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO knowledge_documents (id, content, embedding, metadata) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET content = excluded.content, embedding = excluded.embedding, metadata = excluded.metadata`)
	if err != nil {
		return fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, d := range docs {
		emb, err := json.Marshal(d.Embedding)
		if err != nil {
			return fmt.Errorf("failed to encode embedding of %s: %w", d.ID, err)
		}
		meta := d.Metadata
		if meta == nil {
			meta = map[string]interface{}{}
		}
		metaJSON, err := json.Marshal(meta)
		if err != nil {
			return fmt.Errorf("failed to encode metadata of %s: %w", d.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, d.ID, d.Content, string(emb), string(metaJSON)); err != nil {
			return fmt.Errorf("failed to upsert %s: %w", d.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit upsert: %w", err)
	}
	return nil
}

// Search implements VectorStore.
func (s *SQLiteVectorStore) Search(ctx context.Context, query []float64, limit int) ([]SearchResult, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, content, embedding, metadata FROM knowledge_documents ORDER BY seq")
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var d Document
		var emb, meta string
		if err := rows.Scan(&d.ID, &d.Content, &emb, &meta); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		if err := json.Unmarshal([]byte(emb), &d.Embedding); err != nil {
			return nil, fmt.Errorf("failed to decode embedding of %s: %w", d.ID, err)
		}
		if err := json.Unmarshal([]byte(meta), &d.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode metadata of %s: %w", d.ID, err)
		}
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read documents: %w", err)
	}

	return rank(query, docs, limit), nil
}

// Count implements VectorStore.
func (s *SQLiteVectorStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM knowledge_documents").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count documents: %w", err)
	}
	return n, nil
}

// Close closes the database.
func (s *SQLiteVectorStore) Close() error {
	return s.db.Close()
}
