package vector

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	_ "modernc.org/sqlite" // SQLite driver

	"atlas/rag"
)

// dbFileName is the single database file holding every collection under a
// storage root.
const dbFileName = "vectors.db"

const schema = `
CREATE TABLE IF NOT EXISTS entries (
	seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	collection TEXT NOT NULL,
	id         TEXT NOT NULL,
	source     TEXT NOT NULL DEFAULT '',
	content    TEXT NOT NULL,
	embedding  BLOB NOT NULL,
	metadata   TEXT NOT NULL,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	UNIQUE (collection, id)
);
CREATE INDEX IF NOT EXISTS idx_entries_collection ON entries (collection);
CREATE INDEX IF NOT EXISTS idx_entries_source ON entries (collection, source);
`

// SQLiteStore is the durable vector store. Entries live in a single SQLite
// database under the storage root, partitioned by collection name; nearest
// neighbours are found with a brute-force cosine scan. Reopening a store
// with the same root and collection recovers all previously added entries.
type SQLiteStore struct {
	db     *sql.DB
	root   string
	config StoreConfig
}

// NewSQLiteStore opens (or creates) the vector database under rootDir and
// binds the store to the configured collection.
func NewSQLiteStore(rootDir string, config StoreConfig) (*SQLiteStore, error) {
	if config.Collection == "" {
		return nil, fmt.Errorf("%w: collection name is required", rag.ErrStorageIO)
	}
	if rootDir == "" {
		rootDir = "data"
	}

	if err := os.MkdirAll(rootDir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: creating storage root: %v", rag.ErrStorageIO, err)
	}

	dbPath := filepath.Join(rootDir, dbFileName)

	// WAL keeps readers from blocking the single writer
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("%w: opening database: %v", rag.ErrStorageIO, err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: initializing schema: %v", rag.ErrStorageIO, err)
	}

	return &SQLiteStore{
		db:     db,
		root:   rootDir,
		config: config,
	}, nil
}

// Collection returns the collection name this store is bound to.
func (s *SQLiteStore) Collection() string {
	return s.config.Collection
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return filepath.Join(s.root, dbFileName)
}

// Add upserts entries by id inside a single transaction, so a failing batch
// commits nothing. Entries without metadata get a default source marker.
func (s *SQLiteStore) Add(ctx context.Context, entries []rag.IndexEntry) error {
	if len(entries) == 0 {
		return nil
	}

	for _, e := range entries {
		if e.ID == "" {
			return fmt.Errorf("%w: entry id is required", rag.ErrStorageIO)
		}
		if s.config.Dim > 0 && len(e.Embedding) != s.config.Dim {
			return fmt.Errorf("%w: entry %s has dimension %d, store expects %d",
				rag.ErrDimensionMismatch, e.ID, len(e.Embedding), s.config.Dim)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: beginning transaction: %v", rag.ErrStorageIO, err)
	}
	defer tx.Rollback() //nolint:errcheck

	if s.config.StrictIDs {
		seen := make(map[string]struct{}, len(entries))
		for _, e := range entries {
			if _, dup := seen[e.ID]; dup {
				return fmt.Errorf("%w: %s repeated in batch", rag.ErrDuplicateID, e.ID)
			}
			seen[e.ID] = struct{}{}

			var exists int
			err := tx.QueryRowContext(ctx,
				"SELECT COUNT(*) FROM entries WHERE collection = ? AND id = ?",
				s.config.Collection, e.ID).Scan(&exists)
			if err != nil {
				return fmt.Errorf("%w: checking id: %v", rag.ErrStorageIO, err)
			}
			if exists > 0 {
				return fmt.Errorf("%w: %s", rag.ErrDuplicateID, e.ID)
			}
		}
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO entries (collection, id, source, content, embedding, metadata)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(collection, id) DO UPDATE SET
			source = excluded.source,
			content = excluded.content,
			embedding = excluded.embedding,
			metadata = excluded.metadata
	`)
	if err != nil {
		return fmt.Errorf("%w: preparing statement: %v", rag.ErrStorageIO, err)
	}
	defer stmt.Close()

	for _, e := range entries {
		metadata := ensureMetadata(e.Metadata)
		metadataJSON, err := json.Marshal(metadata)
		if err != nil {
			return fmt.Errorf("%w: marshalling metadata: %v", rag.ErrStorageIO, err)
		}

		if _, err := stmt.ExecContext(ctx,
			s.config.Collection, e.ID, metadata[rag.MetadataSourceKey],
			e.Text, encodeVector(e.Embedding), string(metadataJSON)); err != nil {
			return fmt.Errorf("%w: saving entry %s: %v", rag.ErrStorageIO, e.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: committing transaction: %v", rag.ErrStorageIO, err)
	}
	return nil
}

// Query scans the collection and returns the topK nearest entries by cosine
// distance, ascending, ties broken by insertion order.
func (s *SQLiteStore) Query(ctx context.Context, vector []float32, topK int) ([]rag.SearchResult, error) {
	if topK < 1 {
		return nil, fmt.Errorf("%w: top_k must be >= 1, got %d", rag.ErrInvalidQuery, topK)
	}
	if len(vector) == 0 {
		return nil, fmt.Errorf("%w: query vector is empty", rag.ErrInvalidQuery)
	}
	if s.config.Dim > 0 && len(vector) != s.config.Dim {
		return nil, fmt.Errorf("%w: query vector has dimension %d, store expects %d",
			rag.ErrDimensionMismatch, len(vector), s.config.Dim)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, content, embedding, metadata
		FROM entries WHERE collection = ?
		ORDER BY seq
	`, s.config.Collection)
	if err != nil {
		return nil, fmt.Errorf("%w: querying entries: %v", rag.ErrStorageIO, err)
	}
	defer rows.Close()

	var results []rag.SearchResult
	for rows.Next() {
		var (
			id, content  string
			blob         []byte
			metadataJSON string
		)
		if err := rows.Scan(&id, &content, &blob, &metadataJSON); err != nil {
			return nil, fmt.Errorf("%w: scanning entry: %v", rag.ErrStorageIO, err)
		}

		metadata := make(map[string]string)
		if err := json.Unmarshal([]byte(metadataJSON), &metadata); err != nil {
			return nil, fmt.Errorf("%w: unmarshalling metadata: %v", rag.ErrStorageIO, err)
		}

		distance := cosineDistance(vector, decodeVector(blob))
		results = append(results, rag.SearchResult{
			ID:         id,
			Content:    content,
			Distance:   distance,
			Similarity: 1 - distance,
			Metadata:   metadata,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating entries: %v", rag.ErrStorageIO, err)
	}

	// Stable sort keeps insertion order for equal distances
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Distance < results[j].Distance
	})

	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// Count returns the total number of entries in the collection.
func (s *SQLiteStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM entries WHERE collection = ?",
		s.config.Collection).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("%w: counting entries: %v", rag.ErrStorageIO, err)
	}
	return count, nil
}

// Delete removes entries by id.
func (s *SQLiteStore) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: beginning transaction: %v", rag.ErrStorageIO, err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, id := range ids {
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM entries WHERE collection = ? AND id = ?",
			s.config.Collection, id); err != nil {
			return fmt.Errorf("%w: deleting entry %s: %v", rag.ErrStorageIO, id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: committing transaction: %v", rag.ErrStorageIO, err)
	}
	return nil
}

// DeleteBySource removes all entries ingested from the given source.
func (s *SQLiteStore) DeleteBySource(ctx context.Context, source string) error {
	if source == "" {
		return fmt.Errorf("%w: source cannot be empty", rag.ErrInvalidQuery)
	}

	if _, err := s.db.ExecContext(ctx,
		"DELETE FROM entries WHERE collection = ? AND source = ?",
		s.config.Collection, source); err != nil {
		return fmt.Errorf("%w: deleting by source: %v", rag.ErrStorageIO, err)
	}
	return nil
}

// Clear removes every entry in the collection.
func (s *SQLiteStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx,
		"DELETE FROM entries WHERE collection = ?",
		s.config.Collection); err != nil {
		return fmt.Errorf("%w: clearing collection: %v", rag.ErrStorageIO, err)
	}
	return nil
}

// List returns entries in insertion order without their embeddings.
func (s *SQLiteStore) List(ctx context.Context, limit, offset int) ([]rag.IndexEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, content, metadata
		FROM entries WHERE collection = ?
		ORDER BY seq
		LIMIT ? OFFSET ?
	`, s.config.Collection, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("%w: listing entries: %v", rag.ErrStorageIO, err)
	}
	defer rows.Close()

	var entries []rag.IndexEntry
	for rows.Next() {
		var e rag.IndexEntry
		var metadataJSON string
		if err := rows.Scan(&e.ID, &e.Text, &metadataJSON); err != nil {
			return nil, fmt.Errorf("%w: scanning entry: %v", rag.ErrStorageIO, err)
		}
		if err := json.Unmarshal([]byte(metadataJSON), &e.Metadata); err != nil {
			return nil, fmt.Errorf("%w: unmarshalling metadata: %v", rag.ErrStorageIO, err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating entries: %v", rag.ErrStorageIO, err)
	}

	return entries, nil
}

// Close closes the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

var _ Store = (*SQLiteStore)(nil)
