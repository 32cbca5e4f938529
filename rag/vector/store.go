package vector

import (
	"context"
	"encoding/binary"
	"math"
	"os"

	"atlas/rag"
)

// Store defines the interface for vector storage backends. A store instance
// is bound to a single named collection; queries never cross collections.
type Store interface {
	// Add upserts entries by id. In strict mode an existing id fails with
	// rag.ErrDuplicateID instead of being overwritten.
	Add(ctx context.Context, entries []rag.IndexEntry) error

	// Query returns the topK nearest entries ordered by ascending distance,
	// ties broken by insertion order. topK < 1 fails with rag.ErrInvalidQuery.
	Query(ctx context.Context, vector []float32, topK int) ([]rag.SearchResult, error)

	// Count returns the total number of entries in the collection
	Count(ctx context.Context) (int64, error)

	// Delete removes entries by id
	Delete(ctx context.Context, ids []string) error

	// DeleteBySource removes all entries whose source metadata matches
	DeleteBySource(ctx context.Context, source string) error

	// Clear removes every entry in the collection
	Clear(ctx context.Context) error

	// List returns entries in insertion order for inspection; embeddings are
	// not loaded
	List(ctx context.Context, limit, offset int) ([]rag.IndexEntry, error)

	// Collection returns the collection name this store is bound to
	Collection() string

	// Close releases the underlying storage handle
	Close() error
}

// StoreConfig holds configuration shared by store implementations.
type StoreConfig struct {
	// Collection is the named partition entries live in
	Collection string

	// Dim is the embedding dimension entries must carry
	Dim int

	// StrictIDs makes Add fail on duplicate ids instead of upserting
	StrictIDs bool
}

// DefaultStoreConfig returns the default configuration, with the collection
// name overridable through VECTOR_COLLECTION.
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		Collection: getEnvString("VECTOR_COLLECTION", "atlas-knowledge"),
		Dim:        getEnvInt("VECTOR_DIM", DefaultEmbeddingDim),
	}
}

// getEnvString reads a string from environment variable
func getEnvString(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// ensureMetadata enforces the non-empty metadata invariant: entries persisted
// without metadata get a default source marker, and the source key is always
// present.
func ensureMetadata(m map[string]string) map[string]string {
	if len(m) == 0 {
		return map[string]string{rag.MetadataSourceKey: "unknown"}
	}
	if _, ok := m[rag.MetadataSourceKey]; !ok {
		out := make(map[string]string, len(m)+1)
		for k, v := range m {
			out[k] = v
		}
		out[rag.MetadataSourceKey] = "unknown"
		return out
	}
	return m
}

// cosineDistance returns 1 - cosine similarity. Zero-norm vectors are treated
// as maximally distant.
func cosineDistance(a, b []float32) float32 {
	var dot, normA, normB float64
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 1
	}
	return float32(1 - dot/(math.Sqrt(normA)*math.Sqrt(normB)))
}

// encodeVector encodes a float32 vector as little-endian bytes for storage.
func encodeVector(vector []float32) []byte {
	if len(vector) == 0 {
		return nil
	}
	buf := make([]byte, len(vector)*4)
	for i, f := range vector {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// decodeVector decodes a float32 vector from its stored byte form.
func decodeVector(data []byte) []float32 {
	if len(data) == 0 {
		return nil
	}
	vector := make([]float32, len(data)/4)
	for i := range vector {
		vector[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return vector
}
