package vector

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"atlas/rag"
)

func newTestStore(t *testing.T, config StoreConfig) *SQLiteStore {
	t.Helper()
	if config.Collection == "" {
		config.Collection = "test"
	}
	store, err := NewSQLiteStore(t.TempDir(), config)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func entry(id string, vec []float32, metadata map[string]string) rag.IndexEntry {
	return rag.IndexEntry{ID: id, Text: "text for " + id, Embedding: vec, Metadata: metadata}
}

func TestSQLiteStoreRequiresCollection(t *testing.T) {
	_, err := NewSQLiteStore(t.TempDir(), StoreConfig{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, rag.ErrStorageIO))
}

func TestAddAndCount(t *testing.T) {
	store := newTestStore(t, StoreConfig{Dim: 3})
	ctx := context.Background()

	err := store.Add(ctx, []rag.IndexEntry{
		entry("a", []float32{1, 0, 0}, map[string]string{"source": "a.txt"}),
		entry("b", []float32{0, 1, 0}, map[string]string{"source": "b.txt"}),
	})
	require.NoError(t, err)

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestAddUpsertsById(t *testing.T) {
	store := newTestStore(t, StoreConfig{Dim: 3})
	ctx := context.Background()

	require.NoError(t, store.Add(ctx, []rag.IndexEntry{
		entry("a", []float32{1, 0, 0}, map[string]string{"source": "a.txt"}),
	}))
	require.NoError(t, store.Add(ctx, []rag.IndexEntry{
		{ID: "a", Text: "updated", Embedding: []float32{0, 1, 0}, Metadata: map[string]string{"source": "a.txt"}},
	}))

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	results, err := store.Query(ctx, []float32{0, 1, 0}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "updated", results[0].Content)
}

func TestAddStrictModeRejectsDuplicates(t *testing.T) {
	store := newTestStore(t, StoreConfig{Dim: 3, StrictIDs: true})
	ctx := context.Background()

	require.NoError(t, store.Add(ctx, []rag.IndexEntry{
		entry("a", []float32{1, 0, 0}, nil),
	}))

	err := store.Add(ctx, []rag.IndexEntry{
		entry("a", []float32{0, 1, 0}, nil),
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, rag.ErrDuplicateID))

	// The failing batch must not have changed the stored entry.
	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestAddStrictModeRejectsDuplicatesWithinBatch(t *testing.T) {
	store := newTestStore(t, StoreConfig{Dim: 3, StrictIDs: true})
	ctx := context.Background()

	err := store.Add(ctx, []rag.IndexEntry{
		entry("a", []float32{1, 0, 0}, nil),
		entry("b", []float32{0, 1, 0}, nil),
		entry("a", []float32{0, 0, 1}, nil),
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, rag.ErrDuplicateID))

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}

func TestAddDimensionGuard(t *testing.T) {
	store := newTestStore(t, StoreConfig{Dim: 3})

	err := store.Add(context.Background(), []rag.IndexEntry{
		entry("a", []float32{1, 0}, nil),
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, rag.ErrDimensionMismatch))
}

func TestAddInjectsDefaultMetadata(t *testing.T) {
	store := newTestStore(t, StoreConfig{Dim: 3})
	ctx := context.Background()

	require.NoError(t, store.Add(ctx, []rag.IndexEntry{
		entry("a", []float32{1, 0, 0}, nil),
		entry("b", []float32{0, 1, 0}, map[string]string{"lang": "en"}),
	}))

	entries, err := store.List(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "unknown", entries[0].Metadata[rag.MetadataSourceKey])
	assert.Equal(t, "unknown", entries[1].Metadata[rag.MetadataSourceKey])
	assert.Equal(t, "en", entries[1].Metadata["lang"])
}

func TestQueryOrdering(t *testing.T) {
	store := newTestStore(t, StoreConfig{Dim: 3})
	ctx := context.Background()

	require.NoError(t, store.Add(ctx, []rag.IndexEntry{
		entry("far", []float32{0, 1, 0}, nil),
		entry("near", []float32{1, 0.1, 0}, nil),
		entry("exact", []float32{1, 0, 0}, nil),
	}))

	results, err := store.Query(ctx, []float32{1, 0, 0}, 3)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, "exact", results[0].ID)
	assert.Equal(t, "near", results[1].ID)
	assert.Equal(t, "far", results[2].ID)

	for i := 1; i < len(results); i++ {
		assert.LessOrEqual(t, results[i-1].Distance, results[i].Distance)
	}
	assert.InDelta(t, 1.0, results[0].Similarity, 1e-5)
}

func TestQueryTiesKeepInsertionOrder(t *testing.T) {
	store := newTestStore(t, StoreConfig{Dim: 3})
	ctx := context.Background()

	// Identical vectors, identical distance: insertion order must win.
	require.NoError(t, store.Add(ctx, []rag.IndexEntry{
		entry("first", []float32{1, 0, 0}, nil),
		entry("second", []float32{1, 0, 0}, nil),
		entry("third", []float32{1, 0, 0}, nil),
	}))

	results, err := store.Query(ctx, []float32{1, 0, 0}, 3)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, []string{"first", "second", "third"},
		[]string{results[0].ID, results[1].ID, results[2].ID})
}

func TestQueryTopKTrims(t *testing.T) {
	store := newTestStore(t, StoreConfig{Dim: 3})
	ctx := context.Background()

	require.NoError(t, store.Add(ctx, []rag.IndexEntry{
		entry("a", []float32{1, 0, 0}, nil),
		entry("b", []float32{0, 1, 0}, nil),
		entry("c", []float32{0, 0, 1}, nil),
	}))

	results, err := store.Query(ctx, []float32{1, 0, 0}, 2)
	require.NoError(t, err)
	assert.Len(t, results, 2)

	// topK larger than the collection returns what exists.
	results, err = store.Query(ctx, []float32{1, 0, 0}, 50)
	require.NoError(t, err)
	assert.Len(t, results, 3)
}

func TestQueryInvalidArguments(t *testing.T) {
	store := newTestStore(t, StoreConfig{Dim: 3})
	ctx := context.Background()

	_, err := store.Query(ctx, []float32{1, 0, 0}, 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, rag.ErrInvalidQuery))

	_, err = store.Query(ctx, nil, 5)
	require.Error(t, err)
	assert.True(t, errors.Is(err, rag.ErrInvalidQuery))

	// A wrong-width vector must fail loudly, not be truncated to fit.
	_, err = store.Query(ctx, []float32{1, 0}, 5)
	require.Error(t, err)
	assert.True(t, errors.Is(err, rag.ErrDimensionMismatch))
}

func TestQueryEmptyCollection(t *testing.T) {
	store := newTestStore(t, StoreConfig{Dim: 3})

	results, err := store.Query(context.Background(), []float32{1, 0, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestReopenRecoversEntries(t *testing.T) {
	dir := t.TempDir()
	config := StoreConfig{Collection: "persist", Dim: 3}
	ctx := context.Background()

	store, err := NewSQLiteStore(dir, config)
	require.NoError(t, err)
	require.NoError(t, store.Add(ctx, []rag.IndexEntry{
		entry("a", []float32{1, 0, 0}, map[string]string{"source": "a.txt"}),
	}))
	require.NoError(t, store.Close())

	reopened, err := NewSQLiteStore(dir, config)
	require.NoError(t, err)
	defer reopened.Close()

	count, err := reopened.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	results, err := reopened.Query(ctx, []float32{1, 0, 0}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].ID)
	assert.Equal(t, "a.txt", results[0].Metadata[rag.MetadataSourceKey])
}

func TestCollectionsAreIsolated(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	first, err := NewSQLiteStore(dir, StoreConfig{Collection: "one", Dim: 3})
	require.NoError(t, err)
	defer first.Close()
	second, err := NewSQLiteStore(dir, StoreConfig{Collection: "two", Dim: 3})
	require.NoError(t, err)
	defer second.Close()

	require.NoError(t, first.Add(ctx, []rag.IndexEntry{
		entry("a", []float32{1, 0, 0}, nil),
	}))

	count, err := second.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)

	// Same id in another collection is not a duplicate.
	require.NoError(t, second.Add(ctx, []rag.IndexEntry{
		entry("a", []float32{0, 1, 0}, nil),
	}))
}

func TestDeleteAndDeleteBySource(t *testing.T) {
	store := newTestStore(t, StoreConfig{Dim: 3})
	ctx := context.Background()

	require.NoError(t, store.Add(ctx, []rag.IndexEntry{
		entry("a1", []float32{1, 0, 0}, map[string]string{"source": "a.txt"}),
		entry("a2", []float32{0, 1, 0}, map[string]string{"source": "a.txt"}),
		entry("b1", []float32{0, 0, 1}, map[string]string{"source": "b.txt"}),
	}))

	require.NoError(t, store.Delete(ctx, []string{"b1"}))
	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	require.NoError(t, store.DeleteBySource(ctx, "a.txt"))
	count, err = store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)

	err = store.DeleteBySource(ctx, "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, rag.ErrInvalidQuery))
}

func TestClear(t *testing.T) {
	store := newTestStore(t, StoreConfig{Dim: 3})
	ctx := context.Background()

	require.NoError(t, store.Add(ctx, []rag.IndexEntry{
		entry("a", []float32{1, 0, 0}, nil),
		entry("b", []float32{0, 1, 0}, nil),
	}))

	require.NoError(t, store.Clear(ctx))
	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}

func TestCosineDistance(t *testing.T) {
	assert.InDelta(t, 0, cosineDistance([]float32{1, 0}, []float32{1, 0}), 1e-6)
	assert.InDelta(t, 1, cosineDistance([]float32{1, 0}, []float32{0, 1}), 1e-6)
	assert.InDelta(t, 2, cosineDistance([]float32{1, 0}, []float32{-1, 0}), 1e-6)
	assert.InDelta(t, 1, cosineDistance([]float32{0, 0}, []float32{1, 0}), 1e-6)
}

func TestVectorEncodingRoundTrip(t *testing.T) {
	vec := []float32{0.25, -1.5, 3.14159, 0}
	assert.Equal(t, vec, decodeVector(encodeVector(vec)))
	assert.Nil(t, decodeVector(nil))
	assert.Nil(t, encodeVector(nil))
}
