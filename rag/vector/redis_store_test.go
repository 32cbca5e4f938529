package vector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"atlas/rag"
)

// The stored source value must stay raw: RediSearch keeps hash field values
// as-is and unescapes TAG queries at parse time, so a value escaped at write
// time could never be matched again.
func TestHashValuesKeepRawSource(t *testing.T) {
	values, err := hashValues(rag.IndexEntry{
		ID:        "c1",
		Text:      "body",
		Embedding: []float32{1, 0},
		Metadata:  map[string]string{"source": "docs/a.txt"},
	})
	require.NoError(t, err)

	fields := make(map[string]interface{})
	for i := 0; i+1 < len(values); i += 2 {
		fields[values[i].(string)] = values[i+1]
	}
	assert.Equal(t, "docs/a.txt", fields[fieldSource])
	assert.Equal(t, "body", fields[fieldContent])
}

func TestHashValuesInjectDefaultSource(t *testing.T) {
	values, err := hashValues(rag.IndexEntry{ID: "c1", Text: "body", Embedding: []float32{1, 0}})
	require.NoError(t, err)

	fields := make(map[string]interface{})
	for i := 0; i+1 < len(values); i += 2 {
		fields[values[i].(string)] = values[i+1]
	}
	assert.Equal(t, "unknown", fields[fieldSource])
}

func TestSourceTagFilterEscapesQueryOnly(t *testing.T) {
	assert.Equal(t, `@source:{docs\/a\.txt}`, sourceTagFilter("docs/a.txt"))
	assert.Equal(t, `@source:{a\ b\,c}`, sourceTagFilter("a b,c"))
}

func TestEscapeTag(t *testing.T) {
	assert.Equal(t, `plain`, escapeTag("plain"))
	assert.Equal(t, `a\.b\/c\-d`, escapeTag("a.b/c-d"))
}

func TestParseSearchResults(t *testing.T) {
	s := &RedisStore{config: StoreConfig{Collection: "kb", Dim: 2}}

	reply := []interface{}{
		int64(2),
		"vec:kb:id1",
		[]interface{}{
			fieldContent, "first hit",
			fieldMetadata, `{"source":"docs/a.txt"}`,
			scoreField, "0.25",
		},
		"vec:kb:id2",
		[]interface{}{
			fieldContent, "second hit",
			fieldMetadata, `{"source":"docs/b.txt"}`,
			scoreField, "0.5",
		},
	}

	results, err := s.parseSearchResults(reply)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "id1", results[0].ID)
	assert.Equal(t, "first hit", results[0].Content)
	assert.InDelta(t, 0.25, results[0].Distance, 1e-6)
	assert.InDelta(t, 0.75, results[0].Similarity, 1e-6)
	assert.Equal(t, "docs/a.txt", results[0].Metadata["source"])
	assert.Equal(t, "id2", results[1].ID)
}

func TestParseSearchResultsEmpty(t *testing.T) {
	s := &RedisStore{config: StoreConfig{Collection: "kb"}}

	results, err := s.parseSearchResults([]interface{}{int64(0)})
	require.NoError(t, err)
	assert.Empty(t, results)

	_, err = s.parseSearchResults("garbage")
	require.Error(t, err)
}
