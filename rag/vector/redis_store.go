package vector

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"

	"atlas/rag"
)

const (
	// HNSW index tuning
	defaultEFConstruction = 200
	defaultM              = 16

	// Field names in Redis hash
	fieldContent   = "content"
	fieldEmbedding = "embedding"
	fieldSource    = "source"
	fieldMetadata  = "metadata"
	scoreField     = "score"
)

// RedisStore implements Store on Redis with RediSearch vector search. It is
// an alternative to SQLiteStore for deployments that already run Redis;
// durability is delegated to the Redis persistence configuration.
type RedisStore struct {
	client         *redis.Client
	config         StoreConfig
	efConstruction int
	m              int
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Addr           string
	Password       string
	DB             int
	PoolSize       int
	EFConstruction int
	M              int
}

// DefaultRedisConfig returns default Redis configuration from environment
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:           getEnvString("REDIS_ADDR", "localhost:6379"),
		Password:       getEnvString("REDIS_PASSWORD", ""),
		DB:             getEnvInt("REDIS_DB", 0),
		PoolSize:       getEnvInt("REDIS_POOL_SIZE", 10),
		EFConstruction: getEnvInt("HNSW_EF_CONSTRUCTION", defaultEFConstruction),
		M:              getEnvInt("HNSW_M", defaultM),
	}
}

// NewRedisStore connects to Redis and ensures the collection's vector index
// exists.
func NewRedisStore(ctx context.Context, cfg RedisConfig, config StoreConfig) (*RedisStore, error) {
	if config.Collection == "" {
		return nil, fmt.Errorf("%w: collection name is required", rag.ErrStorageIO)
	}
	if config.Dim <= 0 {
		config.Dim = DefaultEmbeddingDim
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("%w: connecting to Redis: %v", rag.ErrStorageIO, err)
	}

	store := &RedisStore{
		client:         client,
		config:         config,
		efConstruction: cfg.EFConstruction,
		m:              cfg.M,
	}

	if err := store.ensureIndex(ctx); err != nil {
		client.Close()
		return nil, err
	}

	return store, nil
}

// Collection returns the collection name this store is bound to.
func (s *RedisStore) Collection() string {
	return s.config.Collection
}

// keyPrefix scopes hash keys to the collection.
func (s *RedisStore) keyPrefix() string {
	return "vec:" + s.config.Collection + ":"
}

// indexName scopes the RediSearch index to the collection.
func (s *RedisStore) indexName() string {
	return "idx:" + s.config.Collection
}

// ensureIndex creates the HNSW vector index if it doesn't exist
func (s *RedisStore) ensureIndex(ctx context.Context) error {
	if _, err := s.client.Do(ctx, "FT.INFO", s.indexName()).Result(); err == nil {
		return nil
	}

	_, err := s.client.Do(ctx, "FT.CREATE", s.indexName(),
		"ON", "HASH",
		"PREFIX", "1", s.keyPrefix(),
		"SCHEMA",
		fieldEmbedding, "VECTOR", "HNSW", "10",
		"TYPE", "FLOAT32",
		"DIM", strconv.Itoa(s.config.Dim),
		"DISTANCE_METRIC", "COSINE",
		"EF_CONSTRUCTION", strconv.Itoa(s.efConstruction),
		"M", strconv.Itoa(s.m),
		fieldContent, "TEXT",
		fieldSource, "TAG",
	).Result()
	if err != nil {
		return fmt.Errorf("%w: creating vector index: %v", rag.ErrStorageIO, err)
	}

	return nil
}

// Add upserts entries by id using a pipeline of HSET commands.
func (s *RedisStore) Add(ctx context.Context, entries []rag.IndexEntry) error {
	if len(entries) == 0 {
		return nil
	}

	for _, e := range entries {
		if e.ID == "" {
			return fmt.Errorf("%w: entry id is required", rag.ErrStorageIO)
		}
		if len(e.Embedding) != s.config.Dim {
			return fmt.Errorf("%w: entry %s has dimension %d, store expects %d",
				rag.ErrDimensionMismatch, e.ID, len(e.Embedding), s.config.Dim)
		}
	}

	if s.config.StrictIDs {
		seen := make(map[string]struct{}, len(entries))
		for _, e := range entries {
			if _, dup := seen[e.ID]; dup {
				return fmt.Errorf("%w: %s repeated in batch", rag.ErrDuplicateID, e.ID)
			}
			seen[e.ID] = struct{}{}

			exists, err := s.client.Exists(ctx, s.keyPrefix()+e.ID).Result()
			if err != nil {
				return fmt.Errorf("%w: checking id: %v", rag.ErrStorageIO, err)
			}
			if exists > 0 {
				return fmt.Errorf("%w: %s", rag.ErrDuplicateID, e.ID)
			}
		}
	}

	pipe := s.client.Pipeline()
	for _, e := range entries {
		values, err := hashValues(e)
		if err != nil {
			return fmt.Errorf("%w: marshalling metadata: %v", rag.ErrStorageIO, err)
		}
		pipe.HSet(ctx, s.keyPrefix()+e.ID, values...)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: inserting entries: %v", rag.ErrStorageIO, err)
	}

	return nil
}

// hashValues builds the HSET field/value list for an entry. The source is
// stored raw; TAG escaping is query syntax only and belongs in
// sourceTagFilter, never in the stored value.
func hashValues(e rag.IndexEntry) ([]interface{}, error) {
	metadata := ensureMetadata(e.Metadata)
	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return nil, err
	}
	return []interface{}{
		fieldContent, e.Text,
		fieldEmbedding, encodeVector(e.Embedding),
		fieldSource, metadata[rag.MetadataSourceKey],
		fieldMetadata, metadataJSON,
	}, nil
}

// sourceTagFilter builds the FT.SEARCH query matching entries whose source
// TAG equals source.
func sourceTagFilter(source string) string {
	return fmt.Sprintf("@%s:{%s}", fieldSource, escapeTag(source))
}

// Query performs a KNN search against the collection index.
func (s *RedisStore) Query(ctx context.Context, vector []float32, topK int) ([]rag.SearchResult, error) {
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

	queryStr := fmt.Sprintf("*=>[KNN %d @%s $query_vector AS %s]", topK, fieldEmbedding, scoreField)

	result, err := s.client.Do(ctx, "FT.SEARCH", s.indexName(), queryStr,
		"PARAMS", "2", "query_vector", encodeVector(vector),
		"RETURN", "4", fieldContent, fieldSource, fieldMetadata, scoreField,
		"SORTBY", scoreField,
		"LIMIT", "0", strconv.Itoa(topK),
		"DIALECT", "2",
	).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: vector search: %v", rag.ErrStorageIO, err)
	}

	return s.parseSearchResults(result)
}

// parseSearchResults parses the FT.SEARCH reply: a count followed by
// alternating key and field-value pairs.
func (s *RedisStore) parseSearchResults(result interface{}) ([]rag.SearchResult, error) {
	values, ok := result.([]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: unexpected search reply shape", rag.ErrStorageIO)
	}
	if len(values) == 0 {
		return nil, nil
	}

	var results []rag.SearchResult
	for i := 1; i+1 < len(values); i += 2 {
		key, ok := values[i].(string)
		if !ok {
			continue
		}
		fields, ok := values[i+1].([]interface{})
		if !ok {
			continue
		}

		res := rag.SearchResult{
			ID:       strings.TrimPrefix(key, s.keyPrefix()),
			Metadata: make(map[string]string),
		}
		for j := 0; j+1 < len(fields); j += 2 {
			name, ok := fields[j].(string)
			if !ok {
				continue
			}
			value, ok := fields[j+1].(string)
			if !ok {
				continue
			}

			switch name {
			case fieldContent:
				res.Content = value
			case fieldMetadata:
				json.Unmarshal([]byte(value), &res.Metadata) //nolint:errcheck
			case scoreField:
				if dist, err := strconv.ParseFloat(value, 32); err == nil {
					res.Distance = float32(dist)
				}
			}
		}
		res.Similarity = 1 - res.Distance
		results = append(results, res)
	}

	return results, nil
}

// Count returns the number of entries via the index.
func (s *RedisStore) Count(ctx context.Context) (int64, error) {
	result, err := s.client.Do(ctx, "FT.SEARCH", s.indexName(), "*",
		"LIMIT", "0", "0").Result()
	if err != nil {
		return 0, fmt.Errorf("%w: counting entries: %v", rag.ErrStorageIO, err)
	}

	values, ok := result.([]interface{})
	if !ok || len(values) == 0 {
		return 0, fmt.Errorf("%w: unexpected count reply shape", rag.ErrStorageIO)
	}
	count, ok := values[0].(int64)
	if !ok {
		return 0, fmt.Errorf("%w: unexpected count reply shape", rag.ErrStorageIO)
	}
	return count, nil
}

// Delete removes entries by id.
func (s *RedisStore) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.keyPrefix() + id
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("%w: deleting entries: %v", rag.ErrStorageIO, err)
	}
	return nil
}

// DeleteBySource removes all entries ingested from the given source.
func (s *RedisStore) DeleteBySource(ctx context.Context, source string) error {
	if source == "" {
		return fmt.Errorf("%w: source cannot be empty", rag.ErrInvalidQuery)
	}

	result, err := s.client.Do(ctx, "FT.SEARCH", s.indexName(),
		sourceTagFilter(source),
		"NOCONTENT",
		"LIMIT", "0", "1000",
	).Result()
	if err != nil {
		return fmt.Errorf("%w: searching by source: %v", rag.ErrStorageIO, err)
	}

	values, ok := result.([]interface{})
	if !ok || len(values) < 2 {
		return nil
	}

	var keys []string
	for i := 1; i < len(values); i++ {
		if key, ok := values[i].(string); ok {
			keys = append(keys, key)
		}
	}

	if len(keys) > 0 {
		if err := s.client.Del(ctx, keys...).Err(); err != nil {
			return fmt.Errorf("%w: deleting entries: %v", rag.ErrStorageIO, err)
		}
	}
	return nil
}

// Clear removes every entry in the collection by scanning the key prefix.
func (s *RedisStore) Clear(ctx context.Context) error {
	iter := s.client.Scan(ctx, 0, s.keyPrefix()+"*", 500).Iterator()

	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("%w: scanning collection: %v", rag.ErrStorageIO, err)
	}

	if len(keys) > 0 {
		if err := s.client.Del(ctx, keys...).Err(); err != nil {
			return fmt.Errorf("%w: clearing collection: %v", rag.ErrStorageIO, err)
		}
	}
	return nil
}

// List returns entries without their embeddings.
func (s *RedisStore) List(ctx context.Context, limit, offset int) ([]rag.IndexEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	result, err := s.client.Do(ctx, "FT.SEARCH", s.indexName(), "*",
		"RETURN", "2", fieldContent, fieldMetadata,
		"LIMIT", strconv.Itoa(offset), strconv.Itoa(limit),
	).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: listing entries: %v", rag.ErrStorageIO, err)
	}

	values, ok := result.([]interface{})
	if !ok || len(values) < 2 {
		return nil, nil
	}

	var entries []rag.IndexEntry
	for i := 1; i+1 < len(values); i += 2 {
		key, ok := values[i].(string)
		if !ok {
			continue
		}
		fields, ok := values[i+1].([]interface{})
		if !ok {
			continue
		}

		e := rag.IndexEntry{
			ID:       strings.TrimPrefix(key, s.keyPrefix()),
			Metadata: make(map[string]string),
		}
		for j := 0; j+1 < len(fields); j += 2 {
			name, _ := fields[j].(string)
			value, _ := fields[j+1].(string)
			switch name {
			case fieldContent:
				e.Text = value
			case fieldMetadata:
				json.Unmarshal([]byte(value), &e.Metadata) //nolint:errcheck
			}
		}
		entries = append(entries, e)
	}

	return entries, nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// escapeTag escapes characters that are special in RediSearch TAG queries.
func escapeTag(s string) string {
	replacer := strings.NewReplacer(
		",", "\\,",
		".", "\\.",
		"<", "\\<",
		">", "\\>",
		"{", "\\{",
		"}", "\\}",
		"[", "\\[",
		"]", "\\]",
		"\"", "\\\"",
		"'", "\\'",
		":", "\\:",
		";", "\\;",
		"!", "\\!",
		"@", "\\@",
		"#", "\\#",
		"$", "\\$",
		"%", "\\%",
		"^", "\\^",
		"&", "\\&",
		"*", "\\*",
		"(", "\\(",
		")", "\\)",
		"-", "\\-",
		"+", "\\+",
		"=", "\\=",
		"~", "\\~",
		" ", "\\ ",
		"/", "\\/",
	)
	return replacer.Replace(s)
}

var _ Store = (*RedisStore)(nil)
