package retriever

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/bmatcuk/doublestar/v4"

	"atlas/pubsub"
	"atlas/rag"
	"atlas/rag/parser"
	"atlas/rag/vector"
)

const (
	// DefaultTopK is the number of results returned when none is requested.
	DefaultTopK = 5
	// DefaultThreshold is the minimum similarity applied when none is requested.
	DefaultThreshold = 0.7
	// DefaultMaxContextChars caps the assembled context string.
	DefaultMaxContextChars = 4000
	// DefaultContextSeparator joins result snippets in assembled context.
	DefaultContextSeparator = "\n\n---\n\n"
	// DefaultGlobPattern matches every file under an ingested directory.
	DefaultGlobPattern = "**/*"
)

// Config assembles the pipeline components behind a Retriever.
type Config struct {
	Registry *parser.Registry
	Chunker  *vector.Chunker
	Embedder *vector.EmbeddingClient
	Store    vector.Store

	// Broker is optional. When set, the retriever publishes lifecycle
	// events for ingestion, deletion, and search.
	Broker *pubsub.Broker[pubsub.KnowledgeEvent]

	TopK            int
	Threshold       float32
	MaxContextChars int
}

// Retriever is the facade over the full pipeline: parse, chunk, embed,
// store, and query. A Retriever is ready after New returns and stops
// accepting calls after Close.
type Retriever struct {
	registry *parser.Registry
	chunker  *vector.Chunker
	embedder *vector.EmbeddingClient
	store    vector.Store
	broker   *pubsub.Broker[pubsub.KnowledgeEvent]

	topK            int
	threshold       float32
	maxContextChars int

	mu     sync.RWMutex
	closed bool
}

// New validates the configuration and returns a ready Retriever.
func New(config Config) (*Retriever, error) {
	if config.Registry == nil {
		return nil, fmt.Errorf("%w: document parser is not initialized", rag.ErrNotReady)
	}
	if config.Chunker == nil {
		return nil, fmt.Errorf("%w: chunker is not initialized", rag.ErrNotReady)
	}
	if config.Embedder == nil {
		return nil, fmt.Errorf("%w: embedding client is not initialized", rag.ErrNotReady)
	}
	if config.Store == nil {
		return nil, fmt.Errorf("%w: vector store is not initialized", rag.ErrNotReady)
	}

	topK := config.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}
	threshold := config.Threshold
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	maxContext := config.MaxContextChars
	if maxContext <= 0 {
		maxContext = DefaultMaxContextChars
	}

	return &Retriever{
		registry:        config.Registry,
		chunker:         config.Chunker,
		embedder:        config.Embedder,
		store:           config.Store,
		broker:          config.Broker,
		topK:            topK,
		threshold:       threshold,
		maxContextChars: maxContext,
	}, nil
}

// checkReady reports ErrNotReady once the retriever is closed.
func (r *Retriever) checkReady() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return fmt.Errorf("%w: retriever is closed", rag.ErrNotReady)
	}
	return nil
}

// IngestFile parses, chunks, embeds, and stores one file. Entries from a
// previous ingestion of the same file are replaced by id, so re-ingesting
// is idempotent. Returns the number of chunks stored.
func (r *Retriever) IngestFile(ctx context.Context, filePath string) (int, error) {
	if err := r.checkReady(); err != nil {
		return 0, err
	}

	doc, err := r.registry.Process(ctx, filePath)
	if err != nil {
		return 0, err
	}

	chunks := r.chunker.Chunk(doc.Content, doc.SourceID)
	if len(chunks) == 0 {
		return 0, fmt.Errorf("%w: %s", rag.ErrEmptyDocument, filePath)
	}

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Text
	}

	vectors, err := r.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("embedding %s: %w", filePath, err)
	}

	entries := make([]rag.IndexEntry, len(chunks))
	for i, chunk := range chunks {
		metadata := map[string]string{
			rag.MetadataSourceKey: doc.SourceID,
			"title":               doc.Title,
			"format":              doc.Format.String(),
			"chunk_index":         strconv.Itoa(chunk.SequenceIndex),
			"chunk_count":         strconv.Itoa(len(chunks)),
		}
		for k, v := range doc.Metadata {
			if _, taken := metadata[k]; !taken {
				metadata[k] = v
			}
		}

		entries[i] = rag.IndexEntry{
			ID:        chunk.ID,
			Text:      chunk.Text,
			Embedding: vectors[i],
			Metadata:  metadata,
		}
	}

	// A single Add keeps ingestion all-or-nothing per file.
	if err := r.store.Add(ctx, entries); err != nil {
		return 0, fmt.Errorf("storing %s: %w", filePath, err)
	}

	log.Printf("[retriever] ingested %s: %d chunks", filePath, len(entries))
	r.publish(pubsub.DocumentIngestedEvent, pubsub.KnowledgeEvent{
		Collection: r.store.Collection(),
		Source:     doc.SourceID,
		Chunks:     len(entries),
	})

	return len(entries), nil
}

// IngestDirectory walks root recursively and ingests every supported file
// matching pattern (DefaultGlobPattern when empty). A file that fails does
// not stop the walk; its error is collected in the report. The returned
// error is non-nil only when root itself cannot be read.
func (r *Retriever) IngestDirectory(ctx context.Context, root, pattern string) (*rag.IngestReport, error) {
	if err := r.checkReady(); err != nil {
		return nil, err
	}

	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("%w: reading directory: %v", rag.ErrStorageIO, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", rag.ErrStorageIO, root)
	}

	if pattern == "" {
		pattern = DefaultGlobPattern
	}

	matches, err := doublestar.Glob(os.DirFS(root), pattern)
	if err != nil {
		return nil, fmt.Errorf("%w: matching %q: %v", rag.ErrStorageIO, pattern, err)
	}
	sort.Strings(matches)

	report := rag.NewIngestReport()
	for _, rel := range matches {
		full := filepath.Join(root, rel)

		fi, err := os.Lstat(full)
		if err != nil {
			report.Failed = append(report.Failed, rag.FileError{Path: full, Err: err})
			continue
		}
		if fi.IsDir() || !fi.Mode().IsRegular() {
			continue
		}
		if !r.registry.Supported(full) {
			continue
		}

		n, err := r.IngestFile(ctx, full)
		if err != nil {
			report.Failed = append(report.Failed, rag.FileError{Path: full, Err: err})
			continue
		}
		report.Succeeded[full] = n
		report.TotalChunks += n
	}

	log.Printf("[retriever] directory %s: %d files ingested, %d failed, %d chunks",
		root, len(report.Succeeded), len(report.Failed), report.TotalChunks)
	return report, nil
}

// SearchOption adjusts a single search call.
type SearchOption func(*searchParams)

type searchParams struct {
	topK      int
	threshold float32
}

// WithTopK overrides the number of results for one call.
func WithTopK(k int) SearchOption {
	return func(p *searchParams) { p.topK = k }
}

// WithThreshold overrides the minimum similarity for one call. Zero
// disables filtering.
func WithThreshold(t float32) SearchOption {
	return func(p *searchParams) { p.threshold = t }
}

// Search embeds the query and returns up to topK results ordered by
// ascending distance, filtered to results whose similarity meets the
// threshold. An empty slice after filtering is a normal outcome.
func (r *Retriever) Search(ctx context.Context, query string, opts ...SearchOption) ([]rag.SearchResult, error) {
	if err := r.checkReady(); err != nil {
		return nil, err
	}

	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: query cannot be empty", rag.ErrInvalidQuery)
	}

	params := searchParams{topK: r.topK, threshold: r.threshold}
	for _, opt := range opts {
		opt(&params)
	}
	if params.topK < 1 {
		return nil, fmt.Errorf("%w: top_k must be >= 1, got %d", rag.ErrInvalidQuery, params.topK)
	}

	queryVector, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	// Over-fetch when filtering so the threshold does not starve topK.
	fetchK := params.topK
	if params.threshold > 0 {
		fetchK = params.topK * 2
	}

	results, err := r.store.Query(ctx, queryVector, fetchK)
	if err != nil {
		return nil, err
	}

	if params.threshold > 0 {
		filtered := results[:0]
		for _, res := range results {
			if res.Similarity >= params.threshold {
				filtered = append(filtered, res)
			}
		}
		results = filtered
	}
	if len(results) > params.topK {
		results = results[:params.topK]
	}

	r.publish(pubsub.SearchCompletedEvent, pubsub.KnowledgeEvent{
		Collection: r.store.Collection(),
		Query:      query,
		Results:    len(results),
	})

	return results, nil
}

// SearchContext runs Search and assembles the result texts into one
// context string, separated and capped for prompt injection. Returns ""
// when nothing matches.
func (r *Retriever) SearchContext(ctx context.Context, query string, opts ...SearchOption) (string, error) {
	results, err := r.Search(ctx, query, opts...)
	if err != nil {
		return "", err
	}
	if len(results) == 0 {
		return "", nil
	}

	// The budget is in characters, matching the chunker's rune windows.
	var sb strings.Builder
	written := 0
	for i, res := range results {
		piece := res.Content
		if i > 0 {
			piece = DefaultContextSeparator + piece
		}
		n := utf8.RuneCountInString(piece)
		if written+n > r.maxContextChars {
			break
		}
		sb.WriteString(piece)
		written += n
	}
	return sb.String(), nil
}

// DeleteSource removes every stored entry ingested from source.
func (r *Retriever) DeleteSource(ctx context.Context, source string) error {
	if err := r.checkReady(); err != nil {
		return err
	}
	if err := r.store.DeleteBySource(ctx, source); err != nil {
		return err
	}
	r.publish(pubsub.DocumentDeletedEvent, pubsub.KnowledgeEvent{
		Collection: r.store.Collection(),
		Source:     source,
	})
	return nil
}

// Count returns the number of stored entries.
func (r *Retriever) Count(ctx context.Context) (int64, error) {
	if err := r.checkReady(); err != nil {
		return 0, err
	}
	return r.store.Count(ctx)
}

// Clear removes every entry in the collection.
func (r *Retriever) Clear(ctx context.Context) error {
	if err := r.checkReady(); err != nil {
		return err
	}
	if err := r.store.Clear(ctx); err != nil {
		return err
	}
	r.publish(pubsub.CollectionClearedEvent, pubsub.KnowledgeEvent{
		Collection: r.store.Collection(),
	})
	return nil
}

// List returns stored entries without embeddings, for inspection.
func (r *Retriever) List(ctx context.Context, limit, offset int) ([]rag.IndexEntry, error) {
	if err := r.checkReady(); err != nil {
		return nil, err
	}
	return r.store.List(ctx, limit, offset)
}

// Stats describes the retriever's configuration and current size.
type Stats struct {
	Collection   string
	Entries      int64
	ChunkSize    int
	ChunkOverlap int
	Dimension    int
}

// Stats reports the collection name, entry count, and pipeline settings.
func (r *Retriever) Stats(ctx context.Context) (Stats, error) {
	if err := r.checkReady(); err != nil {
		return Stats{}, err
	}
	count, err := r.store.Count(ctx)
	if err != nil {
		return Stats{}, err
	}
	chunkCfg := r.chunker.Config()
	return Stats{
		Collection:   r.store.Collection(),
		Entries:      count,
		ChunkSize:    chunkCfg.ChunkSize,
		ChunkOverlap: chunkCfg.ChunkOverlap,
		Dimension:    r.embedder.Dimension(),
	}, nil
}

// Close releases the store. Any later call returns ErrNotReady. Close is
// idempotent.
func (r *Retriever) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	return r.store.Close()
}

func (r *Retriever) publish(t pubsub.EventType, event pubsub.KnowledgeEvent) {
	if r.broker != nil {
		r.broker.Publish(t, event)
	}
}
