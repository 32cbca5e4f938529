package vector

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"atlas/rag"
)

// Defaults match the knowledge pipeline's tuning: 512-char windows with
// 128 chars of overlap (~25%).
const (
	DefaultChunkSize    = 512
	DefaultChunkOverlap = 128
)

// ChunkConfig configures how documents are split into chunks
type ChunkConfig struct {
	ChunkSize    int // Window size in characters (runes)
	ChunkOverlap int // Characters shared between adjacent chunks
}

// DefaultChunkConfig returns the default chunk configuration, overridable
// through CHUNK_SIZE and CHUNK_OVERLAP.
func DefaultChunkConfig() ChunkConfig {
	return ChunkConfig{
		ChunkSize:    getEnvInt("CHUNK_SIZE", DefaultChunkSize),
		ChunkOverlap: getEnvInt("CHUNK_OVERLAP", DefaultChunkOverlap),
	}
}

// getEnvInt reads an integer from environment variable
func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		var result int
		if _, err := fmt.Sscanf(val, "%d", &result); err == nil {
			return result
		}
	}
	return defaultVal
}

// Chunker splits normalized text into overlapping fixed-size windows.
// Chunking is deterministic: identical input and config always produce
// identical boundaries and ids, which is what makes re-ingestion idempotent.
type Chunker struct {
	config ChunkConfig
}

// NewChunker validates the configuration and returns a chunker.
// Constraints: chunk_size > 0 and 0 <= overlap < chunk_size.
func NewChunker(config ChunkConfig) (*Chunker, error) {
	if config.ChunkSize <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d",
			rag.ErrInvalidChunkConfig, config.ChunkSize)
	}
	if config.ChunkOverlap < 0 {
		return nil, fmt.Errorf("%w: overlap must not be negative, got %d",
			rag.ErrInvalidChunkConfig, config.ChunkOverlap)
	}
	if config.ChunkOverlap >= config.ChunkSize {
		return nil, fmt.Errorf("%w: overlap %d must be smaller than chunk size %d",
			rag.ErrInvalidChunkConfig, config.ChunkOverlap, config.ChunkSize)
	}
	return &Chunker{config: config}, nil
}

// Config returns the chunker's configuration.
func (c *Chunker) Config() ChunkConfig {
	return c.config
}

// Chunk splits text into overlapping windows. The window slides by
// chunk_size-overlap each step; the final chunk may be shorter than
// chunk_size. Offsets are rune offsets; multibyte characters are never
// split. Empty or all-whitespace text yields no chunks.
func (c *Chunker) Chunk(text, sourceID string) []rag.Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	runes := []rune(text)
	size := c.config.ChunkSize
	step := size - c.config.ChunkOverlap

	var chunks []rag.Chunk
	start := 0
	for {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}

		chunks = append(chunks, rag.Chunk{
			ID:            ChunkID(sourceID, start),
			Text:          string(runes[start:end]),
			StartOffset:   start,
			EndOffset:     end,
			SourceID:      sourceID,
			SequenceIndex: len(chunks),
		})

		if end == len(runes) {
			break
		}
		start += step
	}

	return chunks
}

// ChunkID derives a deterministic chunk identifier from the source id and
// the chunk's start offset.
func ChunkID(sourceID string, startOffset int) string {
	h := sha256.New()
	h.Write([]byte(sourceID))
	h.Write([]byte(fmt.Sprintf(":%d", startOffset)))
	return hex.EncodeToString(h.Sum(nil))[:32]
}
