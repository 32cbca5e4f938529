package rag

import "errors"

// Sentinel errors for the knowledge pipeline. Components wrap these with
// fmt.Errorf("...: %w", ...) so callers can classify failures with errors.Is.
var (
	// ErrUnsupportedFormat - the file extension maps to no registered parser.
	ErrUnsupportedFormat = errors.New("unsupported document format")

	// ErrEmptyDocument - extracted text is blank after normalization.
	ErrEmptyDocument = errors.New("document contains no extractable text")

	// ErrCorruptSource - a binary parser could not extract any text.
	ErrCorruptSource = errors.New("corrupt source document")

	// ErrInvalidChunkConfig - chunk size/overlap constraints violated.
	ErrInvalidChunkConfig = errors.New("invalid chunk configuration")

	// ErrEmbeddingService - the embedding service failed after retries.
	ErrEmbeddingService = errors.New("embedding service failure")

	// ErrDimensionMismatch - a returned vector does not match the configured
	// dimension. Treated as fatal: a silent mismatch would corrupt the store.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrStorageIO - the persistence backend failed.
	ErrStorageIO = errors.New("vector storage failure")

	// ErrDuplicateID - an id already exists and the store is in strict mode.
	ErrDuplicateID = errors.New("duplicate entry id")

	// ErrInvalidQuery - malformed query parameters (top_k < 1, empty vector).
	ErrInvalidQuery = errors.New("invalid query")

	// ErrNotReady - the retriever was used before opening or after closing.
	ErrNotReady = errors.New("retriever is not ready")
)
