package rag

// Format identifies the source format of an ingested document.
type Format string

const (
	FormatTXT      Format = "txt"
	FormatMarkdown Format = "md"
	FormatHTML     Format = "html"
	FormatDocx     Format = "docx"
	FormatPDF      Format = "pdf"
	FormatUnknown  Format = "unknown"
)

// String returns the string representation of the Format.
func (f Format) String() string {
	return string(f)
}

// Document is a normalized source document produced by the parser layer.
// It is immutable once produced and consumed exactly once by the chunker.
type Document struct {
	SourceID   string            // stable identifier, the cleaned file path
	Content    string            // normalized plain text
	Format     Format            // source format
	ByteLength int               // size of the raw source in bytes
	Title      string            // extracted or caller-supplied title
	Metadata   map[string]string // per-format parse metadata
}

// Chunk is a contiguous slice of a document's content, the unit that gets
// embedded and indexed. Offsets are rune offsets into the normalized content.
type Chunk struct {
	ID            string // deterministic, derived from SourceID and StartOffset
	Text          string
	StartOffset   int
	EndOffset     int
	SourceID      string
	SequenceIndex int // 0-based order within the document
}

// IndexEntry is the persisted unit inside a vector store collection.
// Metadata must never be persisted empty; stores inject {"source": <source>}
// when the caller supplies none.
type IndexEntry struct {
	ID        string            `json:"id"`
	Text      string            `json:"text"`
	Embedding []float32         `json:"embedding,omitempty"`
	Metadata  map[string]string `json:"metadata"`
}

// MetadataSourceKey is the minimal required metadata key on every IndexEntry.
const MetadataSourceKey = "source"

// SearchResult is one ranked hit from a vector store query. Distance is the
// store-native cosine distance (lower is more similar); Similarity is the
// derived 1-distance score used for threshold comparison and presentation.
type SearchResult struct {
	ID         string
	Content    string
	Distance   float32
	Similarity float32
	Metadata   map[string]string
}

// FileError records a single file that failed during directory ingestion.
type FileError struct {
	Path string
	Err  error
}

// IngestReport aggregates the outcome of a directory ingestion. A file-local
// failure never aborts the batch; it lands in Failed instead.
type IngestReport struct {
	Succeeded   map[string]int // path -> chunks stored
	Failed      []FileError
	TotalChunks int
}

// NewIngestReport returns an empty report ready to collect results.
func NewIngestReport() *IngestReport {
	return &IngestReport{Succeeded: make(map[string]int)}
}
