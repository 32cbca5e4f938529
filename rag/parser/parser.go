package parser

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"atlas/rag"
)

// Parser defines the interface for document parsers. Parsers extract raw text
// and metadata; normalization happens once at the Registry boundary.
type Parser interface {
	// Parse reads and parses a document from the reader
	Parse(ctx context.Context, r io.Reader) (*rag.Document, error)

	// ParseFile reads and parses a document from a file path
	ParseFile(ctx context.Context, filePath string) (*rag.Document, error)

	// Format returns the document format this parser handles
	Format() rag.Format
}

// Registry holds all registered parsers and is the single entry point for
// turning a source file into a normalized rag.Document.
type Registry struct {
	parsers map[rag.Format]Parser
}

// NewRegistry creates a new parser registry with no parsers registered.
func NewRegistry() *Registry {
	return &Registry{
		parsers: make(map[rag.Format]Parser),
	}
}

// DefaultRegistry returns a registry with all supported parsers registered:
// plain text, markdown, HTML, DOCX and PDF.
func DefaultRegistry() *Registry {
	reg := NewRegistry()
	reg.Register(NewTxtParser())
	reg.Register(NewMarkdownParser())
	reg.Register(NewHTMLParser())
	reg.Register(NewDocxParser())
	reg.Register(NewPDFParser())
	return reg
}

// Register adds a parser to the registry.
func (r *Registry) Register(p Parser) {
	r.parsers[p.Format()] = p
}

// GetParser returns a parser for the given format.
func (r *Registry) GetParser(f rag.Format) (Parser, bool) {
	p, ok := r.parsers[f]
	return p, ok
}

// Supported reports whether the registry has a parser for the file's extension.
func (r *Registry) Supported(filePath string) bool {
	_, ok := r.parsers[FormatFromPath(filePath)]
	return ok
}

// Process parses a file with the appropriate parser and returns the fully
// normalized document. It fails with rag.ErrUnsupportedFormat for unknown
// extensions and rag.ErrEmptyDocument when no text survives normalization.
func (r *Registry) Process(ctx context.Context, filePath string) (*rag.Document, error) {
	filePath = filepath.Clean(filePath)

	format := FormatFromPath(filePath)
	p, ok := r.parsers[format]
	if !ok {
		return nil, fmt.Errorf("%w: %s", rag.ErrUnsupportedFormat, filepath.Ext(filePath))
	}

	info, err := os.Stat(filePath)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", filePath, err)
	}

	doc, err := p.ParseFile(ctx, filePath)
	if err != nil {
		return nil, err
	}

	doc.SourceID = filePath
	doc.Format = format
	doc.ByteLength = int(info.Size())
	doc.Content = NormalizeText(doc.Content)
	if doc.Metadata == nil {
		doc.Metadata = make(map[string]string)
	}

	if doc.Content == "" {
		return nil, fmt.Errorf("%w: %s", rag.ErrEmptyDocument, filePath)
	}

	return doc, nil
}

// FormatFromPath maps a file path's extension to a document format.
func FormatFromPath(filePath string) rag.Format {
	ext := strings.TrimPrefix(filepath.Ext(filePath), ".")
	switch strings.ToLower(ext) {
	case "pdf":
		return rag.FormatPDF
	case "docx":
		return rag.FormatDocx
	case "md", "markdown":
		return rag.FormatMarkdown
	case "html", "htm":
		return rag.FormatHTML
	case "txt":
		return rag.FormatTXT
	default:
		return rag.FormatUnknown
	}
}

// ExtractTitle extracts a title from content (first line or heading).
func ExtractTitle(content, filePath string) string {
	content = strings.TrimSpace(content)
	if content == "" {
		return filepath.Base(filePath)
	}

	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		line = strings.TrimSpace(strings.TrimLeft(line, "#"))
		if line != "" && len(line) < 100 {
			return line
		}
		break
	}

	return filepath.Base(filePath)
}
