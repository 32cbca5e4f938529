package parser

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/fumiama/go-docx"

	"atlas/rag"
)

// DocxParser handles Word documents (.docx) using go-docx. Paragraphs and
// tables are extracted structurally, in document order.
type DocxParser struct{}

// NewDocxParser creates a new DOCX parser
func NewDocxParser() *DocxParser {
	return &DocxParser{}
}

// Parse reads and parses DOCX from the reader
func (p *DocxParser) Parse(ctx context.Context, r io.Reader) (*rag.Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read DOCX: %w", err)
	}

	return p.parse(strings.NewReader(string(data)), int64(len(data)), "")
}

// ParseFile reads and parses a DOCX file
func (p *DocxParser) ParseFile(ctx context.Context, filePath string) (*rag.Document, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	return p.parse(f, info.Size(), filePath)
}

// parse extracts paragraph and table text from the DOCX archive
func (p *DocxParser) parse(r io.ReaderAt, size int64, filePath string) (*rag.Document, error) {
	doc, err := docx.Parse(r, size)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", rag.ErrCorruptSource, filePath, err)
	}

	var (
		parts      []string
		paragraphs int
		tables     int
	)

	for _, item := range doc.Document.Body.Items {
		switch it := item.(type) {
		case *docx.Paragraph:
			if text := strings.TrimSpace(it.String()); text != "" {
				parts = append(parts, text)
				paragraphs++
			}
		case *docx.Table:
			if text := strings.TrimSpace(it.String()); text != "" {
				parts = append(parts, text)
				tables++
			}
		}
	}

	if len(parts) == 0 {
		return nil, fmt.Errorf("%w: %s: no text extracted", rag.ErrCorruptSource, filePath)
	}

	content := strings.Join(parts, "\n\n")

	return &rag.Document{
		Content: content,
		Title:   ExtractTitle(content, filePath),
		Metadata: map[string]string{
			"paragraph_count": strconv.Itoa(paragraphs),
			"table_count":     strconv.Itoa(tables),
		},
	}, nil
}

// Format returns the document format this parser handles
func (p *DocxParser) Format() rag.Format {
	return rag.FormatDocx
}
