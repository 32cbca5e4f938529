package parser

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/ledongthuc/pdf"

	"atlas/rag"
)

// PDFParser handles PDF files. Text is extracted per page; pages that yield
// no text are skipped rather than failing the whole document.
type PDFParser struct{}

// NewPDFParser creates a new PDF parser
func NewPDFParser() *PDFParser {
	return &PDFParser{}
}

// Parse reads and parses PDF from the reader
func (p *PDFParser) Parse(ctx context.Context, r io.Reader) (*rag.Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read PDF: %w", err)
	}

	reader, err := pdf.NewReader(strings.NewReader(string(data)), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", rag.ErrCorruptSource, err)
	}

	return p.extract(reader, "")
}

// ParseFile reads and parses a PDF file
func (p *PDFParser) ParseFile(ctx context.Context, filePath string) (*rag.Document, error) {
	f, reader, err := pdf.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", rag.ErrCorruptSource, filePath, err)
	}
	defer f.Close()

	return p.extract(reader, filePath)
}

// extract walks the page tree and collects plain text page by page
func (p *PDFParser) extract(reader *pdf.Reader, filePath string) (*rag.Document, error) {
	numPages := reader.NumPage()

	var parts []string
	var firstPage string
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		if text = strings.TrimSpace(text); text != "" {
			if firstPage == "" {
				firstPage = text
			}
			parts = append(parts, fmt.Sprintf("[page %d]\n%s", i, text))
		}
	}

	if len(parts) == 0 {
		return nil, fmt.Errorf("%w: %s: no text extracted", rag.ErrCorruptSource, filePath)
	}

	content := strings.Join(parts, "\n\n")

	return &rag.Document{
		Content: content,
		Title:   ExtractTitle(firstPage, filePath),
		Metadata: map[string]string{
			"page_count": strconv.Itoa(numPages),
		},
	}, nil
}

// Format returns the document format this parser handles
func (p *PDFParser) Format() rag.Format {
	return rag.FormatPDF
}
