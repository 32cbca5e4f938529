package parser

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"atlas/rag"
)

// TxtParser handles plain text files
type TxtParser struct{}

// NewTxtParser creates a new plain text parser
func NewTxtParser() *TxtParser {
	return &TxtParser{}
}

// Parse reads and parses plain text from the reader
func (p *TxtParser) Parse(ctx context.Context, r io.Reader) (*rag.Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read text: %w", err)
	}

	content := string(data)
	return &rag.Document{
		Content:  content,
		Title:    ExtractTitle(content, ""),
		Metadata: make(map[string]string),
	}, nil
}

// ParseFile reads and parses a plain text file
func (p *TxtParser) ParseFile(ctx context.Context, filePath string) (*rag.Document, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	content := string(data)
	return &rag.Document{
		Content: content,
		Title:   ExtractTitle(content, filePath),
		Metadata: map[string]string{
			"file_size":  strconv.Itoa(len(data)),
			"line_count": strconv.Itoa(strings.Count(content, "\n") + 1),
		},
	}, nil
}

// Format returns the document format this parser handles
func (p *TxtParser) Format() rag.Format {
	return rag.FormatTXT
}
