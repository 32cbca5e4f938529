package parser

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"atlas/rag"
)

// blockSelector covers the elements whose text is extracted as paragraphs.
const blockSelector = "h1, h2, h3, h4, h5, h6, p, li, td, th, pre, blockquote"

// HTMLParser handles HTML files
type HTMLParser struct{}

// NewHTMLParser creates a new HTML parser
func NewHTMLParser() *HTMLParser {
	return &HTMLParser{}
}

// Parse reads and parses HTML from the reader
func (p *HTMLParser) Parse(ctx context.Context, r io.Reader) (*rag.Document, error) {
	return p.parse(r, "")
}

// ParseFile reads and parses an HTML file
func (p *HTMLParser) ParseFile(ctx context.Context, filePath string) (*rag.Document, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	defer f.Close()

	return p.parse(f, filePath)
}

// parse extracts the readable text from an HTML document
func (p *HTMLParser) parse(r io.Reader, filePath string) (*rag.Document, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	doc.Find("script, style, noscript").Remove()

	title := strings.TrimSpace(doc.Find("title").First().Text())
	if title == "" {
		title = strings.TrimSpace(doc.Find("h1").First().Text())
	}

	// Collect block-level text so paragraph boundaries survive extraction
	var parts []string
	blocks := doc.Find(blockSelector)
	blocks.Each(func(_ int, s *goquery.Selection) {
		// Skip containers whose text is covered by a nested block
		if s.Find(blockSelector).Length() > 0 {
			return
		}
		if text := strings.TrimSpace(s.Text()); text != "" {
			parts = append(parts, text)
		}
	})

	content := strings.Join(parts, "\n\n")
	if content == "" {
		content = strings.TrimSpace(doc.Find("body").Text())
	}

	if title == "" {
		title = ExtractTitle(content, filePath)
	}

	return &rag.Document{
		Content: content,
		Title:   title,
		Metadata: map[string]string{
			"block_count": strconv.Itoa(blocks.Length()),
		},
	}, nil
}

// Format returns the document format this parser handles
func (p *HTMLParser) Format() rag.Format {
	return rag.FormatHTML
}
