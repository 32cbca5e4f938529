package parser

import (
	"context"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"

	"atlas/rag"
)

// MarkdownParser handles markdown files
type MarkdownParser struct {
	// stripCodeBlocks whether to remove code blocks from content
	stripCodeBlocks bool
}

// NewMarkdownParser creates a new markdown parser
func NewMarkdownParser() *MarkdownParser {
	return &MarkdownParser{
		stripCodeBlocks: false, // Keep code blocks by default
	}
}

// Parse reads and parses markdown from the reader
func (p *MarkdownParser) Parse(ctx context.Context, r io.Reader) (*rag.Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read markdown: %w", err)
	}

	return p.parse(string(data), ""), nil
}

// ParseFile reads and parses a markdown file
func (p *MarkdownParser) ParseFile(ctx context.Context, filePath string) (*rag.Document, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	return p.parse(string(data), filePath), nil
}

// parse processes the markdown content
func (p *MarkdownParser) parse(content, filePath string) *rag.Document {
	metadata := p.extractFrontmatter(content)
	processedContent := p.removeFrontmatter(content)

	if p.stripCodeBlocks {
		processedContent = p.removeCodeBlocks(processedContent)
	}

	// Strip formatting markers so the embedding sees prose, not markup
	processedContent = p.cleanMarkdown(processedContent)

	title := p.extractTitle(processedContent, filePath)
	if frontmatterTitle, ok := metadata["title"]; ok && frontmatterTitle != "" {
		title = frontmatterTitle
	}

	metadata["file_size"] = strconv.Itoa(len(content))
	metadata["line_count"] = strconv.Itoa(strings.Count(content, "\n") + 1)

	return &rag.Document{
		Content:  processedContent,
		Title:    title,
		Metadata: metadata,
	}
}

// extractFrontmatter extracts YAML frontmatter key/value pairs from content
func (p *MarkdownParser) extractFrontmatter(content string) map[string]string {
	metadata := make(map[string]string)

	if !hasFrontmatter(content) {
		return metadata
	}

	lines := strings.Split(content, "\n")
	for i := 1; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		if line == "---" {
			break
		}

		if idx := strings.Index(line, ":"); idx > 0 {
			key := strings.TrimSpace(line[:idx])
			value := strings.TrimSpace(line[idx+1:])
			value = strings.Trim(value, `"`)
			metadata[key] = value
		}
	}

	return metadata
}

// removeFrontmatter removes YAML frontmatter from content
func (p *MarkdownParser) removeFrontmatter(content string) string {
	if !hasFrontmatter(content) {
		return content
	}

	lines := strings.Split(content, "\n")
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "---" {
			return strings.Join(lines[i+1:], "\n")
		}
	}
	return content
}

// hasFrontmatter checks if content has YAML frontmatter
func hasFrontmatter(content string) bool {
	lines := strings.Split(content, "\n")
	return len(lines) >= 2 && strings.TrimSpace(lines[0]) == "---"
}

// removeCodeBlocks removes markdown code blocks
func (p *MarkdownParser) removeCodeBlocks(content string) string {
	re := regexp.MustCompile("```[\\s\\S]*?```")
	content = re.ReplaceAllString(content, "")

	re = regexp.MustCompile("`[^`]+`")
	content = re.ReplaceAllString(content, "")

	return content
}

// cleanMarkdown cleans up markdown formatting for better embedding
func (p *MarkdownParser) cleanMarkdown(content string) string {
	// Remove markdown headers but keep the text
	re := regexp.MustCompile(`(?m)^#+\s+(.*)$`)
	content = re.ReplaceAllString(content, "$1")

	// Remove bold/italic markers
	content = strings.ReplaceAll(content, "**", "")
	content = strings.ReplaceAll(content, "__", "")
	content = strings.ReplaceAll(content, "*", "")

	// Remove image references, then links, keeping the text
	re = regexp.MustCompile(`!\[([^\]]*)\]\([^\)]+\)`)
	content = re.ReplaceAllString(content, "$1")
	re = regexp.MustCompile(`\[([^\]]+)\]\([^\)]+\)`)
	content = re.ReplaceAllString(content, "$1")

	lines := strings.Split(content, "\n")
	var cleanLines []string
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" && !strings.HasPrefix(line, "<") { // Skip HTML tags
			cleanLines = append(cleanLines, line)
		}
	}

	return strings.Join(cleanLines, "\n\n")
}

// extractTitle extracts the title from markdown content
func (p *MarkdownParser) extractTitle(content, filePath string) string {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "#") {
			title := strings.TrimSpace(strings.TrimLeft(line, "#"))
			if title != "" && len(title) < 100 {
				return title
			}
		} else if len(line) < 100 {
			return line
		}
		break
	}

	if filePath != "" {
		return ExtractTitle("", filePath)
	}
	return "Untitled"
}

// Format returns the document format this parser handles
func (p *MarkdownParser) Format() rag.Format {
	return rag.FormatMarkdown
}
