package parser

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"atlas/rag"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestFormatFromPath(t *testing.T) {
	tests := []struct {
		path string
		want rag.Format
	}{
		{"notes.txt", rag.FormatTXT},
		{"guide.md", rag.FormatMarkdown},
		{"guide.markdown", rag.FormatMarkdown},
		{"page.html", rag.FormatHTML},
		{"page.htm", rag.FormatHTML},
		{"report.docx", rag.FormatDocx},
		{"paper.PDF", rag.FormatPDF},
		{"archive.zip", rag.FormatUnknown},
		{"noext", rag.FormatUnknown},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatFromPath(tt.path), tt.path)
	}
}

func TestProcessTxtFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "notes.txt", "First Line Title\r\n\r\nSome   body    text.\r\n")

	doc, err := DefaultRegistry().Process(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, path, doc.SourceID)
	assert.Equal(t, rag.FormatTXT, doc.Format)
	assert.Equal(t, "First Line Title", doc.Title)
	// CRLF gone, space runs collapsed.
	assert.Equal(t, "First Line Title\n\nSome body text.", doc.Content)
	assert.NotEmpty(t, doc.Metadata["file_size"])
	assert.Greater(t, doc.ByteLength, 0)
}

func TestProcessMarkdownFile(t *testing.T) {
	dir := t.TempDir()
	content := `---
title: "Setup Guide"
author: someone
---

# Ignored Heading

Install the **binary** and read the [docs](https://example.com).
`
	path := writeFile(t, dir, "guide.md", content)

	doc, err := DefaultRegistry().Process(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, "Setup Guide", doc.Title)
	assert.Equal(t, "someone", doc.Metadata["author"])
	assert.NotContains(t, doc.Content, "**")
	assert.NotContains(t, doc.Content, "](")
	assert.Contains(t, doc.Content, "Install the binary and read the docs.")
}

func TestProcessHTMLFile(t *testing.T) {
	dir := t.TempDir()
	content := `<html><head><title>Release Notes</title>
<script>ignored()</script></head>
<body><h1>Changes</h1><p>Fixed the flaky importer.</p>
<style>.x{}</style></body></html>`
	path := writeFile(t, dir, "page.html", content)

	doc, err := DefaultRegistry().Process(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, "Release Notes", doc.Title)
	assert.Contains(t, doc.Content, "Changes")
	assert.Contains(t, doc.Content, "Fixed the flaky importer.")
	assert.NotContains(t, doc.Content, "ignored()")
	assert.NotContains(t, doc.Content, ".x{}")
}

func TestProcessUnsupportedExtension(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "data.csv", "a,b,c")

	_, err := DefaultRegistry().Process(context.Background(), path)
	require.Error(t, err)
	assert.True(t, errors.Is(err, rag.ErrUnsupportedFormat))
}

func TestProcessEmptyDocument(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "empty.txt", "   \n\t\n  ")

	_, err := DefaultRegistry().Process(context.Background(), path)
	require.Error(t, err)
	assert.True(t, errors.Is(err, rag.ErrEmptyDocument))
}

func TestProcessMissingFile(t *testing.T) {
	_, err := DefaultRegistry().Process(context.Background(), filepath.Join(t.TempDir(), "gone.txt"))
	require.Error(t, err)
}

func TestSupported(t *testing.T) {
	reg := DefaultRegistry()
	assert.True(t, reg.Supported("a.txt"))
	assert.True(t, reg.Supported("a.docx"))
	assert.True(t, reg.Supported("a.pdf"))
	assert.False(t, reg.Supported("a.csv"))

	empty := NewRegistry()
	assert.False(t, empty.Supported("a.txt"))
}

func TestNormalizeText(t *testing.T) {
	tests := []struct {
		name, in, want string
	}{
		{"crlf", "a\r\nb\r", "a\nb"},
		{"space runs", "a  \t b", "a b"},
		{"trailing ws", "a  \nb", "a\nb"},
		{"blank line runs", "a\n\n\n\n\nb", "a\n\nb"},
		{"surrounding ws", "  a  ", "a"},
		{"empty", "   \n  \t ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeText(tt.in))
		})
	}
}

func TestExtractTitle(t *testing.T) {
	assert.Equal(t, "My Heading", ExtractTitle("# My Heading\n\nbody", "x.md"))
	assert.Equal(t, "Plain first line", ExtractTitle("Plain first line\nrest", "x.txt"))
	assert.Equal(t, "fallback.txt", ExtractTitle("", "/tmp/fallback.txt"))
}
