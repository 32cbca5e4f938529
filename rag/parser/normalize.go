package parser

import (
	"regexp"
	"strings"
)

var (
	spaceRunRE    = regexp.MustCompile(`[ \t]+`)
	blankLineRE   = regexp.MustCompile(`\n[ \t]*\n[\s]*\n+`)
	trailingWSRE  = regexp.MustCompile(`[ \t]+\n`)
	leadingLineWS = regexp.MustCompile(`\n[ \t]+`)
)

// NormalizeText converts heterogeneous extracted text to the single plain-text
// shape the rest of the pipeline consumes: LF line endings, runs of spaces and
// tabs collapsed to one space, runs of blank lines collapsed to one blank line.
// Paragraph boundaries (newlines) survive normalization.
func NormalizeText(text string) string {
	// Line endings first so the remaining rules only see \n
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	text = spaceRunRE.ReplaceAllString(text, " ")
	text = trailingWSRE.ReplaceAllString(text, "\n")
	text = leadingLineWS.ReplaceAllString(text, "\n")
	text = blankLineRE.ReplaceAllString(text, "\n\n")

	return strings.TrimSpace(text)
}
