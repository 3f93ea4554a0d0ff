package parser

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode"

	"github.com/rs/zerolog/log"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported file format")
	ErrNoText            = errors.New("no extractable text")
)

// MinTextChars is the fewest non-space characters a document must yield to be ingested.
const MinTextChars = 10

var blankLines = regexp.MustCompile(`\n{3,}`)

type extractFunc func(path string) (string, error)

var extractors = map[string]extractFunc{
	".pdf":      parsePDF,
	".docx":     parseDOCX,
	".pptx":     parsePPTX,
	".xlsx":     parseXLSX,
	".xlsm":     parseWorkbook,
	".xltx":     parseWorkbook,
	".xltm":     parseWorkbook,
	".md":       parseMarkdown,
	".markdown": parseMarkdown,
	".txt":      parseText,
	".text":     parseText,
}

// Supported reports whether path has an extension ExtractText can read.
func Supported(path string) bool {
	_, ok := extractors[strings.ToLower(filepath.Ext(path))]
	return ok
}

// ExtractText returns the plain text of the document at path.
func ExtractText(path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	extract, ok := extractors[ext]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}

	text, err := extract(path)
	if err != nil {
		return "", fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
	}
	text = Normalize(text)
	if err := CheckText(text); err != nil {
		return "", fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	log.Debug().Str("file", filepath.Base(path)).Int("chars", len(text)).Msg("Extracted text")
	return text, nil
}

// CheckText rejects text with fewer than MinTextChars non-space characters.
func CheckText(text string) error {
	n := 0
	for _, r := range text {
		if !unicode.IsSpace(r) {
			n++
			if n >= MinTextChars {
				return nil
			}
		}
	}
	return ErrNoText
}

// Normalize unifies line endings, trims trailing spaces and collapses runs of blank lines.
func Normalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRightFunc(l, unicode.IsSpace)
	}
	return strings.TrimSpace(blankLines.ReplaceAllString(strings.Join(lines, "\n"), "\n\n"))
}

func parseText(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
