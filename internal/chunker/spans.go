package chunker

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Span is a fragment of the input together with its byte offsets in that input.
type Span struct {
	Text  string
	Start int
	End   int
}

// sentenceEnd matches terminal punctuation followed by whitespace. Abbreviations ("e.g. ")
// and decimals followed by a space split too; that is an accepted approximation.
var sentenceEnd = regexp.MustCompile(`[.!?]\s+`)

// SplitSentences splits text after '.', '!' or '?' followed by whitespace.
// Fragments are trimmed and empty ones dropped.
func SplitSentences(text string) []Span {
	var spans []Span
	start := 0
	for _, loc := range sentenceEnd.FindAllStringIndex(text, -1) {
		spans = appendTrimmed(spans, text, start, loc[0]+1)
		start = loc[1]
	}
	return appendTrimmed(spans, text, start, len(text))
}

// SplitWords splits a span on whitespace, keeping absolute offsets.
func SplitWords(s Span) []Span {
	var words []Span
	wordStart := -1
	for i, r := range s.Text {
		if unicode.IsSpace(r) {
			if wordStart >= 0 {
				words = append(words, Span{Text: s.Text[wordStart:i], Start: s.Start + wordStart, End: s.Start + i})
				wordStart = -1
			}
			continue
		}
		if wordStart < 0 {
			wordStart = i
		}
	}
	if wordStart >= 0 {
		words = append(words, Span{Text: s.Text[wordStart:], Start: s.Start + wordStart, End: s.End})
	}
	return words
}

func appendTrimmed(spans []Span, text string, start, end int) []Span {
	seg := text[start:end]
	left := strings.TrimLeftFunc(seg, unicode.IsSpace)
	start += len(seg) - len(left)
	trimmed := strings.TrimRightFunc(left, unicode.IsSpace)
	if trimmed == "" {
		return spans
	}
	return append(spans, Span{Text: trimmed, Start: start, End: start + len(trimmed)})
}

// joinedLen is the rune count of the units joined by single spaces.
func joinedLen(units []unit) int {
	if len(units) == 0 {
		return 0
	}
	n := len(units) - 1
	for _, u := range units {
		n += runeLen(u.Text)
	}
	return n
}

func runeLen(s string) int { return utf8.RuneCountInString(s) }
