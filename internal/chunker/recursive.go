package chunker

import (
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/textsplitter"
)

// Recursive splits on paragraph, line and word separators using langchaingo's recursive
// character splitter. Token budgets are converted to characters at four characters per token.
type Recursive struct {
	splitter textsplitter.RecursiveCharacter
	counter  TokenCounter
	fallback *Chunker
}

func NewRecursive(cfg Config) (*Recursive, error) {
	fallback, err := New(cfg)
	if err != nil {
		return nil, err
	}
	return &Recursive{
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(fallback.size*4),
			textsplitter.WithChunkOverlap(fallback.overlap*4),
		),
		counter:  fallback.counter,
		fallback: fallback,
	}, nil
}

func (r *Recursive) Split(text string) []Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	pieces, err := r.splitter.SplitText(text)
	if err != nil {
		log.Warn().Err(err).Msg("recursive split failed, using sentence chunker")
		return r.fallback.Split(text)
	}

	chunks := make([]Chunk, 0, len(pieces))
	from, runningEnd, sourceEnd := 0, 0, 0
	for _, piece := range pieces {
		piece = strings.TrimSpace(piece)
		if piece == "" {
			continue
		}
		c := Chunk{Text: piece, Tokens: r.counter.Count(piece), CharStart: runningEnd, SourceStart: sourceEnd}
		if idx := strings.Index(text[from:], piece); idx >= 0 {
			c.SourceStart = from + idx
			c.CharStart = runeLen(text[:c.SourceStart])
			from = c.SourceStart + 1
		}
		c.SourceEnd = c.SourceStart + len(piece)
		c.CharEnd = c.CharStart + runeLen(piece)
		runningEnd, sourceEnd = c.CharEnd, c.SourceEnd
		chunks = append(chunks, c)
	}
	return chunks
}
