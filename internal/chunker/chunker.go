package chunker

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
)

var ErrInvalidConfig = errors.New("chunker: invalid config")

// Chunk is one bounded span of document text prepared for embedding.
//
// CharStart/CharEnd are running-concatenation offsets counted in characters (runes): the first
// chunk starts at 0 and a chunk seeded with overlap starts the overlap's length before the previous
// chunk's end, so CharEnd-CharStart always equals the rune count of Text. They drift from the
// source once whitespace is normalised.
// SourceStart/SourceEnd are exact byte offsets into the input, so text[SourceStart:SourceEnd]
// spans the chunk's first to last fragment.
type Chunk struct {
	Text        string `json:"text"`
	CharStart   int    `json:"char_start"`
	CharEnd     int    `json:"char_end"`
	SourceStart int    `json:"source_start"`
	SourceEnd   int    `json:"source_end"`
	Tokens      int    `json:"tokens"`
}

// Splitter turns document text into ordered chunks. It never fails; bad input yields fewer chunks.
type Splitter interface {
	Split(text string) []Chunk
}

type Config struct {
	ChunkSize    int
	ChunkOverlap int
	Counter      TokenCounter
}

func DefaultConfig() Config {
	return Config{ChunkSize: 500, ChunkOverlap: 100, Counter: ApproxCounter{}}
}

// Chunker is the sentence-aware, token-budgeted splitter.
type Chunker struct {
	size    int
	overlap int
	counter TokenCounter
}

// New validates cfg. An overlap not smaller than the chunk size is clamped to size-1.
func New(cfg Config) (*Chunker, error) {
	if cfg.ChunkSize <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", ErrInvalidConfig, cfg.ChunkSize)
	}
	if cfg.ChunkOverlap < 0 {
		return nil, fmt.Errorf("%w: chunk overlap must not be negative, got %d", ErrInvalidConfig, cfg.ChunkOverlap)
	}
	overlap := cfg.ChunkOverlap
	if overlap >= cfg.ChunkSize {
		overlap = cfg.ChunkSize - 1
	}
	counter := cfg.Counter
	if counter == nil {
		counter = ApproxCounter{}
	}
	return &Chunker{size: cfg.ChunkSize, overlap: overlap, counter: counter}, nil
}

// NewSplitter builds the splitter named by strategy ("sentence" or "recursive").
func NewSplitter(strategy string, cfg Config) (Splitter, error) {
	switch strategy {
	case "", "sentence":
		return New(cfg)
	case "recursive":
		return NewRecursive(cfg)
	default:
		return nil, fmt.Errorf("%w: unknown strategy %q", ErrInvalidConfig, strategy)
	}
}

func (c *Chunker) Size() int    { return c.size }
func (c *Chunker) Overlap() int { return c.overlap }

// Split chunks text sentence by sentence. Sentences over the budget are folded in word by word.
func (c *Chunker) Split(text string) []Chunk {
	b := &builder{size: c.size, overlap: c.overlap}
	for _, s := range SplitSentences(text) {
		tokens := c.counter.Count(s.Text)
		if tokens <= c.size {
			b.add(unit{Span: s, tokens: tokens})
			continue
		}
		for _, w := range SplitWords(s) {
			b.add(unit{Span: w, tokens: c.counter.Count(w.Text)})
		}
	}
	b.flush()

	log.Debug().Int("chunks", len(b.chunks)).Int("size", c.size).Int("overlap", c.overlap).Msg("Chunked text")
	return b.chunks
}

type unit struct {
	Span
	tokens int
}

// builder holds the chunk under construction.
type builder struct {
	size, overlap int

	units     []unit
	tokens    int
	charStart int
	chunks    []Chunk
}

func (b *builder) add(u unit) {
	if b.tokens+u.tokens <= b.size || len(b.units) == 0 {
		b.units = append(b.units, u)
		b.tokens += u.tokens
		return
	}

	seed, seedTokens := b.tail(u.tokens)
	charEnd := b.flush()
	b.units = append(seed, u)
	b.tokens = seedTokens + u.tokens
	b.charStart = charEnd - joinedLen(seed)
}

// tail returns the trailing fragments of the closed chunk that fit the overlap budget.
// The budget also leaves room for the next unit so the new chunk stays within size; when the
// next unit is large the seed shrinks, down to no overlap at all.
func (b *builder) tail(next int) ([]unit, int) {
	budget := min(b.overlap, b.size-next)
	if b.overlap == 0 || budget < 0 {
		return nil, 0
	}
	tokens := 0
	first := len(b.units)
	for i := len(b.units) - 1; i >= 0; i-- {
		if tokens+b.units[i].tokens > budget {
			break
		}
		tokens += b.units[i].tokens
		first = i
	}
	seed := make([]unit, len(b.units)-first, len(b.units)-first+1)
	copy(seed, b.units[first:])
	return seed, tokens
}

// flush closes the current chunk and returns its running end offset.
func (b *builder) flush() int {
	if len(b.units) == 0 {
		return b.charStart
	}
	texts := make([]string, len(b.units))
	for i, u := range b.units {
		texts[i] = u.Text
	}
	text := strings.Join(texts, " ")
	charEnd := b.charStart + runeLen(text)
	b.chunks = append(b.chunks, Chunk{
		Text:        text,
		CharStart:   b.charStart,
		CharEnd:     charEnd,
		SourceStart: b.units[0].Start,
		SourceEnd:   b.units[len(b.units)-1].End,
		Tokens:      b.tokens,
	})
	b.units = nil
	b.tokens = 0
	return charEnd
}
