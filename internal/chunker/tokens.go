package chunker

import (
	"strings"

	"github.com/pkoukk/tiktoken-go"
	"github.com/rs/zerolog/log"
)

// TokenCounter estimates how many model tokens a piece of text costs.
type TokenCounter interface {
	Count(text string) int
}

// ApproxCounter assumes one token per four characters.
// Chunk boundaries differ from those of an exact tokenizer.
type ApproxCounter struct{}

func (ApproxCounter) Count(text string) int { return runeLen(text) / 4 }

// WordCounter counts whitespace separated words.
type WordCounter struct{}

func (WordCounter) Count(text string) int { return len(strings.Fields(text)) }

// TiktokenCounter counts tokens exactly with a BPE encoding.
type TiktokenCounter struct {
	enc *tiktoken.Tiktoken
}

const defaultEncoding = "cl100k_base"

func NewTiktokenCounter(encoding string) (*TiktokenCounter, error) {
	if encoding == "" {
		encoding = defaultEncoding
	}
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, err
	}
	return &TiktokenCounter{enc: enc}, nil
}

func (c *TiktokenCounter) Count(text string) int {
	return len(c.enc.Encode(text, nil, nil))
}

// NewCounter resolves a tokenizer name from config.
// "tiktoken" degrades to the approximate counter when the encoding cannot be loaded.
func NewCounter(name string) TokenCounter {
	switch name {
	case "words":
		return WordCounter{}
	case "tiktoken":
		c, err := NewTiktokenCounter(defaultEncoding)
		if err != nil {
			log.Warn().Err(err).Msg("tiktoken not available, using approximate token counting")
			return ApproxCounter{}
		}
		return c
	default:
		return ApproxCounter{}
	}
}
