package llmservice

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"clarity/internal/config"
	"clarity/internal/models"
)

var ErrEmptyResponse = errors.New("llm returned no choices")

// Generator produces text for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string, opts ...Option) (string, error)
	ModelName() string
}

type Options struct {
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
	// Stream receives partial output as it arrives.
	Stream func(chunk string)
}

type Option func(*Options)

func WithMaxTokens(n int) Option { return func(o *Options) { o.MaxTokens = n } }
func WithTemperature(t float64) Option { return func(o *Options) { o.Temperature = t } }
func WithTimeout(d time.Duration) Option { return func(o *Options) { o.Timeout = d } }
func WithStream(fn func(chunk string)) Option { return func(o *Options) { o.Stream = fn } }

func applyOptions(base Options, opts []Option) Options {
	for _, opt := range opts {
		opt(&base)
	}
	return base
}

var thinkTag = regexp.MustCompile(models.ThinkTag)

// LangChain adapts any langchaingo model.
type LangChain struct {
	model    llms.Model
	name     string
	defaults Options
}

func NewLangChain(model llms.Model, name string, defaults Options) *LangChain {
	return &LangChain{model: model, name: name, defaults: defaults}
}

func (l *LangChain) ModelName() string { return l.name }

// call llm
func (l *LangChain) Generate(ctx context.Context, prompt string, opts ...Option) (string, error) {
	o := applyOptions(l.defaults, opts)
	if o.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.Timeout)
		defer cancel()
	}

	callOpts := []llms.CallOption{llms.WithTemperature(o.Temperature)}
	if o.MaxTokens > 0 {
		callOpts = append(callOpts, llms.WithMaxTokens(o.MaxTokens))
	}
	if o.Stream != nil {
		stream := o.Stream
		callOpts = append(callOpts, llms.WithStreamingFunc(func(_ context.Context, chunk []byte) error {
			stream(string(chunk))
			return nil
		}))
	}

	messages := []llms.MessageContent{llms.TextParts(llms.ChatMessageTypeHuman, prompt)}
	log.Debug().Str("model", l.name).Int("prompt_chars", len(prompt)).Int("max_tokens", o.MaxTokens).Msg("Generating content")

	res, err := l.model.GenerateContent(ctx, messages, callOpts...)
	if err != nil {
		return "", fmt.Errorf("failed to generate content with %s: %w", l.name, err)
	}
	if len(res.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	return strings.TrimSpace(thinkTag.ReplaceAllString(res.Choices[0].Content, "")), nil
}

// New selects the inference provider. Unknown providers fall back to the mock.
func New(cfg *config.LLMConfig) (Generator, error) {
	defaults := Options{
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
		Timeout:     time.Duration(cfg.TimeoutSecs) * time.Second,
	}

	var gen Generator
	switch strings.ToLower(cfg.Provider) {
	case "mock", "":
		gen = NewMock()
	case "ollama", "gpt-oss":
		opts := []ollama.Option{ollama.WithModel(cfg.Model)}
		if cfg.BaseURL != "" {
			opts = append(opts, ollama.WithServerURL(cfg.BaseURL))
		}
		llm, err := ollama.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize ollama: %w", err)
		}
		gen = NewLangChain(llm, cfg.Model, defaults)
	case "openai":
		opts := []openai.Option{
			openai.WithModel(cfg.Model),
			openai.WithToken(strings.TrimPrefix(cfg.Key, "Bearer ")),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		llm, err := openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize openai: %w", err)
		}
		gen = NewLangChain(llm, cfg.Model, defaults)
	default:
		log.Warn().Str("provider", cfg.Provider).Msg("Unknown LLM provider, using mock")
		gen = NewMock()
	}

	log.Info().Str("model", gen.ModelName()).Msg("Initialized LLM")
	return gen, nil
}
