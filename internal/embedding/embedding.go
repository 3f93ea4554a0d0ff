package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"clarity/internal/config"
)

var ErrEmbeddingMismatch = errors.New("embedder returned wrong number of vectors")

const defaultBatchSize = 32

// New builds the embedder selected by cfg.Provider.
func New(cfg *config.LLMConfig) (embeddings.Embedder, error) {
	log.Debug().Str("provider", cfg.Provider).Str("model", cfg.Model).Str("base_url", cfg.BaseURL).Msg("Creating embedder")

	switch strings.ToLower(cfg.Provider) {
	case "ollama":
		return NewOllamaEmbedder(cfg)
	case "openai":
		return NewOpenAIEmbedder(cfg)
	case "hugot":
		return NewHugotEmbedder(cfg.Model, cfg.ModelDir)
	case "mock":
		return NewHashEmbedder(DefaultHashDimension), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
}

// new ollama embedder
func NewOllamaEmbedder(cfg *config.LLMConfig) (*embeddings.EmbedderImpl, error) {
	opts := []ollama.Option{ollama.WithModel(cfg.Model)}
	if cfg.BaseURL != "" {
		opts = append(opts, ollama.WithServerURL(cfg.BaseURL))
	}
	llm, err := ollama.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize ollama: %w", err)
	}
	return newEmbedder(llm, cfg.BatchSize)
}

func NewOpenAIEmbedder(cfg *config.LLMConfig) (*embeddings.EmbedderImpl, error) {
	opts := []openai.Option{
		openai.WithToken(strings.TrimPrefix(cfg.Key, "Bearer ")),
		openai.WithEmbeddingModel(cfg.Model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize openai: %w", err)
	}
	return newEmbedder(llm, cfg.BatchSize)
}

func newEmbedder(client embeddings.EmbedderClient, batchSize int) (*embeddings.EmbedderImpl, error) {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	embedder, err := embeddings.NewEmbedder(client, embeddings.WithBatchSize(batchSize))
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	return embedder, nil
}

// Dimension embeds a probe string and returns the vector length.
func Dimension(ctx context.Context, e embeddings.Embedder) (int, error) {
	if d, ok := e.(interface{ Dimension() int }); ok {
		return d.Dimension(), nil
	}
	v, err := e.EmbedQuery(ctx, "dimension probe")
	if err != nil {
		return 0, fmt.Errorf("failed to probe embedding dimension: %w", err)
	}
	return len(v), nil
}

// EmbedChunks embeds texts in batches of batchSize and returns one vector per text, in order.
func EmbedChunks(ctx context.Context, e embeddings.Embedder, texts []string, batchSize int) ([][]float32, error) {
	if len(texts) == 0 {
		log.Info().Msg("No chunks to embed")
		return nil, nil
	}
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += batchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := min(start+batchSize, len(texts))
		batch, err := e.EmbedDocuments(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("failed to embed chunks %d-%d: %w", start, end, err)
		}
		if len(batch) != end-start {
			return nil, fmt.Errorf("%w: got %d for %d texts", ErrEmbeddingMismatch, len(batch), end-start)
		}
		vectors = append(vectors, batch...)
	}
	log.Debug().Int("chunks", len(texts)).Int("batch_size", batchSize).Msg("Embedded chunks")
	return vectors, nil
}
