package embedding

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/knights-analytics/hugot"
	"github.com/rs/zerolog/log"
)

const DefaultHugotModel = "sentence-transformers/all-MiniLM-L6-v2"

// HugotEmbedder runs a sentence-transformers ONNX model in process.
type HugotEmbedder struct {
	mu  sync.Mutex
	run func([]string) ([][]float32, error)
}

// NewHugotEmbedder downloads modelName into modelDir on first use and opens a Go session.
func NewHugotEmbedder(modelName, modelDir string) (*HugotEmbedder, error) {
	if modelName == "" {
		modelName = DefaultHugotModel
	}
	if modelDir == "" {
		modelDir = "./models"
	}
	modelPath, err := prepareModel(modelName, modelDir)
	if err != nil {
		return nil, err
	}

	session, err := hugot.NewGoSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create hugot session: %w", err)
	}
	pipeline, err := hugot.NewPipeline(session, hugot.FeatureExtractionConfig{
		ModelPath: modelPath,
		Name:      "clarity-embedder",
	})
	if err != nil {
		if destroyErr := session.Destroy(); destroyErr != nil {
			return nil, fmt.Errorf("failed to create embedding pipeline: %w (cleanup error: %v)", err, destroyErr)
		}
		return nil, fmt.Errorf("failed to create embedding pipeline: %w", err)
	}
	log.Info().Str("model", modelName).Str("path", modelPath).Msg("Loaded local embedding model")

	return &HugotEmbedder{
		run: func(texts []string) ([][]float32, error) {
			result, err := pipeline.RunPipeline(texts)
			if err != nil {
				return nil, err
			}
			return result.Embeddings, nil
		},
	}, nil
}

func (h *HugotEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	vectors, err := h.run(texts)
	if err != nil {
		return nil, fmt.Errorf("failed to generate embeddings: %w", err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w: got %d for %d texts", ErrEmbeddingMismatch, len(vectors), len(texts))
	}
	return vectors, nil
}

func (h *HugotEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := h.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// prepareModel downloads the model if it doesn't exist and returns the model path
func prepareModel(modelName, modelDir string) (string, error) {
	modelPath := filepath.Join(modelDir, strings.ReplaceAll(modelName, "/", "_"))
	if _, err := os.Stat(modelPath); err == nil {
		return modelPath, nil
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("failed to stat model directory: %w", err)
	}

	if err := os.MkdirAll(modelDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create model directory: %w", err)
	}
	downloadOptions := hugot.NewDownloadOptions()
	downloadOptions.OnnxFilePath = "onnx/model.onnx"
	downloadedPath, err := hugot.DownloadModel(modelName, modelDir, downloadOptions)
	if err != nil {
		return "", fmt.Errorf("failed to download model: %w", err)
	}
	return downloadedPath, nil
}
