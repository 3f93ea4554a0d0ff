package rag

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"

	"clarity/internal/chunker"
	"clarity/internal/embedding"
	"clarity/internal/helper"
	"clarity/internal/llmservice"
	"clarity/internal/models"
	"clarity/internal/parser"
)

var (
	ErrEmptyQuestion = errors.New("question must not be empty")
	ErrNoDocuments   = errors.New("no documents found")
	ErrGeneration    = errors.New("could not parse model output")
	ErrInvalidInput  = errors.New("invalid input")
)

// documentContextChars bounds the document passed to the chunk context prompt.
const documentContextChars = 8000

// VectorStore holds embedded chunks namespaced by user and notebook.
// An empty notebookID addresses every notebook of the user.
type VectorStore interface {
	AddChunks(ctx context.Context, userID, notebookID string, chunks []models.ChunkRecord) error
	Query(ctx context.Context, userID, notebookID string, embedding []float32, topK int) ([]models.SourceChunk, error)
	DeleteDocument(ctx context.Context, userID, notebookID, documentID string) error
	DeleteNotebook(ctx context.Context, userID, notebookID string) error
	Count(ctx context.Context, userID, notebookID string) (int, error)
}

// Catalog records ingested documents. FindDocument is consulted before any chunk is embedded;
// RecordDocument runs after the chunks are stored and reports created false, with the existing id,
// when another ingest of the same content won the race.
type Catalog interface {
	FindDocument(ctx context.Context, userID, notebookID, hash string) (documentID string, found bool, err error)
	RecordDocument(ctx context.Context, userID, notebookID string, res *IngestResult) (documentID string, created bool, err error)
}

type Service struct {
	catalog   Catalog
	store     VectorStore
	embedder  embeddings.Embedder
	llm       llmservice.Generator
	splitter  chunker.Splitter
	topK      int
	batchSize int
	// contextualize prefixes each chunk with an LLM-written situating sentence before embedding.
	contextualize bool
}

type Option func(*Service)

func WithTopK(k int) Option { return func(s *Service) { s.topK = k } }
func WithBatchSize(n int) Option { return func(s *Service) { s.batchSize = n } }
func WithChunkContext(on bool) Option { return func(s *Service) { s.contextualize = on } }
func WithCatalog(c Catalog) Option { return func(s *Service) { s.catalog = c } }

func NewService(store VectorStore, embedder embeddings.Embedder, llm llmservice.Generator, splitter chunker.Splitter, opts ...Option) *Service {
	s := &Service{store: store, embedder: embedder, llm: llm, splitter: splitter, topK: 4}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) ModelName() string { return s.llm.ModelName() }

type IngestRequest struct {
	UserID     string
	NotebookID string
	DocumentID string
	Title      string
	// Path is read with the parser when Text is empty.
	Path string
	Text string
}

type IngestResult struct {
	DocumentID string `json:"document_id"`
	Title      string `json:"title"`
	Chunks     int    `json:"chunks"`
	Chars      int    `json:"chars"`
	Hash       string `json:"hash"`
	// Duplicate is set when the notebook already held this content; DocumentID is the existing one.
	Duplicate bool   `json:"duplicate"`
	Text      string `json:"-"`
}

// Ingest extracts, chunks, embeds and stores one document.
func (s *Service) Ingest(ctx context.Context, req IngestRequest) (*IngestResult, error) {
	if req.UserID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	text := req.Text
	if text == "" {
		if req.Path == "" {
			return nil, fmt.Errorf("%w: either text or path is required", ErrInvalidInput)
		}
		var err error
		if text, err = parser.ExtractText(req.Path); err != nil {
			return nil, err
		}
	} else if err := parser.CheckText(text); err != nil {
		return nil, err
	}

	docID := req.DocumentID
	if docID == "" {
		docID = helper.NewID()
	}
	title := req.Title
	if title == "" && req.Path != "" {
		title = filepath.Base(req.Path)
	}
	result := &IngestResult{DocumentID: docID, Title: title, Chars: len(text), Hash: helper.ContentHash(text), Text: text}

	if s.catalog != nil {
		existing, found, err := s.catalog.FindDocument(ctx, req.UserID, req.NotebookID, result.Hash)
		if err != nil {
			return nil, err
		}
		if found {
			log.Info().Str("notebook_id", req.NotebookID).Str("document_id", existing).Msg("Document already ingested, skipping")
			result.DocumentID, result.Duplicate = existing, true
			return result, nil
		}
	}

	chunks := s.splitter.Split(text)
	if len(chunks) == 0 {
		return nil, parser.ErrNoText
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
		if s.contextualize {
			texts[i] = s.chunkContext(ctx, text, c.Text)
		}
	}
	vectors, err := embedding.EmbedChunks(ctx, s.embedder, texts, s.batchSize)
	if err != nil {
		return nil, err
	}

	records := make([]models.ChunkRecord, len(chunks))
	for i, c := range chunks {
		records[i] = models.ChunkRecord{
			ID:         fmt.Sprintf("%s_%d", docID, i),
			DocumentID: docID,
			NotebookID: req.NotebookID,
			Title:      title,
			Index:      i,
			CharStart:  c.CharStart,
			CharEnd:    c.CharEnd,
			Text:       c.Text,
			Embedding:  vectors[i],
		}
	}
	if err := s.store.AddChunks(ctx, req.UserID, req.NotebookID, records); err != nil {
		s.dropChunks(ctx, req.UserID, req.NotebookID, docID)
		return nil, err
	}
	result.Chunks = len(records)

	if s.catalog != nil {
		recorded, created, err := s.catalog.RecordDocument(ctx, req.UserID, req.NotebookID, result)
		if err != nil || !created {
			s.dropChunks(ctx, req.UserID, req.NotebookID, docID)
			if err != nil {
				return nil, fmt.Errorf("failed to record document: %w", err)
			}
			result.Chunks = 0
			result.DocumentID, result.Duplicate = recorded, true
			log.Warn().Str("notebook_id", req.NotebookID).Msg("Document recorded concurrently, dropped duplicate chunks")
			return result, nil
		}
	}

	log.Info().Str("user_id", req.UserID).Str("notebook_id", req.NotebookID).Str("document_id", docID).
		Int("chunks", len(records)).Msg("Ingested document")
	return result, nil
}

// dropChunks removes whatever chunks of a failed ingest reached the store.
func (s *Service) dropChunks(ctx context.Context, userID, notebookID, documentID string) {
	if err := s.store.DeleteDocument(ctx, userID, notebookID, documentID); err != nil {
		log.Error().Err(err).Str("document_id", documentID).Msg("Failed to remove chunks of unrecorded document")
	}
}

// chunkContext returns chunk prefixed with a generated situating sentence, or chunk alone on failure.
func (s *Service) chunkContext(ctx context.Context, document, chunk string) string {
	prompt := llmservice.ContextPrompt(helper.Truncate(document, documentContextChars), chunk)
	situated, err := s.llm.Generate(ctx, prompt, llmservice.WithMaxTokens(120))
	if err != nil || strings.TrimSpace(situated) == "" {
		log.Warn().Err(err).Msg("Chunk context generation failed, embedding chunk as is")
		return chunk
	}
	return strings.TrimSpace(situated) + "\n\n" + chunk
}

type AskRequest struct {
	UserID        string
	NotebookID    string
	Question      string
	TopK          int
	IncludePrompt bool
	Stream        func(chunk string)
}

// Ask answers a question from the user's notebook, or from all of the user's notebooks.
func (s *Service) Ask(ctx context.Context, req AskRequest) (*models.Answer, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}
	topK := req.TopK
	if topK <= 0 {
		topK = s.topK
	}

	sources, err := s.retrieve(ctx, req.UserID, req.NotebookID, question, topK)
	if err != nil {
		return nil, err
	}
	answer := &models.Answer{Question: question, Sources: sources, Model: s.llm.ModelName()}
	if len(sources) == 0 {
		answer.Answer = models.NoContextAnswer
		return answer, nil
	}

	prompt := llmservice.BuildRAGPrompt(question, chunkTexts(sources), true)
	var opts []llmservice.Option
	if req.Stream != nil {
		opts = append(opts, llmservice.WithStream(req.Stream))
	}
	answer.Answer, err = s.llm.Generate(ctx, prompt, opts...)
	if err != nil {
		return nil, err
	}
	if req.IncludePrompt {
		answer.UsedPrompt = prompt
	}
	return answer, nil
}

// DeleteDocument removes a document's chunks from the vector store.
func (s *Service) DeleteDocument(ctx context.Context, userID, notebookID, documentID string) error {
	return s.store.DeleteDocument(ctx, userID, notebookID, documentID)
}

// DeleteNotebook drops every chunk of the notebook.
func (s *Service) DeleteNotebook(ctx context.Context, userID, notebookID string) error {
	return s.store.DeleteNotebook(ctx, userID, notebookID)
}

func (s *Service) retrieve(ctx context.Context, userID, notebookID, query string, topK int) ([]models.SourceChunk, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	vector, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	sources, err := s.store.Query(ctx, userID, notebookID, vector, topK)
	if err != nil {
		return nil, err
	}
	log.Debug().Str("user_id", userID).Str("notebook_id", notebookID).Int("hits", len(sources)).Msg("Retrieved chunks")
	return sources, nil
}

func chunkTexts(sources []models.SourceChunk) []string {
	texts := make([]string, len(sources))
	for i, src := range sources {
		texts[i] = src.Text
	}
	return texts
}
