package rag

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clarity/internal/chromemdb"
	"clarity/internal/chunker"
	"clarity/internal/config"
	"clarity/internal/embedding"
	"clarity/internal/llmservice"
	"clarity/internal/models"
	"clarity/internal/parser"
)

const user = "auth0|student"

const biology = "Photosynthesis converts light energy into chemical energy. " +
	"Chlorophyll in the chloroplasts absorbs mostly red and blue light. " +
	"The Calvin cycle fixes carbon dioxide into sugars. " +
	"Mitochondria release energy from sugars through cellular respiration. " +
	"Cell division by mitosis produces two identical daughter cells."

// scripted replies with a fixed string and records every prompt.
type scripted struct {
	reply   string
	err     error
	prompts []string
}

func (s *scripted) Generate(ctx context.Context, prompt string, opts ...llmservice.Option) (string, error) {
	s.prompts = append(s.prompts, prompt)
	if s.err != nil {
		return "", s.err
	}
	o := llmservice.Options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.Stream != nil {
		o.Stream(s.reply)
	}
	return s.reply, nil
}

func (s *scripted) ModelName() string { return "scripted" }

// catalog is an in-memory document catalog keyed by content hash.
type catalog struct {
	docs      map[string]string
	recordErr error
	// race pretends another ingest recorded the same hash first.
	race string
}

func (c *catalog) FindDocument(ctx context.Context, userID, notebookID, hash string) (string, bool, error) {
	id, ok := c.docs[hash]
	return id, ok, nil
}

func (c *catalog) RecordDocument(ctx context.Context, userID, notebookID string, res *IngestResult) (string, bool, error) {
	if c.recordErr != nil {
		return "", false, c.recordErr
	}
	if c.race != "" {
		return c.race, false, nil
	}
	if c.docs == nil {
		c.docs = map[string]string{}
	}
	c.docs[res.Hash] = res.DocumentID
	return res.DocumentID, true, nil
}

func newService(t *testing.T, gen llmservice.Generator, opts ...Option) *Service {
	t.Helper()
	store, err := chromemdb.NewVectorDBManager(config.VectorStoreConfig{InMemory: true}, "")
	require.NoError(t, err)
	splitter, err := chunker.New(chunker.Config{ChunkSize: 20, ChunkOverlap: 5})
	require.NoError(t, err)
	return NewService(store, embedding.NewHashEmbedder(128), gen, splitter, opts...)
}

func ingestBiology(t *testing.T, s *Service) *IngestResult {
	t.Helper()
	res, err := s.Ingest(context.Background(), IngestRequest{UserID: user, NotebookID: "bio", Title: "biology.txt", Text: biology})
	require.NoError(t, err)
	return res
}

func TestIngest(t *testing.T) {
	ctx := context.Background()

	t.Run("Stores every chunk with metadata", func(t *testing.T) {
		s := newService(t, llmservice.NewMock())
		res := ingestBiology(t, s)

		assert.NotEmpty(t, res.DocumentID)
		assert.Greater(t, res.Chunks, 1)
		assert.Equal(t, len(biology), res.Chars)
		n, err := s.store.Count(ctx, user, "bio")
		require.NoError(t, err)
		assert.Equal(t, res.Chunks, n)

		probe, err := embedding.NewHashEmbedder(128).EmbedQuery(ctx, "chlorophyll")
		require.NoError(t, err)
		hits, err := s.store.Query(ctx, user, "bio", probe, 1)
		require.NoError(t, err)
		require.Len(t, hits, 1)
		assert.Equal(t, res.DocumentID, hits[0].Metadata[models.MetaDocumentID])
		assert.Equal(t, "biology.txt", hits[0].Metadata[models.MetaTitle])
	})

	t.Run("Reads files through the parser", func(t *testing.T) {
		s := newService(t, llmservice.NewMock())
		path := filepath.Join(t.TempDir(), "cells.txt")
		require.NoError(t, os.WriteFile(path, []byte(biology), 0o644))

		res, err := s.Ingest(ctx, IngestRequest{UserID: user, NotebookID: "bio", Path: path})
		require.NoError(t, err)
		assert.Equal(t, "cells.txt", res.Title)
	})

	t.Run("Rejects near-empty text", func(t *testing.T) {
		s := newService(t, llmservice.NewMock())
		_, err := s.Ingest(ctx, IngestRequest{UserID: user, Text: "tiny"})
		assert.ErrorIs(t, err, parser.ErrNoText)
	})

	t.Run("Requires user and content", func(t *testing.T) {
		s := newService(t, llmservice.NewMock())
		_, err := s.Ingest(ctx, IngestRequest{Text: biology})
		assert.ErrorIs(t, err, ErrInvalidInput)
		_, err = s.Ingest(ctx, IngestRequest{UserID: user})
		assert.ErrorIs(t, err, ErrInvalidInput)
	})

	t.Run("Catalog skips known content before embedding", func(t *testing.T) {
		gen := &scripted{reply: "ctx"}
		cat := &catalog{}
		s := newService(t, gen, WithCatalog(cat), WithChunkContext(true))
		first := ingestBiology(t, s)
		assert.False(t, first.Duplicate)
		assert.Equal(t, first.DocumentID, cat.docs[first.Hash])
		prompts := len(gen.prompts)

		again := ingestBiology(t, s)
		assert.True(t, again.Duplicate)
		assert.Equal(t, first.DocumentID, again.DocumentID)
		assert.Zero(t, again.Chunks)
		assert.Len(t, gen.prompts, prompts)
		n, err := s.store.Count(ctx, user, "bio")
		require.NoError(t, err)
		assert.Equal(t, first.Chunks, n)
	})

	t.Run("Failed record removes stored chunks", func(t *testing.T) {
		boom := errors.New("db down")
		s := newService(t, llmservice.NewMock(), WithCatalog(&catalog{recordErr: boom}))
		_, err := s.Ingest(ctx, IngestRequest{UserID: user, NotebookID: "bio", Title: "biology.txt", Text: biology})
		assert.ErrorIs(t, err, boom)
		n, err := s.store.Count(ctx, user, "bio")
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("Lost record race drops the copy", func(t *testing.T) {
		s := newService(t, llmservice.NewMock(), WithCatalog(&catalog{race: "doc-1"}))
		res := ingestBiology(t, s)
		assert.True(t, res.Duplicate)
		assert.Equal(t, "doc-1", res.DocumentID)
		n, err := s.store.Count(ctx, user, "bio")
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("Chunk context prefixes embedded text", func(t *testing.T) {
		gen := &scripted{reply: "From a biology chapter."}
		s := newService(t, gen, WithChunkContext(true))
		res := ingestBiology(t, s)
		assert.Len(t, gen.prompts, res.Chunks)
		assert.Contains(t, gen.prompts[0], "<chunk>")
	})
}

func TestAsk(t *testing.T) {
	ctx := context.Background()

	t.Run("No documents", func(t *testing.T) {
		gen := &scripted{reply: "unused"}
		s := newService(t, gen)
		ans, err := s.Ask(ctx, AskRequest{UserID: user, NotebookID: "bio", Question: "What is chlorophyll?"})
		require.NoError(t, err)
		assert.Equal(t, models.NoContextAnswer, ans.Answer)
		assert.Empty(t, ans.Sources)
		assert.Empty(t, gen.prompts)
	})

	t.Run("Answers from retrieved chunks", func(t *testing.T) {
		gen := &scripted{reply: "Chlorophyll absorbs light."}
		s := newService(t, gen)
		ingestBiology(t, s)

		var streamed string
		ans, err := s.Ask(ctx, AskRequest{
			UserID: user, NotebookID: "bio", Question: "What does chlorophyll absorb?", TopK: 2,
			IncludePrompt: true, Stream: func(c string) { streamed += c },
		})
		require.NoError(t, err)
		assert.Equal(t, "Chlorophyll absorbs light.", ans.Answer)
		assert.Equal(t, streamed, ans.Answer)
		require.Len(t, ans.Sources, 2)
		assert.Contains(t, ans.Sources[0].Text, "Chlorophyll")
		assert.GreaterOrEqual(t, ans.Sources[0].Score, ans.Sources[1].Score)
		assert.Contains(t, ans.UsedPrompt, "[Excerpt 1]:")
		assert.Equal(t, "scripted", ans.Model)
	})

	t.Run("All notebooks when notebook is empty", func(t *testing.T) {
		s := newService(t, llmservice.NewMock())
		ingestBiology(t, s)
		ans, err := s.Ask(ctx, AskRequest{UserID: user, Question: "mitosis"})
		require.NoError(t, err)
		assert.NotEmpty(t, ans.Sources)
	})

	t.Run("Empty question", func(t *testing.T) {
		s := newService(t, llmservice.NewMock())
		_, err := s.Ask(ctx, AskRequest{UserID: user, Question: "  "})
		assert.ErrorIs(t, err, ErrEmptyQuestion)
	})

	t.Run("Generator error propagates", func(t *testing.T) {
		boom := errors.New("model down")
		s := newService(t, &scripted{err: boom})
		ingestBiology(t, s)
		_, err := s.Ask(ctx, AskRequest{UserID: user, NotebookID: "bio", Question: "light"})
		assert.ErrorIs(t, err, boom)
	})
}

func TestGenerateQuiz(t *testing.T) {
	ctx := context.Background()

	t.Run("Mock quiz parses", func(t *testing.T) {
		s := newService(t, llmservice.NewMock())
		ingestBiology(t, s)
		quiz, err := s.GenerateQuiz(ctx, QuizRequest{UserID: user, NotebookID: "bio", Topic: "Photosynthesis"})
		require.NoError(t, err)
		assert.Equal(t, "Quiz: Photosynthesis", quiz.Title)
		assert.Equal(t, "medium", quiz.Difficulty)
		assert.Len(t, quiz.Questions, 3)
	})

	t.Run("No documents", func(t *testing.T) {
		s := newService(t, llmservice.NewMock())
		_, err := s.GenerateQuiz(ctx, QuizRequest{UserID: user, NotebookID: "bio", Topic: "x"})
		assert.ErrorIs(t, err, ErrNoDocuments)
	})

	t.Run("Unparsable output", func(t *testing.T) {
		s := newService(t, &scripted{reply: "Question 1: what?"})
		ingestBiology(t, s)
		_, err := s.GenerateQuiz(ctx, QuizRequest{UserID: user, NotebookID: "bio", Topic: "cells"})
		assert.ErrorIs(t, err, ErrGeneration)
	})
}

func TestSuggestTopics(t *testing.T) {
	ctx := context.Background()

	s := newService(t, llmservice.NewMock())
	topics, err := s.SuggestTopics(ctx, user, "bio")
	require.NoError(t, err)
	assert.Empty(t, topics)

	ingestBiology(t, s)
	topics, err = s.SuggestTopics(ctx, user, "bio")
	require.NoError(t, err)
	assert.Len(t, topics, 5)

	failing := newService(t, &scripted{err: errors.New("down")})
	ingestBiology(t, failing)
	topics, err = failing.SuggestTopics(ctx, user, "bio")
	require.NoError(t, err)
	assert.Equal(t, []string{models.FallbackTopic}, topics)
}

func TestGenerateFlashcards(t *testing.T) {
	ctx := context.Background()
	s := newService(t, llmservice.NewMock())

	_, err := s.GenerateFlashcards(ctx, user, "bio", 10)
	assert.ErrorIs(t, err, ErrNoDocuments)

	ingestBiology(t, s)
	cards, err := s.GenerateFlashcards(ctx, user, "bio", 3)
	require.NoError(t, err)
	assert.Len(t, cards, 3)
	assert.NotEmpty(t, cards[0].Front)
}

func TestGenerateMindMap(t *testing.T) {
	ctx := context.Background()

	t.Run("Mock map with connections", func(t *testing.T) {
		s := newService(t, llmservice.NewMock())
		ingestBiology(t, s)
		mm, err := s.GenerateMindMap(ctx, user, "bio", 9)
		require.NoError(t, err)
		assert.Len(t, mm.Nodes, 5)
		assert.Equal(t, 2, mm.Depth)
		assert.Equal(t, 2, mm.Nodes[0].Connections)
		assert.Equal(t, 3, mm.Nodes[1].Connections)
	})

	t.Run("Fallback on garbage", func(t *testing.T) {
		gen := &scripted{reply: "I cannot draw maps."}
		s := newService(t, gen)
		ingestBiology(t, s)
		mm, err := s.GenerateMindMap(ctx, user, "bio", 0)
		require.NoError(t, err)
		require.Len(t, mm.Nodes, 1)
		assert.Equal(t, "Main Topic", mm.Nodes[0].Label)
		assert.Contains(t, gen.prompts[0], "EXACTLY 2 depth levels")
	})
}

func TestExplainNode(t *testing.T) {
	ctx := context.Background()
	node := models.MindMapNode{ID: "4", Label: "Chlorophyll", Content: "Pigment absorbing light."}

	gen := &scripted{reply: "Chlorophyll is the green pigment that captures light for photosynthesis in plants."}
	s := newService(t, gen)
	ingestBiology(t, s)

	d, err := s.ExplainNode(ctx, user, "bio", node)
	require.NoError(t, err)
	assert.Equal(t, gen.reply, d.Summary)
	assert.Equal(t, "document", d.Source)
	assert.NotEmpty(t, d.Details)
	assert.Equal(t, "biology.txt", d.Details[0].Source)
	assert.True(t, strings.HasPrefix(gen.prompts[0], "Explain Chlorophyll"))

	short := &scripted{reply: "Too short."}
	s2 := newService(t, short)
	ingestBiology(t, s2)
	d, err = s2.ExplainNode(ctx, user, "bio", node)
	require.NoError(t, err)
	assert.Equal(t, node.Content, d.Summary)

	d, err = s.ExplainNode(ctx, user, "", node)
	require.NoError(t, err)
	assert.Equal(t, "generated", d.Source)
}

func TestDeleteNotebook(t *testing.T) {
	ctx := context.Background()
	s := newService(t, llmservice.NewMock())
	res := ingestBiology(t, s)

	require.NoError(t, s.DeleteDocument(ctx, user, "bio", res.DocumentID))
	n, err := s.store.Count(ctx, user, "bio")
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, s.DeleteNotebook(ctx, user, "bio"))
}
