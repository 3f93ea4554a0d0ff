package rag

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"clarity/internal/llmservice"
	"clarity/internal/models"
)

const (
	quizContextK      = 5
	sampleContextK    = 10
	sampleContextUsed = 5
	mindMapContextK   = 30
	mindMapContextUse = 25
	nodeContextK      = 5
	nodeContextUsed   = 3
	excerptChars      = 200

	DefaultQuizQuestions = 5
	DefaultCards         = 10
)

type QuizRequest struct {
	UserID       string
	NotebookID   string
	Topic        string
	Difficulty   string
	NumQuestions int
}

// GenerateQuiz builds a multiple-choice quiz on topic from the closest chunks.
func (s *Service) GenerateQuiz(ctx context.Context, req QuizRequest) (*models.Quiz, error) {
	topic := strings.TrimSpace(req.Topic)
	if topic == "" {
		return nil, fmt.Errorf("%w: topic is required", ErrInvalidInput)
	}
	difficulty := req.Difficulty
	if difficulty == "" {
		difficulty = "medium"
	}
	n := req.NumQuestions
	if n <= 0 {
		n = DefaultQuizQuestions
	}

	sources, err := s.retrieve(ctx, req.UserID, req.NotebookID, topic, quizContextK)
	if err != nil {
		return nil, err
	}
	if len(sources) == 0 {
		return nil, fmt.Errorf("%w for topic %q", ErrNoDocuments, topic)
	}

	log.Info().Str("user_id", req.UserID).Str("notebook_id", req.NotebookID).Str("topic", topic).Msg("Generating quiz")
	reply, err := s.llm.Generate(ctx, llmservice.QuizPrompt(topic, difficulty, n, chunkTexts(sources)),
		llmservice.WithMaxTokens(3000), llmservice.WithTemperature(0.7))
	if err != nil {
		return nil, err
	}
	questions, err := ParseQuiz(reply)
	if err != nil {
		log.Error().Err(err).Str("reply", reply).Msg("Failed to parse quiz")
		return nil, err
	}
	return &models.Quiz{
		Title:      "Quiz: " + topic,
		Topic:      topic,
		Difficulty: difficulty,
		Questions:  questions,
	}, nil
}

// SuggestTopics proposes up to five quiz topics. An empty notebook yields none; model failures
// yield the generic fallback topic.
func (s *Service) SuggestTopics(ctx context.Context, userID, notebookID string) ([]string, error) {
	sample, err := s.sampleContext(ctx, userID, notebookID)
	if err != nil || sample == "" {
		return []string{}, err
	}
	reply, err := s.llm.Generate(ctx, llmservice.TopicPrompt(sample), llmservice.WithMaxTokens(200), llmservice.WithTemperature(0.7))
	if err != nil {
		log.Error().Err(err).Msg("Topic suggestion failed")
		return []string{models.FallbackTopic}, nil
	}
	return ParseTopics(reply), nil
}

// GenerateFlashcards drafts up to n cards from the notebook.
func (s *Service) GenerateFlashcards(ctx context.Context, userID, notebookID string, n int) ([]models.CardDraft, error) {
	if n <= 0 {
		n = DefaultCards
	}
	sample, err := s.sampleContext(ctx, userID, notebookID)
	if err != nil {
		return nil, err
	}
	if sample == "" {
		return nil, fmt.Errorf("%w in notebook %s", ErrNoDocuments, notebookID)
	}

	reply, err := s.llm.Generate(ctx, llmservice.FlashcardPrompt(sample, n), llmservice.WithMaxTokens(2000), llmservice.WithTemperature(0.7))
	if err != nil {
		return nil, err
	}
	cards, err := ParseCards(reply)
	if err != nil {
		log.Error().Err(err).Msg("Failed to parse LLM response for flashcard generation")
		return nil, err
	}
	if len(cards) > n {
		cards = cards[:n]
	}
	log.Info().Str("notebook_id", notebookID).Int("cards", len(cards)).Msg("Generated flashcards")
	return cards, nil
}

// GenerateMindMap asks for a concept graph up to maxDepth levels deep (clamped to 1..5).
func (s *Service) GenerateMindMap(ctx context.Context, userID, notebookID string, maxDepth int) (*models.MindMap, error) {
	maxDepth = llmservice.ClampDepth(maxDepth)
	sources, err := s.retrieve(ctx, userID, notebookID, models.MindMapQuery, mindMapContextK)
	if err != nil {
		return nil, err
	}
	if len(sources) == 0 {
		return nil, fmt.Errorf("%w in notebook %s", ErrNoDocuments, notebookID)
	}
	texts := chunkTexts(sources)
	if len(texts) > mindMapContextUse {
		texts = texts[:mindMapContextUse]
	}

	log.Info().Str("notebook_id", notebookID).Int("max_depth", maxDepth).Msg("Generating mind map")
	reply, err := s.llm.Generate(ctx, llmservice.MindMapPrompt(strings.Join(texts, models.ContextSeparator), maxDepth),
		llmservice.WithMaxTokens(4000), llmservice.WithTemperature(0.3), llmservice.WithTimeout(180*time.Second))
	if err != nil {
		return nil, err
	}

	mm, ok := ParseMindMap(reply)
	if !ok {
		log.Error().Int("reply_chars", len(reply)).Msg("Failed to parse mind map, using fallback")
		return mm, nil
	}
	if mm.Depth < maxDepth {
		log.Warn().Int("depth", mm.Depth).Int("max_depth", maxDepth).Msg("Mind map shallower than requested")
	}
	log.Info().Int("nodes", len(mm.Nodes)).Int("edges", len(mm.Edges)).Int("depth", mm.Depth).Msg("Generated mind map")
	return mm, nil
}

// ExplainNode expands a mind-map node with a summary and source excerpts from the notebook.
func (s *Service) ExplainNode(ctx context.Context, userID, notebookID string, node models.MindMapNode) (*models.NodeDetails, error) {
	details := &models.NodeDetails{
		NodeID:  node.ID,
		Label:   node.Label,
		Summary: node.Content,
		Details: []models.NodeExcerpt{},
		Source:  "generated",
	}
	if notebookID == "" {
		return details, nil
	}

	sources, err := s.retrieve(ctx, userID, notebookID, strings.TrimSpace(node.Label+" "+node.Content), nodeContextK)
	if err != nil {
		return nil, err
	}
	if len(sources) == 0 {
		return details, nil
	}
	details.Source = "document"

	texts := chunkTexts(sources)
	summary, err := s.llm.Generate(ctx, llmservice.NodeSummaryPrompt(node.Label, strings.Join(texts[:min(nodeContextUsed, len(texts))], models.ContextSeparator)),
		llmservice.WithMaxTokens(300))
	if err != nil {
		log.Warn().Err(err).Str("node", node.Label).Msg("Could not generate expanded summary")
	} else if summary = strings.TrimSpace(summary); len(summary) > 20 {
		details.Summary = summary
	}

	for _, src := range sources {
		title := src.Metadata[models.MetaTitle]
		if title == "" {
			title = "Unknown"
		}
		details.Details = append(details.Details, models.NodeExcerpt{Content: excerpt(src.Text, excerptChars), Source: title})
	}
	return details, nil
}

// sampleContext joins a handful of representative chunks of the notebook.
func (s *Service) sampleContext(ctx context.Context, userID, notebookID string) (string, error) {
	sources, err := s.retrieve(ctx, userID, notebookID, models.MindMapQuery, sampleContextK)
	if err != nil {
		return "", err
	}
	texts := chunkTexts(sources)
	if len(texts) > sampleContextUsed {
		texts = texts[:sampleContextUsed]
	}
	return strings.Join(texts, models.ContextSeparator), nil
}
