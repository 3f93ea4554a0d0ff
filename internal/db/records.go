package db

import (
	"context"
	"fmt"
	"time"

	"clarity/internal/helper"
)

func (s *Store) SaveQuiz(ctx context.Context, quiz *Quiz) error {
	if quiz.ID == "" {
		quiz.ID = helper.NewID()
	}
	quiz.CreatedAt = time.Now().UTC()
	if _, err := s.db.NewInsert().Model(quiz).Exec(ctx); err != nil {
		return fmt.Errorf("failed to save quiz: %w", err)
	}
	return nil
}

func (s *Store) GetQuiz(ctx context.Context, userID, id string) (*Quiz, error) {
	quiz := new(Quiz)
	if err := s.db.NewSelect().Model(quiz).
		Where("q.id = ?", id).
		Where("q.user_id = ?", userID).
		Scan(ctx); err != nil {
		return nil, notFound(err, "quiz "+id)
	}
	return quiz, nil
}

// ListQuizzes returns the user's quizzes, newest first. An empty notebookID lists all of them.
func (s *Store) ListQuizzes(ctx context.Context, userID, notebookID string) ([]Quiz, error) {
	var quizzes []Quiz
	q := s.db.NewSelect().Model(&quizzes).Where("q.user_id = ?", userID)
	if notebookID != "" {
		q = q.Where("q.notebook_id = ?", notebookID)
	}
	if err := q.Order("q.created_at DESC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("failed to list quizzes: %w", err)
	}
	return quizzes, nil
}

func (s *Store) DeleteQuiz(ctx context.Context, userID, id string) error {
	res, err := s.db.NewDelete().Model((*Quiz)(nil)).
		Where("id = ?", id).
		Where("user_id = ?", userID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete quiz: %w", err)
	}
	return checkAffected(res, "quiz "+id)
}

func (s *Store) SaveMindMap(ctx context.Context, mm *MindMap) error {
	if mm.ID == "" {
		mm.ID = helper.NewID()
	}
	mm.CreatedAt = time.Now().UTC()
	if _, err := s.db.NewInsert().Model(mm).Exec(ctx); err != nil {
		return fmt.Errorf("failed to save mind map: %w", err)
	}
	return nil
}

func (s *Store) GetMindMap(ctx context.Context, userID, id string) (*MindMap, error) {
	mm := new(MindMap)
	if err := s.db.NewSelect().Model(mm).
		Where("mm.id = ?", id).
		Where("mm.user_id = ?", userID).
		Scan(ctx); err != nil {
		return nil, notFound(err, "mind map "+id)
	}
	return mm, nil
}

func (s *Store) ListMindMaps(ctx context.Context, userID, notebookID string) ([]MindMap, error) {
	var maps []MindMap
	q := s.db.NewSelect().Model(&maps).Where("mm.user_id = ?", userID)
	if notebookID != "" {
		q = q.Where("mm.notebook_id = ?", notebookID)
	}
	if err := q.Order("mm.created_at DESC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("failed to list mind maps: %w", err)
	}
	return maps, nil
}

func (s *Store) DeleteMindMap(ctx context.Context, userID, id string) error {
	res, err := s.db.NewDelete().Model((*MindMap)(nil)).
		Where("id = ?", id).
		Where("user_id = ?", userID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete mind map: %w", err)
	}
	return checkAffected(res, "mind map "+id)
}

func (s *Store) SaveConversation(ctx context.Context, conv *Conversation) error {
	if conv.ID == "" {
		conv.ID = helper.NewID()
	}
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = time.Now().UTC()
	}
	if _, err := s.db.NewInsert().Model(conv).Exec(ctx); err != nil {
		return fmt.Errorf("failed to save conversation: %w", err)
	}
	return nil
}

// ListConversations returns the notebook's questions and answers in asked order, keeping the last limit.
func (s *Store) ListConversations(ctx context.Context, userID, notebookID string, limit int) ([]Conversation, error) {
	var convs []Conversation
	q := s.db.NewSelect().Model(&convs).
		Where("cv.user_id = ?", userID).
		Where("cv.notebook_id = ?", notebookID).
		Order("cv.created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	for i, j := 0, len(convs)-1; i < j; i, j = i+1, j-1 {
		convs[i], convs[j] = convs[j], convs[i]
	}
	return convs, nil
}

func (s *Store) ClearConversations(ctx context.Context, userID, notebookID string) (int64, error) {
	res, err := s.db.NewDelete().Model((*Conversation)(nil)).
		Where("user_id = ?", userID).
		Where("notebook_id = ?", notebookID).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to clear conversations: %w", err)
	}
	return res.RowsAffected()
}
