package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"

	"clarity/internal/helper"
)

func (s *Store) CreateNotebook(ctx context.Context, nb *Notebook) error {
	nb.Name = strings.TrimSpace(nb.Name)
	if nb.UserID == "" || nb.Name == "" {
		return fmt.Errorf("notebook needs a user and a name")
	}
	if nb.ID == "" {
		nb.ID = helper.NewID()
	}
	now := time.Now().UTC()
	nb.CreatedAt, nb.UpdatedAt = now, now
	if _, err := s.db.NewInsert().Model(nb).Exec(ctx); err != nil {
		return fmt.Errorf("failed to create notebook: %w", err)
	}
	return nil
}

func (s *Store) notebookQuery(userID string) *bun.SelectQuery {
	return s.db.NewSelect().
		Model((*Notebook)(nil)).
		ColumnExpr("n.*").
		ColumnExpr("(SELECT count(*) FROM documents AS d WHERE d.notebook_id = n.id AND d.user_id = n.user_id) AS document_count").
		Where("n.user_id = ?", userID)
}

func (s *Store) GetNotebook(ctx context.Context, userID, id string) (*Notebook, error) {
	nb := new(Notebook)
	if err := s.notebookQuery(userID).Where("n.id = ?", id).Scan(ctx, nb); err != nil {
		return nil, notFound(err, "notebook "+id)
	}
	return nb, nil
}

// ListNotebooks returns the user's notebooks, most recently updated first, with document counts.
func (s *Store) ListNotebooks(ctx context.Context, userID string) ([]Notebook, error) {
	var nbs []Notebook
	if err := s.notebookQuery(userID).Order("n.updated_at DESC").Scan(ctx, &nbs); err != nil {
		return nil, fmt.Errorf("failed to list notebooks: %w", err)
	}
	return nbs, nil
}

func (s *Store) UpdateNotebook(ctx context.Context, userID, id, name, description string) error {
	res, err := s.db.NewUpdate().
		Model((*Notebook)(nil)).
		Set("name = ?", strings.TrimSpace(name)).
		Set("description = ?", description).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id).
		Where("user_id = ?", userID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to update notebook: %w", err)
	}
	return checkAffected(res, "notebook "+id)
}

// DeleteNotebook removes the notebook with its documents, conversations and mind maps.
// Decks and quizzes built from it are kept.
func (s *Store) DeleteNotebook(ctx context.Context, userID, id string) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		for _, m := range []interface{}{(*Document)(nil), (*Conversation)(nil), (*MindMap)(nil)} {
			if _, err := tx.NewDelete().Model(m).
				Where("notebook_id = ?", id).
				Where("user_id = ?", userID).
				Exec(ctx); err != nil {
				return fmt.Errorf("failed to delete notebook contents: %w", err)
			}
		}
		res, err := tx.NewDelete().Model((*Notebook)(nil)).
			Where("id = ?", id).
			Where("user_id = ?", userID).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to delete notebook: %w", err)
		}
		return checkAffected(res, "notebook "+id)
	})
}

// FindDocumentByHash returns the notebook's document with this content hash, or ErrNotFound.
func (s *Store) FindDocumentByHash(ctx context.Context, userID, notebookID, hash string) (*Document, error) {
	doc := new(Document)
	err := s.db.NewSelect().Model(doc).
		Where("d.user_id = ?", userID).
		Where("d.notebook_id = ?", notebookID).
		Where("d.content_hash = ?", hash).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, notFound(err, "document")
	}
	return doc, nil
}

// AddDocument records an ingested document. A document whose content hash already exists in the
// notebook is returned instead, with created false.
func (s *Store) AddDocument(ctx context.Context, doc *Document) (*Document, bool, error) {
	existing, err := s.FindDocumentByHash(ctx, doc.UserID, doc.NotebookID, doc.ContentHash)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, fmt.Errorf("failed to look up document: %w", err)
	}

	if doc.ID == "" {
		doc.ID = helper.NewID()
	}
	doc.CreatedAt = time.Now().UTC()
	if _, err := s.db.NewInsert().Model(doc).Exec(ctx); err != nil {
		return nil, false, fmt.Errorf("failed to add document: %w", err)
	}
	if _, err := s.db.NewUpdate().Model((*Notebook)(nil)).
		Set("updated_at = ?", doc.CreatedAt).
		Where("id = ?", doc.NotebookID).
		Where("user_id = ?", doc.UserID).
		Exec(ctx); err != nil {
		return nil, false, fmt.Errorf("failed to touch notebook: %w", err)
	}
	return doc, true, nil
}

func (s *Store) ListDocuments(ctx context.Context, userID, notebookID string) ([]Document, error) {
	var docs []Document
	if err := s.db.NewSelect().Model(&docs).
		Where("d.user_id = ?", userID).
		Where("d.notebook_id = ?", notebookID).
		Order("d.created_at ASC").
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	return docs, nil
}

func (s *Store) DeleteDocument(ctx context.Context, userID, id string) error {
	res, err := s.db.NewDelete().Model((*Document)(nil)).
		Where("id = ?", id).
		Where("user_id = ?", userID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return checkAffected(res, "document "+id)
}
