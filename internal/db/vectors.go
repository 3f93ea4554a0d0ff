package db

import (
	"context"
	"fmt"
	"strconv"

	"github.com/pgvector/pgvector-go"
	"github.com/uptrace/bun"

	"clarity/internal/models"
)

// VectorStore keeps chunk embeddings in Postgres with pgvector and ranks them by cosine distance.
type VectorStore struct {
	db *bun.DB
}

func NewVectorStore(db *bun.DB) *VectorStore {
	return &VectorStore{db: db}
}

func (v *VectorStore) AddChunks(ctx context.Context, userID, notebookID string, chunks []models.ChunkRecord) error {
	if len(chunks) == 0 {
		return nil
	}
	rows := make([]ChunkRow, len(chunks))
	for i, c := range chunks {
		rows[i] = ChunkRow{
			ID:         c.ID,
			UserID:     userID,
			NotebookID: notebookID,
			DocumentID: c.DocumentID,
			Title:      c.Title,
			ChunkIndex: c.Index,
			CharStart:  c.CharStart,
			CharEnd:    c.CharEnd,
			Content:    c.Text,
			Embedding:  pgvector.NewVector(c.Embedding),
		}
	}
	_, err := v.db.NewInsert().Model(&rows).
		On("CONFLICT (id) DO UPDATE").
		Set("content = EXCLUDED.content").
		Set("embedding = EXCLUDED.embedding").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to store chunks: %w", err)
	}
	return nil
}

// Query returns the topK chunks closest to embedding. An empty notebookID searches all of the user's notebooks.
func (v *VectorStore) Query(ctx context.Context, userID, notebookID string, embedding []float32, topK int) ([]models.SourceChunk, error) {
	if topK <= 0 {
		return nil, nil
	}
	vec := pgvector.NewVector(embedding)
	var rows []ChunkRow
	q := v.db.NewSelect().Model(&rows).
		Column("id", "notebook_id", "document_id", "title", "chunk_index", "char_start", "char_end", "content").
		ColumnExpr("1 - (ch.embedding <=> ?) AS score", vec).
		Where("ch.user_id = ?", userID)
	if notebookID != "" {
		q = q.Where("ch.notebook_id = ?", notebookID)
	}
	if err := q.OrderExpr("ch.embedding <=> ?", vec).Limit(topK).Scan(ctx); err != nil {
		return nil, fmt.Errorf("failed to query by similarity: %w", err)
	}

	results := make([]models.SourceChunk, len(rows))
	for i, r := range rows {
		results[i] = models.SourceChunk{
			ID:    r.ID,
			Text:  r.Content,
			Score: r.Score,
			Metadata: map[string]string{
				models.MetaDocumentID: r.DocumentID,
				models.MetaNotebookID: r.NotebookID,
				models.MetaUserID:     userID,
				models.MetaTitle:      r.Title,
				models.MetaChunkIndex: strconv.Itoa(r.ChunkIndex),
				models.MetaCharStart:  strconv.Itoa(r.CharStart),
				models.MetaCharEnd:    strconv.Itoa(r.CharEnd),
			},
		}
	}
	return results, nil
}

func (v *VectorStore) DeleteDocument(ctx context.Context, userID, notebookID, documentID string) error {
	q := v.db.NewDelete().Model((*ChunkRow)(nil)).
		Where("user_id = ?", userID).
		Where("document_id = ?", documentID)
	if notebookID != "" {
		q = q.Where("notebook_id = ?", notebookID)
	}
	if _, err := q.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete document chunks: %w", err)
	}
	return nil
}

func (v *VectorStore) DeleteNotebook(ctx context.Context, userID, notebookID string) error {
	if _, err := v.db.NewDelete().Model((*ChunkRow)(nil)).
		Where("user_id = ?", userID).
		Where("notebook_id = ?", notebookID).
		Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete notebook chunks: %w", err)
	}
	return nil
}

func (v *VectorStore) Count(ctx context.Context, userID, notebookID string) (int, error) {
	q := v.db.NewSelect().Model((*ChunkRow)(nil)).Where("user_id = ?", userID)
	if notebookID != "" {
		q = q.Where("notebook_id = ?", notebookID)
	}
	n, err := q.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	return n, nil
}
