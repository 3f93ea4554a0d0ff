package db

import (
	"time"

	"github.com/pgvector/pgvector-go"
	"github.com/uptrace/bun"

	"clarity/internal/models"
	"clarity/internal/scheduler"
)

type Notebook struct {
	bun.BaseModel `bun:"table:notebooks,alias:n"`
	ID            string    `bun:"id,pk" json:"id"`
	UserID        string    `bun:"user_id,notnull" json:"userId"`
	Name          string    `bun:"name,notnull" json:"name"`
	Description   string    `bun:"description" json:"description"`
	CreatedAt     time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"createdAt"`
	UpdatedAt     time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp" json:"updatedAt"`
	DocumentCount int       `bun:"document_count,scanonly" json:"documentCount"`
}

type Document struct {
	bun.BaseModel `bun:"table:documents,alias:d"`
	ID            string    `bun:"id,pk" json:"id"`
	UserID        string    `bun:"user_id,notnull" json:"userId"`
	NotebookID    string    `bun:"notebook_id,notnull" json:"notebookId"`
	Title         string    `bun:"title,notnull" json:"title"`
	ContentHash   string    `bun:"content_hash,notnull" json:"contentHash"`
	Chars         int       `bun:"chars" json:"chars"`
	Chunks        int       `bun:"chunks" json:"chunks"`
	CreatedAt     time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"createdAt"`
}

type Deck struct {
	bun.BaseModel `bun:"table:decks,alias:dk"`
	ID            string    `bun:"id,pk" json:"id"`
	UserID        string    `bun:"user_id,notnull" json:"userId"`
	NotebookID    string    `bun:"notebook_id" json:"notebookId"`
	Name          string    `bun:"name,notnull" json:"name"`
	Description   string    `bun:"description" json:"description"`
	CreatedAt     time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"createdAt"`
	UpdatedAt     time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp" json:"updatedAt"`
}

// Card is a flashcard with its SM-2 scheduling columns.
type Card struct {
	bun.BaseModel `bun:"table:cards,alias:c"`
	ID            string     `bun:"id,pk" json:"id"`
	DeckID        string     `bun:"deck_id,notnull" json:"deckId"`
	UserID        string     `bun:"user_id,notnull" json:"userId"`
	Front         string     `bun:"front,notnull" json:"front"`
	Back          string     `bun:"back,notnull" json:"back"`
	EaseFactor    float64    `bun:"ease_factor,notnull" json:"easeFactor"`
	Interval      int        `bun:"interval_days,notnull" json:"interval"`
	Repetitions   int        `bun:"repetitions,notnull" json:"repetitions"`
	NextReview    time.Time  `bun:"next_review,notnull" json:"nextReview"`
	LastReviewed  *time.Time `bun:"last_reviewed" json:"lastReviewed,omitempty"`
	CreatedAt     time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"createdAt"`
	UpdatedAt     time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp" json:"updatedAt"`
}

func (c *Card) State() scheduler.State {
	return scheduler.State{
		EaseFactor:   c.EaseFactor,
		Interval:     c.Interval,
		Repetitions:  c.Repetitions,
		NextReview:   c.NextReview,
		LastReviewed: c.LastReviewed,
	}
}

func (c *Card) SetState(s scheduler.State) {
	c.EaseFactor = s.EaseFactor
	c.Interval = s.Interval
	c.Repetitions = s.Repetitions
	c.NextReview = s.NextReview
	c.LastReviewed = s.LastReviewed
}

type DeckStats struct {
	Total    int `json:"total"`
	New      int `json:"new"`
	Due      int `json:"due"`
	Mastered int `json:"mastered"`
}

type Quiz struct {
	bun.BaseModel `bun:"table:quizzes,alias:q"`
	ID            string                `bun:"id,pk" json:"id"`
	UserID        string                `bun:"user_id,notnull" json:"userId"`
	NotebookID    string                `bun:"notebook_id" json:"notebookId"`
	Title         string                `bun:"title,notnull" json:"title"`
	Topic         string                `bun:"topic" json:"topic"`
	Difficulty    string                `bun:"difficulty" json:"difficulty"`
	Questions     []models.QuizQuestion `bun:"questions,type:jsonb" json:"questions"`
	CreatedAt     time.Time             `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"createdAt"`
}

type MindMap struct {
	bun.BaseModel `bun:"table:mind_maps,alias:mm"`
	ID            string               `bun:"id,pk" json:"id"`
	UserID        string               `bun:"user_id,notnull" json:"userId"`
	NotebookID    string               `bun:"notebook_id" json:"notebookId"`
	Title         string               `bun:"title,notnull" json:"title"`
	Nodes         []models.MindMapNode `bun:"nodes,type:jsonb" json:"nodes"`
	Edges         []models.MindMapEdge `bun:"edges,type:jsonb" json:"edges"`
	Depth         int                  `bun:"depth" json:"depth"`
	MaxDepth      int                  `bun:"max_depth" json:"maxDepth"`
	CreatedAt     time.Time            `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"createdAt"`
}

type Conversation struct {
	bun.BaseModel `bun:"table:conversations,alias:cv"`
	ID            string               `bun:"id,pk" json:"id"`
	UserID        string               `bun:"user_id,notnull" json:"userId"`
	NotebookID    string               `bun:"notebook_id" json:"notebookId"`
	Question      string               `bun:"question,notnull" json:"question"`
	Answer        string               `bun:"answer,notnull" json:"answer"`
	Sources       []models.SourceChunk `bun:"sources,type:jsonb" json:"sources"`
	Model         string               `bun:"model" json:"model"`
	CreatedAt     time.Time            `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"createdAt"`
}

// ChunkRow is one embedded chunk in the pgvector table.
type ChunkRow struct {
	bun.BaseModel `bun:"table:chunks,alias:ch"`
	ID            string          `bun:"id,pk"`
	UserID        string          `bun:"user_id,notnull"`
	NotebookID    string          `bun:"notebook_id,notnull"`
	DocumentID    string          `bun:"document_id,notnull"`
	Title         string          `bun:"title"`
	ChunkIndex    int             `bun:"chunk_index"`
	CharStart     int             `bun:"char_start"`
	CharEnd       int             `bun:"char_end"`
	Content       string          `bun:"content,notnull"`
	Embedding     pgvector.Vector `bun:"embedding,notnull,type:vector"`
	Score         float32         `bun:"score,scanonly"`
}
