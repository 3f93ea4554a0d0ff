package syncservice

import (
	"time"

	"github.com/uptrace/bun"
)

// User is a sync account. The id is the identity provider subject.
type User struct {
	bun.BaseModel `bun:"table:sync_users,alias:u"`
	ID            string     `bun:"id,pk"`
	Email         string     `bun:"email"`
	CreatedAt     time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	LastSync      *time.Time `bun:"last_sync"`
}

// Notebook is a synced notebook: text and metadata only, never vectors.
type Notebook struct {
	bun.BaseModel `bun:"table:sync_notebooks,alias:sn"`
	ID            string    `bun:"id,pk" json:"id"`
	UserID        string    `bun:"user_id,pk" json:"-"`
	Title         string    `bun:"title" json:"title"`
	Content       string    `bun:"content" json:"content"`
	DeviceID      string    `bun:"device_id" json:"device_id"`
	CreatedAt     time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt     time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp" json:"updated_at"`
}

type Conversation struct {
	bun.BaseModel `bun:"table:sync_conversations,alias:sc"`
	ID            string    `bun:"id,pk" json:"id"`
	UserID        string    `bun:"user_id,pk" json:"-"`
	NotebookID    string    `bun:"notebook_id" json:"notebook_id"`
	Question      string    `bun:"question" json:"question"`
	Answer        string    `bun:"answer" json:"answer"`
	CreatedAt     time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
}

type Settings struct {
	bun.BaseModel `bun:"table:sync_settings,alias:ss"`
	UserID        string     `bun:"user_id,pk" json:"-"`
	SettingsJSON  string     `bun:"settings_json" json:"settings_json"`
	UpdatedAt     *time.Time `bun:"updated_at" json:"updated_at"`
}

type NotebookRequest struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Content  string `json:"content"`
	DeviceID string `json:"device_id"`
}

type ConversationRequest struct {
	ID         string `json:"id"`
	NotebookID string `json:"notebook_id"`
	Question   string `json:"question"`
	Answer     string `json:"answer"`
}

type SettingsRequest struct {
	SettingsJSON string `json:"settings_json"`
}

type Status struct {
	UserID              string     `json:"user_id"`
	LastSync            *time.Time `json:"last_sync"`
	NotebooksSynced     int        `json:"notebooks_synced"`
	ConversationsSynced int        `json:"conversations_synced"`
	Status              string     `json:"status"`
}

// Ack is the reply to a write.
type Ack struct {
	Status         string     `json:"status"`
	NotebookID     string     `json:"notebook_id,omitempty"`
	ConversationID string     `json:"conversation_id,omitempty"`
	UpdatedAt      *time.Time `json:"updated_at,omitempty"`
}
