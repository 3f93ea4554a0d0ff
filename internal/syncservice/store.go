package syncservice

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"
)

var ErrNotFound = errors.New("not found")

// Store persists synced data per user.
type Store interface {
	EnsureUser(ctx context.Context, id, email string) (*User, error)
	Counts(ctx context.Context, userID string) (notebooks, conversations int, err error)
	UpsertNotebook(ctx context.Context, userID string, req NotebookRequest, now time.Time) (*Notebook, error)
	ListNotebooks(ctx context.Context, userID string) ([]Notebook, error)
	GetNotebook(ctx context.Context, userID, id string) (*Notebook, error)
	DeleteNotebook(ctx context.Context, userID, id string) error
	AddConversation(ctx context.Context, userID string, req ConversationRequest, now time.Time) (bool, error)
	ListConversations(ctx context.Context, userID, notebookID string) ([]Conversation, error)
	PutSettings(ctx context.Context, userID, settingsJSON string, now time.Time) (*Settings, error)
	GetSettings(ctx context.Context, userID string) (*Settings, error)
}

// BunStore is the Postgres Store.
type BunStore struct {
	db *bun.DB
}

func NewBunStore(db *bun.DB) *BunStore {
	return &BunStore{db: db}
}

func (s *BunStore) InitSchema(ctx context.Context) error {
	for _, m := range []interface{}{(*User)(nil), (*Notebook)(nil), (*Conversation)(nil), (*Settings)(nil)} {
		if _, err := s.db.NewCreateTable().Model(m).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("failed to create table for %T: %w", m, err)
		}
	}
	return nil
}

func (s *BunStore) EnsureUser(ctx context.Context, id, email string) (*User, error) {
	u := &User{ID: id, Email: email, CreatedAt: time.Now().UTC()}
	if _, err := s.db.NewInsert().Model(u).On("CONFLICT (id) DO NOTHING").Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	if err := s.db.NewSelect().Model(u).WherePK().Scan(ctx); err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	return u, nil
}

func (s *BunStore) Counts(ctx context.Context, userID string) (int, int, error) {
	nbs, err := s.db.NewSelect().Model((*Notebook)(nil)).Where("user_id = ?", userID).Count(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count notebooks: %w", err)
	}
	convs, err := s.db.NewSelect().Model((*Conversation)(nil)).Where("user_id = ?", userID).Count(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count conversations: %w", err)
	}
	return nbs, convs, nil
}

// UpsertNotebook creates or replaces the notebook and bumps the user's last sync time.
func (s *BunStore) UpsertNotebook(ctx context.Context, userID string, req NotebookRequest, now time.Time) (*Notebook, error) {
	nb := &Notebook{
		ID:        req.ID,
		UserID:    userID,
		Title:     req.Title,
		Content:   req.Content,
		DeviceID:  req.DeviceID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(nb).
			On("CONFLICT (id, user_id) DO UPDATE").
			Set("title = EXCLUDED.title").
			Set("content = EXCLUDED.content").
			Set("device_id = EXCLUDED.device_id").
			Set("updated_at = EXCLUDED.updated_at").
			Returning("created_at").
			Exec(ctx); err != nil {
			return fmt.Errorf("failed to upsert notebook: %w", err)
		}
		_, err := tx.NewUpdate().Model((*User)(nil)).
			Set("last_sync = ?", now).
			Where("id = ?", userID).
			Exec(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return nb, nil
}

func (s *BunStore) ListNotebooks(ctx context.Context, userID string) ([]Notebook, error) {
	var nbs []Notebook
	if err := s.db.NewSelect().Model(&nbs).
		Where("sn.user_id = ?", userID).
		Order("sn.updated_at DESC").
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("failed to list notebooks: %w", err)
	}
	return nbs, nil
}

func (s *BunStore) GetNotebook(ctx context.Context, userID, id string) (*Notebook, error) {
	nb := new(Notebook)
	err := s.db.NewSelect().Model(nb).
		Where("sn.id = ?", id).
		Where("sn.user_id = ?", userID).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get notebook: %w", err)
	}
	return nb, nil
}

func (s *BunStore) DeleteNotebook(ctx context.Context, userID, id string) error {
	res, err := s.db.NewDelete().Model((*Notebook)(nil)).
		Where("id = ?", id).
		Where("user_id = ?", userID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete notebook: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// AddConversation inserts the conversation unless one with the same id exists. It reports whether a row was added.
func (s *BunStore) AddConversation(ctx context.Context, userID string, req ConversationRequest, now time.Time) (bool, error) {
	conv := &Conversation{
		ID:         req.ID,
		UserID:     userID,
		NotebookID: req.NotebookID,
		Question:   req.Question,
		Answer:     req.Answer,
		CreatedAt:  now,
	}
	res, err := s.db.NewInsert().Model(conv).On("CONFLICT (id, user_id) DO NOTHING").Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to add conversation: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *BunStore) ListConversations(ctx context.Context, userID, notebookID string) ([]Conversation, error) {
	var convs []Conversation
	q := s.db.NewSelect().Model(&convs).Where("sc.user_id = ?", userID)
	if notebookID != "" {
		q = q.Where("sc.notebook_id = ?", notebookID)
	}
	if err := q.Order("sc.created_at DESC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	return convs, nil
}

func (s *BunStore) PutSettings(ctx context.Context, userID, settingsJSON string, now time.Time) (*Settings, error) {
	st := &Settings{UserID: userID, SettingsJSON: settingsJSON, UpdatedAt: &now}
	if _, err := s.db.NewInsert().Model(st).
		On("CONFLICT (user_id) DO UPDATE").
		Set("settings_json = EXCLUDED.settings_json").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to save settings: %w", err)
	}
	return st, nil
}

func (s *BunStore) GetSettings(ctx context.Context, userID string) (*Settings, error) {
	st := new(Settings)
	err := s.db.NewSelect().Model(st).Where("ss.user_id = ?", userID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get settings: %w", err)
	}
	return st, nil
}
