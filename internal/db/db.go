package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"

	"clarity/internal/config"
)

var ErrNotFound = errors.New("not found")

// ConnectDB opens the database with bun's pgdriver, or with lib/pq when the driver is "postgres".
func ConnectDB(cfg *config.DatabaseConfig) (*sql.DB, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("%w: database dsn is empty", config.ErrInvalidConfig)
	}
	if cfg.Driver == "postgres" {
		sqldb, err := sql.Open("postgres", cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		return sqldb, nil
	}

	opts := []pgdriver.Option{pgdriver.WithDSN(cfg.DSN)}
	if cfg.Password != "" {
		opts = append(opts, pgdriver.WithPassword(cfg.Password))
	}
	return sql.OpenDB(pgdriver.NewConnector(opts...)), nil
}

func NewDB(sqldb *sql.DB, debug bool) *bun.DB {
	db := bun.NewDB(sqldb, pgdialect.New())
	if debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}
	return db
}

var tables = []interface{}{
	(*Notebook)(nil),
	(*Document)(nil),
	(*Deck)(nil),
	(*Card)(nil),
	(*Quiz)(nil),
	(*MindMap)(nil),
	(*Conversation)(nil),
}

type tableIndex struct {
	model   interface{}
	name    string
	columns []string
	unique  bool
}

// InitDB creates the tables. withVectors also enables pgvector and creates the chunk table.
func InitDB(ctx context.Context, db *bun.DB, withVectors bool) error {
	models := tables
	if withVectors {
		if _, err := db.ExecContext(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
			return fmt.Errorf("failed to create vector extension: %w", err)
		}
		models = append(append([]interface{}{}, tables...), (*ChunkRow)(nil))
	}

	for _, m := range models {
		if _, err := db.NewCreateTable().Model(m).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("failed to create table for %T: %w", m, err)
		}
	}

	indexes := []tableIndex{
		{(*Document)(nil), "documents_user_notebook_hash_idx", []string{"user_id", "notebook_id", "content_hash"}, true},
		{(*Card)(nil), "cards_user_deck_next_review_idx", []string{"user_id", "deck_id", "next_review"}, false},
		{(*Conversation)(nil), "conversations_user_notebook_idx", []string{"user_id", "notebook_id"}, false},
	}
	if withVectors {
		indexes = append(indexes, tableIndex{(*ChunkRow)(nil), "chunks_user_notebook_idx", []string{"user_id", "notebook_id"}, false})
	}
	for _, idx := range indexes {
		q := db.NewCreateIndex().Model(idx.model).Index(idx.name).Column(idx.columns...).IfNotExists()
		if idx.unique {
			q = q.Unique()
		}
		if _, err := q.Exec(ctx); err != nil {
			return fmt.Errorf("failed to create index %s: %w", idx.name, err)
		}
	}
	log.Info().Bool("vectors", withVectors).Msg("Initialized database")
	return nil
}

// DropAll drops every table InitDB creates.
func DropAll(ctx context.Context, db *bun.DB) error {
	for _, m := range append(append([]interface{}{}, tables...), (*ChunkRow)(nil)) {
		if _, err := db.NewDropTable().Model(m).IfExists().Cascade().Exec(ctx); err != nil {
			return fmt.Errorf("failed to drop table for %T: %w", m, err)
		}
	}
	return nil
}

// Store is the relational store for study data, scoped by user id.
type Store struct {
	db *bun.DB
}

func NewStore(db *bun.DB) *Store {
	return &Store{db: db}
}

func (s *Store) DB() *bun.DB { return s.db }

func notFound(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return err
}

func checkAffected(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return nil
}
