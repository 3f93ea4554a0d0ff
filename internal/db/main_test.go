package db

import (
	"context"
	"log"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"

	"clarity/internal/config"
)

const pgImage = "pgvector/pgvector:pg17"

var (
	dsn        string
	containerUp bool
)

func TestMain(m *testing.M) {
	ctx := context.Background()
	teardown, connStr, err := startPostgresContainer(ctx)
	if err != nil {
		log.Printf("postgres container unavailable, database tests are skipped: %v", err)
	} else {
		dsn, containerUp = connStr, true
	}

	code := m.Run()

	if teardown != nil {
		if err := teardown(ctx); err != nil {
			log.Printf("error terminating postgres container: %v", err)
		}
	}
	os.Exit(code)
}

func startPostgresContainer(ctx context.Context, opts ...testcontainers.ContainerCustomizer) (func(ctx context.Context, opt ...testcontainers.TerminateOption) error, string, error) {
	opts = append(opts,
		postgres.WithDatabase("database"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(2*time.Minute),
		),
	)

	container, err := postgres.Run(ctx, pgImage, opts...)
	if err != nil {
		return nil, "", err
	}
	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		return container.Terminate, "", err
	}
	return container.Terminate, connStr, nil
}

// newTestDB connects to a fresh schema for one test.
func newTestDB(t *testing.T) *bun.DB {
	t.Helper()
	if !containerUp {
		t.Skip("postgres container not running")
	}
	ctx := context.Background()

	sqldb, err := ConnectDB(&config.DatabaseConfig{DSN: dsn})
	require.NoError(t, err)
	db := NewDB(sqldb, false)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, DropAll(ctx, db))
	require.NoError(t, InitDB(ctx, db, true))
	return db
}
