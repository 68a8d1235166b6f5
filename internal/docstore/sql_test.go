package docstore

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupSQLiteStore(t *testing.T) *SQLStore {
	store, err := OpenSQLite(filepath.Join(t.TempDir(), "docs.db"))
	require.NoError(t, err)
	require.NoError(t, store.RunMigrations())
	t.Cleanup(func() { store.Close(context.Background()) })
	return store
}

func TestSQLiteStore(t *testing.T) {
	runStoreSuite(t, setupSQLiteStore(t))
}

func TestSQLiteStore_MigrationsAreIdempotent(t *testing.T) {
	store := setupSQLiteStore(t)
	assert.NoError(t, store.RunMigrations())
}

func TestSQLiteStore_MergeReplacesArrays(t *testing.T) {
	ctx := context.Background()
	store := setupSQLiteStore(t)

	require.NoError(t, store.Set(ctx, "carts", "u1", Document{
		"items": []any{map[string]any{"name": "a"}, map[string]any{"name": "b"}},
	}, SetOptions{Merge: true}))
	require.NoError(t, store.Set(ctx, "carts", "u1", Document{
		"items": []any{map[string]any{"name": "c"}},
	}, SetOptions{Merge: true}))

	doc, err := store.Get(ctx, "carts", "u1")
	require.NoError(t, err)
	items := Documents(doc, "items")
	require.Len(t, items, 1)
	assert.Equal(t, "c", String(items[0], "name"))
}

func setupPostgresStore(t *testing.T) (*SQLStore, func()) {
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)

	host, err := pgContainer.Host(ctx)
	require.NoError(t, err)

	port, err := pgContainer.MappedPort(ctx, "5432")
	require.NoError(t, err)

	dsn := fmt.Sprintf("postgres://testuser:testpass@%s:%d/testdb?sslmode=disable", host, port.Int())
	store, err := OpenPostgres(dsn)
	require.NoError(t, err)
	require.NoError(t, store.RunMigrations())

	cleanup := func() {
		store.Close(ctx)
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	}
	return store, cleanup
}

func TestPostgresStore(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	store, cleanup := setupPostgresStore(t)
	defer cleanup()

	runStoreSuite(t, store)
}
