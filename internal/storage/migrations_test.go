package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrate_FreshDatabase(t *testing.T) {
	store, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "fresh.db"))
	require.NoError(t, err)
	defer func() { _ = store.Close() }()
	ctx := context.Background()

	version, err := store.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, version)

	require.NoError(t, store.Migrate(ctx))

	version, err = store.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, ExpectedSchemaVersion, version)

	for _, table := range []string{"transactions", "recipes", "checkpoint_metadata", "import_runs"} {
		var name string
		err := store.db.QueryRowContext(ctx,
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		assert.NoError(t, err, "table %s should exist", table)
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, store.Migrate(ctx))
	require.NoError(t, store.Migrate(ctx))

	version, err := store.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, ExpectedSchemaVersion, version)
}

func TestMigrate_ResumesFromPartialVersion(t *testing.T) {
	store, err := NewSQLiteStorage(MemoryPath)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()
	ctx := context.Background()

	// Apply only the first migration by hand.
	tx, err := store.db.BeginTx(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, migrations[0].apply(ctx, tx))
	require.NoError(t, tx.Commit())

	version, err := store.SchemaVersion(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, version)

	require.NoError(t, store.Migrate(ctx))

	var count int
	require.NoError(t, store.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM import_runs").Scan(&count))
	assert.Equal(t, 0, count)
}

func TestMigrate_RefusesNewerSchema(t *testing.T) {
	store, err := NewSQLiteStorage(MemoryPath)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()
	ctx := context.Background()

	_, err = store.db.ExecContext(ctx, "PRAGMA user_version = 99")
	require.NoError(t, err)

	err = store.Migrate(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "newer")
}

func TestMigrations_AreOrdered(t *testing.T) {
	for i, m := range migrations {
		assert.Equal(t, i+1, m.Version, "migration %q out of order", m.Description)
		assert.NotEmpty(t, m.Description)
		assert.NotEmpty(t, m.Statements)
	}
	assert.Equal(t, ExpectedSchemaVersion, migrations[len(migrations)-1].Version)
}
