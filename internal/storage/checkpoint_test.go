package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/spice-harvest/internal/model"
)

func setupCheckpointManager(t *testing.T) (*SQLiteStorage, *CheckpointManager) {
	t.Helper()
	store, cleanup := createTestStorage(t)
	t.Cleanup(cleanup)

	cm, err := store.NewCheckpointManager()
	require.NoError(t, err)
	return store, cm
}

func TestCheckpointManager_Create(t *testing.T) {
	store, cm := setupCheckpointManager(t)
	ctx := context.Background()

	_, err := store.SaveTransactions(ctx, createTestTransactions(3))
	require.NoError(t, err)
	require.NoError(t, store.SaveRecipe(ctx, &model.Recipe{Name: "Bank"}))

	info, err := cm.Create(ctx, "before-import", "manual")
	require.NoError(t, err)
	assert.Equal(t, "before-import", info.ID)
	assert.Equal(t, "manual", info.Description)
	assert.Equal(t, ExpectedSchemaVersion, info.SchemaVersion)
	assert.Equal(t, 3, info.RowCounts["transactions"])
	assert.Equal(t, 1, info.RowCounts["recipes"])
	assert.Equal(t, 0, info.RowCounts["import_runs"])
	assert.Positive(t, info.FileSize)
	assert.False(t, info.IsAuto)

	// The checkpoint is a standalone database.
	snapshot, err := sql.Open("sqlite3", filepath.Join(cm.checkpointsDir, "before-import.db"))
	require.NoError(t, err)
	defer func() { _ = snapshot.Close() }()
	var count int
	require.NoError(t, snapshot.QueryRow("SELECT COUNT(*) FROM transactions").Scan(&count))
	assert.Equal(t, 3, count)

	_, err = cm.Create(ctx, "before-import", "again")
	assert.ErrorIs(t, err, ErrCheckpointExists)
}

func TestCheckpointManager_InvalidTags(t *testing.T) {
	_, cm := setupCheckpointManager(t)
	ctx := context.Background()

	for _, tag := range []string{"../escape", "a/b", "it's", `a\b`, "semi;colon"} {
		t.Run(tag, func(t *testing.T) {
			_, err := cm.Create(ctx, tag, "")
			assert.ErrorIs(t, err, ErrInvalidCheckpoint)
		})
	}
}

func TestCheckpointManager_DefaultTag(t *testing.T) {
	_, cm := setupCheckpointManager(t)

	info, err := cm.Create(context.Background(), "", "")
	require.NoError(t, err)
	assert.Contains(t, info.ID, "checkpoint-")
}

func TestCheckpointManager_ListAndDelete(t *testing.T) {
	_, cm := setupCheckpointManager(t)
	ctx := context.Background()

	_, err := cm.Create(ctx, "first", "")
	require.NoError(t, err)
	_, err = cm.Create(ctx, "second", "")
	require.NoError(t, err)

	// Stray and corrupted files are ignored.
	require.NoError(t, os.WriteFile(filepath.Join(cm.checkpointsDir, "junk.meta.json"), []byte("{"), 0600))
	require.NoError(t, os.WriteFile(filepath.Join(cm.checkpointsDir, "notes.txt"), []byte("x"), 0600))

	list, err := cm.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "second", list[0].ID)
	assert.Equal(t, "first", list[1].ID)

	require.NoError(t, cm.Delete(ctx, "first"))
	assert.ErrorIs(t, cm.Delete(ctx, "first"), ErrCheckpointNotFound)

	list, err = cm.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "second", list[0].ID)
}

func TestCheckpointManager_AutoCheckpointRetention(t *testing.T) {
	_, cm := setupCheckpointManager(t)
	ctx := context.Background()

	_, err := cm.Create(ctx, "manual", "")
	require.NoError(t, err)

	for i := 1; i <= maxAutoCheckpoints+2; i++ {
		info, err := cm.AutoCheckpoint(ctx, fmt.Sprintf("migrate%d", i))
		require.NoError(t, err)
		assert.True(t, info.IsAuto)
	}

	list, err := cm.List(ctx)
	require.NoError(t, err)

	auto := 0
	manual := 0
	for _, cp := range list {
		if cp.IsAuto {
			auto++
			assert.NotContains(t, cp.ID, "auto-migrate1-", "oldest auto-checkpoint should be pruned")
			assert.NotContains(t, cp.ID, "auto-migrate2-", "oldest auto-checkpoint should be pruned")
		} else {
			manual++
		}
	}
	assert.Equal(t, maxAutoCheckpoints, auto)
	assert.Equal(t, 1, manual)
}
