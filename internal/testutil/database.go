// Package testutil provides test utilities for the spice-harvest project: an
// isolated, migrated database and fluent builders for seeding it.
package testutil

import (
	"context"
	"testing"

	"github.com/Veraticus/spice-harvest/internal/model"
	"github.com/Veraticus/spice-harvest/internal/service"
	"github.com/Veraticus/spice-harvest/internal/storage"
)

// TestDB represents a test database with associated test utilities.
type TestDB struct {
	Storage service.Storage
	t       *testing.T
	History []model.Transaction
}

// SetupTestDB creates a new in-memory test database seeded with history.
// It automatically handles migrations and cleanup.
//
// Example:
//
//	db := testutil.SetupTestDB(t,
//		history.New("acc1").
//			Add("2024-03-01", "Coffee Shop", "-4.50").
//			Build(t),
//	)
func SetupTestDB(t *testing.T, seed []model.Transaction) *TestDB {
	t.Helper()
	return SetupTestDBWithOptions(t, TestDBOptions{History: seed})
}

// TestDBOptions provides configuration options for test database setup.
type TestDBOptions struct {
	CustomSetup    func(context.Context, service.Storage) error
	Recipes        []model.Recipe
	History        []model.Transaction
	SkipMigrations bool
}

// SetupTestDBWithOptions creates a test database with custom options.
func SetupTestDBWithOptions(t *testing.T, opts TestDBOptions) *TestDB {
	t.Helper()

	store, err := storage.NewSQLiteStorage(storage.MemoryPath)
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	ctx := context.Background()

	if !opts.SkipMigrations {
		if err := store.Migrate(ctx); err != nil {
			t.Fatalf("failed to run migrations: %v", err)
		}
	}

	if len(opts.History) > 0 {
		if _, err := store.SaveTransactions(ctx, opts.History); err != nil {
			t.Fatalf("failed to seed history: %v", err)
		}
	}
	for i := range opts.Recipes {
		if err := store.SaveRecipe(ctx, &opts.Recipes[i]); err != nil {
			t.Fatalf("failed to seed recipe %q: %v", opts.Recipes[i].Name, err)
		}
	}

	if opts.CustomSetup != nil {
		if err := opts.CustomSetup(ctx, store); err != nil {
			t.Fatalf("custom setup failed: %v", err)
		}
	}

	return &TestDB{
		Storage: store,
		History: opts.History,
		t:       t,
	}
}

// MustCount returns the number of stored transactions for accountID or fails the test.
func (db *TestDB) MustCount(accountID string) int {
	db.t.Helper()
	n, err := db.Storage.GetTransactionCount(context.Background(), accountID)
	if err != nil {
		db.t.Fatalf("failed to count transactions: %v", err)
	}
	return n
}
