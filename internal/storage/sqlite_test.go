package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/spice-harvest/internal/model"
)

// Helper function to create test storage.
func createTestStorage(t *testing.T) (*SQLiteStorage, func()) {
	t.Helper()
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	store, err := NewSQLiteStorage(dbPath)
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}

	ctx := context.Background()
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		t.Fatalf("Failed to migrate: %v", err)
	}

	return store, func() { _ = store.Close() }
}

var testDay = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

// Helper function to create test transactions, one per day starting at testDay.
func createTestTransactions(count int) []model.Transaction {
	txns := make([]model.Transaction, count)
	for i := 0; i < count; i++ {
		txns[i] = model.Transaction{
			ID:          fmt.Sprintf("txn-%d", i+1),
			Date:        testDay.AddDate(0, 0, i),
			Description: fmt.Sprintf("Merchant #%d", i+1),
			Amount:      decimal.NewFromFloat(-10.5).Mul(decimal.NewFromInt(int64(i + 1))),
			AccountID:   "acc1",
			Source:      "csv",
		}
	}
	return txns
}

func TestNewSQLiteStorage_Memory(t *testing.T) {
	store, err := NewSQLiteStorage(MemoryPath)
	if err != nil {
		t.Fatalf("NewSQLiteStorage() error = %v", err)
	}
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if _, err := store.SaveTransactions(ctx, createTestTransactions(2)); err != nil {
		t.Fatalf("SaveTransactions() error = %v", err)
	}
	count, err := store.GetTransactionCount(ctx, "")
	if err != nil {
		t.Fatalf("GetTransactionCount() error = %v", err)
	}
	if count != 2 {
		t.Errorf("count = %d, want 2", count)
	}

	if _, err := store.NewCheckpointManager(); err == nil {
		t.Error("expected checkpoint manager to refuse an in-memory database")
	}
}

func TestNewSQLiteStorage_EmptyPath(t *testing.T) {
	if _, err := NewSQLiteStorage(" "); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestSQLiteStorage_Transactions(t *testing.T) {
	tests := []struct {
		operation func(*SQLiteStorage, context.Context) error
		validate  func(*testing.T, *SQLiteStorage, context.Context)
		name      string
		wantErr   bool
	}{
		{
			name: "commit persists writes",
			operation: func(s *SQLiteStorage, ctx context.Context) error {
				tx, err := s.BeginTx(ctx)
				if err != nil {
					return err
				}
				if _, err := tx.SaveTransactions(ctx, createTestTransactions(2)); err != nil {
					_ = tx.Rollback()
					return err
				}
				if err := tx.SaveImportRun(ctx, &model.ImportRun{AccountID: "acc1", Source: "csv", Imported: 2}); err != nil {
					_ = tx.Rollback()
					return err
				}
				return tx.Commit()
			},
			validate: func(t *testing.T, s *SQLiteStorage, ctx context.Context) {
				t.Helper()
				count, err := s.GetTransactionCount(ctx, "acc1")
				if err != nil || count != 2 {
					t.Errorf("count = %d, err = %v; want 2", count, err)
				}
				runs, err := s.ListImportRuns(ctx, "acc1", 0)
				if err != nil || len(runs) != 1 {
					t.Errorf("runs = %d, err = %v; want 1", len(runs), err)
				}
			},
		},
		{
			name: "rollback discards writes",
			operation: func(s *SQLiteStorage, ctx context.Context) error {
				tx, err := s.BeginTx(ctx)
				if err != nil {
					return err
				}
				if _, err := tx.SaveTransactions(ctx, createTestTransactions(3)); err != nil {
					_ = tx.Rollback()
					return err
				}
				if err := tx.SaveRecipe(ctx, &model.Recipe{Name: "Bank"}); err != nil {
					_ = tx.Rollback()
					return err
				}
				return tx.Rollback()
			},
			validate: func(t *testing.T, s *SQLiteStorage, ctx context.Context) {
				t.Helper()
				count, _ := s.GetTransactionCount(ctx, "")
				if count != 0 {
					t.Errorf("count = %d after rollback, want 0", count)
				}
				recipes, _ := s.ListRecipes(ctx)
				if len(recipes) != 0 {
					t.Errorf("recipes = %d after rollback, want 0", len(recipes))
				}
			},
		},
		{
			name: "reads inside a transaction see its writes",
			operation: func(s *SQLiteStorage, ctx context.Context) error {
				tx, err := s.BeginTx(ctx)
				if err != nil {
					return err
				}
				defer func() { _ = tx.Rollback() }()
				if _, err := tx.SaveTransactions(ctx, createTestTransactions(2)); err != nil {
					return err
				}
				got, err := tx.GetTransactionsByAccount(ctx, "acc1", testDay, testDay.AddDate(0, 0, 5))
				if err != nil {
					return err
				}
				if len(got) != 2 {
					return fmt.Errorf("got %d transactions inside tx, want 2", len(got))
				}
				return nil
			},
		},
		{
			name: "migrate inside a transaction is rejected",
			operation: func(s *SQLiteStorage, ctx context.Context) error {
				tx, err := s.BeginTx(ctx)
				if err != nil {
					return err
				}
				defer func() { _ = tx.Rollback() }()
				return tx.Migrate(ctx)
			},
			wantErr: true,
		},
		{
			name: "nested transactions are rejected",
			operation: func(s *SQLiteStorage, ctx context.Context) error {
				tx, err := s.BeginTx(ctx)
				if err != nil {
					return err
				}
				defer func() { _ = tx.Rollback() }()
				_, err = tx.BeginTx(ctx)
				return err
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, cleanup := createTestStorage(t)
			defer cleanup()
			ctx := context.Background()

			err := tt.operation(store, ctx)
			if (err != nil) != tt.wantErr {
				t.Fatalf("operation error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.validate != nil {
				tt.validate(t, store, ctx)
			}
		})
	}
}
