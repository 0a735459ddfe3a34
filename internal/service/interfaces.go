// Package service defines the interfaces for all application services.
package service

import (
	"context"
	"time"

	"github.com/Veraticus/spice-harvest/internal/model"
)

// Storage defines the contract for our persistence layer.
type Storage interface {
	// Transaction history
	SaveTransactions(ctx context.Context, transactions []model.Transaction) (int, error)
	GetTransactionsByAccount(ctx context.Context, accountID string, from, to time.Time) ([]model.Transaction, error)
	GetTransactionCount(ctx context.Context, accountID string) (int, error)

	// Recipes. Stored recipes never carry sensitive values.
	SaveRecipe(ctx context.Context, recipe *model.Recipe) error
	GetRecipe(ctx context.Context, id string) (*model.Recipe, error)
	ListRecipes(ctx context.Context) ([]model.Recipe, error)
	DeleteRecipe(ctx context.Context, id string) error

	// Import audit trail
	SaveImportRun(ctx context.Context, run *model.ImportRun) error
	ListImportRuns(ctx context.Context, accountID string, limit int) ([]model.ImportRun, error)

	// Database management
	Migrate(ctx context.Context) error
	BeginTx(ctx context.Context) (Transaction, error)
	Close() error
}

// Transaction represents a database transaction.
type Transaction interface {
	Commit() error
	Rollback() error
	// Include all Storage methods for use within transaction
	Storage
}

// RecipeStore is the subset of Storage that recipe management needs.
type RecipeStore interface {
	SaveRecipe(ctx context.Context, recipe *model.Recipe) error
	GetRecipe(ctx context.Context, id string) (*model.Recipe, error)
	ListRecipes(ctx context.Context) ([]model.Recipe, error)
	DeleteRecipe(ctx context.Context, id string) error
}
