// Package storage provides the SQLite persistence layer for transaction history,
// recipes and import runs.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Veraticus/spice-harvest/internal/model"
)

// Validation errors.
var (
	ErrNilContext         = errors.New("context cannot be nil")
	ErrEmptyString        = errors.New("string parameter cannot be empty")
	ErrNilParameter       = errors.New("parameter cannot be nil")
	ErrEmptySlice         = errors.New("slice cannot be empty")
	ErrInvalidDateRange   = errors.New("start date must be before end date")
	ErrInvalidTransaction = errors.New("invalid transaction")
	ErrInvalidImportRun   = errors.New("invalid import run")
)

// validateContext ensures the context is not nil.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// validateString ensures a string parameter is not empty.
func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

func validateAccountRange(ctx context.Context, accountID string, from, to time.Time) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(accountID, "accountID"); err != nil {
		return err
	}
	if to.Before(from) {
		return fmt.Errorf("%w: end date %v is before start date %v", ErrInvalidDateRange, to, from)
	}
	return nil
}

// validateTransactions validates a slice of transactions.
func validateTransactions(transactions []model.Transaction) error {
	if transactions == nil {
		return fmt.Errorf("%w: transactions", ErrNilParameter)
	}
	if len(transactions) == 0 {
		return fmt.Errorf("%w: transactions", ErrEmptySlice)
	}

	for i, txn := range transactions {
		if err := validateTransaction(&txn); err != nil {
			return fmt.Errorf("transaction at index %d: %w", i, err)
		}
	}
	return nil
}

// validateTransaction validates a single transaction.
func validateTransaction(txn *model.Transaction) error {
	if txn == nil {
		return fmt.Errorf("%w: transaction", ErrNilParameter)
	}
	if txn.ID == "" {
		return fmt.Errorf("%w: missing ID", ErrInvalidTransaction)
	}
	if txn.Date.IsZero() {
		return fmt.Errorf("%w: missing date", ErrInvalidTransaction)
	}
	if strings.TrimSpace(txn.Description) == "" {
		return fmt.Errorf("%w: missing description", ErrInvalidTransaction)
	}
	if txn.AccountID == "" {
		return fmt.Errorf("%w: missing account ID", ErrInvalidTransaction)
	}
	return nil
}

func validateRecipe(r *model.Recipe) error {
	if r == nil {
		return fmt.Errorf("%w: recipe", ErrNilParameter)
	}
	return r.Validate()
}

func validateImportRun(run *model.ImportRun) error {
	if run == nil {
		return fmt.Errorf("%w: import run", ErrNilParameter)
	}
	if run.AccountID == "" {
		return fmt.Errorf("%w: missing account ID", ErrInvalidImportRun)
	}
	if run.Source == "" {
		return fmt.Errorf("%w: missing source", ErrInvalidImportRun)
	}
	if run.Imported < 0 || run.Skipped < 0 || run.Errors < 0 {
		return fmt.Errorf("%w: negative count", ErrInvalidImportRun)
	}
	return nil
}
