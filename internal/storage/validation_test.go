package storage

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/Veraticus/spice-harvest/internal/model"
)

func TestValidateString(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"non-empty", "acc1", false},
		{"empty", "", true},
		{"whitespace only", " \t", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateString(tt.input, "param")
			if (err != nil) != tt.wantErr {
				t.Errorf("validateString() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrEmptyString) {
				t.Errorf("validateString() error = %v, want ErrEmptyString", err)
			}
		})
	}
}

func TestValidateContext(t *testing.T) {
	//nolint:staticcheck // nil context is the case under test
	if err := validateContext(nil); !errors.Is(err, ErrNilContext) {
		t.Errorf("validateContext(nil) = %v, want ErrNilContext", err)
	}
	if err := validateContext(context.Background()); err != nil {
		t.Errorf("validateContext() = %v, want nil", err)
	}
}

func TestValidateTransaction(t *testing.T) {
	valid := func() model.Transaction {
		return model.Transaction{
			ID:          "t1",
			Date:        time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
			Description: "Coffee",
			AccountID:   "acc1",
		}
	}

	tests := []struct {
		mutate  func(*model.Transaction)
		name    string
		wantErr bool
	}{
		{name: "valid", mutate: func(*model.Transaction) {}},
		{name: "missing ID", mutate: func(t *model.Transaction) { t.ID = "" }, wantErr: true},
		{name: "missing date", mutate: func(t *model.Transaction) { t.Date = time.Time{} }, wantErr: true},
		{name: "blank description", mutate: func(t *model.Transaction) { t.Description = "  " }, wantErr: true},
		{name: "missing account", mutate: func(t *model.Transaction) { t.AccountID = "" }, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			txn := valid()
			tt.mutate(&txn)
			err := validateTransaction(&txn)
			if (err != nil) != tt.wantErr {
				t.Fatalf("validateTransaction() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidTransaction) {
				t.Errorf("validateTransaction() error = %v, want ErrInvalidTransaction", err)
			}
		})
	}

	if err := validateTransaction(nil); !errors.Is(err, ErrNilParameter) {
		t.Errorf("validateTransaction(nil) = %v, want ErrNilParameter", err)
	}
}

func TestValidateTransactions_ReportsIndex(t *testing.T) {
	txns := []model.Transaction{
		{ID: "a", Date: time.Now(), Description: "x", AccountID: "acc"},
		{ID: "b", Date: time.Now(), AccountID: "acc"},
	}
	err := validateTransactions(txns)
	if err == nil {
		t.Fatal("expected error")
	}
	if want := "transaction at index 1"; !strings.Contains(err.Error(), want) {
		t.Errorf("error %q does not mention %q", err, want)
	}
}

func TestValidateAccountRange(t *testing.T) {
	from := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	ctx := context.Background()

	if err := validateAccountRange(ctx, "acc", from, from); err != nil {
		t.Errorf("single-day range rejected: %v", err)
	}
	if err := validateAccountRange(ctx, "acc", from, from.AddDate(0, 0, -1)); !errors.Is(err, ErrInvalidDateRange) {
		t.Errorf("reversed range = %v, want ErrInvalidDateRange", err)
	}
}
