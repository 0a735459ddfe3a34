// Package history builds stored-transaction fixtures for tests.
//
// Example usage:
//
//	txns := history.New("acc1").
//		Add("2024-03-01", "Coffee Shop", "-4.50").
//		Add("2024-03-02", "Payroll", "2500.00").
//		Build(t)
package history

import (
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/spice-harvest/internal/model"
)

// Builder accumulates transactions for one account.
type Builder struct {
	accountID string
	source    string
	rows      []row
}

type row struct {
	date        string
	description string
	amount      string
}

// New starts a builder for accountID.
func New(accountID string) *Builder {
	return &Builder{accountID: accountID, source: "fixture"}
}

// WithSource sets the source recorded on every built transaction.
func (b *Builder) WithSource(source string) *Builder {
	b.source = source
	return b
}

// Add appends a transaction. date is YYYY-MM-DD and amount a decimal string.
func (b *Builder) Add(date, description, amount string) *Builder {
	b.rows = append(b.rows, row{date: date, description: description, amount: amount})
	return b
}

// Build returns the transactions with IDs h1, h2, ... in insertion order, failing the
// test on malformed input.
func (b *Builder) Build(t *testing.T) []model.Transaction {
	t.Helper()

	txns := make([]model.Transaction, 0, len(b.rows))
	for i, r := range b.rows {
		date, err := time.Parse("2006-01-02", r.date)
		if err != nil {
			t.Fatalf("history row %d: bad date %q: %v", i, r.date, err)
		}
		amount, err := decimal.NewFromString(r.amount)
		if err != nil {
			t.Fatalf("history row %d: bad amount %q: %v", i, r.amount, err)
		}
		txns = append(txns, model.Transaction{
			ID:          fmt.Sprintf("h%d", i+1),
			AccountID:   b.accountID,
			Date:        date,
			Description: r.description,
			Amount:      amount,
			Source:      b.source,
		})
	}
	return txns
}
