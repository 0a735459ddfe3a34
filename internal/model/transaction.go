package model

import (
	"crypto/sha256"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Transaction is a stored transaction for an account.
// Reconciliation treats it as read-only history.
type Transaction struct {
	Date        time.Time        `json:"date"`
	ID          string           `json:"id"`
	AccountID   string           `json:"accountId"`
	Description string           `json:"description"`
	Category    string           `json:"category,omitempty"`
	Source      string           `json:"source,omitempty"`     // scrape, csv, ofx, plaid
	ExternalID  string           `json:"externalId,omitempty"` // natural key supplied by the source, if any
	Hash        string           `json:"-"`
	Amount      decimal.Decimal  `json:"amount"`
	Balance     *decimal.Decimal `json:"balance,omitempty"`
}

// GenerateHash creates a unique hash for duplicate detection.
func (t *Transaction) GenerateHash() string {
	data := fmt.Sprintf("%s:%s:%s:%s",
		t.Date.Format("2006-01-02"),
		t.Amount.StringFixed(2),
		strings.ToLower(strings.Join(strings.Fields(t.Description), " ")),
		t.AccountID)
	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", hash)
}

// Day returns the transaction date truncated to a calendar day in UTC.
func (t *Transaction) Day() time.Time {
	return CalendarDay(t.Date)
}

// CalendarDay truncates a time to midnight UTC of its own calendar date.
func CalendarDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
