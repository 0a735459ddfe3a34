package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// MatchType classifies how a candidate matched stored history.
type MatchType string

// Match type constants.
const (
	MatchExact MatchType = "exact"
	MatchFuzzy MatchType = "fuzzy"
)

// ParsedCandidate is a candidate whose date and amount parsed successfully.
type ParsedCandidate struct {
	Candidate Candidate       `json:"candidate"`
	Date      time.Time       `json:"parsedDate"`
	Amount    decimal.Decimal `json:"parsedAmount"`
	Row       int             `json:"row"` // 1-based input position
}

// DuplicateMatch pairs a candidate with the stored transaction it duplicates.
type DuplicateMatch struct {
	Candidate  ParsedCandidate `json:"candidate"`
	Existing   Transaction     `json:"existingTransaction"`
	MatchType  MatchType       `json:"matchType"`
	Confidence int             `json:"confidence"`
}

// ImportError records a candidate that could not be parsed.
type ImportError struct {
	Row    int    `json:"row"` // 1-based
	Reason string `json:"reason"`
}

// Preview is the reconciliation result shown before an import executes.
type Preview struct {
	Rows       []ParsedCandidate `json:"rows"`
	Duplicates []DuplicateMatch  `json:"duplicates"`
	Errors     []ImportError     `json:"errors"`
}

// ImportResult summarizes an executed import.
type ImportResult struct {
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
}

// ImportRun records one executed import for an account.
type ImportRun struct {
	CreatedAt time.Time `json:"createdAt"`
	ID        string    `json:"id"`
	AccountID string    `json:"accountId"`
	Source    string    `json:"source"`
	Imported  int       `json:"imported"`
	Skipped   int       `json:"skipped"`
	Errors    int       `json:"errors"`
}
