// Package model defines the core domain models used throughout the application.
package model

import (
	"encoding/json"
	"time"
)

// Confidence defaults for candidates whose producer does not report one.
const (
	DefaultVisionConfidence = 90
	DefaultDOMConfidence    = 70
)

// Candidate is an unreconciled transaction freshly extracted from a page or file.
// Date and Amount stay raw strings until reconciliation parses them.
type Candidate struct {
	Date        string
	Description string
	Amount      string // sign-bearing
	Balance     string // empty when the source has no balance column
	Category    string // empty when the source supplied none
	Ordinal     int    // extraction order, used for stable tie-breaking
	Confidence  int    // 0-100
}

type candidateJSON struct {
	Date        string  `json:"date"`
	Description string  `json:"description"`
	Amount      string  `json:"amount"`
	Balance     *string `json:"balance"`
	Category    *string `json:"category"`
	Index       int     `json:"index"`
	Confidence  int     `json:"confidence"`
}

// MarshalJSON writes the stable wire shape shared by every producer.
// Missing balance and category are emitted as null.
func (c Candidate) MarshalJSON() ([]byte, error) {
	return json.Marshal(candidateJSON{
		Date:        c.Date,
		Description: c.Description,
		Amount:      c.Amount,
		Balance:     nullable(c.Balance),
		Category:    nullable(c.Category),
		Index:       c.Ordinal,
		Confidence:  c.Confidence,
	})
}

// UnmarshalJSON reads the wire shape written by MarshalJSON.
func (c *Candidate) UnmarshalJSON(data []byte) error {
	var aux candidateJSON
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	*c = Candidate{
		Date:        aux.Date,
		Description: aux.Description,
		Amount:      aux.Amount,
		Ordinal:     aux.Index,
		Confidence:  aux.Confidence,
	}
	if aux.Balance != nil {
		c.Balance = *aux.Balance
	}
	if aux.Category != nil {
		c.Category = *aux.Category
	}
	return nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// PageSnapshot is one capture of the page being scraped.
// Either Screenshot or HTML may be empty, never both for a usable snapshot.
type PageSnapshot struct {
	CapturedAt time.Time
	URL        string
	HTML       string
	Screenshot []byte // PNG
}

// Empty reports whether the snapshot carries nothing to extract from.
func (s PageSnapshot) Empty() bool {
	return s.HTML == "" && len(s.Screenshot) == 0
}
