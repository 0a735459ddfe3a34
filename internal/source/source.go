// Package source reads candidate transactions from bank export files and
// aggregator APIs. Every reader produces the same raw candidates the page scraper
// does, so all of them go through the same reconciliation preview.
package source

import "github.com/Veraticus/spice-harvest/internal/model"

// Statement is the candidates for one account, as reported by the source.
type Statement struct {
	AccountID  string
	Candidates []model.Candidate
}

// Candidates from files and APIs are read from structured fields, not inferred.
const structuredConfidence = 100
