package extract

import (
	"log/slog"
	"regexp"
	"strings"

	"github.com/Veraticus/spice-harvest/internal/clean"
	"github.com/Veraticus/spice-harvest/internal/common"
	"github.com/Veraticus/spice-harvest/internal/model"
)

// DefaultMaxRows caps a single extraction.
const DefaultMaxRows = 200

// Descriptions starting with one of these are summary or pending rows, not transactions.
var excludedPrefixes = []string{
	"pending transactions",
	"beginning balance",
	"ending balance",
	"opening balance",
	"closing balance",
	"daily balance",
	"total",
}

// pendingMarker finds a pending badge anywhere in raw row text. It runs before
// clean.Description, which strips the same token.
var pendingMarker = regexp.MustCompile(`(?i)\bpending\b`)

// Config tunes an Extractor.
type Config struct {
	Categories []CategoryRule // nil means DefaultCategoryRules
	MaxRows    int            // <= 0 means DefaultMaxRows
}

// Extractor runs strategies over a snapshot and cleans what they produce.
type Extractor struct {
	logger      *slog.Logger
	categorizer *Categorizer
	maxRows     int
}

// NewExtractor creates an extractor. A nil logger uses slog.Default.
func NewExtractor(cfg Config, logger *slog.Logger) *Extractor {
	rules := cfg.Categories
	if rules == nil {
		rules = DefaultCategoryRules()
	}
	maxRows := cfg.MaxRows
	if maxRows <= 0 {
		maxRows = DefaultMaxRows
	}
	return &Extractor{
		logger:      common.ComponentLogger(logger, "extract"),
		categorizer: NewCategorizer(rules),
		maxRows:     maxRows,
	}
}

// Extract runs every strategy in order and returns the cleaned candidates they yield,
// duplicates included. A strategy matching nothing never stops the ones after it.
func (e *Extractor) Extract(snap *Snapshot, strategies []Strategy) []model.Candidate {
	if snap == nil {
		return nil
	}

	var out []model.Candidate
	for _, strategy := range strategies {
		matched := 0
		for _, row := range snap.Rows(strategy.RowSelector, strategy.LeafOnly) {
			if len(out) >= e.maxRows {
				e.logger.Debug("row cap reached", "max_rows", e.maxRows, "strategy", strategy.Name)
				return out
			}
			if isHeaderRow(row) || isPendingRow(row) || pendingMarker.MatchString(row.Text()) {
				continue
			}

			raw, ok := strategy.Fields(row)
			if !ok || isPending(raw) || isExcluded(raw.Description) {
				continue
			}

			c, ok := e.cleanCandidate(raw)
			if !ok {
				continue
			}
			c.Ordinal = len(out)
			out = append(out, c)
			matched++
		}
		e.logger.Debug("strategy finished", "strategy", strategy.Name, "rows", matched)
	}
	return out
}

// Normalize cleans candidates produced outside the DOM strategies (the vision path)
// so both producers emit the same shape. Rows with neither a date nor an amount and
// summary rows are dropped; ordinals are reassigned in input order.
func (e *Extractor) Normalize(candidates []model.Candidate) []model.Candidate {
	var out []model.Candidate
	for _, raw := range candidates {
		if len(out) >= e.maxRows {
			break
		}
		if isPending(raw) || isExcluded(raw.Description) {
			continue
		}
		c, ok := e.cleanCandidate(raw)
		if !ok {
			continue
		}
		c.Ordinal = len(out)
		out = append(out, c)
	}
	return out
}

func (e *Extractor) cleanCandidate(raw model.Candidate) (model.Candidate, bool) {
	c := model.Candidate{
		Date:        clean.Date(raw.Date),
		Description: clean.Description(raw.Description),
		Amount:      clean.Amount(raw.Amount),
		Category:    clean.Category(raw.Category),
		Confidence:  raw.Confidence,
	}
	if raw.Balance != "" {
		c.Balance = clean.Amount(raw.Balance)
	}
	if !clean.LooksLikeDate(c.Date) && !clean.LooksLikeAmount(c.Amount) {
		return model.Candidate{}, false
	}
	if c.Category == "" {
		c.Category = e.categorizer.Categorize(c.Description)
	}
	if c.Confidence == 0 {
		c.Confidence = model.DefaultDOMConfidence
	}
	return c, true
}

func isHeaderRow(row Row) bool {
	return row.Within("thead") ||
		row.Is(`[role="columnheader"]`) ||
		row.Count(`[role="columnheader"]`) > 0 ||
		(row.Count("th") > 0 && row.Count("td") == 0) ||
		row.HasClassFragment("header")
}

func isPendingRow(row Row) bool {
	return row.HasClassFragment("pending") ||
		strings.EqualFold(row.Attr("data-status"), "pending")
}

func isPending(raw model.Candidate) bool {
	return pendingMarker.MatchString(raw.Description)
}

func isExcluded(description string) bool {
	desc := strings.ToLower(clean.Whitespace(description))
	for _, prefix := range excludedPrefixes {
		if strings.HasPrefix(desc, prefix) {
			return true
		}
	}
	return false
}
