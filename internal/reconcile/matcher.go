package reconcile

import (
	"math"
	"strings"
	"time"

	"github.com/agnivade/levenshtein"

	"github.com/Veraticus/spice-harvest/internal/clean"
	"github.com/Veraticus/spice-harvest/internal/model"
)

// Matching defaults.
const (
	DefaultDateTolerance = 24 * time.Hour
	DefaultThreshold     = 80

	exactConfidence    = 100
	maxFuzzyConfidence = 99
)

// Matcher compares candidates with stored history. The zero value uses the defaults.
type Matcher struct {
	DateTolerance time.Duration // fuzzy date window either side of the candidate
	Threshold     int           // minimum description similarity (0-100) for a fuzzy match
}

// NewMatcher returns a matcher with the default tolerance and threshold.
func NewMatcher() Matcher {
	return Matcher{DateTolerance: DefaultDateTolerance, Threshold: DefaultThreshold}
}

type historyEntry struct {
	day  time.Time
	desc string
	txn  model.Transaction
}

// Reconcile classifies every candidate. Rows that fail to parse go to Errors with
// their 1-based position; matched rows go to Duplicates; the rest go to Rows. The
// result does not depend on the order of history.
func (m Matcher) Reconcile(candidates []model.Candidate, history []model.Transaction) model.Preview {
	m = m.withDefaults()

	byAmount := make(map[string][]historyEntry)
	for _, txn := range history {
		key := txn.Amount.StringFixed(2)
		byAmount[key] = append(byAmount[key], historyEntry{
			day:  model.CalendarDay(txn.Date),
			desc: normalizeDescription(txn.Description),
			txn:  txn,
		})
	}

	preview := model.Preview{
		Rows:       []model.ParsedCandidate{},
		Duplicates: []model.DuplicateMatch{},
		Errors:     []model.ImportError{},
	}

	for i, c := range candidates {
		row := i + 1
		date, err := ParseDate(c.Date)
		if err != nil {
			preview.Errors = append(preview.Errors, model.ImportError{Row: row, Reason: "invalid date: " + err.Error()})
			continue
		}
		amount, err := ParseAmount(c.Amount)
		if err != nil {
			preview.Errors = append(preview.Errors, model.ImportError{Row: row, Reason: "invalid amount: " + err.Error()})
			continue
		}

		parsed := model.ParsedCandidate{Candidate: c, Date: date, Amount: amount, Row: row}
		entries := byAmount[amount.StringFixed(2)]
		desc := normalizeDescription(c.Description)

		if match, ok := m.exact(date, desc, entries); ok {
			preview.Duplicates = append(preview.Duplicates, model.DuplicateMatch{
				Candidate:  parsed,
				Existing:   match,
				MatchType:  model.MatchExact,
				Confidence: exactConfidence,
			})
			continue
		}
		if match, score, ok := m.fuzzy(date, desc, entries); ok {
			preview.Duplicates = append(preview.Duplicates, model.DuplicateMatch{
				Candidate:  parsed,
				Existing:   match,
				MatchType:  model.MatchFuzzy,
				Confidence: min(score, maxFuzzyConfidence),
			})
			continue
		}
		preview.Rows = append(preview.Rows, parsed)
	}

	return preview
}

func (m Matcher) withDefaults() Matcher {
	if m.DateTolerance <= 0 {
		m.DateTolerance = DefaultDateTolerance
	}
	if m.Threshold <= 0 {
		m.Threshold = DefaultThreshold
	}
	return m
}

func (m Matcher) exact(day time.Time, desc string, entries []historyEntry) (model.Transaction, bool) {
	var best *historyEntry
	for i := range entries {
		e := &entries[i]
		if !e.day.Equal(day) || e.desc != desc {
			continue
		}
		if best == nil || e.txn.ID < best.txn.ID {
			best = e
		}
	}
	if best == nil {
		return model.Transaction{}, false
	}
	return best.txn, true
}

// fuzzy picks the highest scoring entry inside the date window. Ties go to the
// closest date, then the lowest ID.
func (m Matcher) fuzzy(day time.Time, desc string, entries []historyEntry) (model.Transaction, int, bool) {
	var (
		best      *historyEntry
		bestScore int
		bestDays  int
	)
	for i := range entries {
		e := &entries[i]
		gap := e.day.Sub(day)
		if gap < 0 {
			gap = -gap
		}
		if gap > m.DateTolerance {
			continue
		}
		score := Similarity(desc, e.desc)
		if score < m.Threshold {
			continue
		}
		days := int(gap / (24 * time.Hour))

		better := best == nil ||
			score > bestScore ||
			(score == bestScore && days < bestDays) ||
			(score == bestScore && days == bestDays && e.txn.ID < best.txn.ID)
		if better {
			best, bestScore, bestDays = e, score, days
		}
	}
	if best == nil {
		return model.Transaction{}, 0, false
	}
	return best.txn, bestScore, true
}

// Similarity scores two descriptions from 0 to 100 by normalized edit distance after
// case folding and whitespace collapsing.
func Similarity(a, b string) int {
	a, b = normalizeDescription(a), normalizeDescription(b)
	maxLen := max(len([]rune(a)), len([]rune(b)))
	if maxLen == 0 {
		return 100
	}
	dist := levenshtein.ComputeDistance(a, b)
	return int(math.Round(100 * (1 - float64(dist)/float64(maxLen))))
}

func normalizeDescription(s string) string {
	return strings.ToLower(clean.Whitespace(s))
}
