package source

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/Veraticus/spice-harvest/internal/clean"
	"github.com/Veraticus/spice-harvest/internal/model"
)

// ErrNoHeader is returned when no row in the leading part of a CSV file names a date
// column and an amount (or debit/credit) column.
var ErrNoHeader = errors.New("no recognizable header row")

// headerScanRows bounds how far down a preamble the header row may sit.
const headerScanRows = 20

type column int

const (
	colDate column = iota
	colDescription
	colAmount
	colDebit
	colCredit
	colBalance
	colCategory
)

// Header names by column, most specific first. Matching is on the whole
// case-folded cell.
var headerNames = map[column][]string{
	colDate:        {"date", "transaction date", "trans date", "trans. date", "posted date", "posting date", "post date", "booking date"},
	colDescription: {"description", "transaction description", "payee", "merchant", "name", "details", "memo", "narrative"},
	colAmount:      {"amount", "transaction amount", "amount (usd)", "value"},
	colDebit:       {"debit", "debits", "withdrawal", "withdrawals", "money out", "debit amount"},
	colCredit:      {"credit", "credits", "deposit", "deposits", "money in", "credit amount"},
	colBalance:     {"balance", "running balance", "running bal.", "available balance"},
	colCategory:    {"category", "type category"},
}

// CSV reads bank CSV exports whose layout is discovered from the header row.
type CSV struct {
	Comma rune // field separator; zero means ','
}

// Parse reads every data row after the header. Rows that are entirely blank are
// skipped; rows with unparseable values are still returned so reconciliation can
// report them by position.
func (c CSV) Parse(r io.Reader) ([]model.Candidate, error) {
	reader := csv.NewReader(r)
	if c.Comma != 0 {
		reader.Comma = c.Comma
	}
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	var (
		layout map[column]int
		seen   int
	)
	for layout == nil {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) || seen >= headerScanRows {
			return nil, ErrNoHeader
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV: %w", err)
		}
		seen++
		layout = detectLayout(record)
	}

	candidates := []model.Candidate{}
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV: %w", err)
		}
		if blankRecord(record) {
			continue
		}

		candidates = append(candidates, model.Candidate{
			Date:        cell(record, layout, colDate),
			Description: clean.Whitespace(cell(record, layout, colDescription)),
			Amount:      csvAmount(record, layout),
			Balance:     cell(record, layout, colBalance),
			Category:    cell(record, layout, colCategory),
			Ordinal:     len(candidates),
			Confidence:  structuredConfidence,
		})
	}
	return candidates, nil
}

// detectLayout maps columns for a header record, or returns nil when the record is
// not a usable header.
func detectLayout(record []string) map[column]int {
	layout := make(map[column]int)
	for i, raw := range record {
		name := strings.ToLower(clean.Whitespace(strings.TrimPrefix(raw, "\ufeff")))
		for col, names := range headerNames {
			if _, taken := layout[col]; taken {
				continue
			}
			for _, n := range names {
				if name == n {
					layout[col] = i
					break
				}
			}
		}
	}

	_, hasDate := layout[colDate]
	_, hasAmount := layout[colAmount]
	_, hasDebit := layout[colDebit]
	_, hasCredit := layout[colCredit]
	if !hasDate || !(hasAmount || hasDebit || hasCredit) {
		return nil
	}
	return layout
}

// csvAmount returns a sign-bearing amount. Debit columns hold outflows as positive
// numbers, so they are negated.
func csvAmount(record []string, layout map[column]int) string {
	if _, ok := layout[colAmount]; ok {
		return cell(record, layout, colAmount)
	}
	if debit := cell(record, layout, colDebit); debit != "" && !zeroAmount(debit) {
		return "-" + strings.TrimLeft(debit, "-\u2212")
	}
	return cell(record, layout, colCredit)
}

func cell(record []string, layout map[column]int, col column) string {
	i, ok := layout[col]
	if !ok || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}

func zeroAmount(s string) bool {
	return strings.Trim(s, "$0.,- ") == ""
}

func blankRecord(record []string) bool {
	for _, f := range record {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
