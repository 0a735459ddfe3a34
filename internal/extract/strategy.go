package extract

import (
	"strings"

	"github.com/Veraticus/spice-harvest/internal/clean"
	"github.com/Veraticus/spice-harvest/internal/model"
)

// FieldExtractor maps one row to raw, uncleaned candidate fields.
// It returns false when the row does not look like a transaction at all.
type FieldExtractor func(Row) (model.Candidate, bool)

// Strategy is one extraction rule tuned to a markup convention.
// Strategies are configuration: add a new one for a new bank layout rather than
// editing an existing one.
type Strategy struct {
	Fields      FieldExtractor
	Name        string
	RowSelector string
	LeafOnly    bool
}

// DefaultStrategies returns the built-in strategies in priority order.
func DefaultStrategies() []Strategy {
	return []Strategy{
		{
			Name:        "table",
			RowSelector: "table tr",
			Fields:      tableFields,
		},
		{
			Name:        "aria-grid",
			RowSelector: `[role="row"]`,
			Fields:      ariaFields,
		},
		{
			Name:        "data-attributes",
			RowSelector: `[data-transaction-id], [data-date][data-amount], [data-testid*="transaction-row"]`,
			Fields:      dataAttributeFields,
			LeafOnly:    true,
		},
		{
			Name:        "text-blocks",
			RowSelector: `li, div[class*="transaction-item"], div[class*="activity-row"]`,
			Fields:      textBlockFields,
			LeafOnly:    true,
		},
	}
}

// column roles inferred from header text.
type columnRole int

const (
	roleNone columnRole = iota
	roleDate
	roleDescription
	roleAmount
	roleDebit
	roleCredit
	roleBalance
	roleCategory
)

// Checked in order; the first keyword found in a header decides its role.
var headerKeywords = []struct {
	keywords []string
	role     columnRole
}{
	{role: roleBalance, keywords: []string{"balance"}},
	{role: roleDate, keywords: []string{"date", "posted on"}},
	{role: roleDebit, keywords: []string{"debit", "withdrawal", "money out", "paid out", "charge"}},
	{role: roleCredit, keywords: []string{"credit", "deposit", "money in", "paid in"}},
	{role: roleAmount, keywords: []string{"amount"}},
	{role: roleCategory, keywords: []string{"category"}},
	{role: roleDescription, keywords: []string{"description", "payee", "merchant", "details", "transaction", "name", "memo"}},
}

func rolesFromHeaders(headers []string) map[int]columnRole {
	roles := make(map[int]columnRole, len(headers))
	for i, h := range headers {
		h = strings.ToLower(h)
	keywords:
		for _, hk := range headerKeywords {
			for _, kw := range hk.keywords {
				if strings.Contains(h, kw) {
					roles[i] = hk.role
					break keywords
				}
			}
		}
	}
	return roles
}

// fromCells builds a candidate from positional cells. Columns with known roles are
// used first; anything still missing is guessed from the cell contents.
func fromCells(cells []string, roles map[int]columnRole) (model.Candidate, bool) {
	if len(cells) == 0 {
		return model.Candidate{}, false
	}

	var c model.Candidate
	var debit, credit string
	used := make(map[int]bool)

	for i, cell := range cells {
		if cell == "" {
			continue
		}
		switch roles[i] {
		case roleDate:
			c.Date = cell
		case roleDescription:
			if c.Description == "" {
				c.Description = cell
			}
		case roleAmount:
			c.Amount = cell
		case roleDebit:
			debit = cell
		case roleCredit:
			credit = cell
		case roleBalance:
			c.Balance = cell
		case roleCategory:
			c.Category = cell
		default:
			continue
		}
		used[i] = true
	}

	if c.Amount == "" {
		switch {
		case debit != "":
			c.Amount = "-" + strings.TrimLeft(debit, "-+ ")
		case credit != "":
			c.Amount = strings.TrimLeft(credit, "+ ")
		}
	}

	if c.Date == "" {
		for i, cell := range cells {
			if !used[i] && clean.LooksLikeDate(cell) {
				c.Date = cell
				used[i] = true
				break
			}
		}
	}

	if c.Amount == "" {
		for i, cell := range cells {
			if used[i] || !clean.LooksLikeAmount(cell) {
				continue
			}
			used[i] = true
			if c.Amount == "" {
				c.Amount = cell
				continue
			}
			if c.Balance == "" {
				c.Balance = cell
			}
			break
		}
	}

	if c.Description == "" {
		for i, cell := range cells {
			if used[i] || clean.LooksLikeAmount(cell) || clean.LooksLikeDate(cell) {
				continue
			}
			if len(cell) > len(c.Description) && hasLetter(cell) {
				c.Description = cell
			}
		}
	}

	return c, true
}

func tableFields(row Row) (model.Candidate, bool) {
	if row.Within("thead") || (row.Count("th") > 0 && row.Count("td") == 0) {
		return model.Candidate{}, false
	}

	var headers []string
	if table, ok := row.Closest("table"); ok {
		headers = table.Cells("thead th")
		if len(headers) == 0 {
			headers = table.Cells("tr:first-child th")
		}
	}

	return fromCells(row.Cells("td"), rolesFromHeaders(headers))
}

func ariaFields(row Row) (model.Candidate, bool) {
	if row.Count(`[role="columnheader"]`) > 0 {
		return model.Candidate{}, false
	}

	var headers []string
	if grid, ok := row.Closest(`[role="grid"], [role="table"], [role="treegrid"]`); ok {
		headers = grid.Cells(`[role="columnheader"]`)
	}

	return fromCells(row.Cells(`[role="cell"], [role="gridcell"]`), rolesFromHeaders(headers))
}

func dataAttributeFields(row Row) (model.Candidate, bool) {
	var c model.Candidate
	fields := []struct {
		dst  *string
		name string
	}{
		{dst: &c.Date, name: "date"},
		{dst: &c.Description, name: "description"},
		{dst: &c.Amount, name: "amount"},
		{dst: &c.Balance, name: "balance"},
		{dst: &c.Category, name: "category"},
	}

	for _, f := range fields {
		if v := row.Attr("data-" + f.name); v != "" {
			*f.dst = v
			continue
		}
		selector := `[data-field="` + f.name + `"], [data-testid*="` + f.name + `"]`
		if v, ok := row.Find(selector); ok {
			*f.dst = v
		}
	}

	if c.Date == "" && c.Amount == "" {
		return fromCells(row.Segments(), nil)
	}
	return c, true
}

func textBlockFields(row Row) (model.Candidate, bool) {
	segments := row.Segments()
	if len(segments) < 2 {
		return model.Candidate{}, false
	}
	return fromCells(segments, nil)
}

func hasLetter(s string) bool {
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
			return true
		}
	}
	return false
}
