// Package reconcile classifies candidate rows against stored transaction history as
// new, exact duplicates or probable (fuzzy) duplicates.
package reconcile

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/spice-harvest/internal/clean"
	"github.com/Veraticus/spice-harvest/internal/model"
)

var dateLayouts = []string{
	"2006-01-02",
	"01/02/2006",
	"1/2/2006",
	"01/02/06",
	"1/2/06",
	"Jan 02, 2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"January 2 2006",
	"Jan 2 2006",
	"2 Jan 2006",
	"2 Jan, 2006",
	"2 January 2006",
	"2 January, 2006",
	"2.1.2006",
}

var (
	ordinalSuffix = regexp.MustCompile(`(\d)(?:st|nd|rd|th)\b`)
	monthPeriod   = regexp.MustCompile(`([A-Za-z])\.`)
	septAbbrev    = regexp.MustCompile(`(?i)\bsept\b`)

	errEmptyDate   = errors.New("empty date")
	errEmptyAmount = errors.New("empty amount")
)

// ParseDate reads a date rendering from a bank page or statement and returns the
// calendar day at midnight UTC.
func ParseDate(raw string) (time.Time, error) {
	s := clean.Date(raw)
	if s == "" {
		return time.Time{}, errEmptyDate
	}
	s = ordinalSuffix.ReplaceAllString(s, "$1")
	s = monthPeriod.ReplaceAllString(s, "$1")
	s = septAbbrev.ReplaceAllString(s, "Sep")
	s = strings.Join(strings.Fields(strings.ReplaceAll(s, ",", ", ")), " ")
	s = strings.ReplaceAll(s, " ,", ",")

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return model.CalendarDay(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", raw)
}

// ParseAmount reads a signed currency amount. Parentheses, a leading or trailing
// minus and a trailing DR mark a debit; a trailing CR marks a credit. The result is
// rounded to cents.
func ParseAmount(raw string) (decimal.Decimal, error) {
	s := strings.ToUpper(clean.Whitespace(strings.NewReplacer("−", "-", "–", "-").Replace(raw)))
	if s == "" {
		return decimal.Zero, errEmptyAmount
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}
	switch {
	case strings.HasSuffix(s, "DR"):
		negative = true
		s = strings.TrimSuffix(s, "DR")
	case strings.HasSuffix(s, "CR"):
		s = strings.TrimSuffix(s, "CR")
	}

	s = strings.NewReplacer("$", "", "USD", "", ",", "", " ", "", "+", "").Replace(s)
	// One minus sign at most; "-$-5.00" must not cancel itself out.
	if strings.Count(s, "-") > 1 {
		return decimal.Zero, fmt.Errorf("unrecognized amount %q: conflicting signs", raw)
	}
	if strings.HasSuffix(s, "-") {
		negative = true
		s = strings.TrimSuffix(s, "-")
	}
	if strings.HasPrefix(s, "-") {
		negative = true
		s = strings.TrimPrefix(s, "-")
	}
	if s == "" || strings.Contains(s, "-") {
		return decimal.Zero, fmt.Errorf("unrecognized amount %q", raw)
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("unrecognized amount %q", raw)
	}
	if negative {
		d = d.Neg()
	}
	return d.Round(2), nil
}
