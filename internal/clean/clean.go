// Package clean normalizes raw text pulled out of bank pages into canonical field values.
//
// Every function here is idempotent and never fails: input that matches no known
// pattern comes back with its whitespace collapsed and nothing else changed.
package clean

import (
	"regexp"
	"strings"
)

var (
	// Dates anchored at the start of the text. Order matters: the first hit wins.
	datePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)^(?:jan|feb|mar|apr|may|jun|jul|aug|sep|sept|oct|nov|dec)[a-z]*\.?\s+\d{1,2}(?:st|nd|rd|th)?,?\s+\d{4}`),
		regexp.MustCompile(`(?i)^\d{1,2}\s+(?:jan|feb|mar|apr|may|jun|jul|aug|sep|sept|oct|nov|dec)[a-z]*\.?,?\s+\d{4}`),
		regexp.MustCompile(`^\d{4}-\d{2}-\d{2}`),
		regexp.MustCompile(`^\d{1,2}/\d{1,2}/(?:\d{4}|\d{2})`),
		regexp.MustCompile(`^\d{1,2}\.\d{1,2}\.\d{4}`),
	}

	amountPattern = regexp.MustCompile(`^[-+]?\$?-?\d[\d,]*\.\d{2}`)

	categoryNoise = regexp.MustCompile(`\s*(?:\([^()]*\)|\d+)\s*$`)

	descriptionTokens = regexp.MustCompile(`(?i)\b(?:pending|posted)\b|opens popup`)

	minusSigns = strings.NewReplacer("\u2212", "-", "\u2013", "-")

	invisibleRunes = strings.NewReplacer(
		"\u200b", "",
		"\u200c", "",
		"\u200d", "",
		"\ufeff", "",
	)
)

// Whitespace collapses every run of whitespace (including non-breaking spaces)
// into a single space and trims both ends.
func Whitespace(raw string) string {
	return strings.Join(strings.Fields(invisibleRunes.Replace(raw)), " ")
}

// Clean de-concatenates a raw field. Text that starts with a date is cut after the
// date, text that starts with an amount is cut after the amount, anything else is
// only whitespace-collapsed.
func Clean(raw string) string {
	s := Whitespace(raw)
	if d, ok := leadingDate(s); ok {
		return d
	}
	if a, ok := leadingAmount(s); ok {
		return a
	}
	return s
}

// Date returns the first date rendering found at the start of raw, dropping anything
// glued after it (two renderings of the same date are common on bank pages).
func Date(raw string) string {
	s := Whitespace(raw)
	if d, ok := leadingDate(s); ok {
		return d
	}
	return s
}

// LooksLikeDate reports whether raw starts with a recognizable date.
func LooksLikeDate(raw string) bool {
	_, ok := leadingDate(Whitespace(raw))
	return ok
}

// Amount returns the signed currency amount at the start of raw, dropping an
// adjacent balance column that was concatenated onto it.
func Amount(raw string) string {
	s := Whitespace(normalizeMinus(raw))
	if a, ok := leadingAmount(s); ok {
		return a
	}
	return s
}

// LooksLikeAmount reports whether raw starts with a signed currency amount.
func LooksLikeAmount(raw string) bool {
	_, ok := leadingAmount(Whitespace(normalizeMinus(raw)))
	return ok
}

// Category strips trailing counters and parenthetical noise ("Dining (3)", "Travel 12").
func Category(raw string) string {
	s := Whitespace(raw)
	for {
		next := categoryNoise.ReplaceAllString(s, "")
		if next == s {
			break
		}
		s = next
	}
	return Whitespace(s)
}

// Description removes vendor-injected status tokens and keeps only the text before
// the first comma, where banks append location and reference data.
func Description(raw string) string {
	s := Whitespace(raw)
	for {
		next := Whitespace(descriptionTokens.ReplaceAllString(s, " "))
		if next == s {
			break
		}
		s = next
	}
	s = strings.TrimLeft(s, ", ")
	if i := strings.Index(s, ","); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

func leadingDate(s string) (string, bool) {
	for _, re := range datePatterns {
		if loc := re.FindStringIndex(s); loc != nil {
			return s[:loc[1]], true
		}
	}
	return "", false
}

func leadingAmount(s string) (string, bool) {
	s = strings.ReplaceAll(s, "$ ", "$")
	if loc := amountPattern.FindStringIndex(s); loc != nil {
		return s[:loc[1]], true
	}
	return "", false
}

func normalizeMinus(s string) string {
	return minusSigns.Replace(s)
}
