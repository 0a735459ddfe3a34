package vision

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Veraticus/spice-harvest/internal/model"
)

// field accepts a JSON string, number or null. Models are inconsistent about quoting
// amounts.
type field string

func (f *field) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*f = ""
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = field(s)
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("expected string or number, got %s", data)
		}
		*f = field(n.String())
	}
	return nil
}

type visionRow struct {
	Date        field `json:"date"`
	Description field `json:"description"`
	Amount      field `json:"amount"`
	Balance     field `json:"balance"`
	Category    field `json:"category"`
	Confidence  *int  `json:"confidence,omitempty"`
}

// parseCandidates decodes a model response into candidates in response order.
func parseCandidates(content string) ([]model.Candidate, error) {
	content = cleanMarkdownWrapper(content)

	var rows []visionRow
	if err := json.Unmarshal([]byte(content), &rows); err != nil {
		return nil, fmt.Errorf("failed to parse JSON response: %w", err)
	}

	candidates := make([]model.Candidate, 0, len(rows))
	for _, r := range rows {
		c := model.Candidate{
			Date:        string(r.Date),
			Description: string(r.Description),
			Amount:      string(r.Amount),
			Balance:     string(r.Balance),
			Category:    string(r.Category),
			Ordinal:     len(candidates),
			Confidence:  model.DefaultVisionConfidence,
		}
		if r.Confidence != nil && *r.Confidence > 0 && *r.Confidence <= 100 {
			c.Confidence = *r.Confidence
		}
		candidates = append(candidates, c)
	}
	return candidates, nil
}

// cleanMarkdownWrapper strips code fences and any chatter around the JSON array.
func cleanMarkdownWrapper(content string) string {
	s := strings.TrimSpace(content)

	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		}
	}
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}
	s = strings.TrimSpace(s)

	if start := strings.Index(s, "["); start != -1 {
		if end := strings.LastIndex(s, "]"); end > start {
			s = s[start : end+1]
		}
	}
	return s
}
