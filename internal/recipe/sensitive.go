// Package recipe records browser interactions into replayable recipes and plays them
// back, pausing for values that are never stored.
package recipe

import (
	"regexp"
	"strings"

	"github.com/Veraticus/spice-harvest/internal/model"
)

var sensitivePattern = regexp.MustCompile(`(?i)password|passcode|passphrase|\bpass\b|\bpwd\b|\bpin\b|otp|one[-_\s]?time|verification|security[-_\s]?(?:code|answer|question)|secret|\bcvv\b|\bcvc\b|\bssn\b|token|\b2fa\b|\bmfa\b|auth[-_\s]?code`)

// IsSensitiveField reports whether a field looks like it holds a password, one-time
// code or similar secret, judging by its input type, name and label.
func IsSensitiveField(inputType, name, label string) bool {
	if strings.EqualFold(strings.TrimSpace(inputType), "password") {
		return true
	}
	return sensitivePattern.MatchString(name) || sensitivePattern.MatchString(label)
}

// Sanitize returns a copy of r that is safe to persist. Text entry steps whose target
// looks secret are flagged sensitive even if the recorder missed them, and every
// sensitive step loses its value.
func Sanitize(r model.Recipe) model.Recipe {
	out := r.Sanitized()
	for i, step := range out.Steps {
		if step.Type == model.StepInput && !step.IsSensitive && IsSensitiveField("", step.Selector, step.Label) {
			out.Steps[i].IsSensitive = true
			out.Steps[i].Value = ""
		}
	}
	return out
}
