package model

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// StepType identifies the kind of recorded interaction.
type StepType string

// Step type constants.
const (
	StepClick    StepType = "click"
	StepInput    StepType = "type"
	StepSelect   StepType = "select"
	StepNavigate StepType = "navigate"
	StepWait     StepType = "wait"
)

// Valid reports whether t is a known step type.
func (t StepType) Valid() bool {
	switch t {
	case StepClick, StepInput, StepSelect, StepNavigate, StepWait:
		return true
	default:
		return false
	}
}

// ErrInvalidRecipe is returned when a recipe fails validation.
var ErrInvalidRecipe = errors.New("invalid recipe")

// RecordingStep is a single captured browser interaction.
type RecordingStep struct {
	Type        StepType `json:"type"`
	Selector    string   `json:"selector,omitempty"`
	Value       string   `json:"value,omitempty"`
	URL         string   `json:"url,omitempty"`
	Label       string   `json:"label,omitempty"`
	DelayMs     int      `json:"delayMs,omitempty"`
	IsSensitive bool     `json:"isSensitive"`
}

// Recipe is a named, replayable sequence of recorded steps.
type Recipe struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Institution string          `json:"institution"`
	StartURL    string          `json:"startUrl"`
	Steps       []RecordingStep `json:"steps"`
}

// Sanitized returns a copy of the recipe with every sensitive step's value cleared.
// The receiver is not modified.
func (r Recipe) Sanitized() Recipe {
	out := r
	out.Steps = make([]RecordingStep, len(r.Steps))
	for i, step := range r.Steps {
		if step.IsSensitive {
			step.Value = ""
		}
		out.Steps[i] = step
	}
	return out
}

// HasSensitiveValues reports whether any sensitive step still carries a value.
func (r Recipe) HasSensitiveValues() bool {
	for _, step := range r.Steps {
		if step.IsSensitive && step.Value != "" {
			return true
		}
	}
	return false
}

// SensitiveStepCount returns how many steps must be supplied live at replay time.
func (r Recipe) SensitiveStepCount() int {
	n := 0
	for _, step := range r.Steps {
		if step.IsSensitive {
			n++
		}
	}
	return n
}

// Validate checks the structural invariants of a recipe.
func (r Recipe) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("%w: missing name", ErrInvalidRecipe)
	}
	if r.StartURL != "" {
		if _, err := url.ParseRequestURI(r.StartURL); err != nil {
			return fmt.Errorf("%w: start URL: %v", ErrInvalidRecipe, err)
		}
	}
	for i, step := range r.Steps {
		if err := step.Validate(); err != nil {
			return fmt.Errorf("%w: step %d: %v", ErrInvalidRecipe, i+1, err)
		}
	}
	return nil
}

// Validate checks that the step carries the fields its type needs.
func (s RecordingStep) Validate() error {
	if !s.Type.Valid() {
		return fmt.Errorf("unknown step type %q", s.Type)
	}
	switch s.Type {
	case StepNavigate:
		if s.URL == "" {
			return errors.New("navigate step without url")
		}
	case StepWait:
		if s.DelayMs < 0 {
			return errors.New("negative delay")
		}
	default:
		if s.Selector == "" {
			return fmt.Errorf("%s step without selector", s.Type)
		}
	}
	return nil
}

// DisplayLabel is the name shown when asking for a sensitive value.
func (s RecordingStep) DisplayLabel() string {
	if s.Label != "" {
		return s.Label
	}
	return s.Selector
}
