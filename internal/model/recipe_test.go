package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecipe_Sanitized(t *testing.T) {
	recipe := Recipe{
		ID:       "r1",
		Name:     "Checking",
		StartURL: "https://bank.example/login",
		Steps: []RecordingStep{
			{Type: StepInput, Selector: "#user", Value: "alice"},
			{Type: StepInput, Selector: "#pass", Value: "hunter2", IsSensitive: true},
			{Type: StepClick, Selector: "#submit"},
		},
	}

	sanitized := recipe.Sanitized()

	assert.Equal(t, "alice", sanitized.Steps[0].Value)
	assert.Empty(t, sanitized.Steps[1].Value)
	assert.False(t, sanitized.HasSensitiveValues())

	// The original is untouched.
	assert.Equal(t, "hunter2", recipe.Steps[1].Value)
	assert.True(t, recipe.HasSensitiveValues())
	assert.Equal(t, 1, recipe.SensitiveStepCount())
}

func TestRecipe_SanitizedJSONOmitsSensitiveValue(t *testing.T) {
	recipe := Recipe{
		Name: "Card",
		Steps: []RecordingStep{
			{Type: StepInput, Selector: "#otp", Value: "123456", IsSensitive: true},
		},
	}

	data, err := json.Marshal(recipe.Sanitized())
	require.NoError(t, err)
	assert.NotContains(t, string(data), "123456")
	assert.NotContains(t, string(data), `"value"`)
	assert.Contains(t, string(data), `"isSensitive":true`)
}

func TestRecipe_Validate(t *testing.T) {
	tests := []struct {
		name    string
		recipe  Recipe
		wantErr bool
	}{
		{
			name: "valid recipe",
			recipe: Recipe{
				Name:     "Checking",
				StartURL: "https://bank.example",
				Steps: []RecordingStep{
					{Type: StepNavigate, URL: "https://bank.example/activity"},
					{Type: StepWait, DelayMs: 500},
					{Type: StepClick, Selector: "#go"},
				},
			},
		},
		{
			name:    "missing name",
			recipe:  Recipe{},
			wantErr: true,
		},
		{
			name: "navigate without url",
			recipe: Recipe{
				Name:  "x",
				Steps: []RecordingStep{{Type: StepNavigate}},
			},
			wantErr: true,
		},
		{
			name: "click without selector",
			recipe: Recipe{
				Name:  "x",
				Steps: []RecordingStep{{Type: StepClick}},
			},
			wantErr: true,
		},
		{
			name: "unknown type",
			recipe: Recipe{
				Name:  "x",
				Steps: []RecordingStep{{Type: "hover", Selector: "a"}},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.recipe.Validate()
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidRecipe)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestCandidate_JSONWireShape(t *testing.T) {
	c := Candidate{
		Date:        "2024-03-01",
		Description: "Coffee Shop",
		Amount:      "-42.00",
		Ordinal:     3,
		Confidence:  70,
	}

	data, err := json.Marshal(c)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"date": "2024-03-01",
		"description": "Coffee Shop",
		"amount": "-42.00",
		"balance": null,
		"category": null,
		"index": 3,
		"confidence": 70
	}`, string(data))

	var back Candidate
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, c, back)
}
