package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/Veraticus/spice-harvest/internal/model"
)

const anthropicURL = "https://api.anthropic.com/v1/messages"

// anthropicProvider implements Provider for the Anthropic messages API.
type anthropicProvider struct {
	httpClient  *http.Client
	apiKey      string
	model       string
	url         string
	temperature float64
	maxTokens   int
}

func newAnthropicProvider(cfg Config) (Provider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic API key is required")
	}

	modelName := cfg.Model
	if modelName == "" {
		modelName = "claude-sonnet-4-20250514"
	}

	url := cfg.BaseURL
	if url == "" {
		url = anthropicURL
	}

	return &anthropicProvider{
		apiKey:      cfg.APIKey,
		model:       modelName,
		url:         url,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		httpClient:  &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// Extract sends the snapshot to Anthropic and parses the returned JSON array.
func (p *anthropicProvider) Extract(ctx context.Context, snap model.PageSnapshot) ([]model.Candidate, error) {
	if err := checkSnapshot(snap); err != nil {
		return nil, err
	}

	content := []map[string]any{}
	if len(snap.Screenshot) > 0 {
		content = append(content, map[string]any{
			"type": "image",
			"source": map[string]string{
				"type":       "base64",
				"media_type": "image/png",
				"data":       base64.StdEncoding.EncodeToString(snap.Screenshot),
			},
		})
	}
	content = append(content, map[string]any{
		"type": "text",
		"text": buildPrompt(snap),
	})

	requestBody := map[string]any{
		"model":       p.model,
		"max_tokens":  p.maxTokens,
		"temperature": p.temperature,
		"system":      systemPrompt,
		"messages": []map[string]any{
			{
				"role":    "user",
				"content": content,
			},
		},
	}

	jsonBody, err := json.Marshal(requestBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", p.apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("anthropic API error (status %d): %s", resp.StatusCode, string(body))
	}

	var response anthropicResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	for _, block := range response.Content {
		if block.Type == "text" {
			return parseCandidates(block.Text)
		}
	}
	return nil, fmt.Errorf("no content in response")
}

// anthropicResponse represents the Anthropic API response structure.
type anthropicResponse struct {
	ID         string `json:"id"`
	Model      string `json:"model"`
	StopReason string `json:"stop_reason"`
	Content    []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}
