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

const openAIURL = "https://api.openai.com/v1/chat/completions"

// openAIProvider implements Provider for the OpenAI chat completions API.
type openAIProvider struct {
	httpClient  *http.Client
	apiKey      string
	model       string
	url         string
	temperature float64
	maxTokens   int
}

func newOpenAIProvider(cfg Config) (Provider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}

	modelName := cfg.Model
	if modelName == "" {
		modelName = "gpt-4o"
	}

	url := cfg.BaseURL
	if url == "" {
		url = openAIURL
	}

	return &openAIProvider{
		apiKey:      cfg.APIKey,
		model:       modelName,
		url:         url,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		httpClient:  &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// Extract sends the snapshot to OpenAI and parses the returned JSON array.
func (p *openAIProvider) Extract(ctx context.Context, snap model.PageSnapshot) ([]model.Candidate, error) {
	if err := checkSnapshot(snap); err != nil {
		return nil, err
	}

	content := []map[string]any{
		{
			"type": "text",
			"text": buildPrompt(snap),
		},
	}
	if len(snap.Screenshot) > 0 {
		content = append(content, map[string]any{
			"type": "image_url",
			"image_url": map[string]string{
				"url": "data:image/png;base64," + base64.StdEncoding.EncodeToString(snap.Screenshot),
			},
		})
	}

	requestBody := map[string]any{
		"model": p.model,
		"messages": []map[string]any{
			{
				"role":    "system",
				"content": systemPrompt,
			},
			{
				"role":    "user",
				"content": content,
			},
		},
		"temperature": p.temperature,
		"max_tokens":  p.maxTokens,
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
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

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
		return nil, fmt.Errorf("OpenAI API error (status %d): %s", resp.StatusCode, string(body))
	}

	var response openAIResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if len(response.Choices) == 0 {
		return nil, fmt.Errorf("no choices in response")
	}

	return parseCandidates(response.Choices[0].Message.Content)
}

// openAIResponse represents the OpenAI API response structure.
type openAIResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}
