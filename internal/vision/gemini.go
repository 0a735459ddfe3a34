package vision

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/Veraticus/spice-harvest/internal/model"
)

// geminiProvider implements Provider with the Google GenAI SDK.
type geminiProvider struct {
	client      *genai.Client
	model       string
	cfg         Config
	temperature float32
}

func newGeminiProvider(ctx context.Context, cfg Config) (Provider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}

	clientCfg := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	modelName := cfg.Model
	if modelName == "" {
		modelName = "gemini-2.5-flash"
	}

	return &geminiProvider{
		client:      client,
		model:       modelName,
		cfg:         cfg,
		temperature: float32(cfg.Temperature),
	}, nil
}

// Extract sends the snapshot to Gemini and parses the returned JSON array.
func (p *geminiProvider) Extract(ctx context.Context, snap model.PageSnapshot) ([]model.Candidate, error) {
	if err := checkSnapshot(snap); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	parts := []*genai.Part{{Text: buildPrompt(snap)}}
	if len(snap.Screenshot) > 0 {
		parts = append(parts, &genai.Part{
			InlineData: &genai.Blob{
				MIMEType: "image/png",
				Data:     snap.Screenshot,
			},
		})
	}

	contents := []*genai.Content{{Role: "user", Parts: parts}}

	temperature := p.temperature
	genCfg := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: systemPrompt}}},
		Temperature:       &temperature,
		ResponseMIMEType:  "application/json",
	}

	resp, err := p.client.Models.GenerateContent(ctx, p.model, contents, genCfg)
	if err != nil {
		return nil, fmt.Errorf("generate content: %w", err)
	}

	rawText := resp.Text()
	if rawText == "" {
		return nil, fmt.Errorf("empty response from model")
	}

	return parseCandidates(rawText)
}
