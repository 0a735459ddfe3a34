// Package vision asks a multimodal model to read transactions off a page snapshot.
// It supports Anthropic, OpenAI and Gemini. Every call is a single attempt bounded
// by the configured timeout; callers decide what to do when it fails.
package vision

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Veraticus/spice-harvest/internal/common"
	"github.com/Veraticus/spice-harvest/internal/model"
)

//go:generate mockgen -source=provider.go -destination=mocks/mock_provider.go -package=mocks

// Provider extracts candidate transactions from a page snapshot.
type Provider interface {
	Extract(ctx context.Context, snap model.PageSnapshot) ([]model.Candidate, error)
}

// Config selects a provider and carries its credentials.
type Config struct {
	Provider    string // anthropic, openai, gemini; empty disables vision
	APIKey      string
	Model       string
	BaseURL     string // overrides the provider endpoint
	Timeout     time.Duration
	Temperature float64
	MaxTokens   int
}

// Enabled reports whether a provider is configured.
func (c Config) Enabled() bool {
	return strings.TrimSpace(c.Provider) != ""
}

const (
	defaultTimeout   = 60 * time.Second
	defaultMaxTokens = 4096

	// Upper bound on DOM text sent when no screenshot is available.
	maxHTMLBytes = 150_000
)

// NewProvider creates the provider named by cfg.Provider.
// It returns nil and no error when vision is not configured.
func NewProvider(ctx context.Context, cfg Config) (Provider, error) {
	if !cfg.Enabled() {
		return nil, nil
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}

	switch strings.ToLower(cfg.Provider) {
	case "anthropic":
		return newAnthropicProvider(cfg)
	case "openai":
		return newOpenAIProvider(cfg)
	case "gemini":
		return newGeminiProvider(ctx, cfg)
	default:
		return nil, fmt.Errorf("%w: unsupported vision provider: %s", common.ErrInvalidConfig, cfg.Provider)
	}
}

const systemPrompt = "You read bank transaction listings. Respond with raw JSON only."

// buildPrompt describes the output contract. The snapshot itself travels as an image
// part, or inline below the instructions when only DOM text is available.
func buildPrompt(snap model.PageSnapshot) string {
	var sb strings.Builder
	sb.WriteString("Extract every posted transaction visible on this bank page.\n\n")
	sb.WriteString("Output a JSON array. Each element must have:\n")
	sb.WriteString("- \"date\": string, exactly as shown on the page\n")
	sb.WriteString("- \"description\": string, the merchant or payee\n")
	sb.WriteString("- \"amount\": string, negative for money out, positive for money in\n")
	sb.WriteString("- \"balance\": string or null\n")
	sb.WriteString("- \"category\": string or null, only if the page shows one\n\n")
	sb.WriteString("Skip pending transactions, headers and balance summary rows.\n")
	sb.WriteString("Return [] if there are no transactions. Do not wrap the output in code fences.\n")

	if len(snap.Screenshot) == 0 && snap.HTML != "" {
		sb.WriteString("\nPage HTML:\n")
		sb.WriteString(truncateUTF8(snap.HTML, maxHTMLBytes))
	}
	return sb.String()
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func checkSnapshot(snap model.PageSnapshot) error {
	if snap.Empty() {
		return common.ErrNoSnapshot
	}
	return nil
}
