package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/Veraticus/spice-harvest/internal/browser"
	"github.com/Veraticus/spice-harvest/internal/common"
	"github.com/Veraticus/spice-harvest/internal/extract"
	"github.com/Veraticus/spice-harvest/internal/reconcile"
	"github.com/Veraticus/spice-harvest/internal/scheduler"
	"github.com/Veraticus/spice-harvest/internal/source"
	"github.com/Veraticus/spice-harvest/internal/vision"
)

// Defaults for settings without a value.
const (
	DefaultServerAddr    = "127.0.0.1:8765"
	DefaultVisionTimeout = 60 * time.Second
)

// SetDefaults registers defaults on the global viper instance.
func SetDefaults() {
	viper.SetDefault("browser.headless", false)
	viper.SetDefault("vision.timeout", DefaultVisionTimeout)
	viper.SetDefault("reconcile.threshold", reconcile.DefaultThreshold)
	viper.SetDefault("reconcile.date_tolerance", reconcile.DefaultDateTolerance)
	viper.SetDefault("extract.max_rows", extract.DefaultMaxRows)
	viper.SetDefault("server.addr", DefaultServerAddr)
	viper.SetDefault("plaid.environment", "sandbox")
}

// DatabasePath returns database.path, expanded, or the default under
// ~/.local/share/harvest.
func DatabasePath() (string, error) {
	if p := viper.GetString("database.path"); p != "" {
		return ExpandPath(p), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".local", "share", "harvest", "harvest.db"), nil
}

// LoadVisionConfig reads the vision.* settings. The API key falls back to the
// provider's conventional environment variable.
func LoadVisionConfig() vision.Config {
	cfg := vision.Config{
		Provider:    viper.GetString("vision.provider"),
		APIKey:      viper.GetString("vision.api_key"),
		Model:       viper.GetString("vision.model"),
		BaseURL:     viper.GetString("vision.base_url"),
		Timeout:     viper.GetDuration("vision.timeout"),
		Temperature: viper.GetFloat64("vision.temperature"),
		MaxTokens:   viper.GetInt("vision.max_tokens"),
	}
	if cfg.APIKey == "" {
		switch cfg.Provider {
		case "anthropic":
			cfg.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		case "openai":
			cfg.APIKey = os.Getenv("OPENAI_API_KEY")
		case "gemini":
			cfg.APIKey = os.Getenv("GEMINI_API_KEY")
		}
	}
	return cfg
}

// LoadBrowserConfig reads browser.*.
func LoadBrowserConfig() browser.ChromeConfig {
	return browser.ChromeConfig{
		RemoteURL: viper.GetString("browser.remote_url"),
		Headless:  viper.GetBool("browser.headless"),
	}
}

// LoadExtractConfig reads extract.*.
func LoadExtractConfig() extract.Config {
	return extract.Config{MaxRows: viper.GetInt("extract.max_rows")}
}

// LoadMatcher reads reconcile.* and rejects values the matcher cannot use.
func LoadMatcher() (reconcile.Matcher, error) {
	m := reconcile.Matcher{
		Threshold:     viper.GetInt("reconcile.threshold"),
		DateTolerance: viper.GetDuration("reconcile.date_tolerance"),
	}
	if m.Threshold < 0 || m.Threshold > 100 {
		return m, fmt.Errorf("%w: reconcile.threshold must be 0-100, got %d", common.ErrInvalidConfig, m.Threshold)
	}
	if m.DateTolerance < 0 {
		return m, fmt.Errorf("%w: reconcile.date_tolerance must not be negative", common.ErrInvalidConfig)
	}
	return m, nil
}

// LoadServerConfig returns the listen address and allowed CORS origins.
func LoadServerConfig() (addr string, origins []string) {
	return viper.GetString("server.addr"), viper.GetStringSlice("server.allowed_origins")
}

// LoadPlaidConfig reads plaid.* with PLAID_* environment variables as fallbacks.
func LoadPlaidConfig() source.PlaidConfig {
	cfg := source.PlaidConfig{
		ClientID:    viper.GetString("plaid.client_id"),
		Secret:      viper.GetString("plaid.secret"),
		Environment: viper.GetString("plaid.environment"),
		AccessToken: viper.GetString("plaid.access_token"),
	}
	if cfg.ClientID == "" {
		cfg.ClientID = os.Getenv("PLAID_CLIENT_ID")
	}
	if cfg.Secret == "" {
		cfg.Secret = os.Getenv("PLAID_SECRET")
	}
	if cfg.AccessToken == "" {
		cfg.AccessToken = os.Getenv("PLAID_ACCESS_TOKEN")
	}
	return cfg
}

// CertDir returns server.cert_dir, expanded, or a certs directory next to the
// database.
func CertDir() (string, error) {
	if p := viper.GetString("server.cert_dir"); p != "" {
		return ExpandPath(p), nil
	}
	dbPath, err := DatabasePath()
	if err != nil {
		return "", err
	}
	return filepath.Join(filepath.Dir(dbPath), "certs"), nil
}

// SimpleFINAuthPath is where a claimed SimpleFIN access URL is kept: next to the
// database unless simplefin.auth_file says otherwise.
func SimpleFINAuthPath() (string, error) {
	if p := viper.GetString("simplefin.auth_file"); p != "" {
		return ExpandPath(p), nil
	}
	dbPath, err := DatabasePath()
	if err != nil {
		return "", err
	}
	return filepath.Join(filepath.Dir(dbPath), "simplefin_auth.json"), nil
}

// LoadSimpleFINAccessURL returns simplefin.access_url, then SIMPLEFIN_ACCESS_URL, then
// the URL saved by a previous claim. It is empty when none is set.
func LoadSimpleFINAccessURL() (string, error) {
	if u := viper.GetString("simplefin.access_url"); u != "" {
		return u, nil
	}
	if u := os.Getenv("SIMPLEFIN_ACCESS_URL"); u != "" {
		return u, nil
	}
	path, err := SimpleFINAuthPath()
	if err != nil {
		return "", err
	}
	auth, err := source.LoadSimpleFINAuth(path)
	if err != nil || auth == nil {
		return "", err
	}
	return auth.AccessURL, nil
}

// LoadSchedules reads the schedules list and validates every entry.
func LoadSchedules() ([]scheduler.Job, error) {
	var jobs []scheduler.Job
	if err := viper.UnmarshalKey("schedules", &jobs); err != nil {
		return nil, fmt.Errorf("%w: schedules: %v", common.ErrInvalidConfig, err)
	}
	for i, job := range jobs {
		if err := job.Validate(); err != nil {
			return nil, fmt.Errorf("schedule %d: %w", i+1, err)
		}
	}
	return jobs, nil
}
