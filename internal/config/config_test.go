package config

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/spice-harvest/internal/common"
	"github.com/Veraticus/spice-harvest/internal/reconcile"
	"github.com/Veraticus/spice-harvest/internal/scheduler"
	"github.com/Veraticus/spice-harvest/internal/source"
)

func resetViper(t *testing.T) {
	t.Helper()
	viper.Reset()
	SetDefaults()
	t.Cleanup(viper.Reset)
}

func readYAML(t *testing.T, doc string) {
	t.Helper()
	viper.SetConfigType("yaml")
	require.NoError(t, viper.ReadConfig(strings.NewReader(doc)))
}

func TestExpandPath(t *testing.T) {
	t.Setenv("HOME", "/home/tester")
	t.Setenv("HARVEST_DIR", "/srv/harvest")

	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"~", "/home/tester"},
		{"~/data/harvest.db", "/home/tester/data/harvest.db"},
		{"$HARVEST_DIR/harvest.db", "/srv/harvest/harvest.db"},
		{"/abs/path.db", "/abs/path.db"},
		{"~other/path", "~other/path"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ExpandPath(tt.in))
		})
	}
}

func TestDatabasePath(t *testing.T) {
	resetViper(t)
	t.Setenv("HOME", "/home/tester")

	got, err := DatabasePath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/home/tester", ".local", "share", "harvest", "harvest.db"), got)

	viper.Set("database.path", "~/custom.db")
	got, err = DatabasePath()
	require.NoError(t, err)
	assert.Equal(t, "/home/tester/custom.db", got)
}

func TestLoadVisionConfig(t *testing.T) {
	resetViper(t)
	t.Setenv("ANTHROPIC_API_KEY", "from-env")

	assert.False(t, LoadVisionConfig().Enabled(), "no provider means vision is off")
	assert.Equal(t, DefaultVisionTimeout, LoadVisionConfig().Timeout)

	readYAML(t, `
vision:
  provider: anthropic
  model: claude-test
  timeout: 15s
`)
	cfg := LoadVisionConfig()
	assert.Equal(t, "anthropic", cfg.Provider)
	assert.Equal(t, "from-env", cfg.APIKey)
	assert.Equal(t, "claude-test", cfg.Model)
	assert.Equal(t, 15*time.Second, cfg.Timeout)

	viper.Set("vision.api_key", "from-config")
	assert.Equal(t, "from-config", LoadVisionConfig().APIKey)
}

func TestLoadMatcher(t *testing.T) {
	tests := []struct {
		name    string
		set     map[string]any
		want    reconcile.Matcher
		wantErr bool
	}{
		{
			name: "defaults",
			want: reconcile.NewMatcher(),
		},
		{
			name: "overrides",
			set:  map[string]any{"reconcile.threshold": 90, "reconcile.date_tolerance": "48h"},
			want: reconcile.Matcher{Threshold: 90, DateTolerance: 48 * time.Hour},
		},
		{
			name:    "threshold out of range",
			set:     map[string]any{"reconcile.threshold": 101},
			wantErr: true,
		},
		{
			name:    "negative tolerance",
			set:     map[string]any{"reconcile.date_tolerance": "-1h"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetViper(t)
			for k, v := range tt.set {
				viper.Set(k, v)
			}

			got, err := LoadMatcher()
			if tt.wantErr {
				assert.ErrorIs(t, err, common.ErrInvalidConfig)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoadPlaidConfig_EnvFallback(t *testing.T) {
	resetViper(t)
	t.Setenv("PLAID_CLIENT_ID", "client")
	t.Setenv("PLAID_SECRET", "secret")
	t.Setenv("PLAID_ACCESS_TOKEN", "access-sandbox-1")

	cfg := LoadPlaidConfig()
	assert.Equal(t, "client", cfg.ClientID)
	assert.Equal(t, "secret", cfg.Secret)
	assert.Equal(t, "access-sandbox-1", cfg.AccessToken)
	assert.Equal(t, "sandbox", cfg.Environment)
	assert.NoError(t, cfg.Validate())
}

func TestLoadSimpleFINAccessURL(t *testing.T) {
	resetViper(t)
	dir := t.TempDir()
	viper.Set("database.path", filepath.Join(dir, "harvest.db"))
	t.Setenv("SIMPLEFIN_ACCESS_URL", "")

	got, err := LoadSimpleFINAccessURL()
	require.NoError(t, err)
	assert.Empty(t, got, "nothing claimed yet")

	path, err := SimpleFINAuthPath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "simplefin_auth.json"), path)
	require.NoError(t, source.SaveSimpleFINAuth(path, source.SimpleFINAuth{AccessURL: "https://saved.example/simplefin"}))

	got, err = LoadSimpleFINAccessURL()
	require.NoError(t, err)
	assert.Equal(t, "https://saved.example/simplefin", got)

	t.Setenv("SIMPLEFIN_ACCESS_URL", "https://env.example/simplefin")
	got, _ = LoadSimpleFINAccessURL()
	assert.Equal(t, "https://env.example/simplefin", got)

	viper.Set("simplefin.access_url", "https://config.example/simplefin")
	got, _ = LoadSimpleFINAccessURL()
	assert.Equal(t, "https://config.example/simplefin", got)
}

func TestLoadServerConfig(t *testing.T) {
	resetViper(t)
	addr, origins := LoadServerConfig()
	assert.Equal(t, DefaultServerAddr, addr)
	assert.Empty(t, origins)

	readYAML(t, `
server:
  addr: 0.0.0.0:9000
  allowed_origins: ["http://localhost:3000"]
`)
	addr, origins = LoadServerConfig()
	assert.Equal(t, "0.0.0.0:9000", addr)
	assert.Equal(t, []string{"http://localhost:3000"}, origins)
}

func TestCertDir(t *testing.T) {
	resetViper(t)
	viper.Set("database.path", "/data/harvest/harvest.db")

	got, err := CertDir()
	require.NoError(t, err)
	assert.Equal(t, "/data/harvest/certs", got)

	viper.Set("server.cert_dir", "/etc/harvest/tls")
	got, err = CertDir()
	require.NoError(t, err)
	assert.Equal(t, "/etc/harvest/tls", got)
}

func TestLoadSchedules(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		resetViper(t)
		readYAML(t, `
schedules:
  - recipe: first-federal
    account: checking
    cron: "0 0 7 * * *"
  - recipe: credit-union
    account: savings
    cron: "@daily"
`)
		jobs, err := LoadSchedules()
		require.NoError(t, err)
		assert.Equal(t, []scheduler.Job{
			{RecipeID: "first-federal", AccountID: "checking", Cron: "0 0 7 * * *"},
			{RecipeID: "credit-union", AccountID: "savings", Cron: "@daily"},
		}, jobs)
	})

	t.Run("none", func(t *testing.T) {
		resetViper(t)
		jobs, err := LoadSchedules()
		require.NoError(t, err)
		assert.Empty(t, jobs)
	})

	t.Run("bad cron", func(t *testing.T) {
		resetViper(t)
		readYAML(t, `
schedules:
  - recipe: first-federal
    account: checking
    cron: "every morning"
`)
		_, err := LoadSchedules()
		require.Error(t, err)
		assert.True(t, errors.Is(err, common.ErrInvalidConfig))
		assert.Contains(t, err.Error(), "schedule 1")
	})
}
