package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yorozuya-cybersecurity/upgrade-advisor/internal/scanners"
)

func newViper() *viper.Viper {
	v := viper.New()
	Bind(v)
	return v
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(newViper())
	require.NoError(t, err)

	assert.Equal(t, "data", cfg.DataDir)
	assert.Equal(t, filepath.Join("data", "devices.json"), cfg.Inventory)
	assert.Equal(t, filepath.Join("data", "pid_alias.json"), cfg.Aliases)
	assert.Equal(t, filepath.Join("data", "upgrade-suggestions.jsonl"), cfg.Suggestions)
	assert.Equal(t, filepath.Join("data", "device_cve_check.json"), cfg.CVEMap)
	assert.Equal(t, filepath.Join("data", "cisco_urls.jsonl"), cfg.URLAudit)
	assert.Equal(t, filepath.Join("data", "history"), cfg.HistoryDir)
	assert.Equal(t, filepath.Join("data", "history", "notifications"), cfg.NotificationsDir)
	assert.Equal(t, filepath.Join("data", "history", "logs"), cfg.LogsDir)

	assert.Equal(t, uint(3), cfg.Lookup.URLRetry.MaxAttempts)
	assert.Equal(t, 2.0, cfg.Lookup.URLRetry.Base)
	assert.Equal(t, time.Second, cfg.Lookup.URLRetry.Unit)
	assert.Equal(t, 30*time.Second, cfg.Lookup.URLRetry.Cap)
	assert.Equal(t, uint(1), cfg.Lookup.EoLRetry.MaxAttempts)
	assert.Equal(t, time.Second, cfg.Lookup.Pacing)

	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, 40*time.Second, cfg.Browser.WaitTimeout)
	assert.Equal(t, scanners.DefaultTokenURL, cfg.Advisory.TokenURL)
	assert.False(t, cfg.Advisory.HasCredentials())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("ADVISOR_DATA_DIR", "/srv/advisor")
	t.Setenv("ADVISOR_LOOKUP_PACING", "250ms")
	t.Setenv("ADVISOR_LOOKUP_URL_RETRY_MAX_ATTEMPTS", "5")
	t.Setenv("ADVISOR_ADVISORY_CLIENT_ID", "id-1")
	t.Setenv("ADVISOR_ADVISORY_CLIENT_SECRET", "secret-1")
	t.Setenv("ADVISOR_BROWSER_HEADLESS", "false")

	cfg, err := Load(newViper())
	require.NoError(t, err)

	assert.Equal(t, filepath.Join("/srv/advisor", "devices.json"), cfg.Inventory)
	assert.Equal(t, 250*time.Millisecond, cfg.Lookup.Pacing)
	assert.Equal(t, uint(5), cfg.Lookup.URLRetry.MaxAttempts)
	assert.Equal(t, uint(3), cfg.Lookup.ScrapeRetry.MaxAttempts)
	assert.Equal(t, "id-1", cfg.Advisory.ClientID)
	assert.True(t, cfg.Advisory.HasCredentials())
	assert.False(t, cfg.Browser.Headless)
}

func TestLoad_LegacyCredentials(t *testing.T) {
	t.Setenv("CISCO_CLIENT_ID", "legacy-id")
	t.Setenv("CISCO_CLIENT_SECRET", "legacy-secret")

	cfg, err := Load(newViper())
	require.NoError(t, err)
	assert.Equal(t, "legacy-id", cfg.Advisory.ClientID)
	assert.Equal(t, "legacy-secret", cfg.Advisory.ClientSecret)
}

func TestLoad_ConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "advisor.yaml")
	yaml := `data_dir: /var/lib/advisor
suggestions: /var/log/advisor/suggestions.jsonl
lookup:
  pacing: 3s
  scrape_retry:
    max_attempts: 4
notify:
  slack_channel: C0123
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	v := newViper()
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())

	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, "/var/log/advisor/suggestions.jsonl", cfg.Suggestions)
	assert.Equal(t, filepath.Join("/var/lib/advisor", "pid_alias.json"), cfg.Aliases)
	assert.Equal(t, 3*time.Second, cfg.Lookup.Pacing)
	assert.Equal(t, uint(4), cfg.Lookup.ScrapeRetry.MaxAttempts)
	assert.Equal(t, 2.0, cfg.Lookup.ScrapeRetry.Base)
	assert.Equal(t, "C0123", cfg.Notify.SlackChannel)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "zero attempts", env: map[string]string{"ADVISOR_LOOKUP_URL_RETRY_MAX_ATTEMPTS": "0"}},
		{name: "negative pacing", env: map[string]string{"ADVISOR_LOOKUP_PACING": "-1s"}},
		{name: "negative cap", env: map[string]string{"ADVISOR_ADVISORY_RETRY_CAP": "-5s"}},
		{name: "base below one", env: map[string]string{"ADVISOR_LOOKUP_EOL_RETRY_BASE": "0.5"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load(newViper())
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestResolveBatchID(t *testing.T) {
	now := time.Date(2025, 9, 18, 10, 4, 5, 999, time.FixedZone("CEST", 2*3600))

	t.Run("flag wins", func(t *testing.T) {
		t.Setenv("RUN_TS", "2025-01-01T00:00:00Z")
		assert.Equal(t, "2025-09-01T06:00:00Z", ResolveBatchID(" 2025-09-01T06:00:00Z ", now))
	})
	t.Run("environment", func(t *testing.T) {
		t.Setenv("RUN_TS", "2025-01-01T00:00:00Z")
		assert.Equal(t, "2025-01-01T00:00:00Z", ResolveBatchID("", now))
	})
	t.Run("now in UTC", func(t *testing.T) {
		t.Setenv("RUN_TS", "")
		assert.Equal(t, "2025-09-18T08:04:05Z", ResolveBatchID("", now))
	})
}
