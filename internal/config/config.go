// Package config loads the advisor settings from flags, environment, an
// optional YAML file and defaults, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/yorozuya-cybersecurity/upgrade-advisor/internal/catalog"
	"github.com/yorozuya-cybersecurity/upgrade-advisor/internal/logger"
	"github.com/yorozuya-cybersecurity/upgrade-advisor/internal/lookup"
	"github.com/yorozuya-cybersecurity/upgrade-advisor/internal/notify"
	"github.com/yorozuya-cybersecurity/upgrade-advisor/internal/retry"
	"github.com/yorozuya-cybersecurity/upgrade-advisor/internal/scanners"
)

const (
	EnvPrefix = "ADVISOR"

	// BatchFormat is the ISO-8601 UTC form used for batch identifiers.
	BatchFormat = "2006-01-02T15:04:05Z"
)

var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the fully resolved run configuration. Empty file paths are
// derived from DataDir by Load.
type Config struct {
	DataDir          string `mapstructure:"data_dir" json:"data_dir"`
	Inventory        string `mapstructure:"inventory" json:"inventory"`
	Aliases          string `mapstructure:"aliases" json:"aliases"`
	Suggestions      string `mapstructure:"suggestions" json:"suggestions"`
	CVEMap           string `mapstructure:"cve_map" json:"cve_map"`
	URLAudit         string `mapstructure:"url_audit" json:"url_audit"`
	HistoryDir       string `mapstructure:"history_dir" json:"history_dir"`
	LockFile         string `mapstructure:"lock_file" json:"lock_file"`
	ReportsDir       string `mapstructure:"reports_dir" json:"reports_dir"`
	NotificationsDir string `mapstructure:"notifications_dir" json:"notifications_dir"`
	LogsDir          string `mapstructure:"logs_dir" json:"logs_dir"`

	// EnrichEoL runs the support-site lookup before the catalog lookup.
	EnrichEoL bool `mapstructure:"enrich_eol" json:"enrich_eol"`

	Lookup        lookup.Config           `mapstructure:"lookup" json:"lookup"`
	AdvisoryRetry retry.Policy            `mapstructure:"advisory_retry" json:"advisory_retry"`
	Browser       catalog.BrowserConfig   `mapstructure:"browser" json:"browser"`
	Advisory      scanners.AdvisoryConfig `mapstructure:"advisory" json:"advisory"`
	Notify        notify.Config           `mapstructure:"notify" json:"notify"`
	Log           logger.Config           `mapstructure:"log" json:"log"`
}

// Bind prepares v for Load: environment overrides under ADVISOR_ and a
// default for every key so nested keys can be overridden from the environment.
func Bind(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	SetDefaults(v)
}

func SetDefaults(v *viper.Viper) {
	v.SetDefault("data_dir", "data")
	for _, key := range []string{
		"inventory", "aliases", "suggestions", "cve_map", "url_audit",
		"history_dir", "lock_file", "reports_dir", "notifications_dir", "logs_dir",
	} {
		v.SetDefault(key, "")
	}
	v.SetDefault("enrich_eol", false)

	lc := lookup.DefaultConfig()
	setPolicy(v, "lookup.url_retry", lc.URLRetry)
	setPolicy(v, "lookup.scrape_retry", lc.ScrapeRetry)
	setPolicy(v, "lookup.eol_retry", lc.EoLRetry)
	v.SetDefault("lookup.pacing", lc.Pacing)
	setPolicy(v, "advisory_retry", retry.DefaultPolicy())

	bc := catalog.DefaultBrowserConfig()
	v.SetDefault("browser.catalog_url", bc.CatalogURL)
	v.SetDefault("browser.support_url", bc.SupportURL)
	v.SetDefault("browser.user_agent", bc.UserAgent)
	v.SetDefault("browser.proxy", "")
	v.SetDefault("browser.headless", bc.Headless)
	v.SetDefault("browser.exec_path", "")
	v.SetDefault("browser.wait_timeout", bc.WaitTimeout)
	v.SetDefault("browser.page_timeout", bc.PageTimeout)
	v.SetDefault("browser.screenshot_dir", "")

	v.SetDefault("advisory.client_id", "")
	v.SetDefault("advisory.client_secret", "")
	v.SetDefault("advisory.token_url", scanners.DefaultTokenURL)
	v.SetDefault("advisory.base_url", scanners.DefaultAdvisoryURL)
	v.SetDefault("advisory.timeout", 30*time.Second)

	v.SetDefault("notify.slack_token", "")
	v.SetDefault("notify.slack_channel", "")
	v.SetDefault("notify.slack_api_url", "")

	lg := logger.DefaultConfig()
	v.SetDefault("log.level", lg.Level)
	v.SetDefault("log.debug", lg.Debug)
	v.SetDefault("log.output", lg.Output)
	v.SetDefault("log.time_format", lg.TimeFormat)
	v.SetDefault("log.console", false)
}

func setPolicy(v *viper.Viper, prefix string, p retry.Policy) {
	v.SetDefault(prefix+".max_attempts", p.MaxAttempts)
	v.SetDefault(prefix+".base", p.Base)
	v.SetDefault(prefix+".unit", p.Unit)
	v.SetDefault(prefix+".cap", p.Cap)
}

// Load unmarshals v, fills derived paths and validates the result.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}

	cfg.applyLegacyEnv()
	cfg.resolvePaths()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyLegacyEnv picks up the credential variable names used by older
// deployments when the prefixed ones are unset.
func (c *Config) applyLegacyEnv() {
	if c.Advisory.ClientID == "" {
		c.Advisory.ClientID = os.Getenv("CISCO_CLIENT_ID")
	}
	if c.Advisory.ClientSecret == "" {
		c.Advisory.ClientSecret = os.Getenv("CISCO_CLIENT_SECRET")
	}
	if c.Notify.SlackToken == "" {
		c.Notify.SlackToken = os.Getenv("SLACK_BOT_TOKEN")
	}
}

func (c *Config) resolvePaths() {
	derive := func(p *string, elem ...string) {
		if *p == "" {
			*p = filepath.Join(append([]string{c.DataDir}, elem...)...)
		}
	}
	derive(&c.Inventory, "devices.json")
	derive(&c.Aliases, "pid_alias.json")
	derive(&c.Suggestions, "upgrade-suggestions.jsonl")
	derive(&c.CVEMap, "device_cve_check.json")
	derive(&c.URLAudit, "cisco_urls.jsonl")
	derive(&c.HistoryDir, "history")
	derive(&c.LockFile, "advisor.lock")
	derive(&c.ReportsDir, "reports")
	if c.NotificationsDir == "" {
		c.NotificationsDir = filepath.Join(c.HistoryDir, "notifications")
	}
	if c.LogsDir == "" {
		c.LogsDir = filepath.Join(c.HistoryDir, "logs")
	}
}

// Validate rejects settings a run could not work with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("%w: data_dir must not be empty", ErrInvalidConfig)
	}

	policies := map[string]retry.Policy{
		"lookup.url_retry":    c.Lookup.URLRetry,
		"lookup.scrape_retry": c.Lookup.ScrapeRetry,
		"lookup.eol_retry":    c.Lookup.EoLRetry,
		"advisory_retry":      c.AdvisoryRetry,
	}
	for name, p := range policies {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidConfig, name, err)
		}
	}

	if c.Lookup.Pacing < 0 {
		return fmt.Errorf("%w: lookup.pacing must not be negative", ErrInvalidConfig)
	}
	if c.Browser.WaitTimeout < 0 || c.Browser.PageTimeout < 0 || c.Advisory.Timeout < 0 {
		return fmt.Errorf("%w: timeouts must not be negative", ErrInvalidConfig)
	}
	return nil
}

// ResolveBatchID picks the batch identifier: the flag value, else RUN_TS,
// else now in UTC.
func ResolveBatchID(flag string, now time.Time) string {
	if id := strings.TrimSpace(flag); id != "" {
		return id
	}
	if id := strings.TrimSpace(os.Getenv("RUN_TS")); id != "" {
		return id
	}
	return now.UTC().Format(BatchFormat)
}
