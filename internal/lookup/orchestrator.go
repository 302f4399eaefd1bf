// Package lookup runs the per-device upgrade lookup: alias resolution,
// catalog URL resolution, latest-release scraping and the recommendation.
package lookup

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/yorozuya-cybersecurity/upgrade-advisor/internal/catalog"
	"github.com/yorozuya-cybersecurity/upgrade-advisor/internal/ledger"
	"github.com/yorozuya-cybersecurity/upgrade-advisor/internal/logger"
	"github.com/yorozuya-cybersecurity/upgrade-advisor/internal/retry"
	"github.com/yorozuya-cybersecurity/upgrade-advisor/internal/schema"
	"github.com/yorozuya-cybersecurity/upgrade-advisor/internal/version"
)

// Config holds the retry and pacing policy of one run.
type Config struct {
	URLRetry    retry.Policy  `mapstructure:"url_retry" json:"url_retry"`
	ScrapeRetry retry.Policy  `mapstructure:"scrape_retry" json:"scrape_retry"`
	EoLRetry    retry.Policy  `mapstructure:"eol_retry" json:"eol_retry"`
	Pacing      time.Duration `mapstructure:"pacing" json:"pacing"`
}

func DefaultConfig() Config {
	return Config{
		URLRetry:    retry.DefaultPolicy(),
		ScrapeRetry: retry.DefaultPolicy(),
		EoLRetry:    retry.Policy{MaxAttempts: 1, Base: 2, Unit: time.Second, Cap: 30 * time.Second},
		Pacing:      time.Second,
	}
}

type urlResult struct {
	url      string
	attempts int
	err      error
}

type scrapeResult struct {
	info     *catalog.VersionInfo
	attempts int
	err      error
}

type eolResult struct {
	details *schema.EoLDetails
	err     error
}

// Orchestrator is built once per run. Its caches are keyed by catalog search
// term and are never shared between runs.
type Orchestrator struct {
	catalog catalog.Catalog
	eol     catalog.EoLSource
	cfg     Config
	log     zerolog.Logger

	runID     string
	auditPath string
	limiter   *rate.Limiter

	urls    map[string]urlResult
	scrapes map[string]scrapeResult
	eols    map[string]eolResult
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithEoLSource enables EnrichEoL.
func WithEoLSource(src catalog.EoLSource) Option {
	return func(o *Orchestrator) { o.eol = src }
}

// WithAuditLedger appends every freshly resolved URL to the ledger at path.
func WithAuditLedger(path string) Option {
	return func(o *Orchestrator) { o.auditPath = path }
}

// WithRunID tags audit rows and log lines with the run id.
func WithRunID(id string) Option {
	return func(o *Orchestrator) { o.runID = id }
}

func New(cat catalog.Catalog, cfg Config, log logger.Logger, opts ...Option) *Orchestrator {
	limit := rate.Inf
	if cfg.Pacing > 0 {
		limit = rate.Every(cfg.Pacing)
	}

	o := &Orchestrator{
		catalog: cat,
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, 1),
		urls:    make(map[string]urlResult),
		scrapes: make(map[string]scrapeResult),
		eols:    make(map[string]eolResult),
	}
	for _, opt := range opts {
		opt(o)
	}

	lc := log.With().Str("component", "lookup")
	if o.runID != "" {
		lc = lc.Str("run_id", o.runID)
	}
	o.log = lc.Logger()

	return o
}

// Run produces one suggestion per device in host order. Per-device failures
// are recorded as categories; only context cancellation aborts the run.
func (o *Orchestrator) Run(ctx context.Context, batchID string, inv schema.Inventory, aliases schema.AliasMap) ([]schema.UpgradeSuggestion, error) {
	o.log.Info().Str("batch", batchID).Int("devices", len(inv)).Msg("Starting lookup")

	out := make([]schema.UpgradeSuggestion, 0, len(inv))
	counts := make(map[schema.Category]int)

	for _, host := range inv.Hosts() {
		s, err := o.device(ctx, batchID, host, inv[host], aliases)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
		if s.Recommendation != nil {
			counts[*s.Recommendation]++
		}
	}

	ev := o.log.Info().Str("batch", batchID).Int("suggestions", len(out))
	for c, n := range counts {
		ev = ev.Int(string(c), n)
	}
	ev.Msg("Lookup finished")

	return out, nil
}

func (o *Orchestrator) device(ctx context.Context, batchID, host string, rec schema.DeviceRecord, aliases schema.AliasMap) (schema.UpgradeSuggestion, error) {
	eol := rec.EoLOrEmpty()
	s := schema.UpgradeSuggestion{
		Host:              host,
		Platform:          strings.TrimSpace(rec.Platform),
		CurrentVersion:    strings.TrimSpace(rec.Version),
		EndOfSaleDate:     eol.EndOfSaleDate,
		EndOfSupportDate:  eol.EndOfSupportDate,
		SeriesReleaseDate: eol.SeriesReleaseDate,
		Status:            eol.Status,
		CheckedAt:         batchID,
	}
	log := o.log.With().Str("host", host).Logger()

	pid := strings.TrimSpace(rec.Model)
	if pid == "" {
		log.Warn().Msg("Device has no PID; skipping")
		return fail(s, schema.CategoryMissingPID, "device missing PID (model)"), nil
	}
	s.PID = pid

	alias := strings.TrimSpace(aliases[pid])
	if alias == "" {
		log.Warn().Str("pid", pid).Msg("No alias for PID")
		return fail(s, schema.CategoryMissingAlias, "missing alias"), nil
	}
	s.Alias = alias

	log = log.With().Str("pid", pid).Str("term", alias).Logger()
	log.Info().Str("platform", s.Platform).Str("current", s.CurrentVersion).Msg("Processing device")

	if !o.cached(alias) {
		if err := o.limiter.Wait(ctx); err != nil {
			return s, err
		}
	}

	ur, err := o.resolveURL(ctx, batchID, alias)
	if err != nil {
		return s, err
	}
	if ur.err != nil {
		log.Error().Err(ur.err).Int("attempts", ur.attempts).Msg("Could not resolve catalog URL")
		return fail(s, schema.CategoryNoURL, "no url"), nil
	}
	s.FinalURL = ur.url

	sr, err := o.scrape(ctx, ur.url)
	if err != nil {
		return s, err
	}
	if sr.err != nil {
		log.Error().Err(sr.err).Int("attempts", sr.attempts).Str("url", ur.url).Msg("Scrape failed")
		return fail(s, schema.CategoryScrapeFailed, "scrape failed"), nil
	}

	info := sr.info
	rel := version.ParseRelease(info.LatestVersion)
	dec := version.Decide(s.Platform, s.CurrentVersion, rel)

	s.RecommendedVersion = rel.Clean
	s.ReleaseDesignation = rel.Designation
	s.ExplicitRecommendation = &rel.Explicit
	s.UpgradeRecommended = dec.Upgrade
	if !dec.Indeterminate() {
		s.Recommendation = &dec.Category
	}
	if info.FinalURL != "" {
		s.FinalURL = info.FinalURL
	}
	s.ScrapedVersionRaw = strings.TrimSpace(info.LatestVersion)
	s.SwitchType = info.SwitchType
	s.SelectedLabel = info.SelectedLabel
	s.ScreenshotFile = info.ScreenshotFile

	log.Info().
		Str("scraped", s.ScrapedVersionRaw).
		Str("clean", rel.Clean).
		Bool("explicit", rel.Explicit).
		Str("designation", rel.Designation).
		Str("recommendation", string(dec.Category)).
		Msg("Computed recommendation")

	return s, nil
}

func fail(s schema.UpgradeSuggestion, c schema.Category, notes string) schema.UpgradeSuggestion {
	s.Recommendation = &c
	s.Notes = notes
	return s
}

func (o *Orchestrator) cached(term string) bool {
	ur, ok := o.urls[term]
	if !ok {
		return false
	}
	if ur.err != nil {
		return true
	}
	_, ok = o.scrapes[ur.url]
	return ok
}

// resolveURL returns a non-nil error only when ctx is done.
func (o *Orchestrator) resolveURL(ctx context.Context, batchID, term string) (urlResult, error) {
	if r, ok := o.urls[term]; ok {
		o.log.Debug().Str("term", term).Msg("Catalog URL cache hit")
		return r, nil
	}

	url, attempts, err := retry.Do(ctx, o.cfg.URLRetry, func(ctx context.Context) (string, error) {
		url, err := o.catalog.ResolveURL(ctx, term)
		if err == nil && url == "" {
			err = catalog.ErrNoNavigation
		}
		return url, err
	}, o.notify("resolve", term))
	if ctx.Err() != nil {
		return urlResult{}, ctx.Err()
	}

	r := urlResult{url: url, attempts: attempts, err: err}
	o.urls[term] = r

	if err == nil {
		o.audit(batchID, term, url)
	}

	return r, nil
}

// scrape returns a non-nil error only when ctx is done.
func (o *Orchestrator) scrape(ctx context.Context, url string) (scrapeResult, error) {
	if r, ok := o.scrapes[url]; ok {
		o.log.Debug().Str("url", url).Msg("Scrape cache hit")
		return r, nil
	}

	info, attempts, err := retry.Do(ctx, o.cfg.ScrapeRetry, func(ctx context.Context) (*catalog.VersionInfo, error) {
		info, err := o.catalog.ScrapeLatest(ctx, url)
		if err == nil && info == nil {
			err = catalog.ErrEmptyVersion
		}
		return info, err
	}, o.notify("scrape", url))
	if ctx.Err() != nil {
		return scrapeResult{}, ctx.Err()
	}

	r := scrapeResult{info: info, attempts: attempts, err: err}
	o.scrapes[url] = r

	return r, nil
}

func (o *Orchestrator) notify(stage, key string) retry.Notify {
	return func(attempt int, err error, wait time.Duration) {
		o.log.Warn().Err(err).
			Str("stage", stage).
			Str("key", key).
			Int("attempt", attempt).
			Dur("wait", wait).
			Msg("Attempt failed; retrying")
	}
}

func (o *Orchestrator) audit(batchID, term, url string) {
	if o.auditPath == "" {
		return
	}
	entry := schema.URLAuditEntry{
		RunID:     o.runID,
		BatchTS:   batchID,
		Alias:     term,
		URL:       url,
		CheckedAt: time.Now().UTC().Format(time.RFC3339),
	}
	if err := ledger.Append(o.auditPath, entry); err != nil {
		o.log.Warn().Err(err).Str("path", o.auditPath).Msg("Could not append URL audit entry")
	}
}
