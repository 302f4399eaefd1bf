package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog"

	"github.com/yorozuya-cybersecurity/upgrade-advisor/internal/logger"
	"github.com/yorozuya-cybersecurity/upgrade-advisor/internal/schema"
	"github.com/yorozuya-cybersecurity/upgrade-advisor/pkg/utils"
)

const (
	DefaultCatalogURL = "https://software.cisco.com/download/home"
	DefaultSupportURL = "https://www.cisco.com/c/en/us/support/index.html"
	DefaultUserAgent  = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
		"(KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"

	recommendedSuffix = " (recommended)"
	cookieButton      = "#onetrust-accept-btn-handler"
	typeaheadButton   = "ngb-typeahead-window button"
	familyList        = "#stos-list"
	suggestedStar     = "span.icon-software-suggested.icon-small.suggestedStar"
)

// Search box on the catalog home page, most specific first.
var searchInputSelectors = []string{
	"/html/body/app-root/div/main/div/div/app-home/div[3]/app-psa/div/div[1]/div/div[2]/form/div/div/input",
	"app-home app-psa input[type='text']",
	"input[placeholder*='Search']",
}

// FamilyLabels are tried in order on a product "/type" page.
var FamilyLabels = []string{"IOS Software", "IOS XE Software", "NX-OS System Software", "Switch Firmware"}

var versionSelectors = []string{
	"/html/body/app-root/div/main/div/div/app-release-page/div/div[1]/app-release-details/nav/div[4]/" +
		"tree-root/tree-viewport/div/div/tree-node-collection/div/tree-node[1]/div/tree-node-children/div/" +
		"tree-node-collection/div/tree-node[1]/div/tree-node-wrapper/div/div/tree-node-content/div/div/span",
	"tree-node-content div div span",
}

var switchTypeSelectors = []string{
	"/html/body/app-root/div/main/div/div/app-release-page/div/div[2]/app-image-details/div[1]/h2",
	"app-image-details h2",
}

const (
	supportSearchButton = "/html/body/div[2]/div/div[3]/div[1]/div[2]/div/section/button"
	supportSearchInput  = "/html/body/div[2]/div/div[3]/div[1]/div[2]/div/section/div/div/form/div[1]/input"
	supportFirstHit     = "/html/body/div[2]/div/div[3]/div[1]/div[2]/div/section/div/div/div[1]/ul/li[1]/div/ul/li[1]/a/span[2]"
	birthCertTable      = "//table[contains(@class,'birth-cert-table')]"
	legacyEoLTable      = "/html/body/div[2]/div[2]/div/div/div[1]/table"
)

// BrowserConfig controls the headless Chrome session.
type BrowserConfig struct {
	CatalogURL    string        `mapstructure:"catalog_url" json:"catalog_url"`
	SupportURL    string        `mapstructure:"support_url" json:"support_url"`
	UserAgent     string        `mapstructure:"user_agent" json:"user_agent"`
	Proxy         string        `mapstructure:"proxy" json:"proxy"`
	Headless      bool          `mapstructure:"headless" json:"headless"`
	ExecPath      string        `mapstructure:"exec_path" json:"exec_path"`
	WaitTimeout   time.Duration `mapstructure:"wait_timeout" json:"wait_timeout"`
	PageTimeout   time.Duration `mapstructure:"page_timeout" json:"page_timeout"`
	ScreenshotDir string        `mapstructure:"screenshot_dir" json:"screenshot_dir"`
}

func DefaultBrowserConfig() BrowserConfig {
	return BrowserConfig{
		CatalogURL:  DefaultCatalogURL,
		SupportURL:  DefaultSupportURL,
		UserAgent:   DefaultUserAgent,
		Headless:    true,
		WaitTimeout: 40 * time.Second,
		PageTimeout: 2 * time.Minute,
	}
}

// Browser drives a headless Chrome through the catalog and support sites.
// Every call runs in a fresh browser so a wedged page cannot leak into the next lookup.
type Browser struct {
	cfg BrowserConfig
	log zerolog.Logger

	allocCtx context.Context
	cancel   context.CancelFunc
}

var (
	_ Catalog   = (*Browser)(nil)
	_ EoLSource = (*Browser)(nil)
)

func NewBrowser(ctx context.Context, cfg BrowserConfig, log logger.Logger) *Browser {
	def := DefaultBrowserConfig()
	if cfg.CatalogURL == "" {
		cfg.CatalogURL = def.CatalogURL
	}
	if cfg.SupportURL == "" {
		cfg.SupportURL = def.SupportURL
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = def.UserAgent
	}
	if cfg.WaitTimeout <= 0 {
		cfg.WaitTimeout = def.WaitTimeout
	}
	if cfg.PageTimeout <= 0 {
		cfg.PageTimeout = def.PageTimeout
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("log-level", "3"),
		chromedp.WindowSize(1920, 1080),
		chromedp.UserAgent(cfg.UserAgent),
	)
	if cfg.Proxy != "" {
		opts = append(opts, chromedp.ProxyServer(cfg.Proxy))
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}

	allocCtx, cancel := chromedp.NewExecAllocator(ctx, opts...)

	return &Browser{
		cfg:      cfg,
		log:      log.WithComponent("catalog"),
		allocCtx: allocCtx,
		cancel:   cancel,
	}
}

// Close shuts down the allocator and any browser still running.
func (b *Browser) Close() {
	b.cancel()
}

// tab opens a new browser bound to both the allocator and ctx.
func (b *Browser) tab(ctx context.Context) (context.Context, context.CancelFunc) {
	tabCtx, cancelTab := chromedp.NewContext(b.allocCtx)
	tabCtx, cancelTimeout := context.WithTimeout(tabCtx, b.cfg.PageTimeout)
	stop := context.AfterFunc(ctx, cancelTab)

	return tabCtx, func() {
		stop()
		cancelTimeout()
		cancelTab()
	}
}

// ResolveURL searches the catalog for term and returns the product page it lands on.
func (b *Browser) ResolveURL(ctx context.Context, term string) (string, error) {
	tabCtx, cancel := b.tab(ctx)
	defer cancel()

	log := b.log.With().Str("term", term).Logger()
	log.Debug().Str("url", b.cfg.CatalogURL).Msg("Opening catalog")

	if err := chromedp.Run(tabCtx, chromedp.Navigate(b.cfg.CatalogURL)); err != nil {
		return "", fmt.Errorf("open catalog: %w", err)
	}

	var denied bool
	if err := chromedp.Run(tabCtx, chromedp.Evaluate(`document.documentElement.outerHTML.includes("Access Denied")`, &denied)); err != nil {
		return "", fmt.Errorf("read catalog page: %w", err)
	}
	if denied {
		return "", ErrBlocked
	}

	b.acceptCookies(tabCtx)

	idx, err := b.waitAny(tabCtx, searchInputSelectors, b.cfg.WaitTimeout)
	if err != nil {
		return "", fmt.Errorf("search input: %w", err)
	}
	input := searchInputSelectors[idx]

	err = chromedp.Run(tabCtx,
		chromedp.Evaluate(clickJS(input), nil),
		chromedp.Sleep(200*time.Millisecond),
		chromedp.Evaluate(clearJS(input), nil),
		chromedp.SendKeys(input, term, chromedp.BySearch),
	)
	if err != nil {
		return "", fmt.Errorf("type search term: %w", err)
	}

	log.Debug().Msg("Waiting for suggestions")
	if _, err := b.waitAny(tabCtx, []string{typeaheadButton}, b.cfg.WaitTimeout); err != nil {
		return "", fmt.Errorf("suggestions: %w", err)
	}
	if err := chromedp.Run(tabCtx, chromedp.Evaluate(clickJS(typeaheadButton), nil)); err != nil {
		return "", fmt.Errorf("click suggestion: %w", err)
	}

	if err := b.waitNavigation(tabCtx, landedOnProductJS(b.cfg.CatalogURL), b.cfg.WaitTimeout); err != nil {
		return "", err
	}

	var current string
	if err := chromedp.Run(tabCtx, chromedp.Sleep(400*time.Millisecond), chromedp.Location(&current)); err != nil {
		return "", fmt.Errorf("read location: %w", err)
	}
	if !LandedOnProduct(b.cfg.CatalogURL, current) {
		return "", fmt.Errorf("%w: %s", ErrNoNavigation, current)
	}

	log.Info().Str("url", current).Msg("Resolved catalog URL")

	return current, nil
}

// ScrapeLatest opens a product page and reads the latest release.
func (b *Browser) ScrapeLatest(ctx context.Context, url string) (*VersionInfo, error) {
	tabCtx, cancel := b.tab(ctx)
	defer cancel()

	log := b.log.With().Str("url", url).Logger()

	var current string
	if err := chromedp.Run(tabCtx, chromedp.Navigate(url), chromedp.Location(&current)); err != nil {
		return nil, fmt.Errorf("open release page: %w", err)
	}

	b.acceptCookies(tabCtx)

	info := &VersionInfo{}

	if IsTypePage(current) {
		log.Debug().Msg("Family page detected")

		if _, err := b.waitAny(tabCtx, []string{familyList}, b.cfg.WaitTimeout); err != nil {
			return nil, fmt.Errorf("family list: %w", err)
		}

		for _, label := range FamilyLabels {
			var clicked bool
			if err := chromedp.Run(tabCtx, chromedp.Evaluate(clickFamilyJS(label), &clicked)); err != nil {
				return nil, fmt.Errorf("select %q: %w", label, err)
			}
			if !clicked {
				continue
			}

			if err := b.waitNavigation(tabCtx, urlChangedJS(current), b.cfg.WaitTimeout); err != nil {
				log.Warn().Str("label", label).Msg("Selecting family did not navigate; trying next")
				continue
			}

			info.SelectedLabel = label
			log.Debug().Str("label", label).Msg("Selected family")
			break
		}
	}

	var ready bool
	err := chromedp.Run(tabCtx, chromedp.Poll(
		`Array.from(document.querySelectorAll("span")).some(s => s.textContent.includes("Latest Release"))`,
		&ready, chromedp.WithPollingTimeout(b.cfg.WaitTimeout)))
	if err != nil {
		if tabCtx.Err() != nil {
			return nil, tabCtx.Err()
		}
		// some release pages never render the label
		_ = chromedp.Run(tabCtx, chromedp.Sleep(2*time.Second))
	}

	var versionText, switchType string
	var starred bool
	err = chromedp.Run(tabCtx,
		chromedp.Evaluate(firstTextJS(versionSelectors), &versionText),
		chromedp.Evaluate(visibleJS(suggestedStar), &starred),
		chromedp.Evaluate(firstTextJS(switchTypeSelectors), &switchType),
		chromedp.Location(&info.FinalURL),
	)
	if err != nil {
		return nil, fmt.Errorf("read release details: %w", err)
	}

	versionText = CleanText(versionText)
	if versionText == "" {
		return nil, ErrEmptyVersion
	}
	if starred {
		versionText = WithRecommended(versionText)
	}

	info.LatestVersion = versionText
	info.SwitchType = CleanText(switchType)

	if b.cfg.ScreenshotDir != "" {
		file, err := b.screenshot(tabCtx, info.SwitchType)
		if err != nil {
			log.Warn().Err(err).Msg("Screenshot failed")
		} else {
			info.ScreenshotFile = file
		}
	}

	log.Info().
		Str("version", info.LatestVersion).
		Str("switch_type", info.SwitchType).
		Msg("Scraped latest release")

	return info, nil
}

// LookupEoL searches the support site for term and reads its lifecycle table.
func (b *Browser) LookupEoL(ctx context.Context, term string) (*schema.EoLDetails, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, nil
	}

	tabCtx, cancel := b.tab(ctx)
	defer cancel()

	log := b.log.With().Str("term", term).Logger()
	details := &schema.EoLDetails{AliasUsed: term}

	if err := chromedp.Run(tabCtx, chromedp.Navigate(b.cfg.SupportURL)); err != nil {
		return nil, fmt.Errorf("open support index: %w", err)
	}
	details.NavSteps = append(details.NavSteps, "Opened Support index")

	b.acceptCookies(tabCtx)

	if _, err := b.waitAny(tabCtx, []string{supportSearchButton}, b.cfg.WaitTimeout); err != nil {
		return nil, fmt.Errorf("search button: %w", err)
	}
	if err := chromedp.Run(tabCtx, chromedp.Evaluate(clickJS(supportSearchButton), nil)); err != nil {
		return nil, fmt.Errorf("click search button: %w", err)
	}
	details.NavSteps = append(details.NavSteps, "Clicked search button")

	if _, err := b.waitAny(tabCtx, []string{supportSearchInput}, b.cfg.WaitTimeout); err != nil {
		return nil, fmt.Errorf("search input: %w", err)
	}
	err := chromedp.Run(tabCtx,
		chromedp.Evaluate(clickJS(supportSearchInput), nil),
		chromedp.Evaluate(clearJS(supportSearchInput), nil),
		chromedp.SendKeys(supportSearchInput, term, chromedp.BySearch),
		chromedp.Sleep(600*time.Millisecond),
	)
	if err != nil {
		return nil, fmt.Errorf("type search term: %w", err)
	}
	details.NavSteps = append(details.NavSteps, "Typed alias: "+term)

	if _, err := b.waitAny(tabCtx, []string{supportFirstHit}, b.cfg.WaitTimeout); err != nil {
		return nil, fmt.Errorf("suggestions: %w", err)
	}
	var hit string
	err = chromedp.Run(tabCtx,
		chromedp.Evaluate(firstTextJS([]string{supportFirstHit}), &hit),
		chromedp.Evaluate(clickJS(supportFirstHit), nil),
	)
	if err != nil {
		return nil, fmt.Errorf("click suggestion: %w", err)
	}
	details.NavSteps = append(details.NavSteps, "Clicked suggestion: "+emptyFallback(CleanText(hit), "(no text)"))

	if err := b.waitNavigation(tabCtx, urlChangedJS(b.cfg.SupportURL), b.cfg.WaitTimeout); err != nil {
		if tabCtx.Err() != nil {
			return nil, tabCtx.Err()
		}
		log.Debug().Msg("Support search did not navigate")
	}

	err = chromedp.Run(tabCtx,
		chromedp.Sleep(500*time.Millisecond),
		chromedp.Title(&details.NavTitle),
		chromedp.Location(&details.NavURL),
	)
	if err != nil {
		return nil, fmt.Errorf("read product page: %w", err)
	}
	details.NavSteps = append(details.NavSteps, "Landed: "+details.NavTitle)

	table := ""
	for _, candidate := range []struct {
		sel  string
		wait time.Duration
	}{
		{birthCertTable, 20 * time.Second},
		{legacyEoLTable, 10 * time.Second},
	} {
		if _, err := b.waitAny(tabCtx, []string{candidate.sel}, candidate.wait); err == nil {
			table = candidate.sel
			break
		}
	}
	if table == "" {
		details.NavSteps = append(details.NavSteps, "Table not found")
		log.Warn().Str("url", details.NavURL).Msg("Lifecycle table not found")
		return details, nil
	}

	var rows lifecycleRows
	if err := chromedp.Run(tabCtx, chromedp.Evaluate(lifecycleJS(table), &rows)); err != nil {
		return nil, fmt.Errorf("read lifecycle table: %w", err)
	}
	rows.apply(details)

	log.Info().
		Str("end_of_sale", details.EndOfSaleDate).
		Str("end_of_support", details.EndOfSupportDate).
		Str("status", details.Status).
		Msg("Read lifecycle details")

	return details, nil
}

func (b *Browser) acceptCookies(ctx context.Context) {
	if _, err := b.waitAny(ctx, []string{cookieButton}, 5*time.Second); err != nil {
		return
	}
	if err := chromedp.Run(ctx, chromedp.Evaluate(clickJS(cookieButton), nil), chromedp.Sleep(200*time.Millisecond)); err == nil {
		b.log.Debug().Msg("Accepted cookies")
	}
}

// waitAny polls until one of sels matches and returns its index.
func (b *Browser) waitAny(ctx context.Context, sels []string, timeout time.Duration) (int, error) {
	var found int
	err := chromedp.Run(ctx, chromedp.Poll(anyMatchJS(sels), &found,
		chromedp.WithPollingTimeout(timeout),
		chromedp.WithPollingInterval(250*time.Millisecond),
	))
	if err != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		return 0, fmt.Errorf("%w: %s", ErrElementNotFound, strings.Join(sels, " | "))
	}
	return found - 1, nil
}

func (b *Browser) waitNavigation(ctx context.Context, predicate string, timeout time.Duration) error {
	var ok bool
	err := chromedp.Run(ctx, chromedp.Poll(predicate, &ok,
		chromedp.WithPollingTimeout(timeout),
		chromedp.WithPollingInterval(250*time.Millisecond),
	))
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrNoNavigation
	}
	return nil
}

func (b *Browser) screenshot(ctx context.Context, switchType string) (string, error) {
	var buf []byte
	if err := chromedp.Run(ctx, chromedp.FullScreenshot(&buf, 90)); err != nil {
		return "", err
	}
	if err := os.MkdirAll(b.cfg.ScreenshotDir, 0755); err != nil {
		return "", err
	}
	file := filepath.Join(b.cfg.ScreenshotDir, ScreenshotName(switchType))
	if err := os.WriteFile(file, buf, 0644); err != nil {
		return "", err
	}
	return file, nil
}

// lifecycleRows mirrors the object returned by lifecycleJS.
type lifecycleRows struct {
	EndOfSale    string `json:"end_of_sale"`
	EndOfSupport string `json:"end_of_support"`
	Status       string `json:"status"`
	SeriesDate   string `json:"series_release_date"`
}

func (r lifecycleRows) apply(d *schema.EoLDetails) {
	d.EndOfSaleDate = CleanText(r.EndOfSale)
	d.EndOfSupportDate = CleanText(r.EndOfSupport)
	d.Status = CleanStatus(r.Status)
	d.SeriesReleaseDate = CleanText(r.SeriesDate)
}

// ---------- pure helpers ----------

// IsTypePage reports whether url is a product's software-family chooser.
func IsTypePage(url string) bool {
	return strings.Contains(url, "/type")
}

// LandedOnProduct reports whether the catalog search navigated to a product page.
func LandedOnProduct(base, current string) bool {
	return current != base && (strings.Contains(current, "/download/") || strings.HasSuffix(current, "/type"))
}

// WithRecommended marks a version string as explicitly recommended.
func WithRecommended(v string) string {
	return v + recommendedSuffix
}

// CleanText collapses runs of whitespace.
func CleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// CleanStatus drops the "EOL Details" link text from a status cell.
func CleanStatus(s string) string {
	return CleanText(strings.ReplaceAll(s, "EOL Details", ""))
}

// ScreenshotName is the file name used for a release page capture.
func ScreenshotName(switchType string) string {
	keep := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == ' ', r == '-', r == '_':
			return r
		}
		return -1
	}, switchType)
	return "latest_version_" + utils.SafeName(strings.TrimSpace(keep)) + ".png"
}

func emptyFallback(s, fb string) string {
	if strings.TrimSpace(s) == "" {
		return fb
	}
	return s
}

// ---------- page scripts ----------

func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

// findJS returns an expression evaluating to the first node matching sel;
// selectors starting with "/" are XPath, anything else CSS.
func findJS(sel string) string {
	if strings.HasPrefix(sel, "/") {
		return fmt.Sprintf(`document.evaluate(%s, document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue`, jsString(sel))
	}
	return fmt.Sprintf(`document.querySelector(%s)`, jsString(sel))
}

// anyMatchJS evaluates to the 1-based index of the first matching selector, or false.
func anyMatchJS(sels []string) string {
	var sb strings.Builder
	sb.WriteString("(() => {")
	for i, sel := range sels {
		fmt.Fprintf(&sb, " if (%s) return %d;", findJS(sel), i+1)
	}
	sb.WriteString(" return false; })()")
	return sb.String()
}

func clickJS(sel string) string {
	return fmt.Sprintf(`(() => { const el = %s; if (!el) return false; el.scrollIntoView({block: "center"}); el.click(); return true; })()`, findJS(sel))
}

func clearJS(sel string) string {
	return fmt.Sprintf(`(() => { const el = %s; if (el) { el.focus(); el.value = ""; } return true; })()`, findJS(sel))
}

func firstTextJS(sels []string) string {
	var sb strings.Builder
	sb.WriteString("(() => {")
	for _, sel := range sels {
		fmt.Fprintf(&sb, " { const el = %s; if (el && el.textContent.trim()) return el.textContent.trim(); }", findJS(sel))
	}
	sb.WriteString(` return ""; })()`)
	return sb.String()
}

func visibleJS(css string) string {
	return fmt.Sprintf(`Array.from(document.querySelectorAll(%s)).some(el => el.offsetParent !== null)`, jsString(css))
}

func landedOnProductJS(base string) string {
	return fmt.Sprintf(`location.href !== %s && (location.href.includes("/download/") || location.href.endsWith("/type"))`, jsString(base))
}

func urlChangedJS(prev string) string {
	return fmt.Sprintf(`location.href !== %s`, jsString(prev))
}

// clickFamilyJS clicks the exact anchor for label inside the family list,
// falling back to any list item containing it.
func clickFamilyJS(label string) string {
	return fmt.Sprintf(`(() => {
  const label = %s;
  const list = document.querySelector(%s);
  if (!list) return false;
  const norm = t => t.replace(/\s+/g, " ").trim();
  let el = Array.from(list.querySelectorAll("a")).find(a => norm(a.textContent) === label);
  if (!el) el = Array.from(list.querySelectorAll("li")).find(li => norm(li.textContent).includes(label));
  if (!el) return false;
  el.scrollIntoView({block: "center"});
  el.click();
  return true;
})()`, jsString(label), jsString(familyList))
}

// lifecycleJS reads the lifecycle rows of the table found by sel.
func lifecycleJS(sel string) string {
	return fmt.Sprintf(`(() => {
  const table = %s;
  const out = {end_of_sale: "", end_of_support: "", status: "", series_release_date: ""};
  if (!table) return out;
  const cell = names => {
    for (const tr of table.querySelectorAll("tr")) {
      const th = tr.querySelector("th");
      const td = tr.querySelector("td");
      if (th && td && names.includes(th.textContent.trim())) return td;
    }
    return null;
  };
  const text = td => td ? td.textContent : "";
  out.end_of_sale = text(cell(["End-of-Sale Date"]));
  out.end_of_support = text(cell(["End-of-Support Date", "Last Date of Support"]));
  out.series_release_date = text(cell(["Series Release Date"]));
  const st = cell(["Status"]);
  if (st) {
    const clone = st.cloneNode(true);
    clone.querySelectorAll("a").forEach(a => a.remove());
    out.status = clone.textContent;
  }
  return out;
})()`, findJS(sel))
}
