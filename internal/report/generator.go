package report

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"github.com/yorozuya-cybersecurity/upgrade-advisor/internal/history"
	"github.com/yorozuya-cybersecurity/upgrade-advisor/internal/schema"
)

//go:embed report.html.tmpl
var reportHTMLTemplate string

var ErrEmptyHistory = errors.New("no batches recorded yet")

// Batch is everything the report needs about one batch.
type Batch struct {
	Summary schema.BatchSummary
	Devices []schema.HistorySnapshotRow
	CVEs    []schema.CVESnapshotRow
}

// ---------- Public API ----------

// Load reads one batch from history. An empty batchID selects the newest batch.
func Load(r *history.Reader, batchID string) (Batch, error) {
	var b Batch

	if batchID == "" {
		latest, err := r.LatestBatch()
		if err != nil {
			return b, err
		}
		if latest == "" {
			return b, ErrEmptyHistory
		}
		batchID = latest
	}

	devices, err := r.BatchDevices(batchID)
	if err != nil {
		return b, fmt.Errorf("load devices: %w", err)
	}
	cves, err := r.BatchCVEs(batchID)
	if err != nil && !errors.Is(err, history.ErrBatchNotFound) {
		return b, fmt.Errorf("load cves: %w", err)
	}

	summaries, err := r.Batches(0)
	if err != nil {
		return b, fmt.Errorf("load summaries: %w", err)
	}
	b.Summary = schema.BatchSummary{BatchTS: batchID, DeviceCount: len(devices)}
	for _, s := range summaries {
		if s.BatchTS == batchID {
			b.Summary = s
			break
		}
	}

	b.Devices = devices
	b.CVEs = cves
	return b, nil
}

func GenerateHTML(b Batch, outDir string) (string, error) {
	vm := buildViewModel(b, time.Now().UTC())

	if err := os.MkdirAll(outDir, 0755); err != nil {
		return "", fmt.Errorf("create out dir: %w", err)
	}

	tmpl, err := template.New("report").Parse(reportHTMLTemplate)
	if err != nil {
		return "", fmt.Errorf("parse template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, vm); err != nil {
		return "", fmt.Errorf("execute template: %w", err)
	}

	htmlPath := filepath.Join(outDir, FileName(b.Summary.BatchTS)+".html")
	if err := os.WriteFile(htmlPath, buf.Bytes(), 0644); err != nil {
		return "", fmt.Errorf("write %s: %w", filepath.Base(htmlPath), err)
	}

	return htmlPath, nil
}

// PDFOptions configures the headless Chrome used to print the report.
type PDFOptions struct {
	ExecPath string
	Timeout  time.Duration
}

// GeneratePDF prints htmlPath to a PDF next to it with headless Chrome.
func GeneratePDF(ctx context.Context, htmlPath string, opts PDFOptions) (string, error) {
	abs, err := filepath.Abs(htmlPath)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", htmlPath, err)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = time.Minute
	}

	allocOpts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	allocOpts = append(allocOpts, chromedp.NoSandbox, chromedp.DisableGPU)
	if opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ExecPath))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, allocOpts...)
	defer cancelAlloc()
	tabCtx, cancelTab := chromedp.NewContext(allocCtx)
	defer cancelTab()
	tabCtx, cancel := context.WithTimeout(tabCtx, opts.Timeout)
	defer cancel()

	var pdf []byte
	err = chromedp.Run(tabCtx,
		chromedp.Navigate("file://"+filepath.ToSlash(abs)),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			pdf, _, err = page.PrintToPDF().
				WithPrintBackground(true).
				WithLandscape(true).
				Do(ctx)
			return err
		}),
	)
	if err != nil {
		return "", fmt.Errorf("print to pdf: %w", err)
	}

	pdfPath := strings.TrimSuffix(htmlPath, ".html") + ".pdf"
	if err := os.WriteFile(pdfPath, pdf, 0644); err != nil {
		return "", fmt.Errorf("write %s: %w", filepath.Base(pdfPath), err)
	}
	return pdfPath, nil
}

// FileName is the report base name for a batch.
func FileName(batchID string) string {
	r := strings.NewReplacer(":", "", "-", "", " ", "_", "/", "_")
	return "upgrade_report_" + r.Replace(batchID)
}

// ---------- View Model & helpers ----------

type viewModel struct {
	BatchID        string
	Summary        schema.BatchSummary
	TotalCVEs      int
	Counts         map[string]int
	Score          int
	Grade          string
	Devices        []deviceRow
	Findings       []findingRow
	Generator      string
	GeneratedAt    string
	LegendSeverity []string
	Year           int
}

type deviceRow struct {
	Host           string
	Model          string
	Platform       string
	Current        string
	Recommended    string
	Designation    string
	Recommendation string
	Class          string
	Upgrade        bool
	Lifecycle      string
	EndOfSupport   string
	Counts         schema.SeverityCounts
	URL            string
}

type findingRow struct {
	Severity    string
	Host        string
	ID          string
	Title       string
	AdvisoryURL string
	NVDURL      string
}

func buildViewModel(b Batch, now time.Time) viewModel {
	sevOrder := []string{"critical", "high", "medium", "low"}
	sevWeight := map[string]int{"critical": 4, "high": 3, "medium": 2, "low": 1}

	devices := make([]deviceRow, 0, len(b.Devices))
	for _, d := range b.Devices {
		rec := "undetermined"
		if d.Recommendation != nil {
			rec = string(*d.Recommendation)
		}
		devices = append(devices, deviceRow{
			Host:           d.Host,
			Model:          emptyFallback(d.Model, "-"),
			Platform:       emptyFallback(d.Platform, "-"),
			Current:        emptyFallback(d.CurrentVersion, "-"),
			Recommended:    emptyFallback(d.RecommendedVersion, "-"),
			Designation:    d.ReleaseDesignation,
			Recommendation: rec,
			Class:          classFor(d.Recommendation),
			Upgrade:        d.UpgradeRecommended != nil && *d.UpgradeRecommended,
			Lifecycle:      emptyFallback(d.Status, "-"),
			EndOfSupport:   emptyFallback(d.EndOfSupportDate, "-"),
			Counts:         d.CVECounts,
			URL:            d.FinalURL,
		})
	}

	// Sort devices: critical CVEs -> urgency -> host
	urgencyOf := func(r deviceRow) int {
		return schema.Category(r.Recommendation).Urgency()
	}
	sort.SliceStable(devices, func(i, j int) bool {
		if devices[i].Counts.Critical != devices[j].Counts.Critical {
			return devices[i].Counts.Critical > devices[j].Counts.Critical
		}
		if ui, uj := urgencyOf(devices[i]), urgencyOf(devices[j]); ui != uj {
			return ui < uj
		}
		return devices[i].Host < devices[j].Host
	})

	counts := map[string]int{}
	var rows []findingRow
	for _, c := range b.CVEs {
		for sev, entries := range c.CVEs {
			key := strings.ToLower(string(sev))
			for _, e := range entries {
				counts[key]++
				rows = append(rows, findingRow{
					Severity:    strings.ToUpper(key),
					Host:        c.Host,
					ID:          emptyFallback(e.ID, "N/A"),
					Title:       trimTo(e.Title, 200),
					AdvisoryURL: e.AdvisoryURL,
					NVDURL:      e.NVDURL,
				})
			}
		}
	}

	// Sort findings: severity -> host -> ID
	sort.SliceStable(rows, func(i, j int) bool {
		ai := indexOf(sevOrder, strings.ToLower(rows[i].Severity))
		bi := indexOf(sevOrder, strings.ToLower(rows[j].Severity))
		if ai != bi {
			return ai < bi
		}
		if rows[i].Severity != rows[j].Severity {
			return rows[i].Severity < rows[j].Severity
		}
		if rows[i].Host != rows[j].Host {
			return rows[i].Host < rows[j].Host
		}
		return rows[i].ID < rows[j].ID
	})

	total := 0
	weighted := 0
	for sev, c := range counts {
		total += c
		weighted += sevWeight[sev] * c
	}
	score := 100
	if total > 0 {
		penalty := min(100, (weighted*100)/(total*4))
		score = 100 - penalty
	}

	return viewModel{
		BatchID:        b.Summary.BatchTS,
		Summary:        b.Summary,
		TotalCVEs:      total,
		Counts:         normalizeCounts(counts, sevOrder),
		Score:          score,
		Grade:          scoreToGrade(score),
		Devices:        devices,
		Findings:       rows,
		Generator:      "upgrade-advisor",
		GeneratedAt:    now.Format(time.RFC3339),
		LegendSeverity: []string{"CRITICAL", "HIGH", "MEDIUM", "LOW"},
		Year:           now.Year(),
	}
}

func classFor(c *schema.Category) string {
	switch {
	case c == nil:
		return "unknown"
	case c.IsFailure():
		return "failed"
	case c.Urgency() <= 1:
		return "urgent"
	case c.Urgency() <= 3:
		return "upgrade"
	default:
		return "current"
	}
}

func indexOf(arr []string, s string) int {
	for i, v := range arr {
		if v == s {
			return i
		}
	}
	return len(arr)
}

func scoreToGrade(score int) string {
	switch {
	case score >= 90:
		return "A"
	case score >= 80:
		return "B"
	case score >= 70:
		return "C"
	case score >= 60:
		return "D"
	default:
		return "F"
	}
}

func normalizeCounts(in map[string]int, order []string) map[string]int {
	out := make(map[string]int)
	for _, k := range order {
		out[strings.ToUpper(k)] = in[k]
	}
	return out
}

func trimTo(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}

func emptyFallback(s, fb string) string {
	if strings.TrimSpace(s) == "" {
		return fb
	}
	return s
}
