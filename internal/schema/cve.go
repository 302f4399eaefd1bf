package schema

// Severity is an advisory severity bucket
type Severity string

const (
	SeverityCritical Severity = "Critical"
	SeverityHigh     Severity = "High"
	SeverityMedium   Severity = "Medium"
	SeverityLow      Severity = "Low"
)

// Severities lists the four buckets every finding is counted against.
var Severities = []Severity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow}

const (
	nvdURL         = "https://nvd.nist.gov/vuln/detail/"
	advisorySearch = "https://tools.cisco.com/security/center/search.x?search="
)

// CVEEntry is a single CVE referenced by an advisory
type CVEEntry struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	AdvisoryID  string `json:"advisory_id,omitempty"`
	AdvisoryURL string `json:"advisory_url,omitempty"`
	NVDURL      string `json:"nvd_url,omitempty"`
}

// FillLinks derives the NVD link and, when no advisory page is set, an
// advisory search link from the CVE id.
func (e *CVEEntry) FillLinks() {
	if e.ID == "" {
		return
	}
	if e.NVDURL == "" {
		e.NVDURL = nvdURL + e.ID
	}
	if e.AdvisoryURL == "" {
		e.AdvisoryURL = advisorySearch + e.ID
	}
}

// CVEFinding groups the advisories matching one host by severity
type CVEFinding struct {
	Model   string                  `json:"model,omitempty"`
	Version string                  `json:"version,omitempty"`
	CVEs    map[Severity][]CVEEntry `json:"cves"`
}

// NewCVEFinding returns a finding with all four buckets present and empty.
func NewCVEFinding(model, version string) CVEFinding {
	cves := make(map[Severity][]CVEEntry, len(Severities))
	for _, s := range Severities {
		cves[s] = []CVEEntry{}
	}
	return CVEFinding{Model: model, Version: version, CVEs: cves}
}

// Counts returns the number of entries per bucket.
func (f CVEFinding) Counts() SeverityCounts {
	return SeverityCounts{
		Critical: len(f.CVEs[SeverityCritical]),
		High:     len(f.CVEs[SeverityHigh]),
		Medium:   len(f.CVEs[SeverityMedium]),
		Low:      len(f.CVEs[SeverityLow]),
	}
}

// CVEReport is the per-run finding map keyed by host
type CVEReport map[string]CVEFinding

// SeverityCounts holds one count per severity bucket
type SeverityCounts struct {
	Critical int `json:"Critical"`
	High     int `json:"High"`
	Medium   int `json:"Medium"`
	Low      int `json:"Low"`
}
