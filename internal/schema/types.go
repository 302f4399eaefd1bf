package schema

import "sort"

// Category is the outcome recorded for a device in one batch
type Category string

const (
	CategorySameVersion     Category = "same version"
	CategoryObligatory      Category = "upgrade obligatory"
	CategoryCriticalSuggest Category = "critical upgrade suggested"
	CategorySuggested       Category = "upgrade suggested"
	CategoryOptional        Category = "upgrade optional"
	CategoryMissingPID      Category = "missing pid"
	CategoryMissingAlias    Category = "missing alias"
	CategoryNoURL           Category = "no url"
	CategoryScrapeFailed    Category = "scrape failed"
)

// IsFailure reports whether c is a terminal lookup failure rather than a recommendation.
func (c Category) IsFailure() bool {
	switch c {
	case CategoryMissingPID, CategoryMissingAlias, CategoryNoURL, CategoryScrapeFailed:
		return true
	}
	return false
}

var urgency = map[Category]int{
	CategoryObligatory:      0,
	CategoryCriticalSuggest: 1,
	CategorySuggested:       2,
	CategoryOptional:        3,
	CategorySameVersion:     4,
}

// Urgency orders recommendations, most urgent first. Failures and unknown
// categories sort last.
func (c Category) Urgency() int {
	if u, ok := urgency[c]; ok {
		return u
	}
	return len(urgency)
}

// EoLDetails is the end-of-life information cached on a device record
type EoLDetails struct {
	EndOfSaleDate     string   `json:"end_of_sale_date,omitempty"`
	EndOfSupportDate  string   `json:"end_of_support_date,omitempty"`
	SeriesReleaseDate string   `json:"series_release_date,omitempty"`
	Status            string   `json:"status,omitempty"`
	NavTitle          string   `json:"nav_title,omitempty"`
	NavURL            string   `json:"nav_url,omitempty"`
	NavSteps          []string `json:"nav_steps,omitempty"`
	AliasUsed         string   `json:"alias_used,omitempty"`
}

// IsEmpty is true when none of the four date/status fields are populated.
func (e EoLDetails) IsEmpty() bool {
	return e.EndOfSaleDate == "" && e.EndOfSupportDate == "" &&
		e.SeriesReleaseDate == "" && e.Status == ""
}

// DeviceInfo carries optional facts gathered by the inventory collector
type DeviceInfo struct {
	SerialNumber string `json:"serial_number,omitempty"`
	Uptime       string `json:"uptime,omitempty"`
	IOSVersion   string `json:"ios_version,omitempty"`
	NXOSVersion  string `json:"nxos_version,omitempty"`
}

// DeviceRecord is one inventory entry; Host is filled from the inventory key
type DeviceRecord struct {
	Host        string            `json:"-"`
	Model       string            `json:"model"`
	Platform    string            `json:"platform"`
	Version     string            `json:"version"`
	EoL         *EoLDetails       `json:"eol_details,omitempty"`
	DeviceInfo  *DeviceInfo       `json:"device_info,omitempty"`
	Interfaces  *InterfaceSummary `json:"interface_summary,omitempty"`
	VLANs       *VLANSummary      `json:"vlan_summary,omitempty"`
	Performance *PerformanceInfo  `json:"performance_info,omitempty"`
}

// EoLOrEmpty returns the cached EoL details or a zero value.
func (d DeviceRecord) EoLOrEmpty() EoLDetails {
	if d.EoL == nil {
		return EoLDetails{}
	}
	return *d.EoL
}

// Inventory maps host name to device record
type Inventory map[string]DeviceRecord

// Hosts returns the inventory keys in a stable order.
func (inv Inventory) Hosts() []string {
	hosts := make([]string, 0, len(inv))
	for h := range inv {
		hosts = append(hosts, h)
	}
	sort.Strings(hosts)
	return hosts
}

// AliasMap maps a PID to its catalog search term
type AliasMap map[string]string

// UpgradeSuggestion is one append-only ledger entry per (host, batch)
type UpgradeSuggestion struct {
	Host                   string    `json:"host"`
	PID                    string    `json:"pid,omitempty"`
	Alias                  string    `json:"alias_used,omitempty"`
	Platform               string    `json:"platform,omitempty"`
	CurrentVersion         string    `json:"current_version,omitempty"`
	RecommendedVersion     string    `json:"recommended_version,omitempty"`
	ReleaseDesignation     string    `json:"release_designation,omitempty"`
	ExplicitRecommendation *bool     `json:"explicit_recommendation"`
	Recommendation         *Category `json:"recommendation"`
	UpgradeRecommended     *bool     `json:"upgrade_recommended"`
	FinalURL               string    `json:"final_url,omitempty"`
	ScrapedVersionRaw      string    `json:"scraped_version_raw,omitempty"`
	SwitchType             string    `json:"switch_type,omitempty"`
	SelectedLabel          string    `json:"selected_label,omitempty"`
	ScreenshotFile         string    `json:"screenshot_file,omitempty"`
	Notes                  string    `json:"notes,omitempty"`
	EndOfSaleDate          string    `json:"end_of_sale_date,omitempty"`
	EndOfSupportDate       string    `json:"end_of_support_date,omitempty"`
	SeriesReleaseDate      string    `json:"series_release_date,omitempty"`
	Status                 string    `json:"status,omitempty"`
	CheckedAt              string    `json:"checked_at"`
}

// MirroredEoL returns the EoL fields copied into the suggestion at lookup time.
func (s UpgradeSuggestion) MirroredEoL() EoLDetails {
	return EoLDetails{
		EndOfSaleDate:     s.EndOfSaleDate,
		EndOfSupportDate:  s.EndOfSupportDate,
		SeriesReleaseDate: s.SeriesReleaseDate,
		Status:            s.Status,
	}
}

// URLAuditEntry records a resolved catalog URL; informational only
type URLAuditEntry struct {
	RunID     string `json:"run_id"`
	BatchTS   string `json:"batch_ts"`
	Alias     string `json:"alias"`
	URL       string `json:"url"`
	CheckedAt string `json:"checked_at"`
}
