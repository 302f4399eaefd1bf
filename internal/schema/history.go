package schema

import "encoding/json"

// HistorySnapshotRow is written once per (host, batch) to the device ledger
type HistorySnapshotRow struct {
	BatchTS            string          `json:"batch_ts"`
	Host               string          `json:"host"`
	AliasName          string          `json:"alias_name,omitempty"`
	Model              string          `json:"model,omitempty"`
	Platform           string          `json:"platform,omitempty"`
	CurrentVersion     string          `json:"current_version,omitempty"`
	PlatformVersion    string          `json:"platform_version,omitempty"`
	RecommendedVersion string          `json:"recommended_version,omitempty"`
	ReleaseDesignation string          `json:"release_designation,omitempty"`
	Recommendation     *Category       `json:"recommendation"`
	UpgradeRecommended *bool           `json:"upgrade_recommended"`
	FinalURL           string          `json:"final_url,omitempty"`
	ScrapedVersionRaw  string          `json:"scraped_version_raw,omitempty"`
	SerialNumber       string          `json:"serial_number,omitempty"`
	Uptime             string          `json:"uptime,omitempty"`
	ConnectedPorts     json.RawMessage `json:"connected_ports,omitempty"`
	ConnectedCount     *int            `json:"connected_count,omitempty"`
	DisconnectedCount  *int            `json:"disconnected_count,omitempty"`
	TotalInterfaces    *int            `json:"total_interfaces,omitempty"`
	CPUUsage           string          `json:"cpu_usage,omitempty"`
	VLANActiveCount    *int            `json:"vlan_active_count,omitempty"`
	VLANs              json.RawMessage `json:"vlans,omitempty"`
	EndOfSaleDate      string          `json:"end_of_sale_date,omitempty"`
	EndOfSupportDate   string          `json:"end_of_support_date,omitempty"`
	SeriesReleaseDate  string          `json:"series_release_date,omitempty"`
	Status             string          `json:"status,omitempty"`
	CVECounts          SeverityCounts  `json:"cve_counts"`
}

// CVESnapshotRow keeps the full severity-bucketed CVE lists for one (host, batch)
type CVESnapshotRow struct {
	BatchTS        string                  `json:"batch_ts"`
	Host           string                  `json:"host"`
	CurrentVersion string                  `json:"current_version,omitempty"`
	CVECounts      SeverityCounts          `json:"cve_counts"`
	CVEs           map[Severity][]CVEEntry `json:"cves"`
}

// BatchSummary is written exactly once per batch
type BatchSummary struct {
	BatchTS                       string `json:"batch_ts"`
	DeviceCount                   int    `json:"device_count"`
	DevicesWithUpgradeRecommended int    `json:"devices_with_upgrade_recommended"`
	DevicesWithCriticalCVEs       int    `json:"devices_with_critical_cves"`
	DevicesEoL                    int    `json:"devices_eol"`
	TotalCriticalCVEs             int    `json:"total_critical_cves"`
	TotalHighCVEs                 int    `json:"total_high_cves"`
	TotalMediumCVEs               int    `json:"total_medium_cves"`
	TotalLowCVEs                  int    `json:"total_low_cves"`
}
