// Package history writes and reads the append-only batch snapshot ledgers.
package history

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/yorozuya-cybersecurity/upgrade-advisor/internal/inventory"
	"github.com/yorozuya-cybersecurity/upgrade-advisor/internal/ledger"
	"github.com/yorozuya-cybersecurity/upgrade-advisor/internal/logger"
	"github.com/yorozuya-cybersecurity/upgrade-advisor/internal/schema"
	"github.com/yorozuya-cybersecurity/upgrade-advisor/pkg/utils"
)

var ErrMissingBatchID = errors.New("batch id is required; refusing to write an untagged snapshot")

const (
	DevicesFile = "devices_snapshot.jsonl"
	CVEsFile    = "cves_snapshot.jsonl"
	BatchesFile = "batches.jsonl"
)

// Paths locates the three history ledgers.
type Paths struct {
	Devices string
	CVEs    string
	Batches string
}

// PathsIn returns the standard ledger names under dir.
func PathsIn(dir string) Paths {
	return Paths{
		Devices: filepath.Join(dir, DevicesFile),
		CVEs:    filepath.Join(dir, CVEsFile),
		Batches: filepath.Join(dir, BatchesFile),
	}
}

// Inputs is the state a snapshot is computed from.
type Inputs struct {
	Inventory   schema.Inventory
	Suggestions []schema.UpgradeSuggestion
	CVEs        schema.CVEReport
}

// Sources names the files SnapshotFromFiles loads Inputs from.
type Sources struct {
	Inventory   string
	Suggestions string
	CVEs        string
}

// Store appends batch snapshots. It never rewrites a ledger.
type Store struct {
	paths Paths
	log   zerolog.Logger
}

func NewStore(paths Paths, log logger.Logger) *Store {
	return &Store{paths: paths, log: log.WithComponent("history")}
}

// Snapshot appends one device row and one CVE row per host plus one batch
// summary. Running it twice for the same batch duplicates the rows.
func (s *Store) Snapshot(batchID string, in Inputs) (schema.BatchSummary, error) {
	batchID = strings.TrimSpace(batchID)
	if batchID == "" {
		return schema.BatchSummary{}, ErrMissingBatchID
	}
	if !strings.Contains(batchID, "T") {
		s.log.Warn().Str("batch", batchID).Msg("Batch id is not an ISO timestamp; continuing")
	}

	devices, cves, summary := Build(batchID, in)

	if err := ledger.Append(s.paths.Devices, devices...); err != nil {
		return summary, fmt.Errorf("append device snapshot: %w", err)
	}
	if err := ledger.Append(s.paths.CVEs, cves...); err != nil {
		return summary, fmt.Errorf("append cve snapshot: %w", err)
	}
	if err := ledger.Append(s.paths.Batches, summary); err != nil {
		return summary, fmt.Errorf("append batch summary: %w", err)
	}

	s.log.Info().
		Str("batch", batchID).
		Int("devices", summary.DeviceCount).
		Int("upgrade_recommended", summary.DevicesWithUpgradeRecommended).
		Int("critical_devices", summary.DevicesWithCriticalCVEs).
		Int("eol", summary.DevicesEoL).
		Msg("Snapshot written")

	return summary, nil
}

// SnapshotFromFiles loads the inventory, suggestion ledger and CVE map from
// disk and snapshots them. A missing suggestion ledger or CVE map reads as empty.
func (s *Store) SnapshotFromFiles(batchID string, src Sources) (schema.BatchSummary, error) {
	if strings.TrimSpace(batchID) == "" {
		return schema.BatchSummary{}, ErrMissingBatchID
	}

	inv, err := inventory.LoadInventory(src.Inventory)
	if err != nil {
		return schema.BatchSummary{}, err
	}

	sugg, err := ledger.Read[schema.UpgradeSuggestion](src.Suggestions)
	if err != nil {
		return schema.BatchSummary{}, fmt.Errorf("read suggestions: %w", err)
	}
	if sugg.Malformed > 0 {
		s.log.Warn().Int("malformed", sugg.Malformed).Str("path", src.Suggestions).Msg("Skipped malformed suggestion lines")
	}

	cves := schema.CVEReport{}
	if err := utils.ReadJSON(src.CVEs, &cves); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return schema.BatchSummary{}, fmt.Errorf("read cve map: %w", err)
		}
		s.log.Warn().Str("path", src.CVEs).Msg("CVE map not found; counts default to zero")
	}

	return s.Snapshot(batchID, Inputs{Inventory: inv, Suggestions: sugg.Records, CVEs: cves})
}

// Authoritative picks one suggestion per host: the one checked at batchID if
// any, else the last one appended for that host.
func Authoritative(batchID string, suggestions []schema.UpgradeSuggestion) map[string]schema.UpgradeSuggestion {
	exact := make(map[string]schema.UpgradeSuggestion)
	latest := make(map[string]schema.UpgradeSuggestion)

	for _, s := range suggestions {
		if s.Host == "" {
			continue
		}
		latest[s.Host] = s
		if s.CheckedAt == batchID {
			exact[s.Host] = s
		}
	}

	for host, s := range latest {
		if _, ok := exact[host]; !ok {
			exact[host] = s
		}
	}

	return exact
}

// ResolveEoL prefers the lifecycle fields mirrored into the suggestion and
// falls back to the inventory's cached details when none are set.
func ResolveEoL(s *schema.UpgradeSuggestion, rec schema.DeviceRecord) schema.EoLDetails {
	if s != nil {
		if m := s.MirroredEoL(); !m.IsEmpty() {
			return m
		}
	}
	return rec.EoLOrEmpty()
}

// IsEoL reports whether the device is past end of sale or has a support end date.
func IsEoL(d schema.EoLDetails) bool {
	return strings.Contains(strings.ToLower(d.Status), "end of sale") || d.EndOfSupportDate != ""
}

// Build computes the rows of one snapshot without writing anything.
func Build(batchID string, in Inputs) ([]schema.HistorySnapshotRow, []schema.CVESnapshotRow, schema.BatchSummary) {
	auth := Authoritative(batchID, in.Suggestions)
	summary := schema.BatchSummary{BatchTS: batchID}

	hosts := in.Inventory.Hosts()
	devices := make([]schema.HistorySnapshotRow, 0, len(hosts))
	cves := make([]schema.CVESnapshotRow, 0, len(hosts))

	for _, host := range hosts {
		rec := in.Inventory[host]

		var sugg *schema.UpgradeSuggestion
		if s, ok := auth[host]; ok {
			sugg = &s
		}

		finding, ok := in.CVEs[host]
		if !ok || finding.CVEs == nil {
			finding = schema.NewCVEFinding(rec.Model, rec.Version)
		}
		counts := finding.Counts()
		eol := ResolveEoL(sugg, rec)

		row := schema.HistorySnapshotRow{
			BatchTS:           batchID,
			Host:              host,
			Model:             rec.Model,
			Platform:          rec.Platform,
			CurrentVersion:    rec.Version,
			PlatformVersion:   platformVersion(rec),
			EndOfSaleDate:     eol.EndOfSaleDate,
			EndOfSupportDate:  eol.EndOfSupportDate,
			SeriesReleaseDate: eol.SeriesReleaseDate,
			Status:            eol.Status,
			CVECounts:         counts,
		}
		if rec.DeviceInfo != nil {
			row.SerialNumber = rec.DeviceInfo.SerialNumber
			row.Uptime = rec.DeviceInfo.Uptime
		}
		if rec.Interfaces != nil {
			row.ConnectedPorts = rec.Interfaces.ConnectedPorts
			row.ConnectedCount = rec.Interfaces.Connected.Int()
			row.DisconnectedCount = rec.Interfaces.Disconnected.Int()
			row.TotalInterfaces = rec.Interfaces.TotalInterfaces.Int()
		}
		if rec.VLANs != nil {
			row.VLANActiveCount = rec.VLANs.TotalActiveVLANs.Int()
			row.VLANs = rec.VLANs.VLANs
		}
		if rec.Performance != nil {
			row.CPUUsage = rec.Performance.CPU()
		}
		if sugg != nil {
			row.AliasName = sugg.Alias
			row.RecommendedVersion = sugg.RecommendedVersion
			row.ReleaseDesignation = sugg.ReleaseDesignation
			row.Recommendation = sugg.Recommendation
			row.UpgradeRecommended = sugg.UpgradeRecommended
			row.FinalURL = sugg.FinalURL
			row.ScrapedVersionRaw = sugg.ScrapedVersionRaw
		}

		devices = append(devices, row)
		cves = append(cves, schema.CVESnapshotRow{
			BatchTS:        batchID,
			Host:           host,
			CurrentVersion: rec.Version,
			CVECounts:      counts,
			CVEs:           finding.CVEs,
		})

		summary.DeviceCount++
		if row.UpgradeRecommended != nil && *row.UpgradeRecommended {
			summary.DevicesWithUpgradeRecommended++
		}
		if counts.Critical > 0 {
			summary.DevicesWithCriticalCVEs++
		}
		if IsEoL(eol) {
			summary.DevicesEoL++
		}
		summary.TotalCriticalCVEs += counts.Critical
		summary.TotalHighCVEs += counts.High
		summary.TotalMediumCVEs += counts.Medium
		summary.TotalLowCVEs += counts.Low
	}

	return devices, cves, summary
}

func platformVersion(rec schema.DeviceRecord) string {
	if rec.DeviceInfo != nil {
		if rec.DeviceInfo.NXOSVersion != "" {
			return rec.DeviceInfo.NXOSVersion
		}
		if rec.DeviceInfo.IOSVersion != "" {
			return rec.DeviceInfo.IOSVersion
		}
	}
	return rec.Version
}
