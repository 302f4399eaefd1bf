package history

import (
	"errors"
	"sort"

	"github.com/rs/zerolog"

	"github.com/yorozuya-cybersecurity/upgrade-advisor/internal/ledger"
	"github.com/yorozuya-cybersecurity/upgrade-advisor/internal/logger"
	"github.com/yorozuya-cybersecurity/upgrade-advisor/internal/schema"
)

var (
	ErrBatchNotFound = errors.New("batch not found or empty")
	ErrHostNotFound  = errors.New("device not found in history")
)

// TimelinePoint is one batch in a device's history
type TimelinePoint struct {
	BatchTS            string           `json:"batch_ts"`
	Version            string           `json:"version,omitempty"`
	RecommendedVersion string           `json:"recommended_version,omitempty"`
	ReleaseDesignation string           `json:"release_designation,omitempty"`
	UpgradeRecommended *bool            `json:"upgrade_recommended"`
	Recommendation     *schema.Category `json:"recommendation"`
	FinalURL           string           `json:"final_url,omitempty"`
	CriticalCVEs       int              `json:"critical_cves"`
	HighCVEs           int              `json:"high_cves"`
	CPUUsage           string           `json:"cpu_usage,omitempty"`
	ConnectedCount     *int             `json:"connected_count,omitempty"`
	TotalInterfaces    *int             `json:"total_interfaces,omitempty"`
	Status             string           `json:"status,omitempty"`
	SeriesReleaseDate  string           `json:"series_release_date,omitempty"`
	EndOfSaleDate      string           `json:"end_of_sale_date,omitempty"`
	EndOfSupportDate   string           `json:"end_of_support_date,omitempty"`
}

// Reader answers queries over the history ledgers. Every call rereads the files.
type Reader struct {
	paths Paths
	log   zerolog.Logger
}

func NewReader(paths Paths, log logger.Logger) *Reader {
	return &Reader{paths: paths, log: log.WithComponent("history-reader")}
}

// BatchIDs returns the distinct batch ids, newest first.
func (r *Reader) BatchIDs() ([]string, error) {
	rows, err := read[schema.BatchSummary](r, r.paths.Batches)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(rows))
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		if row.BatchTS == "" {
			continue
		}
		if _, ok := seen[row.BatchTS]; ok {
			continue
		}
		seen[row.BatchTS] = struct{}{}
		ids = append(ids, row.BatchTS)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(ids)))

	return ids, nil
}

// Batches returns batch summaries newest first, at most limit when limit > 0.
// A batch snapshotted twice appears twice.
func (r *Reader) Batches(limit int) ([]schema.BatchSummary, error) {
	rows, err := read[schema.BatchSummary](r, r.paths.Batches)
	if err != nil {
		return nil, err
	}

	out := rows[:0]
	for _, row := range rows {
		if row.BatchTS != "" {
			out = append(out, row)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].BatchTS > out[j].BatchTS })

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// LatestBatch returns the newest batch id, or "" when there is no history.
func (r *Reader) LatestBatch() (string, error) {
	ids, err := r.BatchIDs()
	if err != nil || len(ids) == 0 {
		return "", err
	}
	return ids[0], nil
}

// BatchDevices returns the device rows of one batch in ledger order.
func (r *Reader) BatchDevices(batchID string) ([]schema.HistorySnapshotRow, error) {
	rows, err := read[schema.HistorySnapshotRow](r, r.paths.Devices)
	if err != nil {
		return nil, err
	}

	var out []schema.HistorySnapshotRow
	for _, row := range rows {
		if row.BatchTS == batchID {
			out = append(out, row)
		}
	}
	if len(out) == 0 {
		return nil, ErrBatchNotFound
	}
	return out, nil
}

// BatchCVEs returns the CVE rows of one batch. Entries missing an advisory or
// NVD link get one derived from the CVE id.
func (r *Reader) BatchCVEs(batchID string) ([]schema.CVESnapshotRow, error) {
	rows, err := read[schema.CVESnapshotRow](r, r.paths.CVEs)
	if err != nil {
		return nil, err
	}

	var out []schema.CVESnapshotRow
	for _, row := range rows {
		if row.BatchTS != batchID {
			continue
		}
		for sev, entries := range row.CVEs {
			for i := range entries {
				entries[i].FillLinks()
			}
			row.CVEs[sev] = entries
		}
		out = append(out, row)
	}
	if len(out) == 0 {
		return nil, ErrBatchNotFound
	}
	return out, nil
}

// Timeline returns a device's rows across batches, oldest first.
func (r *Reader) Timeline(host string) ([]TimelinePoint, error) {
	rows, err := read[schema.HistorySnapshotRow](r, r.paths.Devices)
	if err != nil {
		return nil, err
	}

	var tl []TimelinePoint
	for _, row := range rows {
		if row.Host != host {
			continue
		}
		tl = append(tl, TimelinePoint{
			BatchTS:            row.BatchTS,
			Version:            row.CurrentVersion,
			RecommendedVersion: row.RecommendedVersion,
			ReleaseDesignation: row.ReleaseDesignation,
			UpgradeRecommended: row.UpgradeRecommended,
			Recommendation:     row.Recommendation,
			FinalURL:           row.FinalURL,
			CriticalCVEs:       row.CVECounts.Critical,
			HighCVEs:           row.CVECounts.High,
			CPUUsage:           row.CPUUsage,
			ConnectedCount:     row.ConnectedCount,
			TotalInterfaces:    row.TotalInterfaces,
			Status:             row.Status,
			SeriesReleaseDate:  row.SeriesReleaseDate,
			EndOfSaleDate:      row.EndOfSaleDate,
			EndOfSupportDate:   row.EndOfSupportDate,
		})
	}
	if len(tl) == 0 {
		return nil, ErrHostNotFound
	}

	sort.SliceStable(tl, func(i, j int) bool { return tl[i].BatchTS < tl[j].BatchTS })
	return tl, nil
}

func read[T any](r *Reader, path string) ([]T, error) {
	res, err := ledger.Read[T](path)
	if err != nil {
		return nil, err
	}
	if res.Malformed > 0 {
		r.log.Warn().Int("malformed", res.Malformed).Str("path", path).Msg("Skipped malformed history lines")
	}
	return res.Records, nil
}
