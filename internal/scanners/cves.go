package scanners

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/yorozuya-cybersecurity/upgrade-advisor/internal/logger"
	"github.com/yorozuya-cybersecurity/upgrade-advisor/internal/schema"
)

const unknownSeverity schema.Severity = "Unknown"

// Scanner builds the per-host CVE report for an inventory.
type Scanner struct {
	source AdvisorySource
	log    zerolog.Logger
}

// NewScanner accepts a nil source; every host then gets an empty finding.
func NewScanner(source AdvisorySource, log logger.Logger) *Scanner {
	return &Scanner{source: source, log: log.WithComponent("cve-scanner")}
}

// Scan queries advisories for every host in inventory order. Lookup failures
// degrade to an empty finding for that host.
func (s *Scanner) Scan(ctx context.Context, inv schema.Inventory) (schema.CVEReport, error) {
	report := make(schema.CVEReport, len(inv))

	if s.source == nil {
		s.log.Warn().Int("hosts", len(inv)).Msg("Advisory credentials missing; CVE findings left empty")
		for _, host := range inv.Hosts() {
			rec := inv[host]
			report[host] = schema.NewCVEFinding(rec.Model, rec.Version)
		}
		return report, nil
	}

	for _, host := range inv.Hosts() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		rec := inv[host]
		finding := schema.NewCVEFinding(rec.Model, rec.Version)

		advs, err := s.source.Advisories(ctx, rec.Platform, rec.Version)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			s.log.Warn().Err(err).
				Str("host", host).
				Str("platform", rec.Platform).
				Str("version", rec.Version).
				Msg("Advisory lookup failed")
		}

		for sev, entries := range OrganizeBySeverity(advs) {
			finding.CVEs[sev] = entries
		}
		report[host] = finding

		counts := finding.Counts()
		s.log.Info().
			Str("host", host).
			Int("critical", counts.Critical).
			Int("high", counts.High).
			Int("medium", counts.Medium).
			Int("low", counts.Low).
			Msg("Checked advisories")
	}

	return report, nil
}

// OrganizeBySeverity groups the CVEs of advs by advisory severity. The four
// standard buckets are always present; other severities get their own key.
func OrganizeBySeverity(advs []Advisory) map[schema.Severity][]schema.CVEEntry {
	out := make(map[schema.Severity][]schema.CVEEntry, len(schema.Severities))
	for _, sev := range schema.Severities {
		out[sev] = []schema.CVEEntry{}
	}

	for _, adv := range advs {
		sev := schema.Severity(strings.TrimSpace(adv.SIR))
		if sev == "" {
			sev = unknownSeverity
		}
		title := adv.Title
		if title == "" {
			title = "No title"
		}
		id := adv.ID()

		for _, cve := range adv.CVEs {
			cve = strings.TrimSpace(cve)
			if cve == "" {
				continue
			}
			entry := schema.CVEEntry{ID: cve, Title: title, AdvisoryID: id}
			if id != "" {
				entry.AdvisoryURL = advisoryPageURL + id
			}
			entry.FillLinks()
			out[sev] = append(out[sev], entry)
		}
	}

	return out
}
