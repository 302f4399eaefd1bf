package lookup

import (
	"context"
	"errors"
	"strings"

	"github.com/yorozuya-cybersecurity/upgrade-advisor/internal/retry"
	"github.com/yorozuya-cybersecurity/upgrade-advisor/internal/schema"
)

var ErrNoEoLSource = errors.New("no EoL source configured")

// EoLOptions narrows an enrichment pass.
type EoLOptions struct {
	// OnlyMissing skips hosts that already have an end-of-support date.
	OnlyMissing bool
	// Limit caps the number of hosts looked up; zero means no cap.
	Limit int
}

// EnrichEoL looks up lifecycle details for every host, querying by alias when
// one is mapped and by PID otherwise. Each distinct term is looked up once.
// The returned map holds only hosts with details found; hosts whose lookup
// fails are logged and left out.
func (o *Orchestrator) EnrichEoL(ctx context.Context, inv schema.Inventory, aliases schema.AliasMap, opts EoLOptions) (map[string]schema.EoLDetails, error) {
	if o.eol == nil {
		return nil, ErrNoEoLSource
	}

	updates := make(map[string]schema.EoLDetails)
	processed := 0

	for _, host := range inv.Hosts() {
		if opts.Limit > 0 && processed >= opts.Limit {
			break
		}

		rec := inv[host]
		if opts.OnlyMissing && rec.EoL != nil && rec.EoL.EndOfSupportDate != "" {
			continue
		}

		pid := strings.TrimSpace(rec.Model)
		alias := strings.TrimSpace(aliases[pid])
		term := alias
		if term == "" {
			term = pid
		}

		log := o.log.With().Str("host", host).Str("pid", pid).Str("term", term).Logger()
		processed++

		if term == "" {
			log.Warn().Msg("No alias or PID to query lifecycle details")
			continue
		}

		res, ok := o.eols[term]
		if !ok {
			if err := o.limiter.Wait(ctx); err != nil {
				return nil, err
			}
			details, _, err := retry.Do(ctx, o.cfg.EoLRetry, func(ctx context.Context) (*schema.EoLDetails, error) {
				return o.eol.LookupEoL(ctx, term)
			}, o.notify("eol", term))
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			res = eolResult{details: details, err: err}
			o.eols[term] = res
		}

		if res.err != nil {
			log.Warn().Err(res.err).Msg("Lifecycle lookup failed")
			continue
		}
		if res.details == nil || res.details.IsEmpty() {
			log.Info().Msg("Lifecycle details not found")
			continue
		}

		d := *res.details
		d.AliasUsed = alias
		d.NavSteps = append([]string(nil), res.details.NavSteps...)
		updates[host] = d

		log.Info().
			Str("status", d.Status).
			Str("end_of_sale", d.EndOfSaleDate).
			Str("end_of_support", d.EndOfSupportDate).
			Str("series_release", d.SeriesReleaseDate).
			Msg("Lifecycle details found")
	}

	o.log.Info().Int("processed", processed).Int("updated", len(updates)).Msg("EoL enrichment finished")

	return updates, nil
}

// ApplyEoL returns a copy of inv with updates applied to the eol_details of each host.
func ApplyEoL(inv schema.Inventory, updates map[string]schema.EoLDetails) schema.Inventory {
	out := make(schema.Inventory, len(inv))
	for host, rec := range inv {
		if d, ok := updates[host]; ok {
			d := d
			rec.EoL = &d
		}
		out[host] = rec
	}
	return out
}

