// Package pipeline runs one batch end to end under the run lock.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/yorozuya-cybersecurity/upgrade-advisor/internal/catalog"
	"github.com/yorozuya-cybersecurity/upgrade-advisor/internal/config"
	"github.com/yorozuya-cybersecurity/upgrade-advisor/internal/history"
	"github.com/yorozuya-cybersecurity/upgrade-advisor/internal/inventory"
	"github.com/yorozuya-cybersecurity/upgrade-advisor/internal/ledger"
	"github.com/yorozuya-cybersecurity/upgrade-advisor/internal/logger"
	"github.com/yorozuya-cybersecurity/upgrade-advisor/internal/lookup"
	"github.com/yorozuya-cybersecurity/upgrade-advisor/internal/notify"
	"github.com/yorozuya-cybersecurity/upgrade-advisor/internal/runlock"
	"github.com/yorozuya-cybersecurity/upgrade-advisor/internal/scanners"
	"github.com/yorozuya-cybersecurity/upgrade-advisor/internal/schema"
	"github.com/yorozuya-cybersecurity/upgrade-advisor/pkg/utils"
)

// Deps are the external capabilities a run uses. Advisory may be nil, in
// which case CVE findings are left empty. Notifier defaults to notify.Nop.
type Deps struct {
	Catalog  catalog.Catalog
	EoL      catalog.EoLSource
	Advisory scanners.AdvisorySource
	Notifier notify.Notifier
}

// Result summarizes what a run wrote.
type Result struct {
	BatchID     string
	RunID       string
	Suggestions int
	EoLUpdated  int
	CVEHosts    int
	Summary     schema.BatchSummary
	DigestPath  string
	Notified    bool
}

// Run is the context of one batch. It is not reusable across batches.
type Run struct {
	BatchID string
	RunID   string

	cfg  *config.Config
	deps Deps
	lock *runlock.Lock
	orch *lookup.Orchestrator

	logger logger.Logger
	log    zerolog.Logger
}

func New(cfg *config.Config, batchID string, deps Deps, log logger.Logger) *Run {
	runID := uuid.NewString()
	batchID = strings.TrimSpace(batchID)

	if deps.Notifier == nil {
		deps.Notifier = notify.Nop{}
	}

	opts := []lookup.Option{
		lookup.WithRunID(runID),
		lookup.WithAuditLedger(cfg.URLAudit),
	}
	if deps.EoL != nil {
		opts = append(opts, lookup.WithEoLSource(deps.EoL))
	}

	return &Run{
		BatchID: batchID,
		RunID:   runID,
		cfg:     cfg,
		deps:    deps,
		lock:    runlock.New(cfg.LockFile),
		orch:    lookup.New(deps.Catalog, cfg.Lookup, log, opts...),
		logger:  log,
		log:     log.WithComponent("pipeline").With().Str("run_id", runID).Str("batch", batchID).Logger(),
	}
}

// Execute runs the full batch: EoL enrichment (when enabled), catalog
// lookup, advisory scan, history snapshot and notification. Nothing is
// appended to the ledgers until lookup and scan have both completed.
func (r *Run) Execute(ctx context.Context) (*Result, error) {
	return r.locked(func(res *Result) error {
		inv, aliases, err := r.load()
		if err != nil {
			return err
		}

		if r.cfg.EnrichEoL {
			inv, err = r.enrich(ctx, res, inv, aliases, lookup.EoLOptions{})
			if errors.Is(err, lookup.ErrNoEoLSource) {
				r.log.Warn().Msg("EoL enrichment enabled but no source configured; skipping")
			} else if err != nil {
				return err
			}
		}

		suggestions, err := r.orch.Run(ctx, r.BatchID, inv, aliases)
		if err != nil {
			return err
		}

		report, err := scanners.NewScanner(r.deps.Advisory, r.logger).Scan(ctx, inv)
		if err != nil {
			return err
		}

		if err := ctx.Err(); err != nil {
			return err
		}

		if err := r.appendSuggestions(res, suggestions); err != nil {
			return err
		}
		if err := r.writeCVEs(res, report); err != nil {
			return err
		}
		if err := r.snapshot(res); err != nil {
			return err
		}

		r.notify(ctx, res, suggestions, report)
		return nil
	})
}

// Lookup runs only the catalog lookup and appends the batch to the
// suggestions ledger.
func (r *Run) Lookup(ctx context.Context) (*Result, error) {
	return r.locked(func(res *Result) error {
		inv, aliases, err := r.load()
		if err != nil {
			return err
		}
		suggestions, err := r.orch.Run(ctx, r.BatchID, inv, aliases)
		if err != nil {
			return err
		}
		return r.appendSuggestions(res, suggestions)
	})
}

// Scan runs only the advisory scan and rewrites the CVE map.
func (r *Run) Scan(ctx context.Context) (*Result, error) {
	return r.locked(func(res *Result) error {
		inv, err := inventory.LoadInventory(r.cfg.Inventory)
		if err != nil {
			return fmt.Errorf("load inventory: %w", err)
		}
		report, err := scanners.NewScanner(r.deps.Advisory, r.logger).Scan(ctx, inv)
		if err != nil {
			return err
		}
		return r.writeCVEs(res, report)
	})
}

// Snapshot records the current inventory, suggestions ledger and CVE map as
// one history batch.
func (r *Run) Snapshot(ctx context.Context) (*Result, error) {
	return r.locked(func(res *Result) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		return r.snapshot(res)
	})
}

// EnrichEoL runs only the lifecycle lookup and writes the results into the
// inventory file.
func (r *Run) EnrichEoL(ctx context.Context, opts lookup.EoLOptions) (*Result, error) {
	return r.locked(func(res *Result) error {
		inv, aliases, err := r.load()
		if err != nil {
			return err
		}
		_, err = r.enrich(ctx, res, inv, aliases, opts)
		return err
	})
}

func (r *Run) locked(fn func(*Result) error) (*Result, error) {
	if r.BatchID == "" {
		return nil, history.ErrMissingBatchID
	}

	if err := r.lock.TryAcquire(r.RunID, r.BatchID); err != nil {
		return nil, err
	}
	defer func() {
		if err := r.lock.Release(); err != nil {
			r.log.Error().Err(err).Str("lock", r.lock.Path()).Msg("Failed to release run lock")
		}
	}()

	r.log.Info().Str("lock", r.lock.Path()).Msg("Run started")

	res := &Result{BatchID: r.BatchID, RunID: r.RunID}
	if err := fn(res); err != nil {
		r.log.Error().Err(err).Msg("Run failed")
		return res, err
	}

	r.log.Info().
		Int("suggestions", res.Suggestions).
		Int("eol_updated", res.EoLUpdated).
		Int("cve_hosts", res.CVEHosts).
		Msg("Run finished")
	return res, nil
}

func (r *Run) load() (schema.Inventory, schema.AliasMap, error) {
	inv, err := inventory.LoadInventory(r.cfg.Inventory)
	if err != nil {
		return nil, nil, fmt.Errorf("load inventory: %w", err)
	}

	aliases, found, err := inventory.LoadAliases(r.cfg.Aliases)
	if err != nil {
		return nil, nil, fmt.Errorf("load aliases: %w", err)
	}
	if !found {
		r.log.Warn().Str("path", r.cfg.Aliases).Msg("Alias map not found; every device will be missing an alias")
	}

	r.log.Info().Int("devices", len(inv)).Int("aliases", len(aliases)).Msg("Inventory loaded")
	return inv, aliases, nil
}

func (r *Run) enrich(ctx context.Context, res *Result, inv schema.Inventory, aliases schema.AliasMap, opts lookup.EoLOptions) (schema.Inventory, error) {
	updates, err := r.orch.EnrichEoL(ctx, inv, aliases, opts)
	if err != nil {
		return inv, err
	}
	if len(updates) > 0 {
		if err := inventory.SaveEoL(r.cfg.Inventory, updates); err != nil {
			return inv, fmt.Errorf("save EoL details: %w", err)
		}
	}
	res.EoLUpdated = len(updates)
	return lookup.ApplyEoL(inv, updates), nil
}

func (r *Run) appendSuggestions(res *Result, suggestions []schema.UpgradeSuggestion) error {
	if err := ledger.Append(r.cfg.Suggestions, suggestions...); err != nil {
		return fmt.Errorf("append suggestions: %w", err)
	}
	res.Suggestions = len(suggestions)
	return nil
}

func (r *Run) writeCVEs(res *Result, report schema.CVEReport) error {
	if err := utils.WriteJSON(r.cfg.CVEMap, report); err != nil {
		return fmt.Errorf("write CVE map: %w", err)
	}
	res.CVEHosts = len(report)
	return nil
}

func (r *Run) snapshot(res *Result) error {
	store := history.NewStore(history.PathsIn(r.cfg.HistoryDir), r.logger)
	summary, err := store.SnapshotFromFiles(r.BatchID, history.Sources{
		Inventory:   r.cfg.Inventory,
		Suggestions: r.cfg.Suggestions,
		CVEs:        r.cfg.CVEMap,
	})
	if err != nil {
		return fmt.Errorf("snapshot batch: %w", err)
	}
	res.Summary = summary
	return nil
}

// notify failures are logged; the batch is already persisted by then.
func (r *Run) notify(ctx context.Context, res *Result, suggestions []schema.UpgradeSuggestion, report schema.CVEReport) {
	text := notify.FormatDigest(r.BatchID, suggestions, report)

	path, err := notify.Archive(r.cfg.NotificationsDir, r.BatchID, text)
	if err != nil {
		r.log.Warn().Err(err).Msg("Could not archive digest")
	}
	res.DigestPath = path

	err = r.deps.Notifier.Notify(ctx, notify.Digest{
		BatchID: r.BatchID,
		Text:    text,
		Summary: res.Summary,
	})
	if err != nil {
		r.log.Warn().Err(err).Msg("Notification failed")
		return
	}
	_, nop := r.deps.Notifier.(notify.Nop)
	res.Notified = !nop
}

// OpenRunLog opens the log file of one batch under dir for appending.
func OpenRunLog(dir, batchID string) (*os.File, error) {
	batchID = strings.TrimSpace(batchID)
	if batchID == "" {
		return nil, history.ErrMissingBatchID
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}

	path := filepath.Join(dir, "run_pipeline_"+utils.SafeName(batchID)+".log")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open run log: %w", err)
	}
	return f, nil
}
