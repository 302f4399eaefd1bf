package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/yorozuya-cybersecurity/upgrade-advisor/internal/catalog"
	"github.com/yorozuya-cybersecurity/upgrade-advisor/internal/logger"
	"github.com/yorozuya-cybersecurity/upgrade-advisor/internal/lookup"
	"github.com/yorozuya-cybersecurity/upgrade-advisor/internal/notify"
	"github.com/yorozuya-cybersecurity/upgrade-advisor/internal/pipeline"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "run",
		Short:   "Run a full batch: lookup, advisories, history snapshot and notification",
		Example: "advisor run --data-dir ./data --eol",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			id := batchID()

			log := appLog
			if f, err := pipeline.OpenRunLog(appCfg.LogsDir, id); err != nil {
				appLog.Warn().Err(err).Msg("Batch log file disabled")
			} else {
				defer f.Close()
				log = logger.Tee(appLog, f)
			}

			browser := catalog.NewBrowser(ctx, appCfg.Browser, log)
			defer browser.Close()

			notifier := notify.Notifier(notify.Nop{})
			if !viper.GetBool("run.no_notify") {
				notifier = notify.New(appCfg.Notify, log)
			}

			run := pipeline.New(appCfg, id, pipeline.Deps{
				Catalog:  browser,
				EoL:      browser,
				Advisory: advisorySource(ctx),
				Notifier: notifier,
			}, log)

			fmt.Printf("🚀 Starting batch %s (run %s)\n", run.BatchID, run.RunID)
			res, err := run.Execute(ctx)
			if err != nil {
				return err
			}

			fmt.Printf("✅ Batch %s complete\n", res.BatchID)
			if res.EoLUpdated > 0 {
				fmt.Printf("   EoL records updated:       %d\n", res.EoLUpdated)
			}
			fmt.Printf("   Suggestions appended:      %d → %s\n", res.Suggestions, appCfg.Suggestions)
			fmt.Printf("   Upgrade recommended:       %d\n", res.Summary.DevicesWithUpgradeRecommended)
			fmt.Printf("   Devices with critical CVE: %d\n", res.Summary.DevicesWithCriticalCVEs)
			fmt.Printf("   End of life:               %d\n", res.Summary.DevicesEoL)
			if res.DigestPath != "" {
				fmt.Printf("📝 Digest: %s\n", res.DigestPath)
			}
			if res.Notified {
				fmt.Println("📣 Notification sent")
			}
			return nil
		},
	}

	cmd.Flags().Bool("eol", false, "Refresh end-of-life details before the lookup")
	cmd.Flags().Bool("no-notify", false, "Skip the batch notification")
	_ = viper.BindPFlag("enrich_eol", cmd.Flags().Lookup("eol"))
	_ = viper.BindPFlag("run.no_notify", cmd.Flags().Lookup("no-notify"))

	return cmd
}

func newLookupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lookup",
		Short: "Look up the latest release per device and append upgrade suggestions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			browser := catalog.NewBrowser(ctx, appCfg.Browser, appLog)
			defer browser.Close()

			run := pipeline.New(appCfg, batchID(), pipeline.Deps{Catalog: browser}, appLog)
			res, err := run.Lookup(ctx)
			if err != nil {
				return err
			}

			fmt.Printf("✅ %d suggestions appended to %s (batch %s)\n", res.Suggestions, appCfg.Suggestions, res.BatchID)
			return nil
		},
	}
}

func newCVEsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cves",
		Short: "Check security advisories for every device and write the CVE map",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			run := pipeline.New(appCfg, batchID(), pipeline.Deps{Advisory: advisorySource(ctx)}, appLog)
			res, err := run.Scan(ctx)
			if err != nil {
				return err
			}

			fmt.Printf("✅ Advisories checked for %d devices → %s\n", res.CVEHosts, appCfg.CVEMap)
			return nil
		},
	}
}

func newEoLCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "eol",
		Short: "Look up end-of-life details and write them into the inventory",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			browser := catalog.NewBrowser(ctx, appCfg.Browser, appLog)
			defer browser.Close()

			run := pipeline.New(appCfg, batchID(), pipeline.Deps{EoL: browser}, appLog)
			res, err := run.EnrichEoL(ctx, lookup.EoLOptions{
				OnlyMissing: viper.GetBool("eol.only_missing"),
				Limit:       viper.GetInt("eol.limit"),
			})
			if err != nil {
				return err
			}

			fmt.Printf("✅ EoL details updated for %d devices in %s\n", res.EoLUpdated, appCfg.Inventory)
			return nil
		},
	}

	cmd.Flags().Bool("only-missing", false, "Skip devices that already have an end-of-support date")
	cmd.Flags().Int("limit", 0, "Look up at most this many devices (0 = all)")
	_ = viper.BindPFlag("eol.only_missing", cmd.Flags().Lookup("only-missing"))
	_ = viper.BindPFlag("eol.limit", cmd.Flags().Lookup("limit"))

	return cmd
}
