package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/yorozuya-cybersecurity/upgrade-advisor/internal/history"
	"github.com/yorozuya-cybersecurity/upgrade-advisor/internal/pipeline"
)

func newSnapshotCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "snapshot",
		Short:   "Record the current inventory, suggestions and CVE map as a history batch",
		Example: "RUN_TS=2025-09-18T08:00:00Z advisor snapshot",
		RunE: func(cmd *cobra.Command, _ []string) error {
			// no fallback to the current time
			id := strings.TrimSpace(viper.GetString("batch"))
			if id == "" {
				id = strings.TrimSpace(os.Getenv("RUN_TS"))
			}

			res, err := pipeline.New(appCfg, id, pipeline.Deps{}, appLog).Snapshot(cmd.Context())
			if errors.Is(err, history.ErrMissingBatchID) {
				return fmt.Errorf("%w (pass --batch or set RUN_TS)", err)
			}
			if err != nil {
				return err
			}

			summary := res.Summary
			fmt.Printf("✅ Snapshot %s written to %s\n", summary.BatchTS, appCfg.HistoryDir)
			fmt.Printf("   Devices: %d, upgrade recommended: %d, critical CVEs: %d, EoL: %d\n",
				summary.DeviceCount, summary.DevicesWithUpgradeRecommended, summary.DevicesWithCriticalCVEs, summary.DevicesEoL)
			return nil
		},
	}
}
