package cli

import (
	"fmt"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/yorozuya-cybersecurity/upgrade-advisor/internal/history"
	"github.com/yorozuya-cybersecurity/upgrade-advisor/internal/schema"
)

const (
	draculaComment = "#6272A4"
	draculaGreen   = "#50FA7B"
	draculaOrange  = "#FFB86C"
	draculaPurple  = "#BD93F9"
	draculaRed     = "#FF5555"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(draculaPurple)).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	borderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color(draculaComment))
	urgentStyle = cellStyle.Foreground(lipgloss.Color(draculaRed))
	adviseStyle = cellStyle.Foreground(lipgloss.Color(draculaOrange))
	okStyle     = cellStyle.Foreground(lipgloss.Color(draculaGreen))
)

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Query recorded batches",
	}

	batches := &cobra.Command{
		Use:   "batches",
		Short: "List batches, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rows, err := historyReader().Batches(viper.GetInt("history.limit"))
			if err != nil {
				return err
			}
			if len(rows) == 0 {
				fmt.Println("No batches recorded yet.")
				return nil
			}
			fmt.Println(renderBatches(rows))
			return nil
		},
	}
	batches.Flags().Int("limit", 20, "Number of batches to show (0 = all)")
	_ = viper.BindPFlag("history.limit", batches.Flags().Lookup("limit"))

	batch := &cobra.Command{
		Use:   "batch [batch-id]",
		Short: "Show the devices of one batch (default: newest)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r := historyReader()

			id := ""
			if len(args) == 1 {
				id = args[0]
			} else {
				latest, err := r.LatestBatch()
				if err != nil {
					return err
				}
				if latest == "" {
					fmt.Println("No batches recorded yet.")
					return nil
				}
				id = latest
			}

			devices, err := r.BatchDevices(id)
			if err != nil {
				return fmt.Errorf("%s: %w", id, err)
			}
			fmt.Printf("Batch %s (%d devices)\n", id, len(devices))
			fmt.Println(renderDevices(devices))

			if viper.GetBool("history.cves") {
				cves, err := r.BatchCVEs(id)
				if err != nil {
					return fmt.Errorf("%s: %w", id, err)
				}
				fmt.Println(renderCVEs(cves))
			}
			return nil
		},
	}
	batch.Flags().Bool("cves", false, "Also list the CVEs of every device")
	_ = viper.BindPFlag("history.cves", batch.Flags().Lookup("cves"))

	device := &cobra.Command{
		Use:   "device <host>",
		Short: "Show one device across batches, oldest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tl, err := historyReader().Timeline(args[0])
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			fmt.Printf("Device %s (%d batches)\n", args[0], len(tl))
			fmt.Println(renderTimeline(tl))
			return nil
		},
	}

	cmd.AddCommand(batches, batch, device)
	return cmd
}

func historyReader() *history.Reader {
	return history.NewReader(history.PathsIn(appCfg.HistoryDir), appLog)
}

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(borderStyle).
		Headers(headers...)
}

func renderBatches(rows []schema.BatchSummary) string {
	t := newTable("Batch", "Devices", "Upgrade", "Crit CVE hosts", "EoL", "Critical", "High", "Medium", "Low").
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})

	for _, s := range rows {
		t.Row(
			s.BatchTS,
			strconv.Itoa(s.DeviceCount),
			strconv.Itoa(s.DevicesWithUpgradeRecommended),
			strconv.Itoa(s.DevicesWithCriticalCVEs),
			strconv.Itoa(s.DevicesEoL),
			strconv.Itoa(s.TotalCriticalCVEs),
			strconv.Itoa(s.TotalHighCVEs),
			strconv.Itoa(s.TotalMediumCVEs),
			strconv.Itoa(s.TotalLowCVEs),
		)
	}
	return t.String()
}

func renderDevices(rows []schema.HistorySnapshotRow) string {
	const recCol = 5
	styles := make([]lipgloss.Style, len(rows))

	t := newTable("Host", "Model", "Platform", "Current", "Latest", "Recommendation", "Status", "Crit", "High")
	for i, r := range rows {
		styles[i] = recommendationStyle(r.Recommendation)
		t.Row(
			r.Host,
			orDash(r.Model),
			orDash(r.Platform),
			orDash(r.CurrentVersion),
			withDesignation(r.RecommendedVersion, r.ReleaseDesignation),
			recommendationLabel(r.Recommendation),
			orDash(r.Status),
			strconv.Itoa(r.CVECounts.Critical),
			strconv.Itoa(r.CVECounts.High),
		)
	}

	return t.StyleFunc(func(row, col int) lipgloss.Style {
		switch {
		case row == table.HeaderRow:
			return headerStyle
		case col == recCol && row >= 0 && row < len(styles):
			return styles[row]
		default:
			return cellStyle
		}
	}).String()
}

func renderCVEs(rows []schema.CVESnapshotRow) string {
	t := newTable("Host", "Severity", "CVE", "Title", "Advisory").
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})

	for _, r := range rows {
		for _, sev := range schema.Severities {
			for _, e := range r.CVEs[sev] {
				t.Row(r.Host, string(sev), e.ID, e.Title, e.AdvisoryURL)
			}
		}
	}
	return t.String()
}

func renderTimeline(points []history.TimelinePoint) string {
	t := newTable("Batch", "Version", "Latest", "Recommendation", "Crit", "High", "CPU", "Ports", "Status", "End of support").
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})

	for _, p := range points {
		t.Row(
			p.BatchTS,
			orDash(p.Version),
			withDesignation(p.RecommendedVersion, p.ReleaseDesignation),
			recommendationLabel(p.Recommendation),
			strconv.Itoa(p.CriticalCVEs),
			strconv.Itoa(p.HighCVEs),
			orDash(p.CPUUsage),
			ports(p.ConnectedCount, p.TotalInterfaces),
			orDash(p.Status),
			orDash(p.EndOfSupportDate),
		)
	}
	return t.String()
}

func recommendationStyle(c *schema.Category) lipgloss.Style {
	switch {
	case c == nil || c.IsFailure():
		return cellStyle.Foreground(lipgloss.Color(draculaComment))
	case c.Urgency() <= 1:
		return urgentStyle
	case c.Urgency() <= 3:
		return adviseStyle
	default:
		return okStyle
	}
}

func recommendationLabel(c *schema.Category) string {
	if c == nil {
		return "undetermined"
	}
	return string(*c)
}

func withDesignation(version, designation string) string {
	if version == "" {
		return "-"
	}
	if designation == "" {
		return version
	}
	return version + " (" + designation + ")"
}

func ports(connected, total *int) string {
	if connected == nil && total == nil {
		return "-"
	}
	n := func(v *int) string {
		if v == nil {
			return "?"
		}
		return strconv.Itoa(*v)
	}
	return n(connected) + "/" + n(total)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
