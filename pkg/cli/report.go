package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	reportpkg "github.com/yorozuya-cybersecurity/upgrade-advisor/internal/report"
)

func newReportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "report",
		Short:   "Generate an HTML/PDF report for one batch from history",
		Example: "advisor report --batch 2025-09-18T08:00:00Z --format html,pdf",
		RunE:    runReport,
	}

	cmd.Flags().String("format", "html", "Output formats: html,pdf")
	cmd.Flags().String("out", "", "Output directory (default: <data-dir>/reports)")

	_ = viper.BindPFlag("report.format", cmd.Flags().Lookup("format"))
	_ = viper.BindPFlag("report.out", cmd.Flags().Lookup("out"))
	return cmd
}

func runReport(cmd *cobra.Command, _ []string) error {
	formats := strings.Split(viper.GetString("report.format"), ",")
	for i := range formats {
		formats[i] = strings.TrimSpace(strings.ToLower(formats[i]))
	}

	outDir := viper.GetString("report.out")
	if outDir == "" {
		outDir = appCfg.ReportsDir
	}

	// Load the batch from history and render HTML; an unset --batch means newest
	b, err := reportpkg.Load(historyReader(), strings.TrimSpace(viper.GetString("batch")))
	if err != nil {
		return err
	}
	htmlPath, err := reportpkg.GenerateHTML(b, outDir)
	if err != nil {
		return err
	}
	fmt.Printf("📝 HTML report: %s\n", htmlPath)

	// Optional PDF (Chromedp-based)
	if contains(formats, "pdf") {
		pdfPath, err := reportpkg.GeneratePDF(cmd.Context(), htmlPath, reportpkg.PDFOptions{
			ExecPath: appCfg.Browser.ExecPath,
			Timeout:  appCfg.Browser.PageTimeout,
		})
		if err != nil {
			fmt.Printf("⚠️  PDF generation failed: %v\n", err)
		} else {
			fmt.Printf("📄 PDF report:  %s\n", pdfPath)
		}
	}

	return nil
}

func contains(arr []string, v string) bool {
	for _, x := range arr {
		if x == v {
			return true
		}
	}
	return false
}
