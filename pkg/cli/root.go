package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/yorozuya-cybersecurity/upgrade-advisor/internal/config"
	"github.com/yorozuya-cybersecurity/upgrade-advisor/internal/logger"
	"github.com/yorozuya-cybersecurity/upgrade-advisor/internal/scanners"
)

var (
	Version = "0.1.0"
	rootCmd *cobra.Command

	cfgFile string
	envFile string
	appCfg  *config.Config
	appLog  logger.Logger
)

func init() {
	rootCmd = &cobra.Command{
		Use:               "advisor",
		Short:             "Network device upgrade advisor",
		Long:              "Upgrade advisor: look up the latest published release for every inventoried switch, recommend upgrades, check security advisories and keep a per-batch history.",
		SilenceUsage:      true,
		PersistentPreRunE: loadConfig,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (YAML)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Credentials file loaded into the environment when present")
	rootCmd.PersistentFlags().String("data-dir", "data", "Directory holding the inventory, ledgers and history")
	rootCmd.PersistentFlags().String("batch", "", "Batch id (default: RUN_TS, else now in UTC)")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("console", false, "Human-readable log output")
	_ = viper.BindPFlag("data_dir", rootCmd.PersistentFlags().Lookup("data-dir"))
	_ = viper.BindPFlag("batch", rootCmd.PersistentFlags().Lookup("batch"))
	_ = viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("log.console", rootCmd.PersistentFlags().Lookup("console"))

	// Environment variable support (ADVISOR_DATA_DIR, ADVISOR_LOOKUP_PACING, etc.)
	config.Bind(viper.GetViper())

	// Subcommands
	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newLookupCmd())
	rootCmd.AddCommand(newCVEsCmd())
	rootCmd.AddCommand(newEoLCmd())
	rootCmd.AddCommand(newSnapshotCmd())
	rootCmd.AddCommand(newHistoryCmd())
	rootCmd.AddCommand(newReportCmd())
	rootCmd.AddCommand(newVersionCmd())
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Println(err)
		stop()
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command, _ []string) error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("read config: %w", err)
		}
	}

	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	log, err := logger.New(&cfg.Log)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	appCfg = cfg
	appLog = log
	return nil
}

func batchID() string {
	return config.ResolveBatchID(viper.GetString("batch"), time.Now())
}

// advisorySource returns nil when credentials are missing so CVE findings
// degrade to empty instead of failing the run.
func advisorySource(ctx context.Context) scanners.AdvisorySource {
	client, err := scanners.NewAdvisoryClient(ctx, appCfg.Advisory, appCfg.AdvisoryRetry, appLog)
	if err != nil {
		appLog.Warn().Err(err).Msg("Advisory lookups disabled")
		return nil
	}
	return client
}
