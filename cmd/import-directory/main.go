package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/lib/pq"
	"github.com/spf13/cobra"

	"triage/internal/config"
	"triage/internal/directory"
	"triage/internal/logger"
	"triage/pkg/bootstrap"
	"triage/pkg/logging"
)

var (
	configFile string
	csvFile    string
	dryRun     bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "import-directory",
		Short: "Import a terminal directory CSV export into PostgreSQL",
		RunE:  runImport,
	}

	rootCmd.Flags().StringVar(&configFile, "config", "", "Path to config file (required)")
	rootCmd.Flags().StringVar(&csvFile, "csv", "", "Path to directory CSV export (required)")
	rootCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Parse and report without writing")
	rootCmd.MarkFlagRequired("csv")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runImport(cmd *cobra.Command, args []string) error {
	earlyLog := logging.NewEarlyLog()

	if configFile == "" {
		configFile = os.Getenv("CONFIG_FILE")
		if configFile == "" {
			earlyLog.Error("Config file is required. Use --config flag or CONFIG_FILE environment variable")
			return fmt.Errorf("config file is required")
		}
	}

	cfg, err := config.Load(configFile)
	if err != nil {
		earlyLog.Error("Failed to load config: %v", err)
		return err
	}

	log, err := logger.New(cfg.Logging.Level)
	if err != nil {
		earlyLog.Error("Failed to init logger: %v", err)
		return err
	}
	defer log.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	f, err := os.Open(csvFile)
	if err != nil {
		return fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer f.Close()

	rows, err := directory.ParseCSV(f)
	if err != nil {
		return fmt.Errorf("failed to parse CSV file: %w", err)
	}

	log.Infow("Prepared directory rows", "rows", len(rows), "csv", csvFile)

	if dryRun {
		sample := rows
		if len(sample) > 5 {
			sample = sample[:5]
		}
		for _, row := range sample {
			log.Infow("Sample row",
				"site", row.Site,
				"channel", row.Channel,
				"workplace", row.Workplace,
				"terminal_id", row.TerminalID,
				"ip", row.IP,
			)
		}
		return nil
	}

	connector := bootstrap.NewDatabaseConnector(cfg, log)
	db, err := connector.InitPostgreSQL(ctx)
	if err != nil {
		return fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	defer db.Close()

	importer := directory.NewImporter(db, log)
	count, err := importer.Import(ctx, rows, csvFile)
	if err != nil {
		return err
	}

	log.Infow("Import done", "rows", count)
	return nil
}
