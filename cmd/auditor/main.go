package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/iho/balanceaudit/internal/adapter/logparser"
	"github.com/iho/balanceaudit/internal/adapter/report"
	"github.com/iho/balanceaudit/internal/adapter/runid"
	"github.com/iho/balanceaudit/internal/domain"
	"github.com/iho/balanceaudit/internal/infrastructure/config"
	"github.com/iho/balanceaudit/internal/infrastructure/logger"
	"github.com/iho/balanceaudit/internal/infrastructure/metrics"
	"github.com/iho/balanceaudit/internal/usecase"
)

func main() {
	var (
		logDir    string
		outDir    string
		tolerance float64
		decimals  int
		columns   string
		rawCSV    bool
		noCharts  bool
		logLevel  string
	)

	rootCmd := &cobra.Command{
		Use:   "auditor",
		Short: "Subscription balance ledger auditor",
		Long:  `Reconciles balance transactions recovered from application logs and scores the ledger for anomalies.`,
	}

	analyzeCmd := &cobra.Command{
		Use:   "analyze",
		Short: "Reconcile a log directory and write the audit report",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			// Flags override the environment when set.
			if cmd.Flags().Changed("tolerance") {
				cfg.Tolerance = tolerance
			}
			if cmd.Flags().Changed("decimals") {
				cfg.DefaultDecimals = decimals
			}
			if cmd.Flags().Changed("out") {
				cfg.OutputDir = outDir
			}
			if cmd.Flags().Changed("columns") {
				cfg.LedgerColumns = columns
			}
			if cmd.Flags().Changed("raw-csv") {
				cfg.RawCSV = rawCSV
			}
			if cmd.Flags().Changed("no-charts") {
				cfg.Charts = !noCharts
			}
			if cmd.Flags().Changed("log-level") {
				cfg.LogLevel = logLevel
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			return analyze(cmd.Context(), cfg, logDir)
		},
	}

	analyzeCmd.Flags().StringVar(&logDir, "log-dir", "", "Directory containing log files (required)")
	analyzeCmd.Flags().StringVar(&outDir, "out", "./out", "Output directory")
	analyzeCmd.Flags().Float64Var(&tolerance, "tolerance", 0.005, "Tolerance when comparing balances")
	analyzeCmd.Flags().IntVar(&decimals, "decimals", 2, "Decimal places for unrecognized currencies")
	analyzeCmd.Flags().StringVar(&columns, "columns", report.ColumnsAccounting, "Ledger CSV preset: accounting or full")
	analyzeCmd.Flags().BoolVar(&rawCSV, "raw-csv", false, "Also export the full-column ledger CSV")
	analyzeCmd.Flags().BoolVar(&noCharts, "no-charts", false, "Skip PNG chart rendering")
	analyzeCmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	_ = analyzeCmd.MarkFlagRequired("log-dir")

	rootCmd.AddCommand(analyzeCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func analyze(ctx context.Context, cfg *config.Config, logDir string) error {
	log := logger.New(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})

	rounding, err := domain.NewRoundingTable(cfg.DefaultDecimals, cfg.CurrencyDecimals)
	if err != nil {
		return err
	}

	ledgerUC, err := usecase.NewLedgerUseCase(decimal.NewFromFloat(cfg.Tolerance), rounding, log)
	if err != nil {
		return err
	}

	anomalyUC, err := usecase.NewAnomalyUseCase(usecase.AnomalyConfig{
		MADThreshold:       cfg.MADThreshold,
		BurstWindow:        cfg.BurstWindow,
		RapidWindow:        cfg.RapidWindow,
		BusinessOpenHour:   cfg.BusinessOpenHour,
		BusinessCloseHour:  cfg.BusinessCloseHour,
		RoundingPatternMin: cfg.RoundingPatternMin,
	}, log)
	if err != nil {
		return err
	}

	runMetrics := metrics.New()

	auditUC := usecase.NewAuditUseCase(
		logparser.New(logDir, log),
		report.NewWriter(report.Options{
			OutDir:        cfg.OutputDir,
			Columns:       cfg.LedgerColumns,
			FullLedgerCSV: cfg.RawCSV,
			Charts:        cfg.Charts,
		}, log),
		usecase.NewNormalizeUseCase(log),
		ledgerUC,
		anomalyUC,
		usecase.NewSummaryUseCase(log),
		runid.New(),
		runMetrics,
		log,
	)

	result, err := auditUC.Run(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrNoRecords) {
			return fmt.Errorf("no balance-sync records found under %s", logDir)
		}
		return err
	}

	runMetrics.Log(log)
	log.Info().
		Str("run_id", result.RunID).
		Int("entries", len(result.Entries)).
		Int("anomalies", len(result.Anomalies)).
		Msg("audit complete")
	return nil
}
