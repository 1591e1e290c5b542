package report

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/iho/balanceaudit/internal/usecase"
)

// Options control what the writer emits and where.
type Options struct {
	// OutDir is the parent directory; each run writes into
	// OutDir/run_<RunID>.
	OutDir string
	// Columns selects the ledger CSV preset: "accounting" or "full".
	Columns string
	// FullLedgerCSV additionally writes the full-column ledger when the
	// preset is narrower.
	FullLedgerCSV bool
	// Charts enables PNG chart rendering.
	Charts bool
}

// Writer renders a finished report to CSV tables, a console summary and
// optional charts. It implements usecase.ReportSink.
type Writer struct {
	opts   Options
	logger zerolog.Logger
}

// NewWriter creates a report Writer.
func NewWriter(opts Options, logger zerolog.Logger) *Writer {
	if opts.Columns == "" {
		opts.Columns = ColumnsAccounting
	}
	return &Writer{opts: opts, logger: logger}
}

// Write emits every output table for the run. Chart failures are logged and
// tolerated; table failures abort since the run would otherwise be silent.
func (w *Writer) Write(ctx context.Context, report *usecase.Report) error {
	_ = ctx

	dir, err := w.ensureRunDir(report.RunID)
	if err != nil {
		return err
	}

	tables := []struct {
		name  string
		write func(path string) error
	}{
		{"ledger.csv", func(path string) error {
			return writeLedgerCSV(path, report.Entries, w.opts.Columns)
		}},
		{"reconciliation.csv", func(path string) error {
			return writeReconciliationCSV(path, report.Summary.Reconciliation)
		}},
		{"by_user.csv", func(path string) error {
			return writeByUserCSV(path, report.Summary.ByUser)
		}},
		{"by_source.csv", func(path string) error {
			return writeBySourceCSV(path, report.Summary.BySource)
		}},
		{"overdrafts.csv", func(path string) error {
			return writeLedgerCSV(path, report.Summary.Overdrafts, ColumnsAccounting)
		}},
		{"anomalies.csv", func(path string) error {
			return writeAnomaliesCSV(path, report.Anomalies)
		}},
		{"triage.csv", func(path string) error {
			return writeTriageCSV(path, report.Failures)
		}},
	}

	if w.opts.FullLedgerCSV && w.opts.Columns != ColumnsFull {
		tables = append(tables, struct {
			name  string
			write func(path string) error
		}{"ledger_full.csv", func(path string) error {
			return writeLedgerCSV(path, report.Entries, ColumnsFull)
		}})
	}

	for _, table := range tables {
		path := filepath.Join(dir, table.name)
		if err := table.write(path); err != nil {
			return fmt.Errorf("writing %s: %w", table.name, err)
		}
	}

	summaryPath := filepath.Join(dir, "summary.md")
	if err := writeSummaryTables(os.Stdout, summaryPath, report); err != nil {
		return fmt.Errorf("writing summary: %w", err)
	}

	if w.opts.Charts {
		renderCharts(dir, report, w.logger)
	}

	w.logger.Info().Str("dir", dir).Msg("report written")
	return nil
}

// ensureRunDir creates the per-run output directory, falling back to the
// system temp dir when the configured one is not writable.
func (w *Writer) ensureRunDir(runID string) (string, error) {
	dir := filepath.Join(w.opts.OutDir, "run_"+runID)
	if err := os.MkdirAll(dir, 0o755); err == nil {
		if probe, probeErr := os.CreateTemp(dir, ".write_test"); probeErr == nil {
			probe.Close()
			os.Remove(probe.Name())
			return dir, nil
		}
	}

	fallback := filepath.Join(os.TempDir(), "balanceaudit", "run_"+runID)
	if err := os.MkdirAll(fallback, 0o755); err != nil {
		return "", fmt.Errorf("output dir %s unwritable and temp fallback failed: %w", dir, err)
	}
	w.logger.Warn().Str("dir", dir).Str("fallback", fallback).Msg("output dir not writable, using temp fallback")
	return fallback, nil
}
