package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/iho/balanceaudit/internal/domain"
)

// Report is everything one audit run produces for the report writer.
type Report struct {
	RunID       string
	GeneratedAt time.Time

	Entries   []*domain.LedgerEntry
	Anomalies []domain.AnomalyRecord
	Summary   *Summary

	Failures []NormalizationFailure
	Skipped  int
}

// RunMetrics receives counters as the pipeline progresses.
type RunMetrics interface {
	ObserveParse(records, skipped, failures int)
	ObserveLedger(entries, mismatches, continuityBreaks, overdrafts int)
	ObserveAnomaly(kind domain.AnomalyType)
}

// AuditUseCase wires the full pipeline: source records, normalize, build the
// ledger, then score and summarize it, and hand the report to the sink.
type AuditUseCase struct {
	source     RecordSource
	sink       ReportSink
	normalizer *NormalizeUseCase
	ledger     *LedgerUseCase
	anomalies  *AnomalyUseCase
	summary    *SummaryUseCase
	ids        IDGenerator
	metrics    RunMetrics
	logger     zerolog.Logger
}

// NewAuditUseCase creates a new AuditUseCase.
func NewAuditUseCase(
	source RecordSource,
	sink ReportSink,
	normalizer *NormalizeUseCase,
	ledger *LedgerUseCase,
	anomalies *AnomalyUseCase,
	summary *SummaryUseCase,
	ids IDGenerator,
	metrics RunMetrics,
	logger zerolog.Logger,
) *AuditUseCase {
	return &AuditUseCase{
		source:     source,
		sink:       sink,
		normalizer: normalizer,
		ledger:     ledger,
		anomalies:  anomalies,
		summary:    summary,
		ids:        ids,
		metrics:    metrics,
		logger:     logger,
	}
}

// Run executes one batch audit. Single bad records never fail the run; only
// sourcing and sinking can return errors here.
func (uc *AuditUseCase) Run(ctx context.Context) (*Report, error) {
	runID := uc.ids.Generate()
	logger := uc.logger.With().Str("run_id", runID).Logger()

	records, err := uc.source.Records(ctx)
	if err != nil {
		return nil, fmt.Errorf("sourcing records: %w", err)
	}
	if len(records) == 0 {
		return nil, domain.ErrNoRecords
	}

	normalized := uc.normalizer.NormalizeAll(records)
	logger.Info().
		Int("records", len(records)).
		Int("events", len(normalized.Events)).
		Int("failures", len(normalized.Failures)).
		Int("skipped", normalized.Skipped).
		Msg("records normalized")
	uc.metrics.ObserveParse(len(records), normalized.Skipped, len(normalized.Failures))

	entries := uc.ledger.Build(ctx, normalized.Events)

	var mismatches, breaks, overdrafts int
	for _, entry := range entries {
		if entry.Mismatch {
			mismatches++
		}
		if entry.ContinuityBreak {
			breaks++
		}
		if entry.Overdraft != domain.OverdraftNone {
			overdrafts++
		}
	}
	uc.metrics.ObserveLedger(len(entries), mismatches, breaks, overdrafts)

	// Detection and summarization both only read the finished ledger, so
	// they run in parallel.
	anomalyCh := make(chan []domain.AnomalyRecord, 1)
	go func() {
		anomalyCh <- uc.anomalies.DetectAll(ctx, entries)
	}()
	summary := uc.summary.Summarize(entries)
	anomalies := <-anomalyCh

	Annotate(entries, anomalies)
	for _, record := range anomalies {
		uc.metrics.ObserveAnomaly(record.Type)
	}
	logger.Info().Int("anomalies", len(anomalies)).Msg("anomaly scan finished")

	report := &Report{
		RunID:       runID,
		GeneratedAt: time.Now().UTC(),
		Entries:     entries,
		Anomalies:   anomalies,
		Summary:     summary,
		Failures:    normalized.Failures,
		Skipped:     normalized.Skipped,
	}

	if err := uc.sink.Write(ctx, report); err != nil {
		return nil, fmt.Errorf("writing report: %w", err)
	}

	return report, nil
}
