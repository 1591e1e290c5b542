package usecase_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iho/balanceaudit/internal/domain"
	"github.com/iho/balanceaudit/internal/usecase"
	"github.com/iho/balanceaudit/internal/usecase/mocks"
)

func rawRecord(user, id, ts string, amount any, extra map[string]any) domain.RawRecord {
	fields := map[string]any{
		"userId":   user,
		"id":       id,
		"type":     "DEBIT",
		"action":   "SUBSCRIPTION_PAYMENT",
		"amount":   amount,
		"currency": "SAR",
		"source":   "manual",
	}
	for k, v := range extra {
		fields[k] = v
	}
	return domain.RawRecord{
		File:      "app.log",
		EventType: domain.RawEventBalanceSync,
		Timestamp: ts,
		Fields:    fields,
	}
}

func newAuditUseCase(t *testing.T, source *mocks.MockRecordSource, sink *mocks.MockReportSink, runMetrics *mocks.MockRunMetrics) *usecase.AuditUseCase {
	t.Helper()

	table, err := domain.NewRoundingTable(2, map[string]int{"SAR": 3})
	require.NoError(t, err)

	ledgerUC, err := usecase.NewLedgerUseCase(dec("0.005"), table, zerolog.Nop())
	require.NoError(t, err)

	anomalyUC, err := usecase.NewAnomalyUseCase(usecase.AnomalyConfig{
		MADThreshold:       usecase.DefaultMADThreshold,
		BurstWindow:        usecase.DefaultBurstWindow,
		RapidWindow:        usecase.DefaultRapidWindow,
		BusinessOpenHour:   0,
		BusinessCloseHour:  24,
		RoundingPatternMin: 3,
	}, zerolog.Nop())
	require.NoError(t, err)

	return usecase.NewAuditUseCase(
		source,
		sink,
		usecase.NewNormalizeUseCase(zerolog.Nop()),
		ledgerUC,
		anomalyUC,
		usecase.NewSummaryUseCase(zerolog.Nop()),
		mocks.NewMockIDGenerator(),
		runMetrics,
		zerolog.Nop(),
	)
}

func TestAuditUseCase_Run(t *testing.T) {
	source := mocks.NewMockRecordSource(
		rawRecord("user-1", "tx-1", "2025-03-12T10:00:00.000Z", 25.0, map[string]any{
			"oldBalance": 100.0, "newBalance": 75.0,
		}),
		rawRecord("user-1", "tx-2", "2025-03-12T10:05:00.000Z", 25.0, map[string]any{
			"newBalance": 49.0, // expected 50: mismatch
		}),
		rawRecord("user-2", "bad", "2025-03-12T10:06:00.000Z", "not-a-number", nil),
	)
	sink := mocks.NewMockReportSink()
	runMetrics := mocks.NewMockRunMetrics()

	uc := newAuditUseCase(t, source, sink, runMetrics)

	report, err := uc.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "run-test-1", report.RunID)
	assert.Len(t, report.Entries, 2)
	assert.Len(t, report.Failures, 1)
	assert.True(t, report.Entries[1].Mismatch)

	var mismatchRows int
	for _, record := range report.Anomalies {
		if record.Type == domain.AnomalyBalanceMismatch {
			mismatchRows++
		}
	}
	assert.Equal(t, 1, mismatchRows)

	// Back-references were attached after detection.
	assert.NotEmpty(t, report.Entries[1].AnomalyRefs)

	require.Len(t, sink.Written, 1)
	assert.Same(t, report, sink.Written[0])

	assert.Equal(t, 3, runMetrics.Records)
	assert.Equal(t, 1, runMetrics.Failures)
	assert.Equal(t, 2, runMetrics.Entries)
	assert.Equal(t, 1, runMetrics.Mismatches)
	assert.Equal(t, 1, runMetrics.Anomalies[domain.AnomalyBalanceMismatch])
}

func TestAuditUseCase_NoRecords(t *testing.T) {
	uc := newAuditUseCase(t, mocks.NewMockRecordSource(), mocks.NewMockReportSink(), mocks.NewMockRunMetrics())

	_, err := uc.Run(context.Background())
	require.ErrorIs(t, err, domain.ErrNoRecords)
}

func TestAuditUseCase_SourceError(t *testing.T) {
	source := mocks.NewMockRecordSource()
	wantErr := errors.New("disk gone")
	source.RecordsFunc = func(ctx context.Context) ([]domain.RawRecord, error) {
		return nil, wantErr
	}

	uc := newAuditUseCase(t, source, mocks.NewMockReportSink(), mocks.NewMockRunMetrics())

	_, err := uc.Run(context.Background())
	require.ErrorIs(t, err, wantErr)
}

func TestAuditUseCase_SinkError(t *testing.T) {
	source := mocks.NewMockRecordSource(
		rawRecord("user-1", "tx-1", "2025-03-12T10:00:00.000Z", 25.0, nil),
	)
	sink := mocks.NewMockReportSink()
	wantErr := errors.New("out of space")
	sink.WriteFunc = func(ctx context.Context, report *usecase.Report) error {
		return wantErr
	}

	uc := newAuditUseCase(t, source, sink, mocks.NewMockRunMetrics())

	_, err := uc.Run(context.Background())
	require.ErrorIs(t, err, wantErr)
}

func TestAuditUseCase_GeneratedAtIsUTC(t *testing.T) {
	source := mocks.NewMockRecordSource(
		rawRecord("user-1", "tx-1", "2025-03-12T10:00:00.000Z", 25.0, nil),
	)
	uc := newAuditUseCase(t, source, mocks.NewMockReportSink(), mocks.NewMockRunMetrics())

	report, err := uc.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, time.UTC, report.GeneratedAt.Location())
}
