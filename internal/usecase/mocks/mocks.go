package mocks

import (
	"context"
	"sync"

	"github.com/iho/balanceaudit/internal/domain"
	"github.com/iho/balanceaudit/internal/usecase"
)

// MockRecordSource is a mock implementation of RecordSource.
type MockRecordSource struct {
	RecordsFunc func(ctx context.Context) ([]domain.RawRecord, error)

	records []domain.RawRecord
}

func NewMockRecordSource(records ...domain.RawRecord) *MockRecordSource {
	return &MockRecordSource{records: records}
}

func (m *MockRecordSource) Records(ctx context.Context) ([]domain.RawRecord, error) {
	if m.RecordsFunc != nil {
		return m.RecordsFunc(ctx)
	}
	return m.records, nil
}

// MockReportSink is a mock implementation of ReportSink that captures the
// written report.
type MockReportSink struct {
	mu sync.Mutex

	WriteFunc func(ctx context.Context, report *usecase.Report) error

	Written []*usecase.Report
}

func NewMockReportSink() *MockReportSink {
	return &MockReportSink{}
}

func (m *MockReportSink) Write(ctx context.Context, report *usecase.Report) error {
	if m.WriteFunc != nil {
		return m.WriteFunc(ctx, report)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Written = append(m.Written, report)
	return nil
}

// MockIDGenerator is a mock implementation of IDGenerator.
type MockIDGenerator struct {
	GenerateFunc func() string
}

func NewMockIDGenerator() *MockIDGenerator {
	return &MockIDGenerator{}
}

func (m *MockIDGenerator) Generate() string {
	if m.GenerateFunc != nil {
		return m.GenerateFunc()
	}
	return "run-test-1"
}

// MockRunMetrics is a no-op RunMetrics that records observations.
type MockRunMetrics struct {
	mu sync.Mutex

	Records, Skipped, Failures              int
	Entries, Mismatches, Breaks, Overdrafts int
	Anomalies                               map[domain.AnomalyType]int
}

func NewMockRunMetrics() *MockRunMetrics {
	return &MockRunMetrics{Anomalies: make(map[domain.AnomalyType]int)}
}

func (m *MockRunMetrics) ObserveParse(records, skipped, failures int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Records, m.Skipped, m.Failures = records, skipped, failures
}

func (m *MockRunMetrics) ObserveLedger(entries, mismatches, breaks, overdrafts int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Entries, m.Mismatches, m.Breaks, m.Overdrafts = entries, mismatches, breaks, overdrafts
}

func (m *MockRunMetrics) ObserveAnomaly(kind domain.AnomalyType) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Anomalies[kind]++
}
