package usecase

import (
	"context"

	"github.com/iho/balanceaudit/internal/domain"
)

// RecordSource supplies the raw records for one run (the log parser in
// production, a fixture in tests).
type RecordSource interface {
	Records(ctx context.Context) ([]domain.RawRecord, error)
}

// ReportSink receives the finished report (file writer in production).
type ReportSink interface {
	Write(ctx context.Context, report *Report) error
}

// IDGenerator generates unique run IDs.
type IDGenerator interface {
	Generate() string
}
