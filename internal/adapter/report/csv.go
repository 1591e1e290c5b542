package report

import (
	"encoding/csv"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/balanceaudit/internal/domain"
	"github.com/iho/balanceaudit/internal/usecase"
)

// Ledger CSV column presets.
const (
	ColumnsAccounting = "accounting"
	ColumnsFull       = "full"
)

const csvTimeLayout = "2006-01-02T15:04:05.000Z"

var accountingColumns = []string{
	"timestamp", "userId", "id", "action", "source", "currency",
	"priorBalance", "amount", "actualNewBalance", "expectedNewBalance",
	"mismatch", "continuityBreak", "overdraft", "suggestedAdjustment",
}

var fullColumns = []string{
	"timestamp", "userId", "id", "messageId", "action", "kind", "source",
	"currency", "amount", "vat", "priorBalance", "expectedNewBalance",
	"actualNewBalance", "mismatch", "mismatchDelta", "withinTolerance",
	"overdraft", "continuityBreak", "suggestedAdjustment", "currencyResolved",
	"anomalyRefs",
}

func writeLedgerCSV(path string, entries []*domain.LedgerEntry, preset string) error {
	columns := accountingColumns
	if preset == ColumnsFull {
		columns = fullColumns
	}

	return withCSV(path, func(w *csv.Writer) error {
		if err := w.Write(columns); err != nil {
			return err
		}
		for _, entry := range entries {
			if err := w.Write(ledgerRow(entry, columns)); err != nil {
				return err
			}
		}
		return nil
	})
}

func ledgerRow(entry *domain.LedgerEntry, columns []string) []string {
	event := entry.Event
	row := make([]string, 0, len(columns))
	for _, column := range columns {
		switch column {
		case "timestamp":
			row = append(row, formatTime(event.Timestamp))
		case "userId":
			row = append(row, event.UserID)
		case "id":
			row = append(row, event.ID)
		case "messageId":
			row = append(row, event.MessageID)
		case "action":
			row = append(row, event.Action)
		case "kind":
			row = append(row, string(event.Kind))
		case "source":
			row = append(row, event.Source)
		case "currency":
			row = append(row, event.Currency)
		case "amount":
			row = append(row, event.Amount.String())
		case "vat":
			row = append(row, event.VAT.String())
		case "priorBalance":
			row = append(row, entry.PriorBalance.String())
		case "expectedNewBalance":
			row = append(row, entry.ExpectedNewBalance.String())
		case "actualNewBalance":
			row = append(row, entry.ActualNewBalance.String())
		case "mismatch":
			row = append(row, strconv.FormatBool(entry.Mismatch))
		case "mismatchDelta":
			row = append(row, entry.MismatchDelta.String())
		case "withinTolerance":
			row = append(row, strconv.FormatBool(entry.WithinTolerance))
		case "overdraft":
			row = append(row, string(entry.Overdraft))
		case "continuityBreak":
			row = append(row, strconv.FormatBool(entry.ContinuityBreak))
		case "suggestedAdjustment":
			row = append(row, formatNullDecimal(entry.SuggestedAdjustment))
		case "currencyResolved":
			row = append(row, strconv.FormatBool(entry.CurrencyResolved))
		case "anomalyRefs":
			row = append(row, joinInts(entry.AnomalyRefs))
		default:
			row = append(row, "")
		}
	}
	return row
}

func writeReconciliationCSV(path string, rows []usecase.ReconRow) error {
	return withCSV(path, func(w *csv.Writer) error {
		header := []string{
			"timestamp", "userId", "id", "action", "kind", "source", "currency",
			"priorBalance", "amount", "actualNewBalance", "expectedNewBalance",
			"mismatch", "continuityBreak", "overdraft", "suggestedAdjustment",
		}
		if err := w.Write(header); err != nil {
			return err
		}
		for _, row := range rows {
			record := []string{
				formatTime(row.Timestamp),
				row.UserID,
				row.TransactionID,
				row.Action,
				string(row.Kind),
				row.Source,
				row.Currency,
				row.PriorBalance.String(),
				row.Amount.String(),
				row.ActualNewBalance.String(),
				row.ExpectedNewBalance.String(),
				strconv.FormatBool(row.Mismatch),
				strconv.FormatBool(row.ContinuityBreak),
				string(row.Overdraft),
				formatNullDecimal(row.SuggestedAdjustment),
			}
			if err := w.Write(record); err != nil {
				return err
			}
		}
		return nil
	})
}

func writeByUserCSV(path string, rows []usecase.UserSummary) error {
	return withCSV(path, func(w *csv.Writer) error {
		header := []string{
			"userId", "txCount", "totalDebit", "totalCredit",
			"overdrafts", "mismatches", "continuityBreaks",
		}
		if err := w.Write(header); err != nil {
			return err
		}
		for _, row := range rows {
			record := []string{
				row.UserID,
				strconv.Itoa(row.TxCount),
				row.TotalDebit.String(),
				row.TotalCredit.String(),
				strconv.Itoa(row.Overdrafts),
				strconv.Itoa(row.Mismatches),
				strconv.Itoa(row.ContinuityBreaks),
			}
			if err := w.Write(record); err != nil {
				return err
			}
		}
		return nil
	})
}

func writeBySourceCSV(path string, rows []usecase.SourceSummary) error {
	return withCSV(path, func(w *csv.Writer) error {
		if err := w.Write([]string{"source", "kind", "totalAmount", "txCount"}); err != nil {
			return err
		}
		for _, row := range rows {
			record := []string{
				row.Source,
				string(row.Kind),
				row.TotalAmount.String(),
				strconv.Itoa(row.TxCount),
			}
			if err := w.Write(record); err != nil {
				return err
			}
		}
		return nil
	})
}

func writeAnomaliesCSV(path string, records []domain.AnomalyRecord) error {
	return withCSV(path, func(w *csv.Writer) error {
		header := []string{
			"timestamp", "userId", "id", "action", "source", "amount",
			"anomalyType", "severity", "details", "relatedEntries",
		}
		if err := w.Write(header); err != nil {
			return err
		}
		for _, record := range records {
			row := []string{
				formatTime(record.Timestamp),
				record.UserID,
				record.TransactionID,
				record.Action,
				record.Source,
				record.Amount.String(),
				string(record.Type),
				string(record.Severity),
				record.Details,
				joinInts(record.Related),
			}
			if err := w.Write(row); err != nil {
				return err
			}
		}
		return nil
	})
}

func writeTriageCSV(path string, failures []usecase.NormalizationFailure) error {
	return withCSV(path, func(w *csv.Writer) error {
		if err := w.Write([]string{"file", "line", "field", "reason", "rawTimestamp"}); err != nil {
			return err
		}
		for _, failure := range failures {
			row := []string{
				failure.Record.File,
				strconv.Itoa(failure.Record.Line),
				failure.Field,
				failure.Reason,
				failure.Record.Timestamp,
			}
			if err := w.Write(row); err != nil {
				return err
			}
		}
		return nil
	})
}

func withCSV(path string, fn func(w *csv.Writer) error) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := fn(writer); err != nil {
		return err
	}
	writer.Flush()
	return writer.Error()
}

func formatTime(ts time.Time) string {
	if ts.IsZero() {
		return ""
	}
	return ts.UTC().Format(csvTimeLayout)
}

func formatNullDecimal(d decimal.NullDecimal) string {
	if !d.Valid {
		return ""
	}
	return d.Decimal.String()
}

func joinInts(values []int) string {
	if len(values) == 0 {
		return ""
	}
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ";")
}
