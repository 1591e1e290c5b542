package usecase

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/iho/balanceaudit/internal/domain"
)

// Timestamp layout used by the application logs (millisecond UTC).
const logTimestampLayout = "2006-01-02T15:04:05.000Z"

// Float noise below this magnitude is clamped to zero before quantizing.
var zeroNoise = decimal.New(1, -9)

// NormalizationFailure reports a single raw record that could not be coerced
// into a TransactionEvent. The offending record travels with the failure so
// triage output stays traceable to the source line.
type NormalizationFailure struct {
	Record domain.RawRecord
	Field  string
	Reason string
}

// NormalizeResult partitions a raw batch into typed events, per-record
// failures and skipped non-transaction records.
type NormalizeResult struct {
	Events   []*domain.TransactionEvent
	Failures []NormalizationFailure
	Skipped  int
}

// NormalizeUseCase converts loosely-typed parsed records into
// TransactionEvents, one record at a time. A malformed record never aborts
// the batch.
type NormalizeUseCase struct {
	logger zerolog.Logger
}

// NewNormalizeUseCase creates a new NormalizeUseCase.
func NewNormalizeUseCase(logger zerolog.Logger) *NormalizeUseCase {
	return &NormalizeUseCase{logger: logger}
}

// NormalizeAll normalizes every record in the batch, collecting failures
// separately so one malformed line never discards the rest of the run.
func (uc *NormalizeUseCase) NormalizeAll(records []domain.RawRecord) NormalizeResult {
	result := NormalizeResult{
		Events:   make([]*domain.TransactionEvent, 0, len(records)),
		Failures: make([]NormalizationFailure, 0),
	}

	for _, record := range records {
		if record.EventType == domain.RawEventSkip {
			result.Skipped++
			continue
		}

		event, failure := uc.Normalize(record)
		if failure != nil {
			uc.logger.Debug().
				Str("file", failure.Record.File).
				Int("line", failure.Record.Line).
				Str("field", failure.Field).
				Str("reason", failure.Reason).
				Msg("record failed normalization")
			result.Failures = append(result.Failures, *failure)
			continue
		}
		result.Events = append(result.Events, event)
	}

	return result
}

// Normalize coerces one raw record into a TransactionEvent. Exactly one of
// the return values is non-nil.
func (uc *NormalizeUseCase) Normalize(record domain.RawRecord) (*domain.TransactionEvent, *NormalizationFailure) {
	fail := func(field, reason string) (*domain.TransactionEvent, *NormalizationFailure) {
		return nil, &NormalizationFailure{Record: record, Field: field, Reason: reason}
	}

	userID, ok := stringField(record.Fields, "userId")
	if !ok || userID == "" {
		return fail("userId", "missing required field")
	}

	id, ok := stringField(record.Fields, "id")
	if !ok || id == "" {
		return fail("id", "missing required field")
	}

	if record.Timestamp == "" {
		return fail("timestamp", "missing required field")
	}
	timestamp, err := parseLogTimestamp(record.Timestamp)
	if err != nil {
		return fail("timestamp", fmt.Sprintf("unparseable timestamp %q", record.Timestamp))
	}

	amount, present, err := decimalField(record.Fields, "amount")
	if err != nil {
		return fail("amount", err.Error())
	}
	if !present {
		return fail("amount", "missing required field")
	}

	vat, _, err := decimalField(record.Fields, "vat")
	if err != nil {
		return fail("vat", err.Error())
	}

	prior, err := nullDecimalField(record.Fields, "oldBalance")
	if err != nil {
		return fail("oldBalance", err.Error())
	}
	logged, err := nullDecimalField(record.Fields, "newBalance")
	if err != nil {
		return fail("newBalance", err.Error())
	}

	action, _ := stringField(record.Fields, "action")
	typ, _ := stringField(record.Fields, "type")
	kind := domain.ParseActionKind(action)
	if kind == domain.ActionUnknown && typ != "" {
		kind = domain.ParseActionKind(typ)
	}

	currency, _ := stringField(record.Fields, "currency")
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		currency = "UNKNOWN"
	}

	source, _ := stringField(record.Fields, "source")

	messageID := record.MessageID
	if fieldMsg, ok := stringField(record.Fields, "messageId"); ok && fieldMsg != "" {
		messageID = fieldMsg
	}

	return &domain.TransactionEvent{
		UserID:             userID,
		Timestamp:          timestamp,
		ID:                 id,
		MessageID:          messageID,
		Action:             strings.TrimSpace(action),
		Kind:               kind,
		Amount:             clampNoise(amount),
		VAT:                clampNoise(vat),
		Currency:           currency,
		Source:             strings.ToUpper(strings.TrimSpace(source)),
		LoggedPriorBalance: prior,
		LoggedNewBalance:   logged,
	}, nil
}

func parseLogTimestamp(raw string) (time.Time, error) {
	if ts, err := time.Parse(logTimestampLayout, raw); err == nil {
		return ts.UTC(), nil
	}
	ts, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, err
	}
	return ts.UTC(), nil
}

func stringField(fields map[string]any, key string) (string, bool) {
	value, ok := fields[key]
	if !ok || value == nil {
		return "", false
	}
	switch v := value.(type) {
	case string:
		return v, true
	default:
		return fmt.Sprintf("%v", v), true
	}
}

func decimalField(fields map[string]any, key string) (decimal.Decimal, bool, error) {
	value, ok := fields[key]
	if !ok || value == nil {
		return decimal.Zero, false, nil
	}
	d, err := coerceDecimal(value)
	if err != nil {
		return decimal.Zero, true, fmt.Errorf("unparseable %s: %v", key, value)
	}
	return d, true, nil
}

func nullDecimalField(fields map[string]any, key string) (decimal.NullDecimal, error) {
	d, present, err := decimalField(fields, key)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	if !present {
		return decimal.NullDecimal{}, nil
	}
	return decimal.NewNullDecimal(clampNoise(d)), nil
}

func coerceDecimal(value any) (decimal.Decimal, error) {
	switch v := value.(type) {
	case float64:
		return decimal.NewFromFloat(v), nil
	case int64:
		return decimal.NewFromInt(v), nil
	case int:
		return decimal.NewFromInt(int64(v)), nil
	case string:
		return decimal.NewFromString(strings.TrimSpace(v))
	case decimal.Decimal:
		return v, nil
	default:
		return decimal.Zero, fmt.Errorf("unsupported numeric type %T", value)
	}
}

// clampNoise zeroes sub-nano float residue so it cannot leak into quantized
// balances.
func clampNoise(d decimal.Decimal) decimal.Decimal {
	if d.Abs().LessThan(zeroNoise) {
		return decimal.Zero
	}
	return d
}
