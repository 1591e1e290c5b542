package usecase_test

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iho/balanceaudit/internal/domain"
	"github.com/iho/balanceaudit/internal/usecase"
)

func validRawRecord() domain.RawRecord {
	return domain.RawRecord{
		File:      "app.log",
		Line:      42,
		EventType: domain.RawEventBalanceSync,
		MessageID: "msg-1",
		Timestamp: "2025-03-12T10:15:00.250Z",
		Fields: map[string]any{
			"userId":     "user-1",
			"id":         "tx-1",
			"type":       "DEBIT",
			"action":     "SUBSCRIPTION_PAYMENT",
			"amount":     25.5,
			"vat":        0.5,
			"oldBalance": int64(100),
			"newBalance": 74.5,
			"currency":   "sar",
			"source":     "manual",
		},
	}
}

func TestNormalizeUseCase_Normalize(t *testing.T) {
	uc := usecase.NewNormalizeUseCase(zerolog.Nop())

	event, failure := uc.Normalize(validRawRecord())
	require.Nil(t, failure)
	require.NotNil(t, event)

	assert.Equal(t, "user-1", event.UserID)
	assert.Equal(t, "tx-1", event.ID)
	assert.Equal(t, "msg-1", event.MessageID)
	assert.Equal(t, time.Date(2025, 3, 12, 10, 15, 0, 250_000_000, time.UTC), event.Timestamp)
	assert.Equal(t, "SUBSCRIPTION_PAYMENT", event.Action)
	// The free-form action is unrecognized; the type field decides the kind.
	assert.Equal(t, domain.ActionDeduct, event.Kind)
	assert.True(t, event.Amount.Equal(dec("25.5")))
	assert.True(t, event.VAT.Equal(dec("0.5")))
	assert.Equal(t, "SAR", event.Currency)
	assert.Equal(t, "MANUAL", event.Source)
	require.True(t, event.LoggedPriorBalance.Valid)
	assert.True(t, event.LoggedPriorBalance.Decimal.Equal(dec("100")))
	require.True(t, event.LoggedNewBalance.Valid)
	assert.True(t, event.LoggedNewBalance.Decimal.Equal(dec("74.5")))
}

func TestNormalizeUseCase_Failures(t *testing.T) {
	uc := usecase.NewNormalizeUseCase(zerolog.Nop())

	tests := []struct {
		name      string
		mutate    func(record *domain.RawRecord)
		wantField string
	}{
		{
			name:      "missing user id",
			mutate:    func(r *domain.RawRecord) { delete(r.Fields, "userId") },
			wantField: "userId",
		},
		{
			name:      "missing transaction id",
			mutate:    func(r *domain.RawRecord) { delete(r.Fields, "id") },
			wantField: "id",
		},
		{
			name:      "missing amount",
			mutate:    func(r *domain.RawRecord) { delete(r.Fields, "amount") },
			wantField: "amount",
		},
		{
			name:      "unparseable amount",
			mutate:    func(r *domain.RawRecord) { r.Fields["amount"] = "twenty" },
			wantField: "amount",
		},
		{
			name:      "missing timestamp",
			mutate:    func(r *domain.RawRecord) { r.Timestamp = "" },
			wantField: "timestamp",
		},
		{
			name:      "unparseable timestamp",
			mutate:    func(r *domain.RawRecord) { r.Timestamp = "yesterday" },
			wantField: "timestamp",
		},
		{
			name:      "unparseable logged balance",
			mutate:    func(r *domain.RawRecord) { r.Fields["newBalance"] = "n/a" },
			wantField: "newBalance",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			record := validRawRecord()
			tt.mutate(&record)

			event, failure := uc.Normalize(record)
			assert.Nil(t, event)
			require.NotNil(t, failure)
			assert.Equal(t, tt.wantField, failure.Field)
			assert.Equal(t, record.File, failure.Record.File)
			assert.Equal(t, record.Line, failure.Record.Line)
		})
	}
}

func TestNormalizeUseCase_Defaults(t *testing.T) {
	uc := usecase.NewNormalizeUseCase(zerolog.Nop())

	record := validRawRecord()
	delete(record.Fields, "currency")
	delete(record.Fields, "vat")
	delete(record.Fields, "source")
	delete(record.Fields, "oldBalance")
	delete(record.Fields, "newBalance")

	event, failure := uc.Normalize(record)
	require.Nil(t, failure)

	assert.Equal(t, "UNKNOWN", event.Currency)
	assert.True(t, event.VAT.IsZero())
	assert.Equal(t, "", event.Source)
	assert.False(t, event.LoggedPriorBalance.Valid)
	assert.False(t, event.LoggedNewBalance.Valid)
}

func TestNormalizeUseCase_NormalizeAll(t *testing.T) {
	uc := usecase.NewNormalizeUseCase(zerolog.Nop())

	bad := validRawRecord()
	delete(bad.Fields, "amount")

	records := []domain.RawRecord{
		validRawRecord(),
		bad,
		{EventType: domain.RawEventSkip, Timestamp: "2025-03-12T10:16:00.000Z"},
		validRawRecord(),
	}

	result := uc.NormalizeAll(records)

	// One malformed record never discards the rest of the batch.
	assert.Len(t, result.Events, 2)
	assert.Len(t, result.Failures, 1)
	assert.Equal(t, 1, result.Skipped)
}

func TestNormalizeUseCase_ClampsFloatNoise(t *testing.T) {
	uc := usecase.NewNormalizeUseCase(zerolog.Nop())

	record := validRawRecord()
	record.Fields["amount"] = 25.5
	record.Fields["vat"] = 4.9e-12

	event, failure := uc.Normalize(record)
	require.Nil(t, failure)
	assert.True(t, event.VAT.IsZero(), "vat = %s", event.VAT)
}
