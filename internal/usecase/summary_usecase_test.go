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

func summaryEntry(user, id, source string, kind domain.ActionKind, amount string, mutate func(*domain.LedgerEntry)) *domain.LedgerEntry {
	entry := &domain.LedgerEntry{
		CurrencyResolved: true,
		Overdraft:        domain.OverdraftNone,
		Event: domain.TransactionEvent{
			UserID:    user,
			ID:        id,
			Timestamp: time.Date(2025, 3, 12, 10, 0, 0, 0, time.UTC),
			Kind:      kind,
			Action:    string(kind),
			Source:    source,
			Currency:  "SAR",
			Amount:    dec(amount),
		},
	}
	if mutate != nil {
		mutate(entry)
	}
	return entry
}

func TestSummaryUseCase_Summarize(t *testing.T) {
	uc := usecase.NewSummaryUseCase(zerolog.Nop())

	ledger := []*domain.LedgerEntry{
		summaryEntry("user-a", "tx-1", "MANUAL", domain.ActionDeduct, "25", nil),
		summaryEntry("user-a", "tx-2", "SYSTEM", domain.ActionCredit, "100", func(e *domain.LedgerEntry) {
			e.Mismatch = true
		}),
		summaryEntry("user-b", "tx-3", "MANUAL", domain.ActionDeduct, "40", func(e *domain.LedgerEntry) {
			e.Overdraft = domain.OverdraftActual
			e.ContinuityBreak = true
		}),
		summaryEntry("user-b", "tx-4", "MANUAL", domain.ActionDeduct, "10", nil),
	}

	summary := uc.Summarize(ledger)

	assert.Equal(t, 4, summary.Totals.Transactions)
	assert.Equal(t, 2, summary.Totals.UniqueUsers)
	assert.True(t, summary.Totals.TotalDebit.Equal(dec("75")))
	assert.True(t, summary.Totals.TotalCredit.Equal(dec("100")))

	require.Len(t, summary.ByUser, 2)
	userA, userB := summary.ByUser[0], summary.ByUser[1]
	assert.Equal(t, "user-a", userA.UserID)
	assert.Equal(t, 2, userA.TxCount)
	assert.Equal(t, 1, userA.Mismatches)
	assert.Equal(t, "user-b", userB.UserID)
	assert.True(t, userB.TotalDebit.Equal(dec("50")))
	assert.Equal(t, 1, userB.Overdrafts)
	assert.Equal(t, 1, userB.ContinuityBreaks)

	// (source, kind) groups sorted by source then kind.
	require.Len(t, summary.BySource, 2)
	assert.Equal(t, "MANUAL", summary.BySource[0].Source)
	assert.Equal(t, domain.ActionDeduct, summary.BySource[0].Kind)
	assert.Equal(t, 3, summary.BySource[0].TxCount)
	assert.True(t, summary.BySource[0].TotalAmount.Equal(dec("75")))
	assert.Equal(t, "SYSTEM", summary.BySource[1].Source)

	require.Len(t, summary.Overdrafts, 1)
	assert.Equal(t, "tx-3", summary.Overdrafts[0].Event.ID)

	require.Len(t, summary.Reconciliation, 4)
	assert.Equal(t, "tx-1", summary.Reconciliation[0].TransactionID)
	assert.True(t, summary.Reconciliation[2].ContinuityBreak)
}

func TestSummaryUseCase_EmptyLedger(t *testing.T) {
	uc := usecase.NewSummaryUseCase(zerolog.Nop())

	summary := uc.Summarize(nil)

	assert.Equal(t, 0, summary.Totals.Transactions)
	assert.Equal(t, 0, summary.Totals.UniqueUsers)
	assert.Empty(t, summary.ByUser)
	assert.Empty(t, summary.BySource)
	assert.Empty(t, summary.Overdrafts)
	assert.Empty(t, summary.Reconciliation)
}
