package domain

import (
	"github.com/shopspring/decimal"
)

// OverdraftKind classifies which of the expected/actual balances went
// negative on an entry.
type OverdraftKind string

const (
	OverdraftNone     OverdraftKind = "NONE"
	OverdraftExpected OverdraftKind = "EXPECTED"
	OverdraftActual   OverdraftKind = "ACTUAL"
	OverdraftBoth     OverdraftKind = "BOTH"
)

// ClassifyOverdraft derives the overdraft kind from the signs of the expected
// and actual balances.
func ClassifyOverdraft(expected, actual decimal.Decimal) OverdraftKind {
	expNeg := expected.IsNegative()
	actNeg := actual.IsNegative()
	switch {
	case expNeg && actNeg:
		return OverdraftBoth
	case expNeg:
		return OverdraftExpected
	case actNeg:
		return OverdraftActual
	default:
		return OverdraftNone
	}
}

// LedgerEntry is one reconciled transaction row: the event plus the balances
// and flags derived during the fold. Entries are never mutated after the
// fold, except that anomaly back-references are attached once all detectors
// have finished.
type LedgerEntry struct {
	Event TransactionEvent

	PriorBalance       decimal.Decimal
	ExpectedNewBalance decimal.Decimal
	ActualNewBalance   decimal.Decimal

	Mismatch        bool
	MismatchDelta   decimal.Decimal
	WithinTolerance bool

	Overdraft       OverdraftKind
	ContinuityBreak bool

	// SuggestedAdjustment is expected minus actual, set only on a mismatch.
	SuggestedAdjustment decimal.NullDecimal

	// CurrencyResolved is false when the rounding table fell back to the
	// default precision for this entry's currency.
	CurrencyResolved bool

	// AnomalyRefs indexes into the run's anomaly table, attached after
	// detection completes.
	AnomalyRefs []int
}
