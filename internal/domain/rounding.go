package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// RoundingMode names the rounding behavior of a rule. Only half-up is used;
// the field exists so the rule is self-describing in reports.
type RoundingMode string

const RoundHalfUp RoundingMode = "HALF_UP"

// CurrencyRoundingRule describes how amounts in one currency are quantized.
type CurrencyRoundingRule struct {
	Currency      string
	DecimalPlaces int32
	Mode          RoundingMode
}

// Quantize rounds d to the rule's decimal places, half away from zero.
func (r CurrencyRoundingRule) Quantize(d decimal.Decimal) decimal.Decimal {
	return d.Round(r.DecimalPlaces)
}

// RoundingTable maps currency codes to rounding rules. Immutable after
// construction and safe for concurrent reads.
type RoundingTable struct {
	defaultDecimals int32
	overrides       map[string]int32
}

// DefaultCurrencyDecimals are the built-in per-currency precisions. They form
// the baseline of every rounding table; configured overrides layer on top.
var DefaultCurrencyDecimals = map[string]int{"SAR": 3, "BHD": 4}

// NewRoundingTable builds a rounding table from a default precision and
// per-currency overrides. The built-in currency precisions are always
// present; an override replaces a built-in entry, a partial override map
// never discards the rest. A negative precision anywhere is a configuration
// fault the run cannot recover from.
func NewRoundingTable(defaultDecimals int, overrides map[string]int) (*RoundingTable, error) {
	if defaultDecimals < 0 {
		return nil, fmt.Errorf("%w: default decimals %d", ErrNegativeDecimals, defaultDecimals)
	}

	table := &RoundingTable{
		defaultDecimals: int32(defaultDecimals),
		overrides:       make(map[string]int32, len(DefaultCurrencyDecimals)+len(overrides)),
	}

	for currency, places := range DefaultCurrencyDecimals {
		table.overrides[normalizeToken(currency)] = int32(places)
	}
	for currency, places := range overrides {
		if places < 0 {
			return nil, fmt.Errorf("%w: currency %s decimals %d", ErrNegativeDecimals, currency, places)
		}
		table.overrides[normalizeToken(currency)] = int32(places)
	}

	return table, nil
}

// Rule resolves the rounding rule for a currency. The boolean reports whether
// the currency was recognized; on an unknown currency the returned rule uses
// the default precision so the caller always has a usable rule, and the
// fallback itself is surfaced downstream as a CurrencyMismatch anomaly.
func (t *RoundingTable) Rule(currency string) (CurrencyRoundingRule, bool) {
	code := normalizeToken(currency)
	if places, ok := t.overrides[code]; ok {
		return CurrencyRoundingRule{Currency: code, DecimalPlaces: places, Mode: RoundHalfUp}, true
	}
	return CurrencyRoundingRule{Currency: code, DecimalPlaces: t.defaultDecimals, Mode: RoundHalfUp}, false
}
