package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// RawRecord is a loosely-typed record recovered from the logs by the parser.
// Field values are whatever the parser could coerce (string, int64, float64,
// bool or nil); the normalizer turns them into a TransactionEvent.
type RawRecord struct {
	File      string
	Line      int
	EventType string
	MessageID string
	Timestamp string
	Fields    map[string]any
}

// Raw record event types emitted by the parser.
const (
	RawEventBalanceSync = "BALANCE_SYNC"
	RawEventSkip        = "SKIP_CREATE_SUBSCRIPTION"
)

// ActionKind is the closed set of recognized transaction actions.
type ActionKind string

const (
	ActionDeduct     ActionKind = "DEDUCT"
	ActionCredit     ActionKind = "CREDIT"
	ActionAdjustment ActionKind = "ADJUSTMENT"
	ActionInvalid    ActionKind = "INVALID"
	ActionUnknown    ActionKind = "UNKNOWN"
)

// TransactionEvent is a normalized balance-sync transaction. Created once by
// the normalizer and read-only afterwards.
type TransactionEvent struct {
	UserID    string
	Timestamp time.Time
	ID        string
	MessageID string

	// Action is the raw action string from the log; Kind is its mapping
	// into the recognized enumeration.
	Action string
	Kind   ActionKind

	Amount   decimal.Decimal
	VAT      decimal.Decimal
	Currency string
	Source   string

	LoggedPriorBalance decimal.NullDecimal
	LoggedNewBalance   decimal.NullDecimal
}

// SignedAmount returns the effective balance delta of the event: VAT-exclusive
// amount credited or deducted according to the action kind. Adjustments and
// unrecognized actions apply the amount as logged.
func (e *TransactionEvent) SignedAmount() decimal.Decimal {
	net := e.Amount.Sub(e.VAT)
	switch e.Kind {
	case ActionCredit:
		return net
	case ActionDeduct:
		return net.Neg()
	default:
		return e.Amount
	}
}

// Before reports whether e orders before other under the canonical
// (timestamp, id, messageId) tie-break used for per-user sequences.
func (e *TransactionEvent) Before(other *TransactionEvent) bool {
	if !e.Timestamp.Equal(other.Timestamp) {
		return e.Timestamp.Before(other.Timestamp)
	}
	if e.ID != other.ID {
		return e.ID < other.ID
	}
	return e.MessageID < other.MessageID
}

// ParseActionKind maps a raw action or type string onto the recognized
// enumeration. Misspellings containing "INVAL" collapse to ActionInvalid so
// typoed invalid markers are still caught.
func ParseActionKind(raw string) ActionKind {
	switch upper := normalizeToken(raw); upper {
	case "DEDUCT", "DEBIT":
		return ActionDeduct
	case "CREDIT":
		return ActionCredit
	case "ADJUSTMENT", "ADJUST":
		return ActionAdjustment
	default:
		if containsInvalidMarker(upper) {
			return ActionInvalid
		}
		return ActionUnknown
	}
}

func normalizeToken(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == ' ' || c == '\t' {
			continue
		}
		if c >= 'a' && c <= 'z' {
			c -= 'a' - 'A'
		}
		out = append(out, c)
	}
	return string(out)
}

func containsInvalidMarker(upper string) bool {
	// Covers both INVALID and the INVAILID typo seen in real logs.
	for i := 0; i+5 <= len(upper); i++ {
		if upper[i:i+5] == "INVAL" || upper[i:i+5] == "INVAI" {
			return true
		}
	}
	return false
}
