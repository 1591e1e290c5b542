package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// AnomalyType enumerates the detector kinds.
type AnomalyType string

const (
	AnomalyInvalidAction    AnomalyType = "InvalidAction"
	AnomalyMADSpike         AnomalyType = "MADSpike"
	AnomalyDuplicateID      AnomalyType = "DuplicateTxId"
	AnomalyRapidDeduction   AnomalyType = "RapidDeduction"
	AnomalyBurst            AnomalyType = "Burst"
	AnomalyAfterHours       AnomalyType = "AfterHours"
	AnomalyRoundingPattern  AnomalyType = "RoundingPattern"
	AnomalyCurrencyMismatch AnomalyType = "CurrencyMismatch"
	AnomalyMissingField     AnomalyType = "MissingField"
	AnomalyContinuityBreak  AnomalyType = "ContinuityBreak"
	AnomalyBalanceMismatch  AnomalyType = "BalanceMismatch"
)

// Severity ranks how urgent an anomaly is for review.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// AnomalyRecord is one finding emitted by a detector. A single transaction
// may appear in records of several types.
type AnomalyRecord struct {
	Type     AnomalyType
	Severity Severity

	UserID        string
	TransactionID string
	Timestamp     time.Time
	Action        string
	Source        string
	Amount        decimal.Decimal

	Details string

	// Related holds indexes into the ledger the record was detected on.
	// Weak references: lookup only, no ownership.
	Related []int
}
