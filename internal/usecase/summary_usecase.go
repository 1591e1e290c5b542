package usecase

import (
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/iho/balanceaudit/internal/domain"
)

// Totals are the whole-run aggregates.
type Totals struct {
	Transactions int
	UniqueUsers  int
	TotalDebit   decimal.Decimal
	TotalCredit  decimal.Decimal
}

// UserSummary aggregates one user's reconciled activity.
type UserSummary struct {
	UserID           string
	TxCount          int
	TotalDebit       decimal.Decimal
	TotalCredit      decimal.Decimal
	Overdrafts       int
	Mismatches       int
	ContinuityBreaks int
}

// SourceSummary aggregates amounts per (source, action kind).
type SourceSummary struct {
	Source      string
	Kind        domain.ActionKind
	TotalAmount decimal.Decimal
	TxCount     int
}

// ReconRow is the fixed ledger projection accountants use to spot
// mismatches and continuity breaks.
type ReconRow struct {
	Timestamp           time.Time
	UserID              string
	TransactionID       string
	Action              string
	Kind                domain.ActionKind
	Source              string
	Currency            string
	PriorBalance        decimal.Decimal
	Amount              decimal.Decimal
	ActualNewBalance    decimal.Decimal
	ExpectedNewBalance  decimal.Decimal
	Mismatch            bool
	ContinuityBreak     bool
	Overdraft           domain.OverdraftKind
	SuggestedAdjustment decimal.NullDecimal
}

// Summary is the full aggregation output of one run.
type Summary struct {
	Totals         Totals
	ByUser         []UserSummary
	BySource       []SourceSummary
	Overdrafts     []*domain.LedgerEntry
	Reconciliation []ReconRow
}

// SummaryUseCase aggregates a finished ledger. Pure and deterministic: no
// side effects, output ordered by its grouping keys.
type SummaryUseCase struct {
	logger zerolog.Logger
}

// NewSummaryUseCase creates a new SummaryUseCase.
func NewSummaryUseCase(logger zerolog.Logger) *SummaryUseCase {
	return &SummaryUseCase{logger: logger}
}

// Summarize builds the per-user and per-source tables, the overdraft subset
// and the reconciliation view.
func (uc *SummaryUseCase) Summarize(ledger []*domain.LedgerEntry) *Summary {
	summary := &Summary{
		Totals: Totals{
			Transactions: len(ledger),
			TotalDebit:   decimal.Zero,
			TotalCredit:  decimal.Zero,
		},
		Overdrafts:     make([]*domain.LedgerEntry, 0),
		Reconciliation: make([]ReconRow, 0, len(ledger)),
	}

	byUser := make(map[string]*UserSummary)
	type sourceKey struct {
		source string
		kind   domain.ActionKind
	}
	bySource := make(map[sourceKey]*SourceSummary)

	for _, entry := range ledger {
		event := entry.Event

		user, ok := byUser[event.UserID]
		if !ok {
			user = &UserSummary{
				UserID:      event.UserID,
				TotalDebit:  decimal.Zero,
				TotalCredit: decimal.Zero,
			}
			byUser[event.UserID] = user
		}
		user.TxCount++

		switch event.Kind {
		case domain.ActionDeduct:
			user.TotalDebit = user.TotalDebit.Add(event.Amount)
			summary.Totals.TotalDebit = summary.Totals.TotalDebit.Add(event.Amount)
		case domain.ActionCredit:
			user.TotalCredit = user.TotalCredit.Add(event.Amount)
			summary.Totals.TotalCredit = summary.Totals.TotalCredit.Add(event.Amount)
		}

		if entry.Overdraft != domain.OverdraftNone {
			user.Overdrafts++
			summary.Overdrafts = append(summary.Overdrafts, entry)
		}
		if entry.Mismatch {
			user.Mismatches++
		}
		if entry.ContinuityBreak {
			user.ContinuityBreaks++
		}

		key := sourceKey{source: event.Source, kind: event.Kind}
		src, ok := bySource[key]
		if !ok {
			src = &SourceSummary{Source: event.Source, Kind: event.Kind, TotalAmount: decimal.Zero}
			bySource[key] = src
		}
		src.TxCount++
		src.TotalAmount = src.TotalAmount.Add(event.Amount)

		summary.Reconciliation = append(summary.Reconciliation, ReconRow{
			Timestamp:           event.Timestamp,
			UserID:              event.UserID,
			TransactionID:       event.ID,
			Action:              event.Action,
			Kind:                event.Kind,
			Source:              event.Source,
			Currency:            event.Currency,
			PriorBalance:        entry.PriorBalance,
			Amount:              event.Amount,
			ActualNewBalance:    entry.ActualNewBalance,
			ExpectedNewBalance:  entry.ExpectedNewBalance,
			Mismatch:            entry.Mismatch,
			ContinuityBreak:     entry.ContinuityBreak,
			Overdraft:           entry.Overdraft,
			SuggestedAdjustment: entry.SuggestedAdjustment,
		})
	}

	summary.Totals.UniqueUsers = len(byUser)

	summary.ByUser = make([]UserSummary, 0, len(byUser))
	for _, user := range byUser {
		summary.ByUser = append(summary.ByUser, *user)
	}
	sort.Slice(summary.ByUser, func(i, j int) bool {
		return summary.ByUser[i].UserID < summary.ByUser[j].UserID
	})

	summary.BySource = make([]SourceSummary, 0, len(bySource))
	for _, src := range bySource {
		summary.BySource = append(summary.BySource, *src)
	}
	sort.Slice(summary.BySource, func(i, j int) bool {
		if summary.BySource[i].Source != summary.BySource[j].Source {
			return summary.BySource[i].Source < summary.BySource[j].Source
		}
		return summary.BySource[i].Kind < summary.BySource[j].Kind
	})

	return summary
}
