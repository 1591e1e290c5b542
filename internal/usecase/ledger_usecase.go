package usecase

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"sync"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/iho/balanceaudit/internal/domain"
)

// LedgerUseCase folds normalized events into reconciled ledger entries.
type LedgerUseCase struct {
	tolerance decimal.Decimal
	rounding  *domain.RoundingTable
	workers   int
	logger    zerolog.Logger
}

// NewLedgerUseCase creates a new LedgerUseCase. A negative tolerance is a
// fatal configuration error.
func NewLedgerUseCase(tolerance decimal.Decimal, rounding *domain.RoundingTable, logger zerolog.Logger) (*LedgerUseCase, error) {
	if tolerance.IsNegative() {
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidTolerance, tolerance)
	}

	return &LedgerUseCase{
		tolerance: tolerance,
		rounding:  rounding,
		workers:   runtime.GOMAXPROCS(0),
		logger:    logger,
	}, nil
}

// Build partitions events by user, orders each partition by the canonical
// (timestamp, id, messageId) key and folds a running balance through it.
// Folds are sequential within a user and run concurrently across users;
// partitions share no state. Output is deterministic: partitions are emitted
// in sorted userId order.
func (uc *LedgerUseCase) Build(ctx context.Context, events []*domain.TransactionEvent) []*domain.LedgerEntry {
	_ = ctx

	partitions := make(map[string][]*domain.TransactionEvent)
	for _, event := range events {
		partitions[event.UserID] = append(partitions[event.UserID], event)
	}

	users := make([]string, 0, len(partitions))
	for userID := range partitions {
		users = append(users, userID)
	}
	sort.Strings(users)

	perUser := make([][]*domain.LedgerEntry, len(users))

	var wg sync.WaitGroup
	sem := make(chan struct{}, uc.workers)
	for i, userID := range users {
		wg.Add(1)
		sem <- struct{}{}
		go func(slot int, sequence []*domain.TransactionEvent) {
			defer wg.Done()
			defer func() { <-sem }()
			perUser[slot] = uc.foldUser(sequence)
		}(i, partitions[userID])
	}
	wg.Wait()

	ledger := make([]*domain.LedgerEntry, 0, len(events))
	for _, entries := range perUser {
		ledger = append(ledger, entries...)
	}

	uc.logger.Info().
		Int("events", len(events)).
		Int("users", len(users)).
		Int("entries", len(ledger)).
		Msg("ledger built")

	return ledger
}

// foldUser computes one user's entries in order. Entry n depends on the
// running balance finalized by entries 1..n-1, so this is strictly
// sequential.
func (uc *LedgerUseCase) foldUser(sequence []*domain.TransactionEvent) []*domain.LedgerEntry {
	sort.SliceStable(sequence, func(i, j int) bool {
		return sequence[i].Before(sequence[j])
	})

	entries := make([]*domain.LedgerEntry, 0, len(sequence))
	var running decimal.Decimal

	for i, event := range sequence {
		rule, resolved := uc.rounding.Rule(event.Currency)
		signed := event.SignedAmount()

		// The event's own logged prior wins; the running balance is the
		// fallback so continuity checks stay meaningful.
		var prior decimal.Decimal
		switch {
		case event.LoggedPriorBalance.Valid:
			prior = rule.Quantize(event.LoggedPriorBalance.Decimal)
		case i == 0 && event.LoggedNewBalance.Valid:
			prior = rule.Quantize(event.LoggedNewBalance.Decimal.Sub(signed))
		case i == 0:
			prior = decimal.Zero
		default:
			prior = running
		}

		expected := rule.Quantize(prior.Add(signed))

		actual := expected
		if event.LoggedNewBalance.Valid {
			actual = rule.Quantize(event.LoggedNewBalance.Decimal)
		}

		delta := actual.Sub(expected)
		mismatch := delta.Abs().GreaterThan(uc.tolerance)

		entry := &domain.LedgerEntry{
			Event:              *event,
			PriorBalance:       prior,
			ExpectedNewBalance: expected,
			ActualNewBalance:   actual,
			Mismatch:           mismatch,
			MismatchDelta:      delta,
			WithinTolerance:    !mismatch,
			Overdraft:          domain.ClassifyOverdraft(expected, actual),
			CurrencyResolved:   resolved,
		}

		if mismatch {
			entry.SuggestedAdjustment = decimal.NewNullDecimal(rule.Quantize(expected.Sub(actual)))
		}

		if i > 0 {
			prevActual := entries[i-1].ActualNewBalance
			entry.ContinuityBreak = prior.Sub(prevActual).Abs().GreaterThan(uc.tolerance)
		}

		entries = append(entries, entry)
		running = actual
	}

	return entries
}
