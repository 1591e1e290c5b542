package usecase

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/iho/balanceaudit/internal/domain"
)

// Detector is one pure anomaly strategy over a finished ledger snapshot.
// Detectors never mutate entries and do not depend on each other, so the
// use case may run them in any order or in parallel.
type Detector interface {
	Type() domain.AnomalyType
	Detect(ledger []*domain.LedgerEntry) []domain.AnomalyRecord
}

// AnomalyConfig carries the detector sensitivities for one run.
type AnomalyConfig struct {
	// MADThreshold is the k in |amount - median| > k*MAD.
	MADThreshold float64
	// BurstWindow is the same-user gap below which entries count as a burst.
	BurstWindow time.Duration
	// RapidWindow bounds repeated identical manual deductions for one user.
	RapidWindow time.Duration
	// Business hours in UTC; transactions outside [Open, Close) or on
	// weekends are flagged.
	BusinessOpenHour  int
	BusinessCloseHour int
	// RoundingPatternMin is how often the same non-zero adjustment must
	// recur per user/currency before it counts as systematic.
	RoundingPatternMin int
}

// AnomalyUseCase runs the fixed detector set over a ledger.
type AnomalyUseCase struct {
	detectors []Detector
	logger    zerolog.Logger
}

// NewAnomalyUseCase creates the detector set from config. Nonsensical
// windows or hours are fatal configuration errors.
func NewAnomalyUseCase(cfg AnomalyConfig, logger zerolog.Logger) (*AnomalyUseCase, error) {
	if cfg.BurstWindow <= 0 || cfg.RapidWindow <= 0 {
		return nil, fmt.Errorf("%w: burst=%s rapid=%s", domain.ErrInvalidWindow, cfg.BurstWindow, cfg.RapidWindow)
	}
	if cfg.BusinessOpenHour < 0 || cfg.BusinessCloseHour > 24 || cfg.BusinessOpenHour >= cfg.BusinessCloseHour {
		return nil, fmt.Errorf("%w: open=%d close=%d", domain.ErrBusinessHours, cfg.BusinessOpenHour, cfg.BusinessCloseHour)
	}
	if cfg.RoundingPatternMin < 2 {
		cfg.RoundingPatternMin = 2
	}

	return &AnomalyUseCase{
		detectors: []Detector{
			&invalidActionDetector{},
			&madSpikeDetector{threshold: decimal.NewFromFloat(cfg.MADThreshold)},
			&duplicateIDDetector{},
			&rapidDeductionDetector{window: cfg.RapidWindow},
			&burstDetector{window: cfg.BurstWindow},
			&afterHoursDetector{open: cfg.BusinessOpenHour, close: cfg.BusinessCloseHour},
			&roundingPatternDetector{minRepeats: cfg.RoundingPatternMin},
			&currencyMismatchDetector{},
			&missingFieldDetector{},
			&continuityBreakDetector{},
			&balanceMismatchDetector{},
		},
		logger: logger,
	}, nil
}

// DetectAll runs every detector concurrently over the same ledger snapshot
// and merges the findings into one deterministically ordered table.
func (uc *AnomalyUseCase) DetectAll(ctx context.Context, ledger []*domain.LedgerEntry) []domain.AnomalyRecord {
	_ = ctx

	perDetector := make([][]domain.AnomalyRecord, len(uc.detectors))

	var wg sync.WaitGroup
	for i, detector := range uc.detectors {
		wg.Add(1)
		go func(slot int, d Detector) {
			defer wg.Done()
			perDetector[slot] = d.Detect(ledger)
		}(i, detector)
	}
	wg.Wait()

	var records []domain.AnomalyRecord
	for i, found := range perDetector {
		if len(found) > 0 {
			uc.logger.Debug().
				Str("detector", string(uc.detectors[i].Type())).
				Int("findings", len(found)).
				Msg("detector finished")
		}
		records = append(records, found...)
	}

	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.Before(b.Timestamp)
		}
		if a.UserID != b.UserID {
			return a.UserID < b.UserID
		}
		if a.TransactionID != b.TransactionID {
			return a.TransactionID < b.TransactionID
		}
		return a.Type < b.Type
	})

	return records
}

// Annotate attaches anomaly back-references to ledger entries. Runs strictly
// after detection so the ledger stays immutable while detectors read it.
func Annotate(ledger []*domain.LedgerEntry, anomalies []domain.AnomalyRecord) {
	for i := range anomalies {
		for _, entryIdx := range anomalies[i].Related {
			if entryIdx >= 0 && entryIdx < len(ledger) {
				ledger[entryIdx].AnomalyRefs = append(ledger[entryIdx].AnomalyRefs, i)
			}
		}
	}
}

func newRecord(t domain.AnomalyType, severity domain.Severity, entry *domain.LedgerEntry, idx int, details string) domain.AnomalyRecord {
	return domain.AnomalyRecord{
		Type:          t,
		Severity:      severity,
		UserID:        entry.Event.UserID,
		TransactionID: entry.Event.ID,
		Timestamp:     entry.Event.Timestamp,
		Action:        entry.Event.Action,
		Source:        entry.Event.Source,
		Amount:        entry.Event.Amount,
		Details:       details,
		Related:       []int{idx},
	}
}

type indexedEntry struct {
	idx   int
	entry *domain.LedgerEntry
}

// byUser splits the ledger into per-user sequences, preserving the ledger's
// per-user (timestamp, id, messageId) order and original indexes. Returned
// user keys are sorted for deterministic iteration.
func byUser(ledger []*domain.LedgerEntry) ([]string, map[string][]indexedEntry) {
	sequences := make(map[string][]indexedEntry)
	for i, entry := range ledger {
		uid := entry.Event.UserID
		sequences[uid] = append(sequences[uid], indexedEntry{idx: i, entry: entry})
	}

	users := make([]string, 0, len(sequences))
	for uid := range sequences {
		users = append(users, uid)
	}
	sort.Strings(users)
	return users, sequences
}

// invalidActionDetector flags actions outside the recognized enumeration,
// including misspelled invalid markers.
type invalidActionDetector struct{}

func (d *invalidActionDetector) Type() domain.AnomalyType { return domain.AnomalyInvalidAction }

func (d *invalidActionDetector) Detect(ledger []*domain.LedgerEntry) []domain.AnomalyRecord {
	var records []domain.AnomalyRecord
	for i, entry := range ledger {
		switch entry.Event.Kind {
		case domain.ActionInvalid, domain.ActionUnknown:
			records = append(records, newRecord(d.Type(), domain.SeverityMedium, entry, i,
				fmt.Sprintf("action %q is not a recognized action", entry.Event.Action)))
		}
	}
	return records
}

// madSpikeDetector flags amounts whose absolute deviation from the
// (user, action) group median exceeds threshold times the group MAD.
// Requires the whole group materialized: two passes, never incremental.
type madSpikeDetector struct {
	threshold decimal.Decimal
}

func (d *madSpikeDetector) Type() domain.AnomalyType { return domain.AnomalyMADSpike }

func (d *madSpikeDetector) Detect(ledger []*domain.LedgerEntry) []domain.AnomalyRecord {
	type groupKey struct {
		userID string
		kind   domain.ActionKind
	}

	groups := make(map[groupKey][]indexedEntry)
	var keys []groupKey
	for i, entry := range ledger {
		key := groupKey{userID: entry.Event.UserID, kind: entry.Event.Kind}
		if _, seen := groups[key]; !seen {
			keys = append(keys, key)
		}
		groups[key] = append(groups[key], indexedEntry{idx: i, entry: entry})
	}

	sort.Slice(keys, func(i, j int) bool {
		if keys[i].userID != keys[j].userID {
			return keys[i].userID < keys[j].userID
		}
		return keys[i].kind < keys[j].kind
	})

	var records []domain.AnomalyRecord
	for _, key := range keys {
		group := groups[key]

		amounts := make([]decimal.Decimal, len(group))
		for i, member := range group {
			amounts[i] = member.entry.Event.Amount
		}

		median := medianOf(amounts)
		deviations := make([]decimal.Decimal, len(amounts))
		for i, amount := range amounts {
			deviations[i] = amount.Sub(median).Abs()
		}
		mad := medianOf(deviations)
		// A zero MAD means more than half the group is identical; every
		// deviation would score infinite, so the group is skipped.
		if mad.IsZero() {
			continue
		}

		for i, member := range group {
			score := deviations[i].Div(mad)
			if score.GreaterThanOrEqual(d.threshold) {
				records = append(records, newRecord(d.Type(), domain.SeverityHigh, member.entry, member.idx,
					fmt.Sprintf("MAD z-score %s >= %s for %s/%s",
						score.Round(2), d.threshold, key.userID, key.kind)))
			}
		}
	}
	return records
}

func medianOf(values []decimal.Decimal) decimal.Decimal {
	sorted := make([]decimal.Decimal, len(values))
	copy(sorted, values)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].LessThan(sorted[j]) })

	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return sorted[mid-1].Add(sorted[mid]).Div(decimal.NewFromInt(2))
}

// duplicateIDDetector emits one record per transaction id shared by two or
// more entries, referencing all of them.
type duplicateIDDetector struct{}

func (d *duplicateIDDetector) Type() domain.AnomalyType { return domain.AnomalyDuplicateID }

func (d *duplicateIDDetector) Detect(ledger []*domain.LedgerEntry) []domain.AnomalyRecord {
	byID := make(map[string][]int)
	var ids []string
	for i, entry := range ledger {
		id := entry.Event.ID
		if _, seen := byID[id]; !seen {
			ids = append(ids, id)
		}
		byID[id] = append(byID[id], i)
	}
	sort.Strings(ids)

	var records []domain.AnomalyRecord
	for _, id := range ids {
		indexes := byID[id]
		if len(indexes) < 2 {
			continue
		}
		record := newRecord(d.Type(), domain.SeverityHigh, ledger[indexes[0]], indexes[0],
			fmt.Sprintf("transaction id %q appears %d times", id, len(indexes)))
		record.Related = indexes
		records = append(records, record)
	}
	return records
}

// rapidDeductionDetector flags the same manual-source negative-amount action
// repeating for one user with the same amount inside the configured window.
// System-driven retries are expected traffic and stay out of scope.
type rapidDeductionDetector struct {
	window time.Duration
}

func (d *rapidDeductionDetector) Type() domain.AnomalyType { return domain.AnomalyRapidDeduction }

func (d *rapidDeductionDetector) Detect(ledger []*domain.LedgerEntry) []domain.AnomalyRecord {
	type repeatKey struct {
		kind   domain.ActionKind
		amount string
	}

	var records []domain.AnomalyRecord
	users, sequences := byUser(ledger)
	for _, uid := range users {
		lastSeen := make(map[repeatKey]time.Time)
		for _, member := range sequences[uid] {
			event := member.entry.Event
			if !strings.Contains(strings.ToUpper(event.Source), "MANUAL") {
				continue
			}
			if !event.SignedAmount().IsNegative() {
				continue
			}
			key := repeatKey{kind: event.Kind, amount: event.Amount.String()}
			if prev, ok := lastSeen[key]; ok {
				if gap := event.Timestamp.Sub(prev); gap >= 0 && gap <= d.window {
					records = append(records, newRecord(d.Type(), domain.SeverityMedium, member.entry, member.idx,
						fmt.Sprintf("repeated manual %s of %s within %s", event.Kind, event.Amount, d.window)))
				}
			}
			lastSeen[key] = event.Timestamp
		}
	}
	return records
}

// burstDetector flags same-user transactions closer together than the burst
// window.
type burstDetector struct {
	window time.Duration
}

func (d *burstDetector) Type() domain.AnomalyType { return domain.AnomalyBurst }

func (d *burstDetector) Detect(ledger []*domain.LedgerEntry) []domain.AnomalyRecord {
	var records []domain.AnomalyRecord
	users, sequences := byUser(ledger)
	for _, uid := range users {
		sequence := sequences[uid]
		for i := 1; i < len(sequence); i++ {
			gap := sequence[i].entry.Event.Timestamp.Sub(sequence[i-1].entry.Event.Timestamp)
			if gap >= 0 && gap < d.window {
				record := newRecord(d.Type(), domain.SeverityMedium, sequence[i].entry, sequence[i].idx,
					fmt.Sprintf("transactions %s apart", gap))
				record.Related = []int{sequence[i-1].idx, sequence[i].idx}
				records = append(records, record)
			}
		}
	}
	return records
}

// afterHoursDetector flags transactions outside business hours (UTC) or on
// weekends.
type afterHoursDetector struct {
	open  int
	close int
}

func (d *afterHoursDetector) Type() domain.AnomalyType { return domain.AnomalyAfterHours }

func (d *afterHoursDetector) Detect(ledger []*domain.LedgerEntry) []domain.AnomalyRecord {
	var records []domain.AnomalyRecord
	for i, entry := range ledger {
		ts := entry.Event.Timestamp.UTC()
		weekend := ts.Weekday() == time.Saturday || ts.Weekday() == time.Sunday
		afterHours := ts.Hour() < d.open || ts.Hour() >= d.close

		switch {
		case weekend:
			records = append(records, newRecord(d.Type(), domain.SeverityLow, entry, i,
				fmt.Sprintf("transaction on %s", ts.Weekday())))
		case afterHours:
			records = append(records, newRecord(d.Type(), domain.SeverityLow, entry, i,
				fmt.Sprintf("transaction at %02d:00 UTC outside %02d:00-%02d:00", ts.Hour(), d.open, d.close)))
		}
	}
	return records
}

// roundingPatternDetector looks for the same non-zero suggested adjustment
// recurring for one user and currency, which points at a rounding-rule
// mismatch rather than a one-off error.
type roundingPatternDetector struct {
	minRepeats int
}

func (d *roundingPatternDetector) Type() domain.AnomalyType { return domain.AnomalyRoundingPattern }

func (d *roundingPatternDetector) Detect(ledger []*domain.LedgerEntry) []domain.AnomalyRecord {
	type patternKey struct {
		userID     string
		currency   string
		adjustment string
	}

	groups := make(map[patternKey][]int)
	var keys []patternKey
	for i, entry := range ledger {
		if !entry.SuggestedAdjustment.Valid || entry.SuggestedAdjustment.Decimal.IsZero() {
			continue
		}
		key := patternKey{
			userID:     entry.Event.UserID,
			currency:   entry.Event.Currency,
			adjustment: entry.SuggestedAdjustment.Decimal.String(),
		}
		if _, seen := groups[key]; !seen {
			keys = append(keys, key)
		}
		groups[key] = append(groups[key], i)
	}

	sort.Slice(keys, func(i, j int) bool {
		if keys[i].userID != keys[j].userID {
			return keys[i].userID < keys[j].userID
		}
		if keys[i].currency != keys[j].currency {
			return keys[i].currency < keys[j].currency
		}
		return keys[i].adjustment < keys[j].adjustment
	})

	var records []domain.AnomalyRecord
	for _, key := range keys {
		indexes := groups[key]
		if len(indexes) < d.minRepeats {
			continue
		}
		record := newRecord(d.Type(), domain.SeverityMedium, ledger[indexes[0]], indexes[0],
			fmt.Sprintf("adjustment %s %s recurs %d times for %s", key.adjustment, key.currency, len(indexes), key.userID))
		record.Related = indexes
		records = append(records, record)
	}
	return records
}

// currencyMismatchDetector surfaces every entry whose currency the rounding
// table could only resolve via fallback.
type currencyMismatchDetector struct{}

func (d *currencyMismatchDetector) Type() domain.AnomalyType { return domain.AnomalyCurrencyMismatch }

func (d *currencyMismatchDetector) Detect(ledger []*domain.LedgerEntry) []domain.AnomalyRecord {
	var records []domain.AnomalyRecord
	for i, entry := range ledger {
		if entry.CurrencyResolved {
			continue
		}
		records = append(records, newRecord(d.Type(), domain.SeverityLow, entry, i,
			fmt.Sprintf("currency %q not in rounding table, default precision applied", entry.Event.Currency)))
	}
	return records
}

// missingFieldDetector flags blank action or source fields that survived
// normalization.
type missingFieldDetector struct{}

func (d *missingFieldDetector) Type() domain.AnomalyType { return domain.AnomalyMissingField }

func (d *missingFieldDetector) Detect(ledger []*domain.LedgerEntry) []domain.AnomalyRecord {
	var records []domain.AnomalyRecord
	for i, entry := range ledger {
		if entry.Event.Action == "" {
			records = append(records, newRecord(d.Type(), domain.SeverityLow, entry, i, "action is blank"))
		}
		if entry.Event.Source == "" {
			records = append(records, newRecord(d.Type(), domain.SeverityLow, entry, i, "source is blank"))
		}
	}
	return records
}

// continuityBreakDetector surfaces ledger continuity flags as anomaly rows.
type continuityBreakDetector struct{}

func (d *continuityBreakDetector) Type() domain.AnomalyType { return domain.AnomalyContinuityBreak }

func (d *continuityBreakDetector) Detect(ledger []*domain.LedgerEntry) []domain.AnomalyRecord {
	var records []domain.AnomalyRecord
	for i, entry := range ledger {
		if !entry.ContinuityBreak {
			continue
		}
		records = append(records, newRecord(d.Type(), domain.SeverityMedium, entry, i,
			"prior balance does not match previous new balance"))
	}
	return records
}

// balanceMismatchDetector surfaces ledger mismatch flags as anomaly rows.
type balanceMismatchDetector struct{}

func (d *balanceMismatchDetector) Type() domain.AnomalyType { return domain.AnomalyBalanceMismatch }

func (d *balanceMismatchDetector) Detect(ledger []*domain.LedgerEntry) []domain.AnomalyRecord {
	var records []domain.AnomalyRecord
	for i, entry := range ledger {
		if !entry.Mismatch {
			continue
		}
		records = append(records, newRecord(d.Type(), domain.SeverityHigh, entry, i,
			fmt.Sprintf("expected %s != actual %s", entry.ExpectedNewBalance, entry.ActualNewBalance)))
	}
	return records
}
