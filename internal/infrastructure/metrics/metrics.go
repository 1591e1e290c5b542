package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/iho/balanceaudit/internal/domain"
)

// Metrics holds the run counters on a private registry, so repeated runs in
// one process never collide on the default registry.
type Metrics struct {
	registry *prometheus.Registry

	RecordsParsed         prometheus.Counter
	RecordsSkipped        prometheus.Counter
	NormalizationFailures prometheus.Counter
	LedgerEntries         prometheus.Counter
	BalanceMismatches     prometheus.Counter
	ContinuityBreaks      prometheus.Counter
	Overdrafts            prometheus.Counter
	Anomalies             *prometheus.CounterVec
}

// New creates and registers all counters.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		RecordsParsed: factory.NewCounter(prometheus.CounterOpts{
			Name: "audit_records_parsed_total",
			Help: "Raw records recovered from the logs",
		}),
		RecordsSkipped: factory.NewCounter(prometheus.CounterOpts{
			Name: "audit_records_skipped_total",
			Help: "Non-transaction records skipped during normalization",
		}),
		NormalizationFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "audit_normalization_failures_total",
			Help: "Records that could not be coerced into events",
		}),
		LedgerEntries: factory.NewCounter(prometheus.CounterOpts{
			Name: "audit_ledger_entries_total",
			Help: "Reconciled ledger entries built",
		}),
		BalanceMismatches: factory.NewCounter(prometheus.CounterOpts{
			Name: "audit_balance_mismatches_total",
			Help: "Entries where actual and expected balance diverge beyond tolerance",
		}),
		ContinuityBreaks: factory.NewCounter(prometheus.CounterOpts{
			Name: "audit_continuity_breaks_total",
			Help: "Entries whose prior balance does not continue the previous entry",
		}),
		Overdrafts: factory.NewCounter(prometheus.CounterOpts{
			Name: "audit_overdrafts_total",
			Help: "Entries with a negative expected or actual balance",
		}),
		Anomalies: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "audit_anomalies_total",
			Help: "Anomaly records by detector type",
		}, []string{"type"}),
	}
}

// ObserveParse implements usecase.RunMetrics.
func (m *Metrics) ObserveParse(records, skipped, failures int) {
	m.RecordsParsed.Add(float64(records))
	m.RecordsSkipped.Add(float64(skipped))
	m.NormalizationFailures.Add(float64(failures))
}

// ObserveLedger implements usecase.RunMetrics.
func (m *Metrics) ObserveLedger(entries, mismatches, breaks, overdrafts int) {
	m.LedgerEntries.Add(float64(entries))
	m.BalanceMismatches.Add(float64(mismatches))
	m.ContinuityBreaks.Add(float64(breaks))
	m.Overdrafts.Add(float64(overdrafts))
}

// ObserveAnomaly implements usecase.RunMetrics.
func (m *Metrics) ObserveAnomaly(kind domain.AnomalyType) {
	m.Anomalies.WithLabelValues(string(kind)).Inc()
}

// Log gathers the registry and emits one structured line per non-zero
// counter, the batch equivalent of a scrape.
func (m *Metrics) Log(logger zerolog.Logger) {
	families, err := m.registry.Gather()
	if err != nil {
		logger.Warn().Err(err).Msg("gathering metrics failed")
		return
	}

	event := logger.Info()
	for _, family := range families {
		for _, metric := range family.GetMetric() {
			value := metric.GetCounter().GetValue()
			if value == 0 {
				continue
			}
			name := family.GetName()
			for _, label := range metric.GetLabel() {
				name += "_" + label.GetValue()
			}
			event = event.Float64(name, value)
		}
	}
	event.Msg("run counters")
}
