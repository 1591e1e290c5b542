package metrics_test

import (
	"bytes"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/iho/balanceaudit/internal/domain"
	"github.com/iho/balanceaudit/internal/infrastructure/metrics"
)

func TestMetrics_Observe(t *testing.T) {
	m := metrics.New()

	m.ObserveParse(10, 2, 1)
	m.ObserveLedger(9, 3, 1, 2)
	m.ObserveAnomaly(domain.AnomalyBalanceMismatch)
	m.ObserveAnomaly(domain.AnomalyBalanceMismatch)
	m.ObserveAnomaly(domain.AnomalyMADSpike)

	assert.Equal(t, 10.0, testutil.ToFloat64(m.RecordsParsed))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.RecordsSkipped))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.NormalizationFailures))
	assert.Equal(t, 9.0, testutil.ToFloat64(m.LedgerEntries))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.BalanceMismatches))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ContinuityBreaks))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Overdrafts))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Anomalies.WithLabelValues(string(domain.AnomalyBalanceMismatch))))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Anomalies.WithLabelValues(string(domain.AnomalyMADSpike))))
}

func TestMetrics_PrivateRegistries(t *testing.T) {
	first := metrics.New()
	second := metrics.New()

	first.ObserveParse(5, 0, 0)

	assert.Equal(t, 5.0, testutil.ToFloat64(first.RecordsParsed))
	assert.Equal(t, 0.0, testutil.ToFloat64(second.RecordsParsed))
}

func TestMetrics_Log(t *testing.T) {
	m := metrics.New()
	m.ObserveParse(7, 0, 0)
	m.ObserveAnomaly(domain.AnomalyBurst)

	var buf bytes.Buffer
	m.Log(zerolog.New(&buf))

	out := buf.String()
	assert.Contains(t, out, "run counters")
	assert.Contains(t, out, `"audit_records_parsed_total":7`)
	assert.Contains(t, out, "audit_anomalies_total_"+string(domain.AnomalyBurst))
	// Zero counters stay out of the line.
	assert.NotContains(t, out, "audit_overdrafts_total")
}
