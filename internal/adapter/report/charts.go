package report

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/wcharczuk/go-chart/v2"

	"github.com/iho/balanceaudit/internal/domain"
	"github.com/iho/balanceaudit/internal/usecase"
)

const topOverdraftUsers = 10

// renderCharts writes the PNG charts for a run. Chart rendering is best
// effort: a failed chart is logged, the tables already carry the numbers.
func renderCharts(dir string, report *usecase.Report, logger zerolog.Logger) {
	renderBarChart(dir, "amount_by_action.png", "Total Amount by Action", amountByAction(report), logger)
	renderBarChart(dir, "top_overdraft_users.png", "Top Overdraft Users", overdraftUsers(report), logger)
	renderBarChart(dir, "anomalies_by_type.png", "Anomalies by Type", anomalyCounts(report), logger)
}

func amountByAction(report *usecase.Report) []chart.Value {
	totals := make(map[domain.ActionKind]decimal.Decimal)
	for _, row := range report.Summary.BySource {
		totals[row.Kind] = totals[row.Kind].Add(row.TotalAmount)
	}

	var bars []chart.Value
	for kind, total := range totals {
		value, _ := total.Float64()
		bars = append(bars, chart.Value{Label: string(kind), Value: value})
	}
	sortBars(bars)
	return bars
}

func overdraftUsers(report *usecase.Report) []chart.Value {
	totals := make(map[string]decimal.Decimal)
	for _, entry := range report.Summary.Overdrafts {
		uid := entry.Event.UserID
		totals[uid] = totals[uid].Add(entry.Event.Amount)
	}

	var bars []chart.Value
	for uid, total := range totals {
		value, _ := total.Abs().Float64()
		bars = append(bars, chart.Value{Label: uid, Value: value})
	}
	sort.Slice(bars, func(i, j int) bool {
		if bars[i].Value != bars[j].Value {
			return bars[i].Value > bars[j].Value
		}
		return bars[i].Label < bars[j].Label
	})
	if len(bars) > topOverdraftUsers {
		bars = bars[:topOverdraftUsers]
	}
	return bars
}

func anomalyCounts(report *usecase.Report) []chart.Value {
	counts := make(map[string]int)
	for _, record := range report.Anomalies {
		counts[string(record.Type)]++
	}

	var bars []chart.Value
	for kind, count := range counts {
		bars = append(bars, chart.Value{Label: kind, Value: float64(count)})
	}
	sortBars(bars)
	return bars
}

func sortBars(bars []chart.Value) {
	sort.Slice(bars, func(i, j int) bool { return bars[i].Label < bars[j].Label })
}

func renderBarChart(dir, name, title string, bars []chart.Value, logger zerolog.Logger) {
	if len(bars) == 0 {
		return
	}

	barChart := chart.BarChart{
		Title: title,
		Background: chart.Style{
			Padding: chart.Box{Top: 40, Left: 20, Right: 20, Bottom: 20},
		},
		Width:  800,
		Height: 400,
		Bars:   bars,
	}

	path := filepath.Join(dir, name)
	file, err := os.Create(path)
	if err != nil {
		logger.Warn().Err(err).Str("chart", name).Msg("creating chart file failed")
		return
	}
	defer file.Close()

	if err := barChart.Render(chart.PNG, file); err != nil {
		logger.Warn().Err(err).Str("chart", name).Msg("rendering chart failed")
	}
}
