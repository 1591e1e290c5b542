package report

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/olekukonko/tablewriter"

	"github.com/iho/balanceaudit/internal/usecase"
)

// writeSummaryTables renders the run summary to the console and saves a
// markdown copy next to the CSV tables.
func writeSummaryTables(console io.Writer, mdPath string, report *usecase.Report) error {
	renderSummary(console, report, false)

	file, err := os.Create(mdPath)
	if err != nil {
		return err
	}
	defer file.Close()

	fmt.Fprintf(file, "# Balance audit %s\n\n", report.RunID)
	fmt.Fprintf(file, "Generated: %s\n\n", report.GeneratedAt.Format(csvTimeLayout))
	renderSummary(file, report, true)
	return nil
}

func renderSummary(w io.Writer, report *usecase.Report, markdown bool) {
	totals := report.Summary.Totals

	overview := newTable(w, markdown)
	overview.SetHeader([]string{"Metric", "Value"})
	overview.Append([]string{"Transactions", strconv.Itoa(totals.Transactions)})
	overview.Append([]string{"Unique users", strconv.Itoa(totals.UniqueUsers)})
	overview.Append([]string{"Total debit", totals.TotalDebit.String()})
	overview.Append([]string{"Total credit", totals.TotalCredit.String()})
	overview.Append([]string{"Overdraft entries", strconv.Itoa(len(report.Summary.Overdrafts))})
	overview.Append([]string{"Anomalies", strconv.Itoa(len(report.Anomalies))})
	overview.Append([]string{"Triage records", strconv.Itoa(len(report.Failures))})
	overview.Append([]string{"Skipped records", strconv.Itoa(report.Skipped)})
	overview.Render()

	fmt.Fprintln(w)

	byUser := newTable(w, markdown)
	byUser.SetHeader([]string{"User", "Tx", "Debit", "Credit", "Overdrafts", "Mismatches", "Breaks"})
	for _, row := range report.Summary.ByUser {
		byUser.Append([]string{
			row.UserID,
			strconv.Itoa(row.TxCount),
			row.TotalDebit.String(),
			row.TotalCredit.String(),
			strconv.Itoa(row.Overdrafts),
			strconv.Itoa(row.Mismatches),
			strconv.Itoa(row.ContinuityBreaks),
		})
	}
	byUser.Render()

	if len(report.Anomalies) == 0 {
		return
	}

	fmt.Fprintln(w)

	counts := make(map[string]int)
	var order []string
	for _, record := range report.Anomalies {
		key := string(record.Type)
		if _, seen := counts[key]; !seen {
			order = append(order, key)
		}
		counts[key]++
	}

	anomalies := newTable(w, markdown)
	anomalies.SetHeader([]string{"Anomaly", "Count"})
	for _, key := range order {
		anomalies.Append([]string{key, strconv.Itoa(counts[key])})
	}
	anomalies.Render()
}

func newTable(w io.Writer, markdown bool) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	if markdown {
		table.SetBorders(tablewriter.Border{Left: true, Top: false, Right: true, Bottom: false})
		table.SetCenterSeparator("|")
	}
	return table
}
