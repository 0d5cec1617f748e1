package reporting

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/hxse/pyo3-quant-sub000/internal/domain"
)

// RenderMetricsCSV renders run metrics as CSV string.
func RenderMetricsCSV(rows []RunMetricRow) string {
	var sb strings.Builder

	// Header
	sb.WriteString("run_id,final_equity")
	for _, name := range domain.MetricNames {
		sb.WriteString(",")
		sb.WriteString(name)
	}
	sb.WriteString("\n")

	// Rows
	for _, r := range rows {
		sb.WriteString(r.RunID)
		sb.WriteString(",")
		sb.WriteString(FormatMoney(r.FinalEquity))
		m := r.Performance.AsMap()
		for _, name := range domain.MetricNames {
			sb.WriteString(",")
			sb.WriteString(formatFloat(m[name]))
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

// RenderAggregatesCSV renders sweep aggregates as CSV string.
func RenderAggregatesCSV(aggs []*domain.SweepAggregate) string {
	var sb strings.Builder

	sb.WriteString("job_id,metric,runs,best_run_id,best_value,mean,median,p10,p25,p75,p90,min,max,stddev\n")
	for _, a := range aggs {
		sb.WriteString(fmt.Sprintf("%s,%s,%d,%s,%.6f,%.6f,%.6f,%.6f,%.6f,%.6f,%.6f,%.6f,%.6f,%.6f\n",
			a.JobID, a.Metric, a.Runs, a.BestRunID, a.BestValue,
			a.Mean, a.Median, a.P10, a.P25, a.P75, a.P90, a.Min, a.Max, a.Stddev))
	}

	return sb.String()
}

// WriteLedgerCSV writes every column of lg, prefixed by bar index and, when
// timeMs is non-nil, the bar time. NaN cells are empty. Floats use the
// shortest representation that parses back to the same value.
func WriteLedgerCSV(w io.Writer, lg *domain.Ledger, timeMs []int64) error {
	cols := lg.Columns()
	data := make([][]float64, len(cols))
	for i, name := range cols {
		data[i], _ = lg.Float(name)
	}

	cw := csv.NewWriter(w)
	header := []string{"bar"}
	if timeMs != nil {
		header = append(header, "time_ms")
	}
	header = append(header, cols...)
	if err := cw.Write(header); err != nil {
		return err
	}

	record := make([]string, len(header))
	for i := 0; i < lg.Len(); i++ {
		record = record[:0]
		record = append(record, strconv.Itoa(i))
		if timeMs != nil {
			record = append(record, strconv.FormatInt(timeMs[i], 10))
		}
		for c, name := range cols {
			record = append(record, formatCell(name, data[c][i]))
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteTradesCSV writes one line per trade.
func WriteTradesCSV(w io.Writer, trades []domain.Trade) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"seq", "side", "entry_bar", "exit_bar", "entry_price", "exit_price", "exit_reason", "in_bar", "pnl_pct", "fees"}); err != nil {
		return err
	}
	for i, t := range trades {
		if err := cw.Write([]string{
			strconv.Itoa(i),
			t.Side.String(),
			strconv.Itoa(t.EntryBar),
			strconv.Itoa(t.ExitBar),
			formatFloat(t.EntryPrice),
			formatFloat(t.ExitPrice),
			t.ExitReason,
			strconv.FormatBool(t.InBar),
			formatFloat(t.PnlPct),
			formatFloat(t.Fees),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatCell(col string, v float64) string {
	switch col {
	case domain.ColFrameState:
		return domain.PositionState(v).String()
	case domain.ColHasLeadingNaN, domain.ColPause:
		return strconv.FormatBool(v != 0)
	}
	return formatFloat(v)
}

func formatFloat(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}
