// Package report renders backtest results for the terminal and exports
// trade logs.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"

	"backtester/internal/domain"
	"backtester/internal/store"
	"backtester/internal/util"
)

const (
	ruleWidth    = 50
	metricPlaces = 6
)

// styles bound to one output. Writers that are not terminals get plain text.
type styles struct {
	title  lipgloss.Style
	label  lipgloss.Style
	dim    lipgloss.Style
	gain   lipgloss.Style
	loss   lipgloss.Style
	header lipgloss.Style
}

func newStyles(w io.Writer) styles {
	r := lipgloss.NewRenderer(w)
	return styles{
		title:  r.NewStyle().Bold(true).Foreground(lipgloss.Color("12")),
		label:  r.NewStyle().Foreground(lipgloss.Color("245")),
		dim:    r.NewStyle().Foreground(lipgloss.Color("240")),
		gain:   r.NewStyle().Foreground(lipgloss.Color("10")),
		loss:   r.NewStyle().Foreground(lipgloss.Color("9")),
		header: r.NewStyle().Bold(true).Foreground(lipgloss.Color("15")),
	}
}

// signed colours v by its sign.
func (s styles) signed(text string, v decimal.Decimal) string {
	switch v.Sign() {
	case 1:
		return s.gain.Render(text)
	case -1:
		return s.loss.Render(text)
	}
	return text
}

// WriteResult prints the flat summary of one run: header fields, then every
// metric in fixed key order.
func WriteResult(w io.Writer, r *domain.BacktestResult) error {
	s := newStyles(w)
	var b strings.Builder

	rule := s.dim.Render(strings.Repeat("=", ruleWidth))
	b.WriteString(rule + "\n")

	field := func(label, value string) {
		fmt.Fprintf(&b, "%s %s\n", s.label.Render(fmt.Sprintf("%-16s", label+":")), value)
	}
	field("Strategy", s.title.Render(r.StrategyName))
	field("Symbol", r.Symbol)
	field("Interval", string(r.Interval))
	field("Initial Capital", r.InitialCapital.String())
	field("Final Capital", s.signed(r.FinalCapital.String(), r.FinalCapital.Sub(r.InitialCapital)))
	field("Trades", strconv.Itoa(len(r.Trades)))

	b.WriteString("\n" + s.header.Render(center("--- Metrics ---", ruleWidth)) + "\n")
	for _, k := range domain.MetricKeys() {
		v := r.Metric(k)
		text := v.StringFixed(metricPlaces)
		if k == domain.MetricTotalReturn {
			text = s.signed(text, v)
		}
		fmt.Fprintf(&b, "  %-20s: %s\n", k, text)
	}
	b.WriteString(rule + "\n")

	_, err := io.WriteString(w, b.String())
	return err
}

// WriteComparison prints one row per result in the given order.
func WriteComparison(w io.Writer, results []*domain.BacktestResult) error {
	s := newStyles(w)
	var b strings.Builder

	const row = "%-28s %14s %10s %9s %9s %9s %9s %7s"
	header := fmt.Sprintf(row, "Strategy", "Final Capital", "Return", "Win Rate", "PF", "Max DD", "Sharpe", "Trades")
	b.WriteString(s.header.Render(header) + "\n")
	b.WriteString(s.dim.Render(strings.Repeat("-", len(header))) + "\n")

	for _, r := range results {
		ret := r.Metric(domain.MetricTotalReturn)
		line := fmt.Sprintf(row,
			truncate(r.StrategyName, 28),
			r.FinalCapital.StringFixed(2),
			ret.Mul(decimal.NewFromInt(100)).StringFixed(2)+"%",
			r.Metric(domain.MetricWinRate).StringFixed(4),
			r.Metric(domain.MetricProfitFactor).StringFixed(4),
			r.Metric(domain.MetricMaxDrawdown).StringFixed(4),
			r.Metric(domain.MetricSharpeRatio).StringFixed(4),
			strconv.Itoa(len(r.Trades)),
		)
		b.WriteString(s.signed(line, ret) + "\n")
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// WriteRuns lists stored runs, newest first as returned by the store.
func WriteRuns(w io.Writer, runs []store.RunSummary) error {
	s := newStyles(w)
	var b strings.Builder

	const row = "%-36s  %-20s  %-24s  %-10s  %-4s  %14s  %6s"
	header := fmt.Sprintf(row, "ID", "Created", "Strategy", "Symbol", "Int", "Final Capital", "Trades")
	b.WriteString(s.header.Render(header) + "\n")
	b.WriteString(s.dim.Render(strings.Repeat("-", len(header))) + "\n")

	for _, r := range runs {
		line := fmt.Sprintf(row,
			r.ID,
			util.FormatTimestamp(r.CreatedAt),
			truncate(r.StrategyName, 24),
			r.Symbol,
			string(r.Interval),
			r.FinalCapital,
			strconv.Itoa(r.TotalTrades),
		)
		initial, err1 := decimal.NewFromString(r.InitialCapital)
		final, err2 := decimal.NewFromString(r.FinalCapital)
		if err1 == nil && err2 == nil {
			line = s.signed(line, final.Sub(initial))
		}
		b.WriteString(line + "\n")
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// WriteWalkForward prints one row per fold, then the aggregate metrics of
// the test windows.
func WriteWalkForward(w io.Writer, r *domain.WalkForwardResult) error {
	s := newStyles(w)
	var b strings.Builder

	fmt.Fprintf(&b, "%s %s %s, selected by %s\n",
		s.title.Render("Walk-forward"), r.Symbol, r.Interval, r.SelectMetric)

	const row = "%4s  %-16s %-28s %12s %10s %7s"
	header := fmt.Sprintf(row, "Fold", "Strategy", "Instance", "Train", "Test Ret", "Trades")
	b.WriteString(s.header.Render(header) + "\n")
	b.WriteString(s.dim.Render(strings.Repeat("-", len(header))) + "\n")

	for _, f := range r.Folds {
		ret := f.Test.Metric(domain.MetricTotalReturn)
		line := fmt.Sprintf(row,
			strconv.Itoa(f.Index),
			truncate(f.Strategy, 16),
			truncate(f.Train.StrategyName, 28),
			f.Train.Metric(r.SelectMetric).StringFixed(4),
			ret.Mul(decimal.NewFromInt(100)).StringFixed(2)+"%",
			strconv.Itoa(len(f.Test.Trades)),
		)
		b.WriteString(s.signed(line, ret) + "\n")
	}

	b.WriteString("\n" + s.header.Render(center("--- Test Windows ---", ruleWidth)) + "\n")
	fmt.Fprintf(&b, "  %-20s: %s\n", "final_capital", s.signed(r.FinalCapital.String(), r.FinalCapital.Sub(r.InitialCapital)))
	for _, k := range domain.MetricKeys() {
		fmt.Fprintf(&b, "  %-20s: %s\n", k, r.Metric(k).StringFixed(metricPlaces))
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// WriteMonteCarlo prints the actual value and shuffle distribution of each
// resampled metric.
func WriteMonteCarlo(w io.Writer, r *domain.MonteCarloResult) error {
	s := newStyles(w)
	var b strings.Builder

	fmt.Fprintf(&b, "%s %s %s: %d trades, %d shuffles, seed %d\n",
		s.title.Render("Monte Carlo"), r.StrategyName, r.Symbol, r.Trades, r.Shuffles, r.Seed)

	const row = "%-14s %10s %10s %10s %10s %10s %10s %10s %10s"
	header := fmt.Sprintf(row, "Metric", "Actual", "Mean", "Std", "P5", "P25", "P50", "P75", "P95")
	b.WriteString(s.header.Render(header) + "\n")
	b.WriteString(s.dim.Render(strings.Repeat("-", len(header))) + "\n")

	for _, d := range r.Distributions {
		fmt.Fprintf(&b, row+"\n", d.Metric,
			d.Actual.StringFixed(4), d.Mean.StringFixed(4), d.Std.StringFixed(4),
			d.P5.StringFixed(4), d.P25.StringFixed(4), d.P50.StringFixed(4),
			d.P75.StringFixed(4), d.P95.StringFixed(4))
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// WriteTradesCSV exports trades with a header row. Times are Unix seconds
// followed by their RFC 3339 rendering.
func WriteTradesCSV(w io.Writer, trades []domain.Trade) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{
		"symbol", "quantity", "entry_time", "entry_at", "entry_price",
		"exit_time", "exit_at", "exit_price", "pnl", "return",
	}); err != nil {
		return err
	}
	for _, t := range trades {
		if err := cw.Write([]string{
			t.Symbol,
			t.Quantity.String(),
			strconv.FormatInt(t.EntryTime, 10),
			util.FormatTimestamp(t.EntryTime),
			t.EntryPrice.String(),
			strconv.FormatInt(t.ExitTime, 10),
			util.FormatTimestamp(t.ExitTime),
			t.ExitPrice.String(),
			t.PnL.String(),
			t.ReturnPct().String(),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteJSON encodes v as indented JSON.
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func center(s string, width int) string {
	if len(s) >= width {
		return s
	}
	left := (width - len(s)) / 2
	return strings.Repeat(" ", left) + s + strings.Repeat(" ", width-len(s)-left)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "~"
}
