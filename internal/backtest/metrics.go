package backtest

import (
	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"backtester/internal/domain"
	"backtester/internal/util"
)

const metricPlaces = 16

// CalculateMetrics derives the summary statistics of a run from its capital
// and closed trades. initial must be positive.
func CalculateMetrics(initial, final decimal.Decimal, trades []domain.Trade) map[string]decimal.Decimal {
	return map[string]decimal.Decimal{
		domain.MetricTotalReturn:  totalReturn(initial, final),
		domain.MetricWinRate:      winRate(trades),
		domain.MetricProfitFactor: profitFactor(trades),
		domain.MetricMaxDrawdown:  maxDrawdown(initial, trades),
		domain.MetricSharpeRatio:  sharpeRatio(trades),
		domain.MetricTotalTrades:  decimal.NewFromInt(int64(len(trades))),
	}
}

func totalReturn(initial, final decimal.Decimal) decimal.Decimal {
	if initial.IsZero() {
		return decimal.Zero
	}
	return final.Sub(initial).Div(initial)
}

func winRate(trades []domain.Trade) decimal.Decimal {
	if len(trades) == 0 {
		return decimal.Zero
	}
	wins := lo.CountBy(trades, func(t domain.Trade) bool { return t.PnL.IsPositive() })
	return decimal.NewFromInt(int64(wins)).Div(decimal.NewFromInt(int64(len(trades))))
}

// profitFactor is gross profit over gross loss, and exactly zero when there
// is no loss.
func profitFactor(trades []domain.Trade) decimal.Decimal {
	var profit, loss decimal.Decimal
	for _, t := range trades {
		switch {
		case t.PnL.IsPositive():
			profit = profit.Add(t.PnL)
		case t.PnL.IsNegative():
			loss = loss.Add(t.PnL.Neg())
		}
	}
	if loss.IsZero() {
		return decimal.Zero
	}
	return profit.Div(loss)
}

// maxDrawdown walks the equity curve sampled after each trade, starting from
// initial.
func maxDrawdown(initial decimal.Decimal, trades []domain.Trade) decimal.Decimal {
	equity, peak, worst := initial, initial, decimal.Zero
	for _, t := range trades {
		equity = equity.Add(t.PnL)
		if equity.GreaterThan(peak) {
			peak = equity
			continue
		}
		if !peak.IsPositive() {
			continue
		}
		if dd := peak.Sub(equity).Div(peak); dd.GreaterThan(worst) {
			worst = dd
		}
	}
	return worst
}

// sharpeRatio is mean over population standard deviation of per-trade
// returns, with a zero risk-free rate.
func sharpeRatio(trades []domain.Trade) decimal.Decimal {
	if len(trades) < 2 {
		return decimal.Zero
	}
	returns := lo.Map(trades, func(t domain.Trade, _ int) decimal.Decimal { return t.ReturnPct() })
	n := decimal.NewFromInt(int64(len(returns)))

	mean := sum(returns).Div(n)
	variance := lo.Reduce(returns, func(acc, r decimal.Decimal, _ int) decimal.Decimal {
		d := r.Sub(mean)
		return acc.Add(d.Mul(d))
	}, decimal.Zero).Div(n)
	if !variance.IsPositive() {
		return decimal.Zero
	}
	return mean.DivRound(sqrt(variance), metricPlaces)
}

func sum(ds []decimal.Decimal) decimal.Decimal {
	return lo.Reduce(ds, func(acc, d decimal.Decimal, _ int) decimal.Decimal { return acc.Add(d) }, decimal.Zero)
}

func sqrt(x decimal.Decimal) decimal.Decimal {
	return util.Sqrt(x, metricPlaces)
}
