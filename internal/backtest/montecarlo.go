package backtest

import (
	"fmt"
	"math/rand/v2"
	"slices"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"backtester/internal/domain"
)

// monteCarloMetrics are the metrics resampled per shuffle.
var monteCarloMetrics = []string{
	domain.MetricTotalReturn,
	domain.MetricMaxDrawdown,
	domain.MetricSharpeRatio,
}

var percentiles = []int{5, 25, 50, 75, 95}

// MonteCarlo replays the trades of r in shuffles random orders from
// r.InitialCapital and summarizes the resulting total return, max drawdown
// and Sharpe ratio. The same seed yields the same result.
func MonteCarlo(r *domain.BacktestResult, shuffles int, seed int64) (*domain.MonteCarloResult, error) {
	if shuffles < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidShuffles, shuffles)
	}
	if len(r.Trades) < 2 {
		return nil, fmt.Errorf("%w: %s has %d", ErrTooFewTrades, r.StrategyName, len(r.Trades))
	}

	rng := rand.New(rand.NewPCG(uint64(seed), uint64(seed)))
	trades := slices.Clone(r.Trades)
	initial := r.InitialCapital
	final := lo.Reduce(trades, func(acc decimal.Decimal, t domain.Trade, _ int) decimal.Decimal {
		return acc.Add(t.PnL)
	}, initial)

	samples := make(map[string][]decimal.Decimal, len(monteCarloMetrics))
	for range shuffles {
		rng.Shuffle(len(trades), func(i, j int) { trades[i], trades[j] = trades[j], trades[i] })
		samples[domain.MetricTotalReturn] = append(samples[domain.MetricTotalReturn], totalReturn(initial, final))
		samples[domain.MetricMaxDrawdown] = append(samples[domain.MetricMaxDrawdown], maxDrawdown(initial, trades))
		samples[domain.MetricSharpeRatio] = append(samples[domain.MetricSharpeRatio], sharpeRatio(trades))
	}

	out := &domain.MonteCarloResult{
		StrategyName: r.StrategyName,
		Symbol:       r.Symbol,
		Trades:       len(trades),
		Shuffles:     shuffles,
		Seed:         seed,
	}
	for _, m := range monteCarloMetrics {
		d := distribution(samples[m])
		d.Metric = m
		d.Actual = r.Metric(m)
		out.Distributions = append(out.Distributions, d)
	}
	return out, nil
}

// distribution computes the mean, population standard deviation and
// nearest-rank percentiles of values.
func distribution(values []decimal.Decimal) domain.Distribution {
	n := decimal.NewFromInt(int64(len(values)))
	mean := sum(values).Div(n)
	variance := lo.Reduce(values, func(acc, v decimal.Decimal, _ int) decimal.Decimal {
		d := v.Sub(mean)
		return acc.Add(d.Mul(d))
	}, decimal.Zero).Div(n)

	sorted := slices.Clone(values)
	slices.SortFunc(sorted, func(a, b decimal.Decimal) int { return a.Cmp(b) })
	ps := lo.Map(percentiles, func(p int, _ int) decimal.Decimal {
		idx := min(max(len(sorted)*p/100, 0), len(sorted)-1)
		return sorted[idx]
	})

	return domain.Distribution{
		Mean: mean,
		Std:  sqrt(variance),
		P5:   ps[0],
		P25:  ps[1],
		P50:  ps[2],
		P75:  ps[3],
		P95:  ps[4],
	}
}
