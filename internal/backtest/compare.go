package backtest

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"backtester/internal/domain"
	"backtester/internal/strategy"
)

// Compare fetches the requested candles once and simulates every strategy
// over them, at most concurrency at a time (0 means one per strategy).
// Results are returned in the order of strats. Each strategy instance must
// appear only once. The first failure cancels the remaining runs.
func (b *Backtester) Compare(ctx context.Context, strats []strategy.Strategy, req Request, concurrency int) ([]*domain.BacktestResult, error) {
	candles, err := b.load(ctx, req)
	if err != nil {
		return nil, err
	}
	return b.simulateAll(ctx, strats, req, candles, concurrency)
}

// simulateAll runs every strategy over the same candles, at most
// concurrency at a time.
func (b *Backtester) simulateAll(ctx context.Context, strats []strategy.Strategy, req Request, candles []domain.Candle, concurrency int) ([]*domain.BacktestResult, error) {
	results := make([]*domain.BacktestResult, len(strats))
	g, gctx := errgroup.WithContext(ctx)
	if concurrency > 0 {
		g.SetLimit(concurrency)
	}
	for i, s := range strats {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			r, err := b.Simulate(s, req, candles)
			if err != nil {
				return fmt.Errorf("strategy %s: %w", s.Name(), err)
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// RankResults returns results sorted best first by metric. Lower is better
// for max_drawdown and higher for every other metric. Ties keep strategy
// name order.
func RankResults(results []*domain.BacktestResult, metric string) []*domain.BacktestResult {
	ranked := make([]*domain.BacktestResult, len(results))
	copy(ranked, results)

	lowerIsBetter := metric == domain.MetricMaxDrawdown
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i].Metric(metric), ranked[j].Metric(metric)
		if !a.Equal(b) {
			if lowerIsBetter {
				return a.LessThan(b)
			}
			return a.GreaterThan(b)
		}
		return ranked[i].StrategyName < ranked[j].StrategyName
	})
	return ranked
}
