package backtest

import (
	"context"
	"errors"
	"fmt"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"backtester/internal/domain"
	"backtester/internal/strategy"
)

// WalkForwardConfig sizes the folds in candles. Metric picks the strategy
// of each train window and ranks as RankResults does.
type WalkForwardConfig struct {
	TrainWindow int
	TestWindow  int
	Step        int
	Metric      string
	Concurrency int // per train window; 0 means one per strategy
}

func (c WalkForwardConfig) validate() error {
	if c.TrainWindow < 1 || c.TestWindow < 1 || c.Step < 1 {
		return fmt.Errorf("%w: train %d, test %d, step %d", ErrInvalidWindow, c.TrainWindow, c.TestWindow, c.Step)
	}
	if !lo.Contains(domain.MetricKeys(), c.Metric) {
		return fmt.Errorf("%w: %q", ErrUnknownMetric, c.Metric)
	}
	return nil
}

// WalkForward loads the requested candles once and rolls a train window
// followed by a test window across them, advancing by Step. On each train
// window every registered strategy that accepts params is simulated; the
// best one by Metric is rebuilt fresh and simulated on the test window.
// Strategies whose params are invalid are skipped.
func (b *Backtester) WalkForward(ctx context.Context, registry *strategy.Registry, params strategy.Params, req Request, cfg WalkForwardConfig) (*domain.WalkForwardResult, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	names, err := b.buildable(registry, params)
	if err != nil {
		return nil, err
	}

	candles, err := b.load(ctx, req)
	if err != nil {
		return nil, err
	}
	span := cfg.TrainWindow + cfg.TestWindow
	if len(candles) < span {
		return nil, fmt.Errorf("%w: have %d, need %d", ErrInsufficientCandles, len(candles), span)
	}

	result := &domain.WalkForwardResult{
		Symbol:         req.Symbol,
		Interval:       req.Interval,
		SelectMetric:   cfg.Metric,
		InitialCapital: req.InitialCapital,
	}
	var trades []domain.Trade

	for offset := 0; offset+span <= len(candles); offset += cfg.Step {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		train := candles[offset : offset+cfg.TrainWindow]
		test := candles[offset+cfg.TrainWindow : offset+span]

		strats, err := buildAll(registry, names, params)
		if err != nil {
			return nil, err
		}
		trainResults, err := b.simulateAll(ctx, strats, req, train, cfg.Concurrency)
		if err != nil {
			return nil, fmt.Errorf("fold %d train: %w", len(result.Folds), err)
		}
		best := RankResults(trainResults, cfg.Metric)[0]
		name := names[lo.IndexOf(trainResults, best)]

		fresh, err := registry.Build(name, params)
		if err != nil {
			return nil, err
		}
		testResult, err := b.Simulate(fresh, req, test)
		if err != nil {
			return nil, fmt.Errorf("fold %d test: %w", len(result.Folds), err)
		}

		b.log.Info("fold complete",
			"fold", len(result.Folds),
			"strategy", name,
			"train_"+cfg.Metric, best.Metric(cfg.Metric).String(),
			"test_return", testResult.Metric(domain.MetricTotalReturn).String(),
		)
		result.Folds = append(result.Folds, domain.Fold{
			Index:    len(result.Folds),
			Strategy: name,
			Train:    best,
			Test:     testResult,
		})
		trades = append(trades, testResult.Trades...)
	}

	pnl := lo.Reduce(trades, func(acc decimal.Decimal, t domain.Trade, _ int) decimal.Decimal {
		return acc.Add(t.PnL)
	}, decimal.Zero)
	result.FinalCapital = req.InitialCapital.Add(pnl)
	result.Metrics = CalculateMetrics(req.InitialCapital, result.FinalCapital, trades)
	return result, nil
}

// buildable returns the registered names whose factories accept params.
func (b *Backtester) buildable(registry *strategy.Registry, params strategy.Params) ([]string, error) {
	var names []string
	for _, name := range registry.List() {
		if _, err := registry.Build(name, params); err != nil {
			if errors.Is(err, strategy.ErrInvalidParams) {
				b.log.Warn("strategy skipped", "strategy", name, "error", err)
				continue
			}
			return nil, err
		}
		names = append(names, name)
	}
	if len(names) == 0 {
		return nil, ErrNoStrategies
	}
	return names, nil
}

func buildAll(registry *strategy.Registry, names []string, params strategy.Params) ([]strategy.Strategy, error) {
	strats := make([]strategy.Strategy, 0, len(names))
	for _, name := range names {
		s, err := registry.Build(name, params)
		if err != nil {
			return nil, err
		}
		strats = append(strats, s)
	}
	return strats, nil
}
