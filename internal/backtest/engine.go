// Package backtest replays candles through a strategy against a
// single-position, all-in portfolio and scores the result.
package backtest

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"backtester/internal/domain"
	"backtester/internal/provider"
	"backtester/internal/strategy"
)

// Request identifies the candles of a run and its starting capital.
type Request struct {
	Symbol         string
	Interval       domain.Interval
	Start          int64 // Unix seconds, inclusive
	End            int64 // Unix seconds, inclusive
	InitialCapital decimal.Decimal
}

func (r Request) validate() error {
	if !r.InitialCapital.IsPositive() {
		return fmt.Errorf("%w: got %s", ErrInvalidCapital, r.InitialCapital)
	}
	if !r.Interval.Valid() {
		return fmt.Errorf("interval %q: %w", r.Interval, domain.ErrInvalidInterval)
	}
	if r.Start > r.End {
		return fmt.Errorf("%w: %d > %d", ErrInvalidRange, r.Start, r.End)
	}
	return nil
}

// Backtester runs strategies over candles from one source.
type Backtester struct {
	source provider.CandleProvider
	log    *slog.Logger
}

// NewBacktester creates a Backtester reading from source. A nil logger uses
// slog.Default().
func NewBacktester(source provider.CandleProvider, log *slog.Logger) *Backtester {
	if log == nil {
		log = slog.Default()
	}
	return &Backtester{source: source, log: log.With("component", "backtest")}
}

// Run fetches the requested candles once and simulates strat over them.
func (b *Backtester) Run(ctx context.Context, strat strategy.Strategy, req Request) (*domain.BacktestResult, error) {
	candles, err := b.load(ctx, req)
	if err != nil {
		return nil, err
	}
	return b.Simulate(strat, req, candles)
}

func (b *Backtester) load(ctx context.Context, req Request) ([]domain.Candle, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	candles, err := b.source.GetCandles(ctx, req.Symbol, req.Interval, req.Start, req.End)
	if err != nil {
		return nil, fmt.Errorf("loading candles: %w", err)
	}
	if len(candles) == 0 {
		return nil, fmt.Errorf("%s %s [%d, %d]: %w", req.Symbol, req.Interval, req.Start, req.End, ErrNoCandles)
	}
	b.log.Info("loaded candles", "symbol", req.Symbol, "interval", req.Interval, "count", len(candles))
	return candles, nil
}

// Simulate replays candles, which must be ascending by timestamp, through
// strat. Each call to OnCandle sees only the candles before the current one.
// Any open position is closed at the last candle's close.
func (b *Backtester) Simulate(strat strategy.Strategy, req Request, candles []domain.Candle) (*domain.BacktestResult, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	if len(candles) == 0 {
		return nil, ErrNoCandles
	}

	name := strat.Name()
	log := b.log.With("strategy", name, "symbol", req.Symbol)
	p := NewPortfolio(req.InitialCapital)

	for i, c := range candles {
		sig := strat.OnCandle(c, candles[:i:i])
		if sig == nil {
			continue
		}
		if err := sig.Validate(); err != nil {
			return nil, &ContractError{Strategy: name, Timestamp: c.Timestamp, Err: err}
		}
		changed, err := p.Apply(*sig, c)
		if err != nil {
			return nil, err
		}
		if changed {
			log.Debug("signal applied", "side", sig.Side, "ts", c.Timestamp, "price", c.Close.String(), "state", p.State().String(), "reason", sig.Reason)
		}
	}

	last := candles[len(candles)-1]
	if p.ForceClose(last) {
		log.Debug("forced close", "ts", last.Timestamp, "price", last.Close.String())
	}

	final := p.Cash()
	trades := p.Trades()
	if trades == nil {
		trades = []domain.Trade{}
	}
	result := &domain.BacktestResult{
		StrategyName:   name,
		Symbol:         req.Symbol,
		Interval:       req.Interval,
		InitialCapital: req.InitialCapital,
		FinalCapital:   final,
		Trades:         trades,
		Metrics:        CalculateMetrics(req.InitialCapital, final, trades),
	}

	log.Info("backtest complete",
		"candles", len(candles),
		"trades", len(trades),
		"final_capital", final.String(),
		"total_return", result.Metric(domain.MetricTotalReturn).String(),
	)
	return result, nil
}
