// Package builtins provides built-in strategy implementations that ship with
// the backtester.
package builtins

import (
	"fmt"

	"backtester/internal/domain"
	"backtester/internal/strategy"
)

// Compile-time interface check.
var _ strategy.Strategy = (*SMACross)(nil)

// SMACross implements a simple moving average crossover strategy. It generates
// a buy signal when the short-period SMA crosses above the long-period SMA,
// and a sell signal when it crosses below.
type SMACross struct {
	shortPeriod int
	longPeriod  int
}

// NewSMACross creates a new SMACross strategy with the specified short and
// long moving average periods.
func NewSMACross(short, long int) (*SMACross, error) {
	if short < 1 || short >= long {
		return nil, fmt.Errorf("%w: short period (%d) must be >= 1 and < long period (%d)",
			strategy.ErrInvalidParams, short, long)
	}
	return &SMACross{
		shortPeriod: short,
		longPeriod:  long,
	}, nil
}

// Name returns "sma_crossover_<short>_<long>".
func (s *SMACross) Name() string {
	return fmt.Sprintf("sma_crossover_%d_%d", s.shortPeriod, s.longPeriod)
}

// OnCandle compares the SMAs ending at the previous and current candle and
// signals on a crossover. It needs long+1 candles including the current one.
func (s *SMACross) OnCandle(candle domain.Candle, history []domain.Candle) *domain.Signal {
	if len(history)+1 < s.longPeriod+1 {
		return nil
	}

	prev := closes(history)
	cur := append(prev[1:len(prev):len(prev)], candle.Close)

	prevShort, prevLong := sma(prev, s.shortPeriod), sma(prev, s.longPeriod)
	curShort, curLong := sma(cur, s.shortPeriod), sma(cur, s.longPeriod)

	switch {
	case prevShort.LessThanOrEqual(prevLong) && curShort.GreaterThan(curLong):
		return domain.NewSignal(domain.SideBuy, candle.Symbol,
			fmt.Sprintf("SMA%d crossed above SMA%d", s.shortPeriod, s.longPeriod))
	case prevShort.GreaterThanOrEqual(prevLong) && curShort.LessThan(curLong):
		return domain.NewSignal(domain.SideSell, candle.Symbol,
			fmt.Sprintf("SMA%d crossed below SMA%d", s.shortPeriod, s.longPeriod))
	}
	return nil
}
