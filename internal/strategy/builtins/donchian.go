package builtins

import (
	"fmt"

	"backtester/internal/domain"
	"backtester/internal/strategy"
)

var _ strategy.Strategy = (*Donchian)(nil)

// Donchian is a channel breakout strategy: BUY when the close exceeds the
// highest high of the previous period candles, SELL when it drops below
// their lowest low.
type Donchian struct {
	period int
}

// NewDonchian creates a Donchian channel strategy. It requires period >= 1.
func NewDonchian(period int) (*Donchian, error) {
	if period < 1 {
		return nil, fmt.Errorf("%w: period must be >= 1, got %d", strategy.ErrInvalidParams, period)
	}
	return &Donchian{period: period}, nil
}

// Name returns "donchian_<period>".
func (s *Donchian) Name() string {
	return fmt.Sprintf("donchian_%d", s.period)
}

// OnCandle evaluates the breakout at candle. The channel excludes candle.
func (s *Donchian) OnCandle(candle domain.Candle, history []domain.Candle) *domain.Signal {
	if len(history) < s.period {
		return nil
	}
	upper, lower := highLow(history[len(history)-s.period:])

	switch {
	case candle.Close.GreaterThan(upper):
		return domain.NewSignal(domain.SideBuy, candle.Symbol,
			fmt.Sprintf("close %s above %d-candle high %s", candle.Close, s.period, upper))
	case candle.Close.LessThan(lower):
		return domain.NewSignal(domain.SideSell, candle.Symbol,
			fmt.Sprintf("close %s below %d-candle low %s", candle.Close, s.period, lower))
	}
	return nil
}
