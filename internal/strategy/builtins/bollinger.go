package builtins

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"backtester/internal/domain"
	"backtester/internal/strategy"
)

var _ strategy.Strategy = (*Bollinger)(nil)

// Bollinger trades band breakouts: BUY when the close crosses above
// mean + numStd standard deviations of the last period closes, SELL when it
// crosses below mean - numStd.
type Bollinger struct {
	period int
	numStd decimal.Decimal
}

// NewBollinger creates a Bollinger Bands strategy. It requires period >= 2
// and numStd > 0.
func NewBollinger(period int, numStd float64) (*Bollinger, error) {
	if period < 2 {
		return nil, fmt.Errorf("%w: period must be >= 2, got %d", strategy.ErrInvalidParams, period)
	}
	if !(numStd > 0) || math.IsInf(numStd, 1) {
		return nil, fmt.Errorf("%w: num_std must be positive, got %v", strategy.ErrInvalidParams, numStd)
	}
	return &Bollinger{period: period, numStd: decimal.NewFromFloat(numStd)}, nil
}

// Name returns "bollinger_<period>_<num_std>".
func (s *Bollinger) Name() string {
	return fmt.Sprintf("bollinger_%d_%s", s.period, s.numStd)
}

func (s *Bollinger) bands(values []decimal.Decimal) (upper, lower decimal.Decimal) {
	mean, std := meanStd(values)
	width := std.Mul(s.numStd)
	return mean.Add(width), mean.Sub(width)
}

// OnCandle compares the close against the bands of the windows ending at
// the previous and the current candle.
func (s *Bollinger) OnCandle(candle domain.Candle, history []domain.Candle) *domain.Signal {
	if len(history) < s.period {
		return nil
	}
	values := closes(window(history, s.period, candle))
	prev, cur := values[:s.period], values[1:]
	prevClose := prev[len(prev)-1]

	prevUpper, prevLower := s.bands(prev)
	curUpper, curLower := s.bands(cur)

	switch {
	case prevClose.LessThanOrEqual(prevUpper) && candle.Close.GreaterThan(curUpper):
		return domain.NewSignal(domain.SideBuy, candle.Symbol,
			fmt.Sprintf("close %s broke above upper band %s", candle.Close, curUpper.StringFixed(2)))
	case prevClose.GreaterThanOrEqual(prevLower) && candle.Close.LessThan(curLower):
		return domain.NewSignal(domain.SideSell, candle.Symbol,
			fmt.Sprintf("close %s broke below lower band %s", candle.Close, curLower.StringFixed(2)))
	}
	return nil
}
