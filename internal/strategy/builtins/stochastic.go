package builtins

import (
	"fmt"

	"github.com/shopspring/decimal"

	"backtester/internal/domain"
	"backtester/internal/strategy"
)

var _ strategy.Strategy = (*Stochastic)(nil)

// Stochastic trades %K/%D crossovers at the extremes: BUY when %K crosses
// above %D while %K is below oversold, SELL when %K crosses below %D while
// %K is above overbought.
//
// %K is the close's position in the high-low range of the last kPeriod
// candles (50 for a flat range) and %D is the mean of the last dPeriod %K
// values.
type Stochastic struct {
	kPeriod    int
	dPeriod    int
	overbought decimal.Decimal
	oversold   decimal.Decimal
}

// NewStochastic creates a stochastic oscillator strategy. It requires
// kPeriod >= 1, dPeriod >= 1 and 0 < oversold < overbought < 100.
func NewStochastic(kPeriod, dPeriod, overbought, oversold int) (*Stochastic, error) {
	if kPeriod < 1 || dPeriod < 1 {
		return nil, fmt.Errorf("%w: k_period (%d) and d_period (%d) must be >= 1",
			strategy.ErrInvalidParams, kPeriod, dPeriod)
	}
	if !(0 < oversold && oversold < overbought && overbought < 100) {
		return nil, fmt.Errorf("%w: need 0 < oversold (%d) < overbought (%d) < 100",
			strategy.ErrInvalidParams, oversold, overbought)
	}
	return &Stochastic{
		kPeriod:    kPeriod,
		dPeriod:    dPeriod,
		overbought: decimal.NewFromInt(int64(overbought)),
		oversold:   decimal.NewFromInt(int64(oversold)),
	}, nil
}

// Name returns "stochastic_<k>_<d>_<oversold>_<overbought>".
func (s *Stochastic) Name() string {
	return fmt.Sprintf("stochastic_%d_%d_%s_%s", s.kPeriod, s.dPeriod, s.oversold, s.overbought)
}

func percentK(candles []domain.Candle) decimal.Decimal {
	high, low := highLow(candles)
	if high.Equal(low) {
		return fifty
	}
	last := candles[len(candles)-1].Close
	return last.Sub(low).Mul(hundred).DivRound(high.Sub(low), places)
}

// OnCandle evaluates the crossover at candle. The previous %D needs dPeriod
// %K values ending one candle back, so kPeriod+dPeriod candles are
// required.
func (s *Stochastic) OnCandle(candle domain.Candle, history []domain.Candle) *domain.Signal {
	n := s.kPeriod + s.dPeriod
	if len(history)+1 < n {
		return nil
	}
	w := window(history, n-1, candle)

	// ks[i] is %K over the kPeriod candles ending at w[kPeriod-1+i].
	ks := make([]decimal.Decimal, s.dPeriod+1)
	for i := range ks {
		ks[i] = percentK(w[i : i+s.kPeriod])
	}
	prevK, curK := ks[s.dPeriod-1], ks[s.dPeriod]
	prevD, curD := sma(ks[:s.dPeriod], s.dPeriod), sma(ks[1:], s.dPeriod)

	switch {
	case prevK.LessThanOrEqual(prevD) && curK.GreaterThan(curD) && curK.LessThan(s.oversold):
		return domain.NewSignal(domain.SideBuy, candle.Symbol,
			fmt.Sprintf("%%K %s crossed above %%D %s below %s", curK.StringFixed(2), curD.StringFixed(2), s.oversold))
	case prevK.GreaterThanOrEqual(prevD) && curK.LessThan(curD) && curK.GreaterThan(s.overbought):
		return domain.NewSignal(domain.SideSell, candle.Symbol,
			fmt.Sprintf("%%K %s crossed below %%D %s above %s", curK.StringFixed(2), curD.StringFixed(2), s.overbought))
	}
	return nil
}
