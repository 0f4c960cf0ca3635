package builtins

import (
	"fmt"

	"github.com/shopspring/decimal"

	"backtester/internal/domain"
	"backtester/internal/strategy"
)

var _ strategy.Strategy = (*EMACross)(nil)

// EMACross signals when the short EMA crosses the long EMA.
//
// The EMAs of the previous call are memoized and reused only when history
// is exactly the previous history plus the previous candle; any other
// history is recomputed from scratch, so the output is always a function
// of (candle, history). An EMACross must not be shared between concurrent
// runs.
type EMACross struct {
	shortPeriod int
	longPeriod  int
	shortMult   decimal.Decimal
	longMult    decimal.Decimal

	memo emaMemo
}

type emaMemo struct {
	valid  bool
	count  int   // history length + 1 at the memoized call
	lastTS int64 // timestamp of the memoized candle
	short  decimal.Decimal
	long   decimal.Decimal
}

// NewEMACross creates an EMA crossover strategy.
func NewEMACross(short, long int) (*EMACross, error) {
	if short < 1 || short >= long {
		return nil, fmt.Errorf("%w: short period (%d) must be >= 1 and < long period (%d)",
			strategy.ErrInvalidParams, short, long)
	}
	return &EMACross{
		shortPeriod: short,
		longPeriod:  long,
		shortMult:   emaMultiplier(short),
		longMult:    emaMultiplier(long),
	}, nil
}

// Name returns "ema_crossover_<short>_<long>".
func (s *EMACross) Name() string {
	return fmt.Sprintf("ema_crossover_%d_%d", s.shortPeriod, s.longPeriod)
}

// OnCandle evaluates the crossover at candle.
func (s *EMACross) OnCandle(candle domain.Candle, history []domain.Candle) *domain.Signal {
	if len(history)+1 < s.longPeriod+1 {
		return nil
	}

	var prevShort, prevLong decimal.Decimal
	if s.memo.valid && s.memo.count == len(history) && s.memo.lastTS == history[len(history)-1].Timestamp {
		prevShort, prevLong = s.memo.short, s.memo.long
	} else {
		values := closes(history)
		prevShort = ema(values, s.shortPeriod)
		prevLong = ema(values, s.longPeriod)
	}
	curShort := emaStep(prevShort, candle.Close, s.shortMult)
	curLong := emaStep(prevLong, candle.Close, s.longMult)

	s.memo = emaMemo{
		valid:  true,
		count:  len(history) + 1,
		lastTS: candle.Timestamp,
		short:  curShort,
		long:   curLong,
	}

	switch {
	case prevShort.LessThanOrEqual(prevLong) && curShort.GreaterThan(curLong):
		return domain.NewSignal(domain.SideBuy, candle.Symbol,
			fmt.Sprintf("EMA%d crossed above EMA%d", s.shortPeriod, s.longPeriod))
	case prevShort.GreaterThanOrEqual(prevLong) && curShort.LessThan(curLong):
		return domain.NewSignal(domain.SideSell, candle.Symbol,
			fmt.Sprintf("EMA%d crossed below EMA%d", s.shortPeriod, s.longPeriod))
	}
	return nil
}
