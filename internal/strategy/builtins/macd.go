package builtins

import (
	"fmt"

	"github.com/shopspring/decimal"

	"backtester/internal/domain"
	"backtester/internal/strategy"
)

var _ strategy.Strategy = (*MACD)(nil)

// MACD signals when the MACD line (fast EMA minus slow EMA of the closes)
// crosses its signal line (an EMA of the MACD line). The first MACD value
// is taken once slowPeriod closes exist.
//
// Like EMACross it memoizes the EMAs of the previous call and must not be
// shared between concurrent runs.
type MACD struct {
	fastPeriod   int
	slowPeriod   int
	signalPeriod int
	fastMult     decimal.Decimal
	slowMult     decimal.Decimal
	signalMult   decimal.Decimal

	memo macdMemo
}

type macdState struct {
	fast   decimal.Decimal
	slow   decimal.Decimal
	signal decimal.Decimal
}

func (m macdState) line() decimal.Decimal { return m.fast.Sub(m.slow) }

type macdMemo struct {
	valid  bool
	count  int
	lastTS int64
	state  macdState
}

// NewMACD creates a MACD strategy. It requires 1 <= fast < slow and
// signal >= 1.
func NewMACD(fast, slow, signal int) (*MACD, error) {
	if fast < 1 || fast >= slow {
		return nil, fmt.Errorf("%w: fast period (%d) must be >= 1 and < slow period (%d)",
			strategy.ErrInvalidParams, fast, slow)
	}
	if signal < 1 {
		return nil, fmt.Errorf("%w: signal period must be >= 1, got %d", strategy.ErrInvalidParams, signal)
	}
	return &MACD{
		fastPeriod:   fast,
		slowPeriod:   slow,
		signalPeriod: signal,
		fastMult:     emaMultiplier(fast),
		slowMult:     emaMultiplier(slow),
		signalMult:   emaMultiplier(signal),
	}, nil
}

// Name returns "macd_<fast>_<slow>_<signal>".
func (s *MACD) Name() string {
	return fmt.Sprintf("macd_%d_%d_%d", s.fastPeriod, s.slowPeriod, s.signalPeriod)
}

// replay computes the state after values. Callers guarantee
// len(values) >= slowPeriod+signalPeriod-1.
func (s *MACD) replay(values []decimal.Decimal) macdState {
	st := macdState{
		fast: ema(values[:s.slowPeriod], s.fastPeriod),
		slow: sma(values[:s.slowPeriod], s.slowPeriod),
	}
	lines := make([]decimal.Decimal, 0, len(values)-s.slowPeriod+1)
	lines = append(lines, st.line())
	for _, v := range values[s.slowPeriod:] {
		st.fast = emaStep(st.fast, v, s.fastMult)
		st.slow = emaStep(st.slow, v, s.slowMult)
		lines = append(lines, st.line())
	}
	st.signal = ema(lines, s.signalPeriod)
	return st
}

// OnCandle evaluates the crossover at candle.
func (s *MACD) OnCandle(candle domain.Candle, history []domain.Candle) *domain.Signal {
	if len(history)+1 < s.slowPeriod+s.signalPeriod+1 {
		return nil
	}

	var prev macdState
	if s.memo.valid && s.memo.count == len(history) && s.memo.lastTS == history[len(history)-1].Timestamp {
		prev = s.memo.state
	} else {
		prev = s.replay(closes(history))
	}
	cur := macdState{
		fast: emaStep(prev.fast, candle.Close, s.fastMult),
		slow: emaStep(prev.slow, candle.Close, s.slowMult),
	}
	cur.signal = emaStep(prev.signal, cur.line(), s.signalMult)

	s.memo = macdMemo{
		valid:  true,
		count:  len(history) + 1,
		lastTS: candle.Timestamp,
		state:  cur,
	}

	prevLine, curLine := prev.line(), cur.line()
	switch {
	case prevLine.LessThanOrEqual(prev.signal) && curLine.GreaterThan(cur.signal):
		return domain.NewSignal(domain.SideBuy, candle.Symbol,
			fmt.Sprintf("MACD %s crossed above signal %s", curLine.StringFixed(4), cur.signal.StringFixed(4)))
	case prevLine.GreaterThanOrEqual(prev.signal) && curLine.LessThan(cur.signal):
		return domain.NewSignal(domain.SideSell, candle.Symbol,
			fmt.Sprintf("MACD %s crossed below signal %s", curLine.StringFixed(4), cur.signal.StringFixed(4)))
	}
	return nil
}
