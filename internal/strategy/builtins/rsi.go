package builtins

import (
	"fmt"

	"github.com/shopspring/decimal"

	"backtester/internal/domain"
	"backtester/internal/strategy"
)

var _ strategy.Strategy = (*RSI)(nil)

// RSI is a mean-reversion strategy: BUY when the Wilder RSI crosses below
// the oversold level, SELL when it crosses above the overbought level.
// Like EMACross it memoizes the smoothed averages of the previous call.
type RSI struct {
	period     int
	overbought decimal.Decimal
	oversold   decimal.Decimal

	memo rsiMemo
}

type rsiMemo struct {
	valid   bool
	count   int
	lastTS  int64
	avgGain decimal.Decimal
	avgLoss decimal.Decimal
}

// NewRSI creates an RSI strategy. It requires period >= 2 and
// 0 < oversold < overbought < 100.
func NewRSI(period, overbought, oversold int) (*RSI, error) {
	if period < 2 {
		return nil, fmt.Errorf("%w: period must be >= 2, got %d", strategy.ErrInvalidParams, period)
	}
	if !(0 < oversold && oversold < overbought && overbought < 100) {
		return nil, fmt.Errorf("%w: need 0 < oversold (%d) < overbought (%d) < 100",
			strategy.ErrInvalidParams, oversold, overbought)
	}
	return &RSI{
		period:     period,
		overbought: decimal.NewFromInt(int64(overbought)),
		oversold:   decimal.NewFromInt(int64(oversold)),
	}, nil
}

// Name returns "rsi_<period>_<oversold>_<overbought>".
func (s *RSI) Name() string {
	return fmt.Sprintf("rsi_%d_%s_%s", s.period, s.oversold, s.overbought)
}

// OnCandle evaluates the RSI threshold crossings at candle. The previous
// RSI needs period deltas of history, so period+2 candles are required.
func (s *RSI) OnCandle(candle domain.Candle, history []domain.Candle) *domain.Signal {
	if len(history)+1 < s.period+2 {
		return nil
	}

	p := decimal.NewFromInt(int64(s.period))
	var prevGain, prevLoss decimal.Decimal
	if s.memo.valid && s.memo.count == len(history) && s.memo.lastTS == history[len(history)-1].Timestamp {
		prevGain, prevLoss = s.memo.avgGain, s.memo.avgLoss
	} else {
		prevGain, prevLoss = wilderAverages(closes(history), s.period)
	}
	delta := candle.Close.Sub(history[len(history)-1].Close)
	curGain, curLoss := wilderStep(prevGain, prevLoss, delta, p)

	s.memo = rsiMemo{
		valid:   true,
		count:   len(history) + 1,
		lastTS:  candle.Timestamp,
		avgGain: curGain,
		avgLoss: curLoss,
	}

	prevRSI := rsiFromAverages(prevGain, prevLoss)
	curRSI := rsiFromAverages(curGain, curLoss)

	switch {
	case prevRSI.GreaterThanOrEqual(s.oversold) && curRSI.LessThan(s.oversold):
		return domain.NewSignal(domain.SideBuy, candle.Symbol,
			fmt.Sprintf("RSI(%d) crossed below %s", s.period, s.oversold))
	case prevRSI.LessThanOrEqual(s.overbought) && curRSI.GreaterThan(s.overbought):
		return domain.NewSignal(domain.SideSell, candle.Symbol,
			fmt.Sprintf("RSI(%d) crossed above %s", s.period, s.overbought))
	}
	return nil
}
