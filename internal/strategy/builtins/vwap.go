package builtins

import (
	"fmt"

	"github.com/shopspring/decimal"

	"backtester/internal/domain"
	"backtester/internal/strategy"
)

var _ strategy.Strategy = (*VWAP)(nil)

// VWAP is a mean-reversion strategy around the rolling volume-weighted
// average price: BUY when the close crosses below it, SELL when it crosses
// above. Windows with no volume produce no signal.
type VWAP struct {
	period int
}

// NewVWAP creates a rolling VWAP strategy. It requires period >= 2.
func NewVWAP(period int) (*VWAP, error) {
	if period < 2 {
		return nil, fmt.Errorf("%w: period must be >= 2, got %d", strategy.ErrInvalidParams, period)
	}
	return &VWAP{period: period}, nil
}

// Name returns "vwap_<period>".
func (s *VWAP) Name() string {
	return fmt.Sprintf("vwap_%d", s.period)
}

// vwap is sum(close * volume) / sum(volume). ok is false when the window
// traded nothing.
func vwap(candles []domain.Candle) (decimal.Decimal, bool) {
	var pv, vol decimal.Decimal
	for _, c := range candles {
		pv = pv.Add(c.Close.Mul(c.Volume))
		vol = vol.Add(c.Volume)
	}
	if vol.IsZero() {
		return decimal.Zero, false
	}
	return pv.DivRound(vol, places), true
}

// OnCandle compares the previous and current closes against the VWAP of
// the windows ending at each.
func (s *VWAP) OnCandle(candle domain.Candle, history []domain.Candle) *domain.Signal {
	if len(history) < s.period {
		return nil
	}
	w := window(history, s.period, candle)
	prevVWAP, okPrev := vwap(w[:s.period])
	curVWAP, okCur := vwap(w[1:])
	if !okPrev || !okCur {
		return nil
	}
	prevClose := history[len(history)-1].Close

	switch {
	case prevClose.GreaterThanOrEqual(prevVWAP) && candle.Close.LessThan(curVWAP):
		return domain.NewSignal(domain.SideBuy, candle.Symbol,
			fmt.Sprintf("close %s crossed below VWAP %s", candle.Close, curVWAP.StringFixed(2)))
	case prevClose.LessThanOrEqual(prevVWAP) && candle.Close.GreaterThan(curVWAP):
		return domain.NewSignal(domain.SideSell, candle.Symbol,
			fmt.Sprintf("close %s crossed above VWAP %s", candle.Close, curVWAP.StringFixed(2)))
	}
	return nil
}
