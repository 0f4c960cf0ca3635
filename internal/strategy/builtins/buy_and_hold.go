package builtins

import (
	"backtester/internal/domain"
	"backtester/internal/strategy"
)

var _ strategy.Strategy = BuyAndHold{}

// BuyAndHold buys on the first candle and never sells; the engine's
// end-of-run close realizes the position. It is the passive benchmark.
type BuyAndHold struct{}

// Name returns "buy_and_hold".
func (BuyAndHold) Name() string { return "buy_and_hold" }

// OnCandle emits BUY when history is empty.
func (BuyAndHold) OnCandle(candle domain.Candle, history []domain.Candle) *domain.Signal {
	if len(history) > 0 {
		return nil
	}
	return domain.NewSignal(domain.SideBuy, candle.Symbol, "buy and hold initial entry")
}
