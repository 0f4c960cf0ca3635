package builtins

import "backtester/internal/strategy"

// Registry keys of the builtin strategies.
const (
	NameBuyAndHold    = "buy_and_hold"
	NameSMACrossover  = "sma_crossover"
	NameEMACrossover  = "ema_crossover"
	NameRSI           = "rsi"
	NameBollinger     = "bollinger"
	NameMACD          = "macd"
	NameStochastic    = "stochastic"
	NameVWAP          = "vwap"
	NameDonchian      = "donchian"
	NameMeanReversion = "mean_reversion"
)

// Register installs every builtin strategy into r.
func Register(r *strategy.Registry) {
	r.Register(NameBuyAndHold, func(_ strategy.Params) (strategy.Strategy, error) {
		return BuyAndHold{}, nil
	})
	r.Register(NameSMACrossover, func(p strategy.Params) (strategy.Strategy, error) {
		return NewSMACross(p.ShortPeriod, p.LongPeriod)
	})
	r.Register(NameEMACrossover, func(p strategy.Params) (strategy.Strategy, error) {
		return NewEMACross(p.ShortPeriod, p.LongPeriod)
	})
	r.Register(NameRSI, func(p strategy.Params) (strategy.Strategy, error) {
		return NewRSI(p.Period, p.Overbought, p.Oversold)
	})
	r.Register(NameBollinger, func(p strategy.Params) (strategy.Strategy, error) {
		return NewBollinger(p.Period, p.NumStd)
	})
	r.Register(NameMACD, func(p strategy.Params) (strategy.Strategy, error) {
		return NewMACD(p.FastPeriod, p.SlowPeriod, p.SignalPeriod)
	})
	r.Register(NameStochastic, func(p strategy.Params) (strategy.Strategy, error) {
		return NewStochastic(p.KPeriod, p.DPeriod, p.Overbought, p.Oversold)
	})
	r.Register(NameVWAP, func(p strategy.Params) (strategy.Strategy, error) {
		return NewVWAP(p.Period)
	})
	r.Register(NameDonchian, func(p strategy.Params) (strategy.Strategy, error) {
		return NewDonchian(p.Period)
	})
	r.Register(NameMeanReversion, func(p strategy.Params) (strategy.Strategy, error) {
		return NewMeanReversion(p.Period, p.ZThreshold)
	})
}

// NewRegistry returns a registry pre-populated with the builtins.
func NewRegistry() *strategy.Registry {
	r := strategy.NewRegistry()
	Register(r)
	return r
}
