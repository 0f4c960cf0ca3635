package builtins

import (
	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"backtester/internal/domain"
	"backtester/internal/util"
)

var (
	one     = decimal.NewFromInt(1)
	two     = decimal.NewFromInt(2)
	fifty   = decimal.NewFromInt(50)
	hundred = decimal.NewFromInt(100)
)

// places bounds the precision of square roots and ratios.
const places = 16

func closes(candles []domain.Candle) []decimal.Decimal {
	return lo.Map(candles, func(c domain.Candle, _ int) decimal.Decimal { return c.Close })
}

func sum(values []decimal.Decimal) decimal.Decimal {
	return lo.Reduce(values, func(acc decimal.Decimal, v decimal.Decimal, _ int) decimal.Decimal {
		return acc.Add(v)
	}, decimal.Zero)
}

// sma averages the last period values. Callers guarantee len(values) >= period.
func sma(values []decimal.Decimal, period int) decimal.Decimal {
	return sum(values[len(values)-period:]).Div(decimal.NewFromInt(int64(period)))
}

// emaMultiplier is the smoothing factor 2 / (period + 1).
func emaMultiplier(period int) decimal.Decimal {
	return two.Div(decimal.NewFromInt(int64(period)).Add(one))
}

// emaStep advances an EMA by one value.
func emaStep(prev, value, mult decimal.Decimal) decimal.Decimal {
	return value.Sub(prev).Mul(mult).Add(prev)
}

// ema seeds with the SMA of the first period values, then applies emaStep
// to the remainder. Callers guarantee len(values) >= period.
func ema(values []decimal.Decimal, period int) decimal.Decimal {
	mult := emaMultiplier(period)
	result := sum(values[:period]).Div(decimal.NewFromInt(int64(period)))
	for _, v := range values[period:] {
		result = emaStep(result, v, mult)
	}
	return result
}

// wilderAverages returns the Wilder-smoothed average gain and loss of the
// close-to-close deltas. Callers guarantee len(values) > period.
func wilderAverages(values []decimal.Decimal, period int) (avgGain, avgLoss decimal.Decimal) {
	p := decimal.NewFromInt(int64(period))
	for i := 1; i <= period; i++ {
		g, l := gainLoss(values[i].Sub(values[i-1]))
		avgGain = avgGain.Add(g)
		avgLoss = avgLoss.Add(l)
	}
	avgGain = avgGain.Div(p)
	avgLoss = avgLoss.Div(p)
	for i := period + 1; i < len(values); i++ {
		avgGain, avgLoss = wilderStep(avgGain, avgLoss, values[i].Sub(values[i-1]), p)
	}
	return avgGain, avgLoss
}

func wilderStep(avgGain, avgLoss, delta, p decimal.Decimal) (decimal.Decimal, decimal.Decimal) {
	g, l := gainLoss(delta)
	pm1 := p.Sub(one)
	return avgGain.Mul(pm1).Add(g).Div(p), avgLoss.Mul(pm1).Add(l).Div(p)
}

func gainLoss(delta decimal.Decimal) (gain, loss decimal.Decimal) {
	if delta.IsPositive() {
		return delta, decimal.Zero
	}
	return decimal.Zero, delta.Neg()
}

// rsiFromAverages maps average gain/loss to the 0-100 RSI scale. A window
// with no losses reads 100.
func rsiFromAverages(avgGain, avgLoss decimal.Decimal) decimal.Decimal {
	if avgLoss.IsZero() {
		return hundred
	}
	rs := avgGain.Div(avgLoss)
	return hundred.Sub(hundred.Div(one.Add(rs)))
}

// meanStd returns the mean and population standard deviation of values.
// Callers guarantee values is not empty.
func meanStd(values []decimal.Decimal) (mean, std decimal.Decimal) {
	n := decimal.NewFromInt(int64(len(values)))
	mean = sum(values).Div(n)
	variance := lo.Reduce(values, func(acc, v decimal.Decimal, _ int) decimal.Decimal {
		d := v.Sub(mean)
		return acc.Add(d.Mul(d))
	}, decimal.Zero).Div(n)
	return mean, util.Sqrt(variance, places)
}

// highLow returns the highest high and lowest low of candles. Callers
// guarantee candles is not empty.
func highLow(candles []domain.Candle) (high, low decimal.Decimal) {
	high, low = candles[0].High, candles[0].Low
	for _, c := range candles[1:] {
		high = decimal.Max(high, c.High)
		low = decimal.Min(low, c.Low)
	}
	return high, low
}

// window returns the last n candles of history followed by candle. Callers
// guarantee len(history) >= n.
func window(history []domain.Candle, n int, candle domain.Candle) []domain.Candle {
	tail := history[len(history)-n:]
	out := make([]domain.Candle, 0, n+1)
	return append(append(out, tail...), candle)
}
