package builtins

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"backtester/internal/domain"
	"backtester/internal/strategy"
)

var _ strategy.Strategy = (*MeanReversion)(nil)

// MeanReversion trades z-score extremes of the close against its rolling
// mean: BUY when the z-score crosses below -threshold, SELL when it crosses
// above threshold.
type MeanReversion struct {
	period    int
	threshold decimal.Decimal
}

// NewMeanReversion creates a z-score strategy. It requires period >= 2 and
// threshold > 0.
func NewMeanReversion(period int, threshold float64) (*MeanReversion, error) {
	if period < 2 {
		return nil, fmt.Errorf("%w: period must be >= 2, got %d", strategy.ErrInvalidParams, period)
	}
	if !(threshold > 0) || math.IsInf(threshold, 1) {
		return nil, fmt.Errorf("%w: z_threshold must be positive, got %v", strategy.ErrInvalidParams, threshold)
	}
	return &MeanReversion{period: period, threshold: decimal.NewFromFloat(threshold)}, nil
}

// Name returns "mean_reversion_<period>_<threshold>".
func (s *MeanReversion) Name() string {
	return fmt.Sprintf("mean_reversion_%d_%s", s.period, s.threshold)
}

// zScore of the last value; a flat window scores zero.
func zScore(values []decimal.Decimal) decimal.Decimal {
	mean, std := meanStd(values)
	if std.IsZero() {
		return decimal.Zero
	}
	return values[len(values)-1].Sub(mean).DivRound(std, places)
}

// OnCandle evaluates the z-score crossings at candle.
func (s *MeanReversion) OnCandle(candle domain.Candle, history []domain.Candle) *domain.Signal {
	if len(history) < s.period {
		return nil
	}
	values := closes(window(history, s.period, candle))
	prevZ, curZ := zScore(values[:s.period]), zScore(values[1:])
	lower := s.threshold.Neg()

	switch {
	case prevZ.GreaterThanOrEqual(lower) && curZ.LessThan(lower):
		return domain.NewSignal(domain.SideBuy, candle.Symbol,
			fmt.Sprintf("z-score %s crossed below -%s", curZ.StringFixed(2), s.threshold))
	case prevZ.LessThanOrEqual(s.threshold) && curZ.GreaterThan(s.threshold):
		return domain.NewSignal(domain.SideSell, candle.Symbol,
			fmt.Sprintf("z-score %s crossed above %s", curZ.StringFixed(2), s.threshold))
	}
	return nil
}
