// Package provider supplies ordered candle sequences to the backtest engine.
package provider

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"backtester/internal/domain"
)

// ErrUnordered is returned when a candle sequence is not strictly
// increasing by timestamp.
var ErrUnordered = errors.New("candle timestamps not strictly increasing")

// CandleProvider produces the candles for one symbol and interval with
// timestamps in [startTS, endTS] (Unix seconds, inclusive), ascending.
type CandleProvider interface {
	GetCandles(ctx context.Context, symbol string, interval domain.Interval, startTS, endTS int64) ([]domain.Candle, error)
}

// Validate checks that candles are strictly increasing by timestamp.
func Validate(candles []domain.Candle) error {
	for i := 1; i < len(candles); i++ {
		if candles[i].Timestamp <= candles[i-1].Timestamp {
			return fmt.Errorf("candle %d at %d follows %d: %w",
				i, candles[i].Timestamp, candles[i-1].Timestamp, ErrUnordered)
		}
	}
	return nil
}

// filterSorted keeps the candles matching symbol, interval and range and
// returns them in stable ascending timestamp order.
func filterSorted(candles []domain.Candle, symbol string, interval domain.Interval, startTS, endTS int64) []domain.Candle {
	out := make([]domain.Candle, 0, len(candles))
	for _, c := range candles {
		if c.Symbol != symbol || c.Interval != interval {
			continue
		}
		if c.Timestamp < startTS || c.Timestamp > endTS {
			continue
		}
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	return out
}
