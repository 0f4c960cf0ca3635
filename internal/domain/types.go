// Package domain defines the value types shared across the backtester:
// candles, signals, positions, trades and backtest results.
package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ---------------------------------------------------------------------------
// Enumerations
// ---------------------------------------------------------------------------

// Interval is the fixed time span covered by one candle.
type Interval string

const (
	Interval1m  Interval = "1m"
	Interval5m  Interval = "5m"
	Interval15m Interval = "15m"
	Interval1h  Interval = "1h"
	Interval4h  Interval = "4h"
	Interval1d  Interval = "1d"
	Interval1w  Interval = "1w"
)

// ErrInvalidInterval is returned for interval tokens outside the supported
// set.
var ErrInvalidInterval = errors.New("unknown interval")

var intervalDurations = map[Interval]time.Duration{
	Interval1m:  time.Minute,
	Interval5m:  5 * time.Minute,
	Interval15m: 15 * time.Minute,
	Interval1h:  time.Hour,
	Interval4h:  4 * time.Hour,
	Interval1d:  24 * time.Hour,
	Interval1w:  7 * 24 * time.Hour,
}

// Intervals returns every supported interval from shortest to longest.
func Intervals() []Interval {
	return []Interval{Interval1m, Interval5m, Interval15m, Interval1h, Interval4h, Interval1d, Interval1w}
}

// ParseInterval converts a token such as "15m" into an Interval.
func ParseInterval(s string) (Interval, error) {
	iv := Interval(s)
	if !iv.Valid() {
		return "", fmt.Errorf("%w %q", ErrInvalidInterval, s)
	}
	return iv, nil
}

// Valid reports whether iv is one of the enumerated intervals.
func (iv Interval) Valid() bool {
	_, ok := intervalDurations[iv]
	return ok
}

// Duration returns the wall-clock length of one candle, or 0 for an
// unknown interval.
func (iv Interval) Duration() time.Duration {
	return intervalDurations[iv]
}

func (iv Interval) String() string { return string(iv) }

// Side is the direction of a signal or trade.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Valid reports whether s is BUY or SELL.
func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

// ---------------------------------------------------------------------------
// Market data
// ---------------------------------------------------------------------------

// Candle is one OHLCV bar. Candles are created by a provider and never
// mutated afterwards.
type Candle struct {
	Symbol    string          `json:"symbol"`
	Timestamp int64           `json:"timestamp"` // Unix seconds
	Open      decimal.Decimal `json:"open"`
	High      decimal.Decimal `json:"high"`
	Low       decimal.Decimal `json:"low"`
	Close     decimal.Decimal `json:"close"`
	Volume    decimal.Decimal `json:"volume"`
	Interval  Interval        `json:"interval"`
}

// Time returns the candle timestamp as a UTC time.
func (c Candle) Time() time.Time {
	return time.Unix(c.Timestamp, 0).UTC()
}

// ---------------------------------------------------------------------------
// Signals
// ---------------------------------------------------------------------------

// Errors reported by Signal.Validate. A strategy producing either of these
// has broken its contract.
var (
	ErrInvalidStrength = errors.New("signal strength outside [0, 1]")
	ErrInvalidSide     = errors.New("unrecognized signal side")
)

// Signal is a strategy's directive for the current candle. Reason is
// diagnostic only.
type Signal struct {
	Side     Side            `json:"side"`
	Symbol   string          `json:"symbol"`
	Strength decimal.Decimal `json:"strength"`
	Reason   string          `json:"reason"`
}

// NewSignal builds a full-strength signal.
func NewSignal(side Side, symbol, reason string) *Signal {
	return &Signal{
		Side:     side,
		Symbol:   symbol,
		Strength: decimal.NewFromInt(1),
		Reason:   reason,
	}
}

// Validate checks the side and that 0 <= strength <= 1. Out-of-range values
// are rejected, never clamped.
func (s Signal) Validate() error {
	if !s.Side.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidSide, s.Side)
	}
	if s.Strength.IsNegative() || s.Strength.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("%w: got %s", ErrInvalidStrength, s.Strength)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Positions and trades
// ---------------------------------------------------------------------------

// Position is an open long holding.
type Position struct {
	Symbol     string          `json:"symbol"`
	Quantity   decimal.Decimal `json:"quantity"`
	EntryPrice decimal.Decimal `json:"entry_price"`
	EntryTime  int64           `json:"entry_time"`
}

// Close realizes the position at exitPrice and returns the resulting trade.
func (p Position) Close(exitPrice decimal.Decimal, exitTime int64) Trade {
	return Trade{
		Symbol:     p.Symbol,
		Quantity:   p.Quantity,
		EntryPrice: p.EntryPrice,
		EntryTime:  p.EntryTime,
		ExitPrice:  exitPrice,
		ExitTime:   exitTime,
		PnL:        exitPrice.Sub(p.EntryPrice).Mul(p.Quantity),
	}
}

// Trade is a completed round trip.
type Trade struct {
	Symbol     string          `json:"symbol"`
	Quantity   decimal.Decimal `json:"quantity"`
	EntryPrice decimal.Decimal `json:"entry_price"`
	EntryTime  int64           `json:"entry_time"`
	ExitPrice  decimal.Decimal `json:"exit_price"`
	ExitTime   int64           `json:"exit_time"`
	PnL        decimal.Decimal `json:"pnl"` // (exit - entry) * quantity
}

// ReturnPct is the fractional return on the entry price.
func (t Trade) ReturnPct() decimal.Decimal {
	if t.EntryPrice.IsZero() {
		return decimal.Zero
	}
	return t.ExitPrice.Sub(t.EntryPrice).Div(t.EntryPrice)
}

// ---------------------------------------------------------------------------
// Results
// ---------------------------------------------------------------------------

// Metric keys present in every BacktestResult.
const (
	MetricTotalReturn  = "total_return"
	MetricWinRate      = "win_rate"
	MetricProfitFactor = "profit_factor"
	MetricMaxDrawdown  = "max_drawdown"
	MetricSharpeRatio  = "sharpe_ratio"
	MetricTotalTrades  = "total_trades"
)

// MetricKeys lists the metric keys in reporting order.
func MetricKeys() []string {
	return []string{
		MetricTotalReturn,
		MetricWinRate,
		MetricProfitFactor,
		MetricMaxDrawdown,
		MetricSharpeRatio,
		MetricTotalTrades,
	}
}

// BacktestResult is the read-only outcome of a completed run.
type BacktestResult struct {
	StrategyName   string                     `json:"strategy_name"`
	Symbol         string                     `json:"symbol"`
	Interval       Interval                   `json:"interval"`
	InitialCapital decimal.Decimal            `json:"initial_capital"`
	FinalCapital   decimal.Decimal            `json:"final_capital"`
	Trades         []Trade                    `json:"trades"`
	Metrics        map[string]decimal.Decimal `json:"metrics"`
}

// Metric returns the named metric, or zero when it is absent.
func (r *BacktestResult) Metric(key string) decimal.Decimal {
	return r.Metrics[key]
}
