package backtest

import (
	"errors"
	"fmt"
)

// Configuration failures. Runs that hit either produce no result.
var (
	ErrInvalidCapital = errors.New("initial capital must be positive")
	ErrNoCandles      = errors.New("no candles in requested range")
	ErrInvalidRange   = errors.New("start after end")
	ErrInvalidPrice   = errors.New("cannot enter at non-positive price")
)

// ContractError reports a strategy that returned an invalid signal. Err
// wraps domain.ErrInvalidStrength or domain.ErrInvalidSide.
type ContractError struct {
	Strategy  string
	Timestamp int64
	Err       error
}

func (e *ContractError) Error() string {
	return fmt.Sprintf("strategy %s broke its contract at %d: %v", e.Strategy, e.Timestamp, e.Err)
}

func (e *ContractError) Unwrap() error { return e.Err }

// Analysis failures.
var (
	ErrInvalidWindow       = errors.New("walk-forward windows must be positive")
	ErrInsufficientCandles = errors.New("not enough candles for one fold")
	ErrUnknownMetric       = errors.New("unknown metric")
	ErrNoStrategies        = errors.New("no strategy can be built")
	ErrTooFewTrades        = errors.New("monte carlo needs at least 2 trades")
	ErrInvalidShuffles     = errors.New("shuffle count must be positive")
)
