// Package store defines storage interfaces for archiving candles and
// persisting backtest results.
package store

import (
	"context"
	"errors"

	"backtester/internal/domain"
)

// ErrRunNotFound is returned when a run id has no stored result.
var ErrRunNotFound = errors.New("run not found")

// CandleStore persists and retrieves OHLCV candles.
type CandleStore interface {
	// WriteCandles persists a batch of candles, replacing any stored candle
	// with the same symbol, interval and timestamp.
	WriteCandles(ctx context.Context, candles []domain.Candle) error

	// ReadCandles returns candles for symbol and interval with timestamps in
	// [startTS, endTS], in ascending timestamp order.
	ReadCandles(ctx context.Context, symbol string, interval domain.Interval, startTS, endTS int64) ([]domain.Candle, error)

	// ListSymbols returns all distinct symbols stored for interval.
	ListSymbols(ctx context.Context, interval domain.Interval) ([]string, error)
}

// RunSummary is the header row of a stored run.
type RunSummary struct {
	ID             string
	StrategyName   string
	Symbol         string
	Interval       domain.Interval
	InitialCapital string
	FinalCapital   string
	TotalTrades    int
	CreatedAt      int64
}

// ResultStore persists completed backtest results.
type ResultStore interface {
	// SaveResult stores r under a newly generated run id and returns it.
	SaveResult(ctx context.Context, r *domain.BacktestResult) (string, error)

	// GetResult loads the result stored under runID.
	GetResult(ctx context.Context, runID string) (*domain.BacktestResult, error)

	// ListRuns returns the most recent runs, newest first, up to limit.
	ListRuns(ctx context.Context, limit int) ([]RunSummary, error)
}
