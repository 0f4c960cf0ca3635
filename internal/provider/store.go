package provider

import (
	"context"
	"fmt"
	"strings"

	"backtester/internal/domain"
	"backtester/internal/store"
)

// Compile-time interface check.
var _ CandleProvider = (*StoreProvider)(nil)

// StoreProvider serves candles from a local CandleStore archive.
type StoreProvider struct {
	store store.CandleStore
}

// NewStoreProvider wraps s.
func NewStoreProvider(s store.CandleStore) *StoreProvider {
	return &StoreProvider{store: s}
}

// GetCandles reads the archived range and checks its ordering. The archive
// keeps symbols upper-cased.
func (p *StoreProvider) GetCandles(ctx context.Context, symbol string, interval domain.Interval, startTS, endTS int64) ([]domain.Candle, error) {
	symbol = strings.ToUpper(symbol)
	raw, err := p.store.ReadCandles(ctx, symbol, interval, startTS, endTS)
	if err != nil {
		return nil, fmt.Errorf("reading archive: %w", err)
	}
	candles := filterSorted(raw, symbol, interval, startTS, endTS)
	if err := Validate(candles); err != nil {
		return nil, err
	}
	return candles, nil
}
