package provider

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/shopspring/decimal"

	"backtester/internal/domain"
)

// Compile-time interface check.
var _ CandleProvider = (*AlpacaProvider)(nil)

// barsClient is the subset of *marketdata.Client the provider uses.
type barsClient interface {
	GetBars(symbol string, req marketdata.GetBarsRequest) ([]marketdata.Bar, error)
}

// AlpacaProvider fetches US equity bars from the Alpaca market data API.
type AlpacaProvider struct {
	client barsClient
	feed   string
	log    *slog.Logger
}

// NewAlpacaProvider creates a provider with the given credentials. dataURL
// and feed may be empty to use the SDK defaults. A nil log uses
// slog.Default().
func NewAlpacaProvider(apiKey, apiSecret, dataURL, feed string, log *slog.Logger) *AlpacaProvider {
	if log == nil {
		log = slog.Default()
	}
	opts := marketdata.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
	}
	if dataURL != "" {
		opts.BaseURL = dataURL
	}
	return &AlpacaProvider{
		client: marketdata.NewClient(opts),
		feed:   feed,
		log:    log.With("provider", "alpaca"),
	}
}

// TimeFrame maps an interval to the Alpaca bar timeframe.
func TimeFrame(iv domain.Interval) (marketdata.TimeFrame, error) {
	switch iv {
	case domain.Interval1m:
		return marketdata.NewTimeFrame(1, marketdata.Min), nil
	case domain.Interval5m:
		return marketdata.NewTimeFrame(5, marketdata.Min), nil
	case domain.Interval15m:
		return marketdata.NewTimeFrame(15, marketdata.Min), nil
	case domain.Interval1h:
		return marketdata.NewTimeFrame(1, marketdata.Hour), nil
	case domain.Interval4h:
		return marketdata.NewTimeFrame(4, marketdata.Hour), nil
	case domain.Interval1d:
		return marketdata.NewTimeFrame(1, marketdata.Day), nil
	case domain.Interval1w:
		return marketdata.NewTimeFrame(1, marketdata.Week), nil
	}
	return marketdata.TimeFrame{}, fmt.Errorf("interval %q has no alpaca timeframe", iv)
}

// GetCandles fetches bars for symbol in [startTS, endTS].
func (p *AlpacaProvider) GetCandles(ctx context.Context, symbol string, interval domain.Interval, startTS, endTS int64) ([]domain.Candle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tf, err := TimeFrame(interval)
	if err != nil {
		return nil, err
	}

	req := marketdata.GetBarsRequest{
		TimeFrame: tf,
		Start:     time.Unix(startTS, 0).UTC(),
		End:       time.Unix(endTS, 0).UTC(),
	}
	if p.feed != "" {
		req.Feed = marketdata.Feed(p.feed)
	}

	bars, err := p.client.GetBars(symbol, req)
	if err != nil {
		return nil, fmt.Errorf("GetBars %s: %w", symbol, err)
	}
	p.log.Debug("fetched bars", "symbol", symbol, "interval", interval, "count", len(bars))

	candles := make([]domain.Candle, 0, len(bars))
	for _, b := range bars {
		candles = append(candles, barToCandle(symbol, interval, b))
	}
	candles = filterSorted(candles, symbol, interval, startTS, endTS)
	if err := Validate(candles); err != nil {
		return nil, err
	}
	return candles, nil
}

func barToCandle(symbol string, interval domain.Interval, b marketdata.Bar) domain.Candle {
	return domain.Candle{
		Symbol:    symbol,
		Timestamp: b.Timestamp.Unix(),
		Open:      decimal.NewFromFloat(b.Open),
		High:      decimal.NewFromFloat(b.High),
		Low:       decimal.NewFromFloat(b.Low),
		Close:     decimal.NewFromFloat(b.Close),
		Volume:    decimal.NewFromInt(int64(b.Volume)),
		Interval:  interval,
	}
}
