package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"backtester/internal/domain"
	"backtester/internal/util"
)

// Compile-time interface check.
var _ CandleProvider = (*BinanceProvider)(nil)

const (
	binanceKlinesPath  = "/api/v3/klines"
	binancePageLimit   = 1000
	binanceMaxPages    = 10_000
	binanceBaseBackoff = 500 * time.Millisecond
)

// APIError is a non-2xx response from the Binance REST API.
type APIError struct {
	Status int
	Code   int    `json:"code"`
	Msg    string `json:"msg"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("binance: HTTP %d: code %d: %s", e.Status, e.Code, e.Msg)
}

// BinanceProvider fetches spot klines from the public Binance REST API.
type BinanceProvider struct {
	baseURL    string
	http       *http.Client
	limiter    *util.RateLimiter
	maxRetries int
	backoff    time.Duration
	log        *slog.Logger
}

// NewBinanceProvider creates a provider against baseURL. rateLimitPerMin
// paces requests (0 disables pacing); maxRetries bounds attempts per page.
// A nil log uses slog.Default().
func NewBinanceProvider(baseURL string, rateLimitPerMin, maxRetries int, log *slog.Logger) *BinanceProvider {
	if log == nil {
		log = slog.Default()
	}
	var limiter *util.RateLimiter
	if rateLimitPerMin > 0 {
		limiter = util.NewBurstRateLimiter(rateLimitPerMin, 10)
	}
	return &BinanceProvider{
		baseURL:    strings.TrimRight(baseURL, "/"),
		http:       &http.Client{Timeout: 30 * time.Second},
		limiter:    limiter,
		maxRetries: max(maxRetries, 1),
		backoff:    binanceBaseBackoff,
		log:        log.With("provider", "binance"),
	}
}

// BinanceSymbol converts BTC-USD style symbols to Binance's BTCUSDT form.
func BinanceSymbol(symbol string) string {
	raw := strings.ToUpper(strings.ReplaceAll(symbol, "-", ""))
	if strings.HasSuffix(raw, "USD") {
		raw += "T"
	}
	return raw
}

// GetCandles pages through klines from startTS to endTS, advancing past the
// last open time until a short page is returned.
func (p *BinanceProvider) GetCandles(ctx context.Context, symbol string, interval domain.Interval, startTS, endTS int64) ([]domain.Candle, error) {
	if !interval.Valid() {
		return nil, fmt.Errorf("interval %q not supported by binance", interval)
	}
	startMS := startTS * 1000
	endMS := endTS * 1000

	var candles []domain.Candle
	for page := 0; page < binanceMaxPages && startMS <= endMS; page++ {
		rows, err := p.fetchPage(ctx, BinanceSymbol(symbol), interval, startMS, endMS)
		if err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			break
		}

		var lastOpen int64
		for _, row := range rows {
			c, openMS, err := parseKline(row, symbol, interval)
			if err != nil {
				return nil, err
			}
			candles = append(candles, c)
			lastOpen = openMS
		}
		p.log.Debug("fetched klines", "symbol", symbol, "page", page, "count", len(rows))

		if len(rows) < binancePageLimit || lastOpen+1 <= startMS {
			break
		}
		startMS = lastOpen + 1
	}

	candles = filterSorted(candles, symbol, interval, startTS, endTS)
	if err := Validate(candles); err != nil {
		return nil, err
	}
	return candles, nil
}

func (p *BinanceProvider) fetchPage(ctx context.Context, symbol string, interval domain.Interval, startMS, endMS int64) ([][]json.RawMessage, error) {
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("interval", string(interval))
	q.Set("startTime", strconv.FormatInt(startMS, 10))
	q.Set("endTime", strconv.FormatInt(endMS, 10))
	q.Set("limit", strconv.Itoa(binancePageLimit))
	u := p.baseURL + binanceKlinesPath + "?" + q.Encode()

	var rows [][]json.RawMessage
	err := util.Retry(ctx, p.maxRetries, p.backoff, func() error {
		if err := p.limiter.Wait(ctx); err != nil {
			return util.Permanent(err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return util.Permanent(err)
		}
		resp, err := p.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return util.Permanent(ctx.Err())
			}
			return err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if resp.StatusCode >= http.StatusBadRequest {
			apiErr := &APIError{Status: resp.StatusCode, Code: resp.StatusCode, Msg: http.StatusText(resp.StatusCode)}
			_ = json.Unmarshal(body, apiErr)
			apiErr.Status = resp.StatusCode
			if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
				p.log.Warn("retrying klines request", "status", resp.StatusCode)
				return apiErr
			}
			return util.Permanent(apiErr)
		}
		if err := json.Unmarshal(body, &rows); err != nil {
			return util.Permanent(fmt.Errorf("decoding klines: %w", err))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("fetching klines %s: %w", symbol, err)
	}
	return rows, nil
}

// parseKline decodes [openTime, open, high, low, close, volume, ...].
func parseKline(row []json.RawMessage, symbol string, interval domain.Interval) (domain.Candle, int64, error) {
	if len(row) < 6 {
		return domain.Candle{}, 0, fmt.Errorf("kline has %d fields, want at least 6", len(row))
	}
	var openMS int64
	if err := json.Unmarshal(row[0], &openMS); err != nil {
		return domain.Candle{}, 0, fmt.Errorf("kline open time: %w", err)
	}

	c := domain.Candle{Symbol: symbol, Timestamp: openMS / 1000, Interval: interval}
	for i, dst := range []*decimal.Decimal{&c.Open, &c.High, &c.Low, &c.Close, &c.Volume} {
		var s string
		if err := json.Unmarshal(row[i+1], &s); err != nil {
			return domain.Candle{}, 0, fmt.Errorf("kline field %d: %w", i+1, err)
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			return domain.Candle{}, 0, fmt.Errorf("kline field %d: %w", i+1, err)
		}
		*dst = d
	}
	return c, openMS, nil
}
