package provider

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"backtester/internal/domain"
)

// Compile-time interface check.
var _ CandleProvider = (*CSVProvider)(nil)

var (
	// ErrMissingColumn is returned when the header lacks a required column.
	ErrMissingColumn = errors.New("missing column")
	// ErrDuplicateTimestamp is returned when two matching rows share a
	// timestamp.
	ErrDuplicateTimestamp = errors.New("duplicate timestamp")
)

var csvColumns = []string{"symbol", "timestamp", "open", "high", "low", "close", "volume", "interval"}

// ParseError describes a malformed CSV row. Line is 1-based and counts the
// header.
type ParseError struct {
	Path   string
	Line   int
	Column string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Column == "" {
		return fmt.Sprintf("%s:%d: %v", e.Path, e.Line, e.Err)
	}
	return fmt.Sprintf("%s:%d: column %s: %v", e.Path, e.Line, e.Column, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// CSVProvider loads candles from a header-delimited CSV file with columns
// symbol, timestamp, open, high, low, close, volume and interval, in any
// order. One file may mix symbols and intervals.
type CSVProvider struct {
	path string
}

// NewCSVProvider returns a provider reading path on every call.
func NewCSVProvider(path string) *CSVProvider {
	return &CSVProvider{path: path}
}

// GetCandles parses the whole file, then filters by symbol, interval and
// range. Any malformed row fails the load, matching or not.
func (p *CSVProvider) GetCandles(ctx context.Context, symbol string, interval domain.Interval, startTS, endTS int64) ([]domain.Candle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := os.Open(p.path)
	if err != nil {
		return nil, fmt.Errorf("opening candles: %w", err)
	}
	defer f.Close()

	all, err := p.parse(f)
	if err != nil {
		return nil, err
	}

	candles := filterSorted(all, symbol, interval, startTS, endTS)
	for i := 1; i < len(candles); i++ {
		if candles[i].Timestamp == candles[i-1].Timestamp {
			return nil, &ParseError{
				Path:   p.path,
				Column: "timestamp",
				Err:    fmt.Errorf("%w %d for %s %s", ErrDuplicateTimestamp, candles[i].Timestamp, symbol, interval),
			}
		}
	}
	return candles, nil
}

func (p *CSVProvider) parse(r io.Reader) ([]domain.Candle, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, p.readError(err)
	}

	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, col := range csvColumns {
		if _, ok := idx[col]; !ok {
			return nil, &ParseError{Path: p.path, Line: 1, Column: col, Err: ErrMissingColumn}
		}
	}

	var candles []domain.Candle
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, p.readError(err)
		}
		line, _ := cr.FieldPos(0)

		c, err := p.parseRow(rec, idx, line)
		if err != nil {
			return nil, err
		}
		candles = append(candles, c)
	}
	return candles, nil
}

func (p *CSVProvider) parseRow(rec []string, idx map[string]int, line int) (domain.Candle, error) {
	field := func(col string) string { return strings.TrimSpace(rec[idx[col]]) }
	fail := func(col string, err error) (domain.Candle, error) {
		return domain.Candle{}, &ParseError{Path: p.path, Line: line, Column: col, Err: err}
	}

	c := domain.Candle{Symbol: field("symbol")}

	ts, err := strconv.ParseInt(field("timestamp"), 10, 64)
	if err != nil {
		return fail("timestamp", err)
	}
	c.Timestamp = ts

	if c.Interval, err = domain.ParseInterval(field("interval")); err != nil {
		return fail("interval", err)
	}

	for _, d := range []struct {
		col string
		dst *decimal.Decimal
	}{
		{"open", &c.Open},
		{"high", &c.High},
		{"low", &c.Low},
		{"close", &c.Close},
		{"volume", &c.Volume},
	} {
		v, err := decimal.NewFromString(field(d.col))
		if err != nil {
			return fail(d.col, err)
		}
		*d.dst = v
	}
	return c, nil
}

func (p *CSVProvider) readError(err error) error {
	var pe *csv.ParseError
	if errors.As(err, &pe) {
		return &ParseError{Path: p.path, Line: pe.Line, Err: pe.Err}
	}
	return fmt.Errorf("reading %s: %w", p.path, err)
}
