package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/shopspring/decimal"

	"backtester/internal/domain"
)

// Compile-time interface check.
var _ CandleStore = (*ParquetStore)(nil)

// ParquetStore implements CandleStore using Parquet files on disk.
type ParquetStore struct {
	DataDir string
}

// NewParquetStore creates a new ParquetStore rooted at the given data directory.
func NewParquetStore(dataDir string) *ParquetStore {
	return &ParquetStore{DataDir: dataDir}
}

// ---------------------------------------------------------------------------
// Parquet record types (on-disk schema)
// ---------------------------------------------------------------------------

// CandleRecord is the Parquet schema for candle data. Prices and volume are
// stored as decimal strings so that reads are exact.
type CandleRecord struct {
	Symbol    string `parquet:"symbol"`
	Timestamp int64  `parquet:"timestamp"` // Unix seconds
	Open      string `parquet:"open"`
	High      string `parquet:"high"`
	Low       string `parquet:"low"`
	Close     string `parquet:"close"`
	Volume    string `parquet:"volume"`
	Interval  string `parquet:"interval"`
}

func toRecord(c domain.Candle) CandleRecord {
	return CandleRecord{
		Symbol:    c.Symbol,
		Timestamp: c.Timestamp,
		Open:      c.Open.String(),
		High:      c.High.String(),
		Low:       c.Low.String(),
		Close:     c.Close.String(),
		Volume:    c.Volume.String(),
		Interval:  string(c.Interval),
	}
}

func fromRecord(r CandleRecord) (domain.Candle, error) {
	c := domain.Candle{
		Symbol:    r.Symbol,
		Timestamp: r.Timestamp,
		Interval:  domain.Interval(r.Interval),
	}
	fields := []struct {
		name string
		raw  string
		dst  *decimal.Decimal
	}{
		{"open", r.Open, &c.Open},
		{"high", r.High, &c.High},
		{"low", r.Low, &c.Low},
		{"close", r.Close, &c.Close},
		{"volume", r.Volume, &c.Volume},
	}
	for _, f := range fields {
		d, err := decimal.NewFromString(f.raw)
		if err != nil {
			return domain.Candle{}, fmt.Errorf("%s at %d: %w", f.name, r.Timestamp, err)
		}
		*f.dst = d
	}
	return c, nil
}

// ---------------------------------------------------------------------------
// CandleStore implementation
// ---------------------------------------------------------------------------

// WriteCandles writes candles to Parquet files grouped by interval, symbol
// and UTC year. Symbols are stored upper-cased:
//
//	<DataDir>/<interval>/<SYMBOL>/<YYYY>.parquet
func (s *ParquetStore) WriteCandles(ctx context.Context, candles []domain.Candle) error {
	if len(candles) == 0 {
		return nil
	}

	type key struct {
		symbol   string
		interval domain.Interval
		year     int
	}
	groups := make(map[key][]CandleRecord)
	for _, c := range candles {
		c.Symbol = strings.ToUpper(c.Symbol)
		k := key{symbol: c.Symbol, interval: c.Interval, year: c.Time().Year()}
		groups[k] = append(groups[k], toRecord(c))
	}

	for k, records := range groups {
		if err := ctx.Err(); err != nil {
			return err
		}
		path := s.candlePath(k.symbol, k.interval, k.year)

		// Read existing records to merge.
		existing, err := readParquetFile[CandleRecord](path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		merged := mergeCandleRecords(existing, records)

		if err := writeParquetFile(path, merged); err != nil {
			return fmt.Errorf("writing candles for %s/%s/%d: %w", k.symbol, k.interval, k.year, err)
		}
	}
	return nil
}

// ReadCandles reads candles from the year files overlapping [startTS, endTS].
// symbol matches case-insensitively.
func (s *ParquetStore) ReadCandles(ctx context.Context, symbol string, interval domain.Interval, startTS, endTS int64) ([]domain.Candle, error) {
	if endTS < startTS {
		return nil, nil
	}
	symbol = strings.ToUpper(symbol)

	var candles []domain.Candle
	startYear := time.Unix(startTS, 0).UTC().Year()
	endYear := time.Unix(endTS, 0).UTC().Year()
	for year := startYear; year <= endYear; year++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		path := s.candlePath(symbol, interval, year)

		records, err := readParquetFile[CandleRecord](path)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}

		for _, r := range records {
			if r.Symbol != symbol || r.Interval != string(interval) {
				continue
			}
			if r.Timestamp < startTS || r.Timestamp > endTS {
				continue
			}
			c, err := fromRecord(r)
			if err != nil {
				return nil, fmt.Errorf("decoding %s: %w", path, err)
			}
			candles = append(candles, c)
		}
	}
	return candles, nil
}

// ListSymbols lists all symbols that have candle data for interval.
func (s *ParquetStore) ListSymbols(_ context.Context, interval domain.Interval) ([]string, error) {
	dir := filepath.Join(s.DataDir, string(interval))
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var symbols []string
	for _, e := range entries {
		if e.IsDir() {
			symbols = append(symbols, e.Name())
		}
	}
	sort.Strings(symbols)
	return symbols, nil
}

// ---------------------------------------------------------------------------
// Path helpers
// ---------------------------------------------------------------------------

// candlePath returns the filesystem path for a candle Parquet file.
// Layout: <dataDir>/<interval>/<SYMBOL>/<YYYY>.parquet
func (s *ParquetStore) candlePath(symbol string, interval domain.Interval, year int) string {
	return filepath.Join(s.DataDir, string(interval), strings.ToUpper(symbol), fmt.Sprintf("%d.parquet", year))
}

// ---------------------------------------------------------------------------
// Parquet file helpers
// ---------------------------------------------------------------------------

func writeParquetFile[T any](path string, records []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return parquet.WriteFile(path, records)
}

// readParquetFile returns the rows stored at path; a missing file reads as
// empty.
func readParquetFile[T any](path string) ([]T, error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	rows, err := parquet.ReadFile[T](path)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// mergeCandleRecords deduplicates candle records by (symbol, interval,
// timestamp), preferring new records over existing ones.
func mergeCandleRecords(existing, incoming []CandleRecord) []CandleRecord {
	type key struct {
		symbol   string
		interval string
		ts       int64
	}
	seen := make(map[key]CandleRecord, len(existing)+len(incoming))
	for _, r := range existing {
		seen[key{r.Symbol, r.Interval, r.Timestamp}] = r
	}
	for _, r := range incoming {
		seen[key{r.Symbol, r.Interval, r.Timestamp}] = r
	}

	merged := make([]CandleRecord, 0, len(seen))
	for _, r := range seen {
		merged = append(merged, r)
	}
	sort.Slice(merged, func(i, j int) bool {
		if merged[i].Timestamp != merged[j].Timestamp {
			return merged[i].Timestamp < merged[j].Timestamp
		}
		return merged[i].Symbol < merged[j].Symbol
	})
	return merged
}
