package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"backtester/internal/backtest"
	"backtester/internal/config"
	"backtester/internal/domain"
	"backtester/internal/provider"
	"backtester/internal/store"
	"backtester/internal/util"
)

const defaultConfigPath = "config/backtest.yaml"

// options are the flags shared by every data-touching subcommand. Empty
// values leave the configured setting alone.
type options struct {
	configPath string
	source     string
	symbol     string
	interval   string
	start      string
	end        string
	capital    string
}

func bindOptions(fs *flag.FlagSet) *options {
	o := &options{}
	path := os.Getenv("BACKTEST_CONFIG")
	if path == "" {
		path = defaultConfigPath
	}
	fs.StringVar(&o.configPath, "config", path, "path to the YAML config (env BACKTEST_CONFIG)")
	fs.StringVar(&o.source, "source", "", "candle source: csv, parquet, alpaca or binance")
	fs.StringVar(&o.symbol, "symbol", "", "symbol to trade, e.g. BTC-USD")
	fs.StringVar(&o.interval, "interval", "", "candle interval: 1m 5m 15m 1h 4h 1d 1w")
	fs.StringVar(&o.start, "start", "", "range start: Unix seconds or YYYY-MM-DD[THH:MM:SS]")
	fs.StringVar(&o.end, "end", "", "range end (inclusive), same formats as -start; default now")
	fs.StringVar(&o.capital, "capital", "", "initial capital as a decimal")
	return o
}

// load reads the config, applies flag overrides, validates the result and
// installs the configured logger as the slog default.
func (o *options) load() (*config.Config, *slog.Logger, error) {
	cfg, err := config.LoadOrDefault(o.configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	o.apply(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid config: %w", err)
	}

	log := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(log)
	return cfg, log, nil
}

func (o *options) apply(cfg *config.Config) {
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&cfg.Data.Source, o.source)
	set(&cfg.Backtest.Symbol, o.symbol)
	set(&cfg.Backtest.Interval, o.interval)
	set(&cfg.Backtest.Start, o.start)
	set(&cfg.Backtest.End, o.end)
	set(&cfg.Backtest.InitialCapital, o.capital)
}

// timeRange resolves the configured start and end. A missing start means
// the beginning of time and a missing end means now.
func timeRange(b config.Backtest, now time.Time) (start, end int64, err error) {
	if b.Start != "" {
		if start, err = util.ParseTimestamp(b.Start); err != nil {
			return 0, 0, fmt.Errorf("start: %w", err)
		}
	}
	end = now.Unix()
	if b.End != "" {
		if end, err = util.ParseTimestamp(b.End); err != nil {
			return 0, 0, fmt.Errorf("end: %w", err)
		}
	}
	return start, end, nil
}

// buildRequest turns the backtest section into an engine request.
func buildRequest(b config.Backtest, now time.Time) (backtest.Request, error) {
	interval, err := domain.ParseInterval(b.Interval)
	if err != nil {
		return backtest.Request{}, err
	}
	capital, err := b.Capital()
	if err != nil {
		return backtest.Request{}, fmt.Errorf("initial capital: %w", err)
	}
	start, end, err := timeRange(b, now)
	if err != nil {
		return backtest.Request{}, err
	}
	return backtest.Request{
		Symbol:         b.Symbol,
		Interval:       interval,
		Start:          start,
		End:            end,
		InitialCapital: capital,
	}, nil
}

// buildProvider constructs the candle source selected by data.source.
func buildProvider(cfg *config.Config, log *slog.Logger) (provider.CandleProvider, error) {
	switch cfg.Data.Source {
	case config.SourceCSV:
		return provider.NewCSVProvider(cfg.Data.CSVPath), nil
	case config.SourceParquet:
		return provider.NewStoreProvider(store.NewParquetStore(cfg.Data.DataDir)), nil
	case config.SourceAlpaca:
		return provider.NewAlpacaProvider(cfg.Alpaca.APIKey, cfg.Alpaca.APISecret, cfg.Alpaca.DataURL, cfg.Alpaca.Feed, log), nil
	case config.SourceBinance:
		return provider.NewBinanceProvider(cfg.Binance.BaseURL, cfg.Binance.RateLimitPerMin, cfg.Binance.MaxRetries, log), nil
	default:
		return nil, fmt.Errorf("unknown data source %q", cfg.Data.Source)
	}
}

// isSet reports whether the named flag was given on the command line.
func isSet(fs *flag.FlagSet, name string) bool {
	var set bool
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}

// splitList parses a comma-separated flag value, dropping blanks.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// createFile opens path for writing, creating parent directories.
func createFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return os.Create(path)
}

// openResults opens the run store at storage.sqlite_path.
func openResults(cfg *config.Config) (*store.SQLiteStore, error) {
	path := cfg.Storage.SQLitePath
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	st, err := store.NewSQLiteStore(path)
	if err != nil {
		return nil, fmt.Errorf("opening result store: %w", err)
	}
	return st, nil
}
