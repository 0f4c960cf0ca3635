package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"backtester/internal/domain"
	"backtester/internal/strategy"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for the backtester.
type Config struct {
	Data     Data     `yaml:"data"`
	Alpaca   Alpaca   `yaml:"alpaca"`
	Binance  Binance  `yaml:"binance"`
	Storage  Storage  `yaml:"storage"`
	Logging  Logging  `yaml:"logging"`
	Backtest Backtest `yaml:"backtest"`
}

// Candle source kinds.
const (
	SourceCSV     = "csv"
	SourceParquet = "parquet"
	SourceAlpaca  = "alpaca"
	SourceBinance = "binance"
)

// Data selects where candles come from.
type Data struct {
	Source  string `yaml:"source"`
	CSVPath string `yaml:"csv_path"`
	DataDir string `yaml:"data_dir"`
}

// Alpaca holds credentials and endpoints for the Alpaca market data API.
type Alpaca struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	DataURL   string `yaml:"data_url"`
	Feed      string `yaml:"feed"`
}

// Binance configures the public klines endpoint.
type Binance struct {
	BaseURL         string `yaml:"base_url"`
	RateLimitPerMin int    `yaml:"rate_limit_per_min"`
	MaxRetries      int    `yaml:"max_retries"`
}

// Storage holds paths for result persistence.
type Storage struct {
	SQLitePath string `yaml:"sqlite_path"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Backtest describes the default run: what to trade, over which range and
// with which strategy.
type Backtest struct {
	Symbol         string          `yaml:"symbol"`
	Interval       string          `yaml:"interval"`
	Start          string          `yaml:"start"`
	End            string          `yaml:"end"`
	InitialCapital string          `yaml:"initial_capital"`
	Strategy       string          `yaml:"strategy"`
	Strategies     []string        `yaml:"strategies"`
	Concurrency    int             `yaml:"concurrency"`
	Params         strategy.Params `yaml:"params"`
	WalkForward    WalkForward     `yaml:"walk_forward"`
	MonteCarlo     MonteCarlo      `yaml:"monte_carlo"`
}

// WalkForward sizes the rolling train/test folds, in candles.
type WalkForward struct {
	TrainWindow int    `yaml:"train_window"`
	TestWindow  int    `yaml:"test_window"`
	Step        int    `yaml:"step"`
	Metric      string `yaml:"metric"`
}

// MonteCarlo configures trade-order reshuffling.
type MonteCarlo struct {
	Shuffles int   `yaml:"shuffles"`
	Seed     int64 `yaml:"seed"`
}

// Capital parses InitialCapital as an exact decimal.
func (b Backtest) Capital() (decimal.Decimal, error) {
	return decimal.NewFromString(strings.TrimSpace(b.InitialCapital))
}

// Default returns a configuration with every field set to its default.
func Default() *Config {
	return &Config{
		Data: Data{
			Source:  SourceCSV,
			CSVPath: "data/candles.csv",
			DataDir: "data",
		},
		Alpaca: Alpaca{
			DataURL: "https://data.alpaca.markets",
			Feed:    "iex",
		},
		Binance: Binance{
			BaseURL:         "https://api.binance.com",
			RateLimitPerMin: 1200,
			MaxRetries:      3,
		},
		Storage: Storage{SQLitePath: "data/backtests.db"},
		Logging: Logging{Level: "info", Format: "json"},
		Backtest: Backtest{
			Symbol:         "BTC-USD",
			Interval:       string(domain.Interval1h),
			InitialCapital: "10000",
			Strategy:       "sma_crossover",
			Concurrency:    4,
			Params:         strategy.DefaultParams(),
			WalkForward: WalkForward{
				TrainWindow: 100,
				TestWindow:  50,
				Step:        50,
				Metric:      domain.MetricTotalReturn,
			},
			MonteCarlo: MonteCarlo{Shuffles: 1000},
		},
	}
}

// Validate reports every missing or invalid field.
func (c *Config) Validate() error {
	var errs []error

	switch c.Data.Source {
	case SourceCSV:
		if c.Data.CSVPath == "" {
			errs = append(errs, errors.New("data.csv_path is required for csv source"))
		}
	case SourceParquet:
		if c.Data.DataDir == "" {
			errs = append(errs, errors.New("data.data_dir is required for parquet source"))
		}
	case SourceAlpaca:
		if c.Alpaca.APIKey == "" || c.Alpaca.APISecret == "" {
			errs = append(errs, errors.New("alpaca.api_key and alpaca.api_secret are required for alpaca source"))
		}
	case SourceBinance:
		if c.Binance.BaseURL == "" {
			errs = append(errs, errors.New("binance.base_url is required for binance source"))
		}
	default:
		errs = append(errs, fmt.Errorf("data.source %q: want csv, parquet, alpaca or binance", c.Data.Source))
	}

	if c.Backtest.Interval != "" {
		if _, err := domain.ParseInterval(c.Backtest.Interval); err != nil {
			errs = append(errs, fmt.Errorf("backtest.interval: %w", err))
		}
	}
	if c.Backtest.InitialCapital != "" {
		capital, err := c.Backtest.Capital()
		switch {
		case err != nil:
			errs = append(errs, fmt.Errorf("backtest.initial_capital: %w", err))
		case !capital.IsPositive():
			errs = append(errs, fmt.Errorf("backtest.initial_capital %s must be positive", capital))
		}
	}
	if c.Backtest.Concurrency < 0 {
		errs = append(errs, fmt.Errorf("backtest.concurrency %d must not be negative", c.Backtest.Concurrency))
	}

	wf := c.Backtest.WalkForward
	if wf.TrainWindow < 1 || wf.TestWindow < 1 || wf.Step < 1 {
		errs = append(errs, fmt.Errorf("backtest.walk_forward windows must be positive, got train %d test %d step %d",
			wf.TrainWindow, wf.TestWindow, wf.Step))
	}
	if !lo.Contains(domain.MetricKeys(), wf.Metric) {
		errs = append(errs, fmt.Errorf("backtest.walk_forward.metric %q is not a known metric", wf.Metric))
	}
	if c.Backtest.MonteCarlo.Shuffles < 1 {
		errs = append(errs, fmt.Errorf("backtest.monte_carlo.shuffles %d must be positive", c.Backtest.MonteCarlo.Shuffles))
	}

	return errors.Join(errs...)
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads the YAML configuration file at the given path on top of
// Default(), then a sibling "<name>.local.yaml" override if one exists, and
// finally applies environment variable overrides. ${VAR} and ${VAR:default}
// references in either file are expanded before parsing.
func Load(path string) (*Config, error) {
	cfg := Default()
	if err := decodeFile(path, cfg); err != nil {
		return nil, err
	}

	local := localPath(path)
	if _, err := os.Stat(local); err == nil {
		if err := decodeFile(local, cfg); err != nil {
			return nil, err
		}
	}

	applyEnvOverrides(cfg)

	return cfg, nil
}

// LoadOrDefault is Load, except that a missing file yields Default() with
// environment overrides applied.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		cfg := Default()
		applyEnvOverrides(cfg)
		return cfg, nil
	}
	return Load(path)
}

func decodeFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal([]byte(expandEnv(string(data))), cfg); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

// localPath maps config.yaml to config.local.yaml.
func localPath(path string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + ".local" + ext
}

var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::([^}]*))?\}`)

// expandEnv replaces ${VAR} and ${VAR:default}. A reference to an unset
// variable without a default is left as written.
func expandEnv(s string) string {
	return envRef.ReplaceAllStringFunc(s, func(ref string) string {
		m := envRef.FindStringSubmatch(ref)
		if v, ok := os.LookupEnv(m[1]); ok {
			return v
		}
		if strings.Contains(ref, ":") {
			return m[2]
		}
		return ref
	})
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("BACKTEST_DATA_DIR"); v != "" {
		cfg.Data.DataDir = v
	}

	if v := os.Getenv("BACKTEST_CSV_PATH"); v != "" {
		cfg.Data.CSVPath = v
	}

	if v := os.Getenv("BACKTEST_SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}

	if v := os.Getenv("BINANCE_BASE_URL"); v != "" {
		cfg.Binance.BaseURL = v
	}

	if v := os.Getenv("ALPACA_API_KEY"); v != "" {
		cfg.Alpaca.APIKey = v
	}

	if v := os.Getenv("ALPACA_API_SECRET"); v != "" {
		cfg.Alpaca.APISecret = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	// Standard Alpaca env vars (highest priority; canonical names used by the SDK).
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}
}
